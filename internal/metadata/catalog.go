package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DataFile describes a single snapshot file written by the store.
type DataFile struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Path        string    `json:"path"`
	FileSize    int64     `json:"file_size_in_bytes"`
	RecordCount int64     `json:"record_count"`
	Stamp       string    `json:"stamp"`
	Timestamp   time.Time `json:"timestamp"`
	Remote      string    `json:"remote,omitempty"`
}

// catalogFile is the on-disk layout of the catalog.
type catalogFile struct {
	FormatVersion int        `json:"format-version"`
	CatalogUUID   string     `json:"catalog-uuid"`
	Location      string     `json:"location"`
	Files         []DataFile `json:"files"`
}

// Catalog keeps a JSON index of every snapshot file under a data directory,
// one entry per file path. The index lives at <dir>/metadata/catalog.json.
type Catalog struct {
	mu   sync.Mutex
	dir  string
	path string
}

// NewCatalog returns a catalog rooted at dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:  dir,
		path: filepath.Join(dir, "metadata", "catalog.json"),
	}
}

// Path returns the location of the catalog file.
func (c *Catalog) Path() string { return c.path }

func (c *Catalog) read() (catalogFile, error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return catalogFile{FormatVersion: 1, CatalogUUID: uuid.NewString(), Location: c.dir}, nil
	}
	if err != nil {
		return catalogFile{}, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	if err := json.Unmarshal(b, &cf); err != nil {
		return catalogFile{}, fmt.Errorf("decode catalog: %w", err)
	}
	return cf, nil
}

func (c *Catalog) write(cf catalogFile) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	b, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// AddFile records a newly written snapshot file and returns the stored entry
// with its assigned id. An entry already recorded for the same path is
// dropped, since the file it described has been overwritten.
func (c *Catalog) AddFile(df DataFile) (DataFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, err := c.read()
	if err != nil {
		return DataFile{}, err
	}
	if df.ID == "" {
		df.ID = uuid.NewString()
	}
	if df.Timestamp.IsZero() {
		df.Timestamp = time.Now()
	}
	kept := cf.Files[:0]
	for _, f := range cf.Files {
		if f.Path != df.Path {
			kept = append(kept, f)
		}
	}
	cf.Files = append(kept, df)

	if err := c.write(cf); err != nil {
		return DataFile{}, err
	}
	return df, nil
}

// Files returns every recorded entry in write order.
func (c *Catalog) Files() ([]DataFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, err := c.read()
	if err != nil {
		return nil, err
	}
	return cf.Files, nil
}

// SetRemote attaches a mirror location to the entry with id.
func (c *Catalog) SetRemote(id, remote string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, err := c.read()
	if err != nil {
		return err
	}
	found := false
	for i := range cf.Files {
		if cf.Files[i].ID == id {
			cf.Files[i].Remote = remote
			found = true
		}
	}
	if !found {
		return fmt.Errorf("catalog entry %s not found", id)
	}
	return c.write(cf)
}
