package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	appconfig "cryptolens/config"
	"cryptolens/internal/metadata"
	"cryptolens/logger"
	"cryptolens/models"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

const component = "snapshot_store"

const (
	KindCoins      = "coins"
	KindCategories = "categories"
)

// Mirror copies a written snapshot to remote storage and returns its remote
// location.
type Mirror interface {
	Upload(ctx context.Context, key, path string) (string, error)
}

// Store persists coin and category snapshots as parquet files named
// "{prefix}_{YYYYMMDDHHMM}.parquet" under the data directory.
type Store struct {
	cfg     *appconfig.Config
	dir     string
	loc     *time.Location
	log     *logger.Log
	catalog *metadata.Catalog
	mirror  Mirror
}

// NewStore returns a store rooted at cfg.Cache.DataDir. mirror may be nil.
func NewStore(cfg *appconfig.Config, loc *time.Location, mirror Mirror) *Store {
	return &Store{
		cfg:     cfg,
		dir:     cfg.Cache.DataDir,
		loc:     loc,
		log:     logger.GetLogger(),
		catalog: metadata.NewCatalog(cfg.Cache.DataDir),
		mirror:  mirror,
	}
}

// Catalog exposes the snapshot index.
func (s *Store) Catalog() *metadata.Catalog { return s.catalog }

func compressionCodec(name string) parquet.CompressionCodec {
	switch strings.ToLower(name) {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// writeParquet writes rows to path through a temporary sibling that is
// renamed into place only once the file is complete.
func writeParquet[T any](path string, rows []T, compression string) error {
	tmp := filepath.Join(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	cleanup := func() {
		fw.Close()
		os.Remove(tmp)
	}

	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		cleanup()
		return fmt.Errorf("new parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			cleanup()
			return fmt.Errorf("write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		cleanup()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

func readParquet[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 1)
	if err != nil {
		return nil, fmt.Errorf("new parquet reader: %w", err)
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	rows := make([]T, n)
	if n == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	return rows, nil
}

func (s *Store) save(ctx context.Context, kind, prefix string, stamp time.Time, count int, write func(path string) error) (string, error) {
	log := s.log.WithComponent(component).WithFields(logger.Fields{"kind": kind})
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}

	name := SnapshotName(prefix, stamp, s.loc)
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		log.WithFields(logger.Fields{"file": name}).Warn("snapshot for this minute already exists, replacing it")
	}
	start := time.Now()
	if err := write(path); err != nil {
		log.WithError(err).Error("failed to write snapshot")
		return "", fmt.Errorf("save %s snapshot: %w", kind, err)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	logger.LogPerformanceEntry(log, component, "save_snapshot", time.Since(start), logger.Fields{
		"path":  path,
		"rows":  count,
		"bytes": size,
	})

	entry, err := s.catalog.AddFile(metadata.DataFile{
		Kind:        kind,
		Path:        name,
		FileSize:    size,
		RecordCount: int64(count),
		Stamp:       stamp.In(s.loc).Format(StampLayout),
		Timestamp:   stamp,
	})
	if err != nil {
		log.WithError(err).Warn("failed to record snapshot in catalog")
	}

	if s.mirror != nil {
		key := name
		if p := strings.Trim(s.cfg.Storage.S3.Prefix, "/"); p != "" {
			key = p + "/" + name
		}
		remote, err := s.mirror.Upload(ctx, key, path)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("failed to mirror snapshot")
		} else {
			log.WithFields(logger.Fields{"remote": remote}).Info("snapshot mirrored")
			if entry.ID != "" {
				if err := s.catalog.SetRemote(entry.ID, remote); err != nil {
					log.WithError(err).Warn("failed to record mirror location")
				}
			}
		}
	}

	log.WithFields(logger.Fields{"file": name, "rows": count}).Info("snapshot saved")
	return path, nil
}

// SaveCoins writes coins as a new snapshot stamped with stamp and returns
// its path.
func (s *Store) SaveCoins(ctx context.Context, stamp time.Time, coins []models.CoinRecord) (string, error) {
	rows := make([]coinRow, 0, len(coins))
	for _, c := range coins {
		row, err := toCoinRow(c)
		if err != nil {
			return "", err
		}
		rows = append(rows, row)
	}
	return s.save(ctx, KindCoins, s.cfg.Cache.CoinPrefix, stamp, len(rows), func(path string) error {
		return writeParquet(path, rows, s.cfg.Cache.Compression)
	})
}

// SaveCategories writes categories as a new snapshot stamped with stamp and
// returns its path.
func (s *Store) SaveCategories(ctx context.Context, stamp time.Time, categories []models.Category) (string, error) {
	rows := make([]categoryRow, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, toCategoryRow(c))
	}
	return s.save(ctx, KindCategories, s.cfg.Cache.CategoryPrefix, stamp, len(rows), func(path string) error {
		return writeParquet(path, rows, s.cfg.Cache.Compression)
	})
}

// LoadCoins reads a coin snapshot. Times come back in the store's zone.
func (s *Store) LoadCoins(path string) ([]models.CoinRecord, error) {
	rows, err := readParquet[coinRow](path)
	if err != nil {
		return nil, fmt.Errorf("load coins snapshot: %w", err)
	}
	out := make([]models.CoinRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromCoinRow(row, s.loc)
		if err != nil {
			return nil, fmt.Errorf("load coins snapshot: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadCategories reads a category snapshot. Times come back in the store's
// zone.
func (s *Store) LoadCategories(path string) ([]models.Category, error) {
	rows, err := readParquet[categoryRow](path)
	if err != nil {
		return nil, fmt.Errorf("load categories snapshot: %w", err)
	}
	out := make([]models.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromCategoryRow(row, s.loc))
	}
	return out, nil
}

// LatestPath returns the newest snapshot for prefix. ok is false when the
// data directory holds none.
func (s *Store) LatestPath(prefix string) (path string, ok bool, err error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("list data dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	name, ok := LatestSnapshot(names, prefix, s.loc)
	if !ok {
		return "", false, nil
	}
	return filepath.Join(s.dir, name), true, nil
}

// LatestCoins loads the newest coin snapshot. A nil slice and empty path
// mean no snapshot exists.
func (s *Store) LatestCoins() ([]models.CoinRecord, string, error) {
	path, ok, err := s.LatestPath(s.cfg.Cache.CoinPrefix)
	if err != nil || !ok {
		return nil, "", err
	}
	coins, err := s.LoadCoins(path)
	if err != nil {
		return nil, "", err
	}
	return coins, path, nil
}

// LatestCategories loads the newest category snapshot. A nil slice and empty
// path mean no snapshot exists.
func (s *Store) LatestCategories() ([]models.Category, string, error) {
	path, ok, err := s.LatestPath(s.cfg.Cache.CategoryPrefix)
	if err != nil || !ok {
		return nil, "", err
	}
	cats, err := s.LoadCategories(path)
	if err != nil {
		return nil, "", err
	}
	return cats, path, nil
}
