package metadata

import (
	"os"
	"testing"
	"time"
)

func TestCatalogAddFile(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first, err := c.AddFile(DataFile{Kind: "coins", Path: "df_coins_202403010900.parquet", RecordCount: 3, Stamp: "202403010900", Timestamp: ts})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if _, err := c.AddFile(DataFile{Kind: "categories", Path: "df_categories_202403010900.parquet", RecordCount: 7}); err != nil {
		t.Fatalf("add second file: %v", err)
	}

	if _, err := os.Stat(c.Path()); err != nil {
		t.Fatalf("catalog not written: %v", err)
	}

	// a fresh handle sees the persisted entries
	files, err := NewCatalog(dir).Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(files))
	}
	if files[0].Kind != "coins" || files[0].RecordCount != 3 || !files[0].Timestamp.Equal(ts) {
		t.Errorf("unexpected first entry %+v", files[0])
	}
	if files[1].Timestamp.IsZero() {
		t.Error("timestamp should default to now")
	}
}

func TestCatalogAddFileReplacesSamePath(t *testing.T) {
	c := NewCatalog(t.TempDir())
	first, err := c.AddFile(DataFile{Kind: "coins", Path: "df_coins_202403010900.parquet", RecordCount: 3})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if _, err := c.AddFile(DataFile{Kind: "categories", Path: "df_categories_202403010900.parquet"}); err != nil {
		t.Fatalf("add categories: %v", err)
	}
	// a second refresh within the same minute rewrites the coins file
	second, err := c.AddFile(DataFile{Kind: "coins", Path: "df_coins_202403010900.parquet", RecordCount: 5})
	if err != nil {
		t.Fatalf("add same path: %v", err)
	}
	if second.ID == first.ID {
		t.Error("replacement should get a fresh id")
	}

	files, err := c.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(files), files)
	}
	if files[0].Kind != "categories" {
		t.Errorf("untouched entry moved: %+v", files[0])
	}
	if files[1].ID != second.ID || files[1].RecordCount != 5 {
		t.Errorf("stale entry kept: %+v", files[1])
	}
	if err := c.SetRemote(first.ID, "s3://bucket/x"); err == nil {
		t.Error("replaced entry should no longer be addressable")
	}
}

func TestCatalogSetRemote(t *testing.T) {
	c := NewCatalog(t.TempDir())
	df, err := c.AddFile(DataFile{Kind: "coins", Path: "a.parquet"})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}
	if err := c.SetRemote(df.ID, "s3://bucket/a.parquet"); err != nil {
		t.Fatalf("set remote: %v", err)
	}
	files, _ := c.Files()
	if files[0].Remote != "s3://bucket/a.parquet" {
		t.Errorf("remote = %q", files[0].Remote)
	}
	if err := c.SetRemote("missing", "x"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestCatalogEmpty(t *testing.T) {
	files, err := NewCatalog(t.TempDir()).Files()
	if err != nil || len(files) != 0 {
		t.Fatalf("files = %v, %v", files, err)
	}
}
