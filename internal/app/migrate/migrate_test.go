package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedSourceListsMigrations(t *testing.T) {
	fsys, dir, err := Source("")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(entries))
	}
	for _, e := range entries {
		raw, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		body := string(raw)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("%s is missing goose annotations", e.Name())
		}
	}
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "00001_init.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fsys, root, err := Source(dir)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if _, err := fs.Stat(fsys, root+"/00001_init.sql"); err != nil {
		t.Fatalf("stat migration: %v", err)
	}

	if _, _, err := Source(filepath.Join(dir, "00001_init.sql")); err == nil {
		t.Fatalf("expected error for file path")
	}
	if _, _, err := Source(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
