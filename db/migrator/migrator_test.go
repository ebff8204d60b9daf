package migrator_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/archon-research/stl-trade/db/migrator"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "README.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	files, err := migrator.MigrationFiles(dir)
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	want := []string{"001_a.sql", "002_b.sql"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("MigrationFiles() = %v, want %v", files, want)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	if _, err := migrator.MigrationFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestChecksum(t *testing.T) {
	a := migrator.Checksum([]byte("CREATE TABLE a ();"))
	b := migrator.Checksum([]byte("CREATE TABLE b ();"))
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("expected different checksums for different content")
	}
	if a != migrator.Checksum([]byte("CREATE TABLE a ();")) {
		t.Error("checksum is not stable")
	}
}

func TestRepositoryMigrations(t *testing.T) {
	files, err := migrator.MigrationFiles("../migrations")
	if err != nil {
		t.Fatalf("MigrationFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("expected at least one migration")
	}
}
