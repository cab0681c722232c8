package migration

import (
	"strings"
	"testing"
	"testing/fstest"

	"notebook-scout/migrations"
)

func TestLoadMigrations_OrdersAndChecksums(t *testing.T) {
	src := fstest.MapFS{
		"V2__second.sql": {Data: []byte("CREATE TABLE b (id INT);\n")},
		"V1__first.sql":  {Data: []byte("  CREATE TABLE a (id INT);  ")},
		"README.md":      {Data: []byte("ignored")},
	}
	migs, err := LoadMigrations(src)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if len(migs) != 2 || migs[0].Version != 1 || migs[1].Version != 2 {
		t.Fatalf("unexpected migrations %+v", migs)
	}
	if migs[0].Name != "first" || migs[0].SQL != "CREATE TABLE a (id INT);" {
		t.Fatalf("expected trimmed sql, got %+v", migs[0])
	}
	if len(migs[0].Checksum) != 64 || migs[0].Checksum == migs[1].Checksum {
		t.Fatalf("unexpected checksums %q %q", migs[0].Checksum, migs[1].Checksum)
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	if _, err := LoadMigrations(fstest.MapFS{"V1__empty.sql": {Data: []byte("  ")}}); err == nil {
		t.Fatalf("expected error for empty migration")
	}
	dup := fstest.MapFS{
		"V1__a.sql":  {Data: []byte("SELECT 1")},
		"V01__b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := LoadMigrations(dup); err == nil {
		t.Fatalf("expected error for duplicate version")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := LoadMigrations(migrations.FS)
	if err != nil {
		t.Fatalf("expected nil err, got %v", err)
	}
	if len(migs) < 4 {
		t.Fatalf("expected embedded schema migrations, got %d", len(migs))
	}
	if !strings.Contains(migs[3].SQL, "tags TEXT[]") {
		t.Fatalf("expected V4 to add listing tags, got %q", migs[3].SQL)
	}
	for i, m := range migs {
		if m.Version != int64(i+1) {
			t.Fatalf("expected contiguous versions, got %d at %d", m.Version, i)
		}
	}
}
