package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_Sorted(t *testing.T) {
	src := fstest.MapFS{
		"010_indexes.sql": {Data: []byte("SELECT 10;")},
		"002_outcome.sql": {Data: []byte("SELECT 2;")},
		"001_journal.sql": {Data: []byte("CREATE TABLE transitions (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, src).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, v)
		}
	}
	if migrations[0].Name != "001_journal.sql" {
		t.Errorf("expected 001_journal.sql first, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE transitions (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsNonMigrations(t *testing.T) {
	src := fstest.MapFS{
		"001_journal.sql":  {Data: []byte("SELECT 1;")},
		"README.md":        {Data: []byte("docs")},
		"notes.sql":        {Data: []byte("SELECT 0;")},
		"abc_bad.sql":      {Data: []byte("SELECT 0;")},
		"sub/002_deep.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, src).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d: %+v", len(migrations), migrations)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
