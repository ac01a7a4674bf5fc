package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/nerrad567/gray-logic-hass/migrations"
)

// testMigrations is a two-step schema used to exercise ordering and rollback.
var testMigrations = fstest.MapFS{
	"20260101_000000_create_rooms.up.sql":   {Data: []byte("CREATE TABLE rooms (id TEXT PRIMARY KEY);")},
	"20260101_000000_create_rooms.down.sql": {Data: []byte("DROP TABLE rooms;")},
	"20260102_000000_add_floor.up.sql":      {Data: []byte("ALTER TABLE rooms ADD COLUMN floor INTEGER;")},
	"20260102_000000_add_floor.down.sql":    {Data: []byte("ALTER TABLE rooms DROP COLUMN floor;")},
	"README.md":                             {Data: []byte("ignored")},
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "rooms") {
		t.Fatal("table rooms not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, testMigrations)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
	if applied[0].Version != "20260101_000000" || applied[1].Version != "20260102_000000" {
		t.Errorf("applied order = %v", applied)
	}

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testMigrations); err != nil {
		t.Fatalf("second MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "rooms") {
		t.Error("table rooms should have been dropped")
	}
	if err := db.MigrateDown(ctx, testMigrations); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_MissingFile(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fstest.MapFS{}); !errors.Is(err, ErrMigrationMissing) {
		t.Errorf("MigrateDown() error = %v, want ErrMigrationMissing", err)
	}
}

func TestMigrate_FailureRollsBackStep(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	broken := fstest.MapFS{
		"20260101_000000_ok.up.sql":  {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260102_000000_bad.up.sql": {Data: []byte("CREATE TABLE;")},
	}
	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() with bad SQL should fail")
	}

	applied, pending, err := db.MigrationStatus(ctx, broken)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1/1", len(applied), len(pending))
	}
}

func TestMigrate_Nil(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
}

func TestMigrate_Embedded(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate(embedded) error = %v", err)
	}
	for _, table := range []string{"entity_snapshots", "service_calls"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s not created", table)
		}
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{"20261001_090000_entity_snapshots.up.sql", "20261001_090000", true, true},
		{"20261001_090000_entity_snapshots.down.sql", "20261001_090000", false, true},
		{"readme.txt", "", false, false},
		{"20261001_090000_entity_snapshots.sql", "", false, false},
		{"nounderscore.up.sql", "", false, false},
	}
	for _, tt := range tests {
		version, isUp, ok := parseMigrationFilename(tt.filename)
		if version != tt.wantVersion || isUp != tt.wantIsUp || ok != tt.wantOk {
			t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.filename, version, isUp, ok, tt.wantVersion, tt.wantIsUp, tt.wantOk)
		}
	}
}

func TestMigrationName(t *testing.T) {
	if got := migrationName("20261001_090000_entity_snapshots.up.sql"); got != "entity_snapshots" {
		t.Errorf("migrationName() = %q", got)
	}
	if got := migrationName("short.down.sql"); got != "short" {
		t.Errorf("migrationName() = %q", got)
	}
}
