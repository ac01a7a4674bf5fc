package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hass/migrations"
)

func openMigratedDB(t *testing.T) *DB {
	t.Helper()
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// =============================================================================
// Snapshots
// =============================================================================

func TestSaveSnapshot_Upsert(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	first := Snapshot{
		EntityID: "light.kitchen",
		Domain:   "light",
		Current:  json.RawMessage(`{"entity_id":"light.kitchen","state":"off"}`),
	}
	if err := db.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	got, err := db.Snapshot(ctx, "light.kitchen")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Previous != nil {
		t.Errorf("Previous = %s, want nil", got.Previous)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	second := Snapshot{
		EntityID:  "light.kitchen",
		Domain:    "light",
		Current:   json.RawMessage(`{"entity_id":"light.kitchen","state":"on"}`),
		Previous:  first.Current,
		UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := db.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	got, err = db.Snapshot(ctx, "light.kitchen")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if string(got.Current) != string(second.Current) || string(got.Previous) != string(first.Current) {
		t.Errorf("snapshot = %s / %s", got.Current, got.Previous)
	}
	if !got.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, second.UpdatedAt)
	}

	all, err := db.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Snapshots() len = %d, want 1", len(all))
	}
}

func TestSnapshot_NotFound(t *testing.T) {
	db := openMigratedDB(t)
	if _, err := db.Snapshot(context.Background(), "sensor.missing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshots_Ordered(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	for _, id := range []string{"switch.b", "light.a", "sensor.c"} {
		err := db.SaveSnapshot(ctx, Snapshot{EntityID: id, Domain: "x", Current: json.RawMessage(`{}`)})
		if err != nil {
			t.Fatalf("SaveSnapshot(%s) error = %v", id, err)
		}
	}

	all, err := db.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	want := []string{"light.a", "sensor.c", "switch.b"}
	for i, s := range all {
		if s.EntityID != want[i] {
			t.Errorf("Snapshots()[%d] = %s, want %s", i, s.EntityID, want[i])
		}
	}
}

// =============================================================================
// Call Log
// =============================================================================

func TestRecordCall(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	calls := []CallRecord{
		{RequestID: "r1", Domain: "light", Service: "turn_on", Transport: "socket", Data: json.RawMessage(`{"entity_id":"light.kitchen"}`)},
		{RequestID: "r2", Domain: "notify", Service: "mobile", Transport: "rest", Error: "http status 500"},
	}
	for _, c := range calls {
		if err := db.RecordCall(ctx, c); err != nil {
			t.Fatalf("RecordCall() error = %v", err)
		}
	}

	got, err := db.RecentCalls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCalls() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentCalls() len = %d, want 2", len(got))
	}
	if got[0].RequestID != "r2" || got[0].Error != "http status 500" || got[0].Data != nil {
		t.Errorf("newest call = %+v", got[0])
	}
	if got[1].RequestID != "r1" || string(got[1].Data) != `{"entity_id":"light.kitchen"}` || got[1].Error != "" {
		t.Errorf("oldest call = %+v", got[1])
	}

	limited, err := db.RecentCalls(ctx, 1)
	if err != nil {
		t.Fatalf("RecentCalls(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("RecentCalls(1) len = %d", len(limited))
	}
}
