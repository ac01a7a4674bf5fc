package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Snapshot is the last known state pair of one entity, stored as the raw
// JSON state objects.
type Snapshot struct {
	EntityID  string
	Domain    string
	Current   json.RawMessage
	Previous  json.RawMessage // nil when the entity had no prior state
	UpdatedAt time.Time
}

// SaveSnapshot inserts or replaces the snapshot for s.EntityID.
func (db *DB) SaveSnapshot(ctx context.Context, s Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	var previous sql.NullString
	if len(s.Previous) > 0 {
		previous = sql.NullString{String: string(s.Previous), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO entity_snapshots (entity_id, domain, current_json, previous_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			domain = excluded.domain,
			current_json = excluded.current_json,
			previous_json = excluded.previous_json,
			updated_at = excluded.updated_at`,
		s.EntityID, s.Domain, string(s.Current), previous,
		s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", s.EntityID, err)
	}
	return nil
}

// Snapshot returns the stored snapshot for entityID, or ErrSnapshotNotFound.
func (db *DB) Snapshot(ctx context.Context, entityID string) (Snapshot, error) {
	row := db.QueryRowContext(ctx, `
		SELECT entity_id, domain, current_json, previous_json, updated_at
		FROM entity_snapshots WHERE entity_id = ?`, entityID)

	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, entityID)
	}
	return s, err
}

// Snapshots returns every stored snapshot ordered by entity id.
func (db *DB) Snapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT entity_id, domain, current_json, previous_json, updated_at
		FROM entity_snapshots ORDER BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var (
		s         Snapshot
		current   string
		previous  sql.NullString
		updatedAt string
	)
	if err := row.Scan(&s.EntityID, &s.Domain, &current, &previous, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scanning snapshot: %w", err)
	}
	s.Current = json.RawMessage(current)
	if previous.Valid {
		s.Previous = json.RawMessage(previous.String)
	}
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is controlled
	return s, nil
}
