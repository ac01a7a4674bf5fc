package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// defaultCallLimit caps RecentCalls when limit is not positive.
const defaultCallLimit = 100

// CallRecord is one audited service call.
type CallRecord struct {
	ID        int64
	RequestID string
	Domain    string
	Service   string
	Transport string
	Data      json.RawMessage
	Error     string // empty on success
	CalledAt  time.Time
}

// RecordCall appends a call to the audit log.
func (db *DB) RecordCall(ctx context.Context, r CallRecord) error {
	if r.CalledAt.IsZero() {
		r.CalledAt = time.Now()
	}
	var data, callErr sql.NullString
	if len(r.Data) > 0 {
		data = sql.NullString{String: string(r.Data), Valid: true}
	}
	if r.Error != "" {
		callErr = sql.NullString{String: r.Error, Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO service_calls (request_id, domain, service, transport, data_json, error, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.Domain, r.Service, r.Transport, data, callErr,
		r.CalledAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording call %s.%s: %w", r.Domain, r.Service, err)
	}
	return nil
}

// RecentCalls returns up to limit calls, newest first.
func (db *DB) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = defaultCallLimit
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, request_id, domain, service, transport, data_json, error, called_at
		FROM service_calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var (
			r        CallRecord
			data     sql.NullString
			callErr  sql.NullString
			calledAt string
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Domain, &r.Service, &r.Transport, &data, &callErr, &calledAt); err != nil {
			return nil, fmt.Errorf("scanning call: %w", err)
		}
		if data.Valid {
			r.Data = json.RawMessage(data.String)
		}
		r.Error = callErr.String
		r.CalledAt, _ = time.Parse(time.RFC3339Nano, calledAt) //nolint:errcheck // Format is controlled
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calls: %w", err)
	}
	return out, nil
}
