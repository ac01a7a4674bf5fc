package database

import "errors"

var (
	// ErrNoPath indicates Open was called without a file path.
	ErrNoPath = errors.New("database: path is required")

	// ErrSnapshotNotFound indicates no snapshot exists for an entity.
	ErrSnapshotNotFound = errors.New("database: snapshot not found")

	// ErrMigrationMissing indicates an applied migration has no file.
	ErrMigrationMissing = errors.New("database: migration not found")
)
