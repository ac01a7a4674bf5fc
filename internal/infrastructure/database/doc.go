// Package database provides the runtime's SQLite store.
//
// It holds two tables, created by the embedded migrations:
//   - entity_snapshots: the last known current/previous state of every
//     entity, written by the recorder and used to warm the cache on start
//   - service_calls: an audit log of calls routed through the call proxy
//
// The connection runs in WAL mode with a single writer. All queries use
// parameterised statements and the file is created with mode 0600.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. Each version has an .up.sql and a .down.sql
// file named YYYYMMDD_HHMMSS_description.
package database
