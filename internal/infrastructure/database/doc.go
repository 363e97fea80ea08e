// Package database provides the SQLite store used by tickerbox.
//
// The store holds follower-count snapshots so the status summary can report
// a 24-hour change across restarts. It is optional: with database.enabled
// off, the summary omits the change line.
//
// Schema changes are versioned SQL files (see the migrations package),
// applied in order with Migrate:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default.
package database
