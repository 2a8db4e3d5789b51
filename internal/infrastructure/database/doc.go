// Package database provides SQLite connectivity for SignGrid Core.
//
// It wraps database/sql with SignGrid defaults (WAL mode, busy timeout,
// single-writer pool sizing) and runs embedded schema migrations at
// startup. Migration files are compiled into the binary by the top-level
// migrations package, so deployments never depend on loose SQL files.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
