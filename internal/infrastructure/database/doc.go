// Package database provides SQLite connectivity for the command journal.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations
//   - Connection lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Journal.Path,
//	    WALMode:     cfg.Journal.WALMode,
//	    BusyTimeout: cfg.Journal.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are embedded by the migrations package; import it for
// its side effect to register them:
//
//	import _ "github.com/nerrad567/moonrig/migrations"
//
// Migration Strategy:
//
// Migrations are additive-only to support safe rollbacks:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Each migration file has both .up.sql and .down.sql
package database
