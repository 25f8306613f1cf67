// Package repository implements ProductRepository (C3, spec §4.3): the
// document store for normalized products, their resolved images, and
// durable SyncLogs. Backed by SQLite in WAL mode via the pure-Go
// modernc.org/sqlite driver, with schema migrations applied through
// goose.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

// walJournalSizeLimit caps the WAL file at 64 MiB before a checkpoint is
// forced, matching the teacher pack's SQLite store configuration.
const walJournalSizeLimit = 67108864

// Store is the SQLite-backed ProductRepository. The zero value is not
// usable; use Open.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmts statements
}

type statements struct {
	upsertProduct *sql.Stmt
	getProduct    *sql.Stmt
	getDigest     *sql.Stmt
	softDelete    *sql.Stmt

	upsertImage *sql.Stmt
	getImage    *sql.Stmt

	putSyncLog *sql.Stmt
	getSyncLog *sql.Stmt
}

// Open opens (creating if necessary) the SQLite database at path, applies
// migrations, and prepares every repeated statement. Use ":memory:" for
// tests, matching the teacher pack's convention.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("repository: opening database", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: opening sqlite: %w", err)
	}

	// SQLite allows only one writer at a time regardless of driver-level
	// pooling; a single connection avoids SQLITE_BUSY under the
	// concurrent image-merge writes C6 performs per batch.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: preparing statements: %w", err)
	}

	logger.Info("repository: database ready")

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("repository: setting pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(query string) (*sql.Stmt, error) {
		return s.db.PrepareContext(ctx, query)
	}

	var err error

	if s.stmts.upsertProduct, err = prep(sqlUpsertProduct); err != nil {
		return err
	}

	if s.stmts.getProduct, err = prep(sqlGetProduct); err != nil {
		return err
	}

	if s.stmts.getDigest, err = prep(sqlGetDigest); err != nil {
		return err
	}

	if s.stmts.softDelete, err = prep(sqlSoftDeleteProduct); err != nil {
		return err
	}

	if s.stmts.upsertImage, err = prep(sqlInsertImage); err != nil {
		return err
	}

	if s.stmts.getImage, err = prep(sqlGetCurrentImage); err != nil {
		return err
	}

	if s.stmts.putSyncLog, err = prep(sqlUpsertSyncLog); err != nil {
		return err
	}

	if s.stmts.getSyncLog, err = prep(sqlGetSyncLog); err != nil {
		return err
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is live, for /health (spec §6.1's
// "document store" dependency check).
func (s *Store) Ping(ctx context.Context) error {
	var one int

	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("repository: ping: %w", err)
	}

	return nil
}
