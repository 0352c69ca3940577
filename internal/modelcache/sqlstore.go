package modelcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockcast/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Backend names accepted by NewSnapshotStore.
const (
	BackendFile       = "file"
	BackendSQLite     = "sqlite"
	BackendMySQL      = "mysql"
	BackendPostgreSQL = "postgresql"
	BackendNone       = "none"
)

const snapshotTable = "model_snapshots"

// SQLStore keeps snapshots in a relational table. Writes are UPSERTs, so concurrent writers
// across processes end as last-writer-wins.
type SQLStore struct {
	db      *sql.DB
	backend string
}

var _ SnapshotStore = &SQLStore{} // Compile-time check

// NewSnapshotStore opens the snapshot tier for the configured backend. BackendNone returns a
// nil store, which disables the tier.
func NewSnapshotStore(backend, dsn, modelsDir string) (SnapshotStore, error) {
	switch backend {
	case "", BackendFile:
		fs, err := NewFileStore(modelsDir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case BackendNone:
		return nil, nil
	default:
		ss, err := NewSQLStore(backend, dsn)
		if err != nil {
			return nil, err
		}
		return ss, nil
	}
}

// NewSQLStore connects to the database and creates the snapshot table.
func NewSQLStore(backend, dsn string) (*SQLStore, error) {
	var driverName string

	switch backend {
	case BackendSQLite:
		driverName = "sqlite"
		if dsn == "" {
			dsn = "stockcast_models.db"
		}
	case BackendMySQL:
		// user:password@tcp(host:port)/dbname
		driverName = "mysql"
	case BackendPostgreSQL:
		// host=localhost port=5432 user=postgres dbname=mydb
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported snapshot backend: %s. Must be file, sqlite, mysql, postgresql, or none", backend)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s snapshot store: %w", backend, err)
	}
	if backend == BackendSQLite {
		// Single connection avoids "database is locked" errors
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}

	if _, err := db.Exec(createTableQuery(backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", snapshotTable, err)
	}

	return &SQLStore{db: db, backend: backend}, nil
}

func createTableQuery(backend string) string {
	switch backend {
	case BackendMySQL:
		return `CREATE TABLE IF NOT EXISTS ` + snapshotTable + ` (
				product_id VARCHAR(255) PRIMARY KEY,
				fingerprint VARCHAR(64) NOT NULL,
				payload LONGBLOB NOT NULL,
				trained_at BIGINT NOT NULL
			)`
	case BackendPostgreSQL:
		return `CREATE TABLE IF NOT EXISTS ` + snapshotTable + ` (
				product_id TEXT PRIMARY KEY,
				fingerprint TEXT NOT NULL,
				payload BYTEA NOT NULL,
				trained_at BIGINT NOT NULL
			)`
	default: // SQLite
		return `CREATE TABLE IF NOT EXISTS ` + snapshotTable + ` (
				product_id TEXT PRIMARY KEY,
				fingerprint TEXT NOT NULL,
				payload BLOB NOT NULL,
				trained_at INTEGER NOT NULL
			)`
	}
}

// placeholder returns the n-th parameter placeholder for the backend.
func (s *SQLStore) placeholder(n int) string {
	if s.backend == BackendPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	switch s.backend {
	case BackendMySQL:
		return `INSERT INTO ` + snapshotTable + ` (product_id, fingerprint, payload, trained_at) VALUES (?, ?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE fingerprint = new.fingerprint, payload = new.payload, trained_at = new.trained_at`
	case BackendPostgreSQL:
		return `INSERT INTO ` + snapshotTable + ` (product_id, fingerprint, payload, trained_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT (product_id) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, payload = EXCLUDED.payload, trained_at = EXCLUDED.trained_at`
	default: // SQLite
		return `INSERT OR REPLACE INTO ` + snapshotTable + ` (product_id, fingerprint, payload, trained_at) VALUES (?, ?, ?, ?)`
	}
}

// Exists implements SnapshotStore.
func (s *SQLStore) Exists(ctx context.Context, productID string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE product_id = %s`, snapshotTable, s.placeholder(1))
	var one int
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Load implements SnapshotStore.
func (s *SQLStore) Load(ctx context.Context, productID string) (model.Model, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE product_id = %s`, snapshotTable, s.placeholder(1))
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, productID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return model.Decode(payload)
}

// Save implements SnapshotStore.
func (s *SQLStore) Save(ctx context.Context, productID string, m model.Model) error {
	payload, err := model.Encode(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.upsertQuery(), productID, m.Fingerprint(), payload, m.TrainedAt().Unix())
	return err
}

// Delete implements SnapshotStore.
func (s *SQLStore) Delete(ctx context.Context, productID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE product_id = %s`, snapshotTable, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, productID)
	return err
}

// Clear implements SnapshotStore.
func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+snapshotTable)
	return err
}

// Close implements SnapshotStore.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
