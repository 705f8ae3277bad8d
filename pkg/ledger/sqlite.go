package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateRetryInterval is the pause between migration attempts while another
// handle migrates.
const migrateRetryInterval = 50 * time.Millisecond

// timeLayout is the storage format of recorded_at. It sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteLedger implements Ledger on top of a SQLite database file.
type SQLiteLedger struct {
	db     *sql.DB
	path   string
	config Config
}

// Config holds SQLite ledger configuration.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteLedger creates a new SQLite ledger instance. Call Init and Migrate
// before use, or use Open.
func NewSQLiteLedger(cfg Config) (*SQLiteLedger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	// Set defaults
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 30 * time.Second
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteLedger{
		path:   cfg.Path,
		config: cfg,
	}, nil
}

// Open creates, initializes and migrates the ledger stored at path.
func Open(ctx context.Context, path string) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l, err := NewSQLiteLedger(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Init opens the database connection and enables WAL mode.
func (l *SQLiteLedger) Init(ctx context.Context) error {
	// Every pooled connection gets the same pragmas through the DSN
	dsn := fmt.Sprintf(
		"%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		l.path, l.config.BusyTimeout.Milliseconds(),
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	db.SetMaxOpenConns(l.config.MaxOpenConns)
	db.SetMaxIdleConns(l.config.MaxIdleConns)
	db.SetConnMaxLifetime(l.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping ledger: %w", err)
	}

	l.db = db
	return nil
}

// Migrate runs the embedded schema migrations.
//
// Processes opening a fresh ledger together race on the schema version, and
// the migration driver's lock only covers one process. A process finding the
// version dirty while another one migrates waits for it, retrying until the
// busy timeout expires. The migrations are idempotent, so two processes that
// both start from an empty schema end with the same one.
func (l *SQLiteLedger) Migrate(ctx context.Context) error {
	if l.db == nil {
		return fmt.Errorf("ledger not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	deadline := time.Now().Add(l.config.BusyTimeout)
	for {
		err := m.Up()
		if err == nil || errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		if !migrationInProgress(err) || time.Now().After(deadline) {
			return fmt.Errorf("failed to run ledger migrations: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(migrateRetryInterval):
		}
	}
}

// migrationInProgress reports whether err means another handle is migrating.
func migrationInProgress(err error) bool {
	var dirty migrate.ErrDirty
	return errors.As(err, &dirty) ||
		errors.Is(err, migrate.ErrLocked) ||
		errors.Is(err, database.ErrLocked)
}

// Path returns the database file path.
func (l *SQLiteLedger) Path() string {
	return l.path
}

// Satisfied reports whether key has been recorded.
func (l *SQLiteLedger) Satisfied(ctx context.Context, key Key) (bool, error) {
	query := `SELECT 1 FROM ledger WHERE category = ? AND name = ?`

	var one int
	err := l.db.QueryRowContext(ctx, query, key.Category, key.Name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query ledger entry %s: %w", key, err)
	}

	return true, nil
}

// Mark records entry. The insert is a single statement, so concurrent
// processes marking the same key cannot both win.
func (l *SQLiteLedger) Mark(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO ledger (category, name, run_id, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(category, name) DO NOTHING
	`

	recordedAt := entry.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx, query,
		entry.Category,
		entry.Name,
		entry.RunID,
		recordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to mark ledger entry %s: %w", entry.Key, err)
	}

	return nil
}

// Entries lists every recorded entry, oldest first.
func (l *SQLiteLedger) Entries(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT category, name, run_id, recorded_at
		FROM ledger
		ORDER BY recorded_at ASC, category ASC, name ASC
	`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			entry      Entry
			recordedAt string
		)
		if err := rows.Scan(&entry.Category, &entry.Name, &entry.RunID, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		entry.RecordedAt, err = time.Parse(timeLayout, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at %q: %w", recordedAt, err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
