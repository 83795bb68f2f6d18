package serverdb

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names
const (
	DriverPure = "sqlite"  // modernc.org/sqlite, no cgo
	DriverCGO  = "sqlite3" // github.com/mattn/go-sqlite3
)

// ErrNotFound is returned when a row addressed by id (and owner) does not exist
var ErrNotFound = errors.New("not found")

// ServerDB wraps the server database connection
type ServerDB struct {
	conn   *sql.DB
	path   string
	driver string
}

// Open opens the server database with the pure-Go driver and runs any
// pending migrations.
func Open(dbPath string) (*ServerDB, error) {
	return OpenWithDriver(DriverPure, dbPath)
}

// OpenWithDriver opens the server database using the named sqlite driver.
// If the database file does not exist, it is created and initialized.
func OpenWithDriver(driver, dbPath string) (*ServerDB, error) {
	switch driver {
	case "":
		driver = DriverPure
	case DriverPure, DriverCGO:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	conn, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")
	conn.Exec("PRAGMA foreign_keys=ON")

	if _, err := conn.Exec(serverSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &ServerDB{conn: conn, path: dbPath, driver: driver}

	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Driver returns the database/sql driver name in use.
func (db *ServerDB) Driver() string { return db.driver }

// Ping checks the database connection is alive.
func (db *ServerDB) Ping() error {
	return db.conn.Ping()
}

// Close checkpoints the WAL and closes the database connection.
func (db *ServerDB) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}

// RunMigrations applies migrations newer than the recorded schema version.
func (db *ServerDB) RunMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	current := db.SchemaVersion()
	if current >= ServerSchemaVersion {
		return 0, nil
	}

	ran := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if _, err := db.conn.Exec(m.SQL); err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return ran, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		ran++
	}

	if err := db.setSchemaVersion(ServerSchemaVersion); err != nil {
		return ran, err
	}
	return ran, nil
}

// SchemaVersion returns the recorded schema version, 0 for a fresh database.
func (db *ServerDB) SchemaVersion() int {
	var version string
	if err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (db *ServerDB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// generateID creates a prefixed ID with 8 random hex bytes.
func generateID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}
