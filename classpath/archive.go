package classpath

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/javelin/classfile"
	_ "modernc.org/sqlite"
)

// Archive is a class archive stored in a SQLite database. Each row holds one
// class in its CBOR encoding.
type Archive struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// OpenArchive opens (or creates) the archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("classpath: opening archive: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("classpath: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS classes (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("classpath: creating table: %w", err)
	}
	return &Archive{db: db, path: path}, nil
}

func (a *Archive) String() string { return a.path }

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Put stores classes, replacing existing rows with the same name.
func (a *Archive) Put(classes ...*classfile.Class) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("classpath: begin: %w", err)
	}
	for _, c := range classes {
		data, err := classfile.Marshal(c)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("classpath: encoding %s: %w", c.Name, err)
		}
		if _, err := tx.Exec("INSERT OR REPLACE INTO classes (name, data) VALUES (?, ?)", c.Name, data); err != nil {
			tx.Rollback()
			return fmt.Errorf("classpath: saving %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Find implements Source.
func (a *Archive) Find(name string) (*classfile.Class, error) {
	var data []byte
	err := a.db.QueryRow("SELECT data FROM classes WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("classpath: querying %s: %w", name, err)
	}
	c, err := classfile.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("classpath: %s in %s: %w", name, a.path, err)
	}
	log.Debugf("loaded %s from archive %s", name, a.path)
	return c, nil
}

// Names lists the classes in the archive in name order.
func (a *Archive) Names() ([]string, error) {
	rows, err := a.db.Query("SELECT name FROM classes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("classpath: listing: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
