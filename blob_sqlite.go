package trifleachievements

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteBlobStore implements BlobStore on a SQLite table. It is the local-disk
// backend used for the offline queue.
type SQLiteBlobStore struct {
	DB        *sql.DB
	TableName string
}

// NewSQLiteBlobStore creates a SQLite blob store on an open database.
func NewSQLiteBlobStore(db *sql.DB, tableName string) *SQLiteBlobStore {
	if tableName == "" {
		tableName = "achievements_blobs"
	}
	return &SQLiteBlobStore{
		DB:        db,
		TableName: tableName,
	}
}

// OpenSQLiteBlobStore opens (or creates) a database file and prepares the table.
func OpenSQLiteBlobStore(path string) (*SQLiteBlobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	store := NewSQLiteBlobStore(db, "")
	if err := store.Setup(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Setup applies pragmas and creates the blob table.
func (s *SQLiteBlobStore) Setup() error {
	if s.DB == nil {
		return NewConfigurationError("sqlite blob store requires DB")
	}
	if err := s.applyPragmas(); err != nil {
		return err
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, data TEXT NOT NULL);`, s.TableName)
	_, err := s.DB.Exec(query)
	return err
}

func (s *SQLiteBlobStore) Description() string {
	return fmt.Sprintf("SQLiteBlobStore(%s)", s.TableName)
}

// Load returns the blob stored under key.
func (s *SQLiteBlobStore) Load(key string) (string, bool, error) {
	if s.DB == nil {
		return "", false, NewConfigurationError("sqlite blob store requires DB")
	}
	var data string
	err := s.DB.QueryRow(fmt.Sprintf(`SELECT data FROM %s WHERE key = ?;`, s.TableName), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, loadError(s, key, err)
	}
	return data, true, nil
}

// Save upserts data under key.
func (s *SQLiteBlobStore) Save(key string, data string) error {
	if s.DB == nil {
		return NewConfigurationError("sqlite blob store requires DB")
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (key, data) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET data = excluded.data;`,
		s.TableName,
	)
	if _, err := s.DB.Exec(query, key, data); err != nil {
		return saveError(s, key, data, err, isSQLiteFull(err))
	}
	return nil
}

// Delete removes key.
func (s *SQLiteBlobStore) Delete(key string) error {
	if s.DB == nil {
		return NewConfigurationError("sqlite blob store requires DB")
	}
	if _, err := s.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE key = ?;`, s.TableName), key); err != nil {
		return deleteError(s, key, err)
	}
	return nil
}

func (s *SQLiteBlobStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := s.DB.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func isSQLiteFull(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_FULL
}
