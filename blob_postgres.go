package trifleachievements

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresBlobStore implements BlobStore on a PostgreSQL table.
type PostgresBlobStore struct {
	DB        *sql.DB
	TableName string
}

// NewPostgresBlobStore creates a PostgreSQL blob store.
func NewPostgresBlobStore(db *sql.DB, tableName string) *PostgresBlobStore {
	if tableName == "" {
		tableName = "achievements_blobs"
	}
	return &PostgresBlobStore{
		DB:        db,
		TableName: tableName,
	}
}

// Setup creates the blob table.
func (s *PostgresBlobStore) Setup() error {
	if s.DB == nil {
		return NewConfigurationError("postgres blob store requires DB")
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key VARCHAR(255) PRIMARY KEY, data TEXT NOT NULL);`, s.TableName)
	_, err := s.DB.Exec(query)
	return err
}

func (s *PostgresBlobStore) Description() string {
	return fmt.Sprintf("PostgresBlobStore(%s)", s.TableName)
}

// Load returns the blob stored under key.
func (s *PostgresBlobStore) Load(key string) (string, bool, error) {
	if s.DB == nil {
		return "", false, NewConfigurationError("postgres blob store requires DB")
	}
	var data string
	err := s.DB.QueryRow(fmt.Sprintf(`SELECT data FROM %s WHERE key = $1 LIMIT 1;`, s.TableName), key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, loadError(s, key, err)
	}
	return data, true, nil
}

// Save upserts data under key.
func (s *PostgresBlobStore) Save(key string, data string) error {
	if s.DB == nil {
		return NewConfigurationError("postgres blob store requires DB")
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (key, data) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data;`,
		s.TableName,
	)
	if _, err := s.DB.Exec(query, key, data); err != nil {
		return saveError(s, key, data, err, isPostgresFull(err))
	}
	return nil
}

// Delete removes key.
func (s *PostgresBlobStore) Delete(key string) error {
	if s.DB == nil {
		return NewConfigurationError("postgres blob store requires DB")
	}
	if _, err := s.DB.Exec(fmt.Sprintf(`DELETE FROM %s WHERE key = $1;`, s.TableName), key); err != nil {
		return deleteError(s, key, err)
	}
	return nil
}

// disk_full and out_of_memory SQLSTATEs.
func isPostgresFull(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "53100" || pgErr.Code == "53200"
}
