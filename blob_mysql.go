package trifleachievements

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDiskFull  = 1021
	mysqlErrTableFull = 1114
)

// MySQLBlobStore implements BlobStore on a MySQL table.
type MySQLBlobStore struct {
	DB        *sql.DB
	TableName string
}

// NewMySQLBlobStore creates a MySQL blob store.
func NewMySQLBlobStore(db *sql.DB, tableName string) *MySQLBlobStore {
	if tableName == "" {
		tableName = "achievements_blobs"
	}
	return &MySQLBlobStore{
		DB:        db,
		TableName: tableName,
	}
}

// Setup creates the blob table.
func (s *MySQLBlobStore) Setup() error {
	if s.DB == nil {
		return NewConfigurationError("mysql blob store requires DB")
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (`key` VARCHAR(255) PRIMARY KEY, `data` LONGTEXT NOT NULL);", quoteMySQLIdentifier(s.TableName))
	_, err := s.DB.Exec(query)
	return err
}

func (s *MySQLBlobStore) Description() string {
	return fmt.Sprintf("MySQLBlobStore(%s)", s.TableName)
}

// Load returns the blob stored under key.
func (s *MySQLBlobStore) Load(key string) (string, bool, error) {
	if s.DB == nil {
		return "", false, NewConfigurationError("mysql blob store requires DB")
	}
	query := fmt.Sprintf("SELECT `data` FROM %s WHERE `key` = ? LIMIT 1;", quoteMySQLIdentifier(s.TableName))
	var data string
	err := s.DB.QueryRow(query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, loadError(s, key, err)
	}
	return data, true, nil
}

// Save upserts data under key.
func (s *MySQLBlobStore) Save(key string, data string) error {
	if s.DB == nil {
		return NewConfigurationError("mysql blob store requires DB")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (`key`, `data`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `data` = VALUES(`data`);",
		quoteMySQLIdentifier(s.TableName),
	)
	if _, err := s.DB.Exec(query, key, data); err != nil {
		return saveError(s, key, data, err, isMySQLFull(err))
	}
	return nil
}

// Delete removes key.
func (s *MySQLBlobStore) Delete(key string) error {
	if s.DB == nil {
		return NewConfigurationError("mysql blob store requires DB")
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE `key` = ?;", quoteMySQLIdentifier(s.TableName))
	if _, err := s.DB.Exec(query, key); err != nil {
		return deleteError(s, key, err)
	}
	return nil
}

func isMySQLFull(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == mysqlErrDiskFull || mysqlErr.Number == mysqlErrTableFull
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
