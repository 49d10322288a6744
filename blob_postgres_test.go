package trifleachievements

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPostgresBlobStore_SetupCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()

	store := NewPostgresBlobStore(db, "test_blobs")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS test_blobs .*key VARCHAR\\(255\\) PRIMARY KEY").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresBlobStore_LoadSaveDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock setup failed: %v", err)
	}
	defer db.Close()
	store := NewPostgresBlobStore(db, "test_blobs")

	load := regexp.QuoteMeta(`SELECT data FROM test_blobs WHERE key = $1 LIMIT 1;`)
	mock.ExpectQuery(load).WithArgs("queue").WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow("[]"))
	mock.ExpectQuery(load).WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"data"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO test_blobs (key, data) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data;`)).
		WithArgs("queue", `[{"id":"1"}]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM test_blobs WHERE key = $1;`)).
		WithArgs("queue").
		WillReturnResult(sqlmock.NewResult(0, 1))

	data, ok, err := store.Load("queue")
	if err != nil || !ok || data != "[]" {
		t.Fatalf("unexpected load: %q ok=%v err=%v", data, ok, err)
	}
	if _, ok, err := store.Load("missing"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := store.Save("queue", `[{"id":"1"}]`); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete("queue"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresBlobStore_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{name: "disk full", err: &pgconn.PgError{Code: "53100", Message: "could not extend file"}, kind: KindQuotaExceeded},
		{name: "out of memory", err: &pgconn.PgError{Code: "53200", Message: "out of memory"}, kind: KindQuotaExceeded},
		{name: "other", err: errors.New("connection refused"), kind: KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock setup failed: %v", err)
			}
			defer db.Close()
			store := NewPostgresBlobStore(db, "test_blobs")

			mock.ExpectExec("INSERT INTO test_blobs").WillReturnError(tt.err)
			err = store.Save("queue", "payload")
			classified, ok := AsError(err)
			if !ok || classified.Kind != tt.kind {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if tt.kind == KindQuotaExceeded && classified.BytesNeeded != int64(len("payload")) {
				t.Fatalf("unexpected bytes needed: %d", classified.BytesNeeded)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected driver error to be preserved as cause")
			}
		})
	}
}
