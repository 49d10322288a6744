package trifleachievements

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteBlobStore_SaveLoadDelete(t *testing.T) {
	store := NewSQLiteBlobStore(newTestDB(t), "")
	if err := store.Setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if got := store.Description(); got != "SQLiteBlobStore(achievements_blobs)" {
		t.Fatalf("unexpected description: %s", got)
	}

	if _, ok, err := store.Load("queue"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := store.Save("queue", `[{"id":"1"}]`); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Save("queue", `[]`); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	data, ok, err := store.Load("queue")
	if err != nil || !ok || data != "[]" {
		t.Fatalf("unexpected load: %q ok=%v err=%v", data, ok, err)
	}
	if err := store.Delete("queue"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Load("queue"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestSQLiteBlobStore_DiskFullIsQuotaExceeded(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLiteBlobStore(db, "blobs")
	if err := store.Setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	// Pin the database to its current size.
	if _, err := db.Exec("PRAGMA max_page_count = 1;"); err != nil {
		t.Fatalf("pragma failed: %v", err)
	}

	data := strings.Repeat("x", 64*1024)
	err := store.Save("queue", data)
	classified, ok := AsError(err)
	if !ok || classified.Kind != KindQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %v", err)
	}
	if classified.BytesNeeded != int64(len(data)) {
		t.Fatalf("expected bytes needed %d, got %d", len(data), classified.BytesNeeded)
	}
}

func TestSQLiteBlobStore_MissingDB(t *testing.T) {
	store := NewSQLiteBlobStore(nil, "")
	err := store.Save("k", "v")
	if classified, ok := AsError(err); !ok || classified.Kind != KindConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenSQLiteBlobStore_BacksDurableQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store := newFakeAsyncStore()

	blobs, err := OpenSQLiteBlobStore(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	q, err := NewOfflineQueue(store, OfflineQueueOptions{Blobs: blobs, Connectivity: NewManualConnectivity(false)})
	if err != nil {
		t.Fatalf("new offline queue failed: %v", err)
	}
	if err := q.SetUnlockedAchievements(context.Background(), []string{"first_win"}); err != nil {
		t.Fatalf("set unlocked failed: %v", err)
	}
	_ = q.Close()
	_ = blobs.DB.Close()

	reopened, err := OpenSQLiteBlobStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.DB.Close()
	restored, err := NewOfflineQueue(store, OfflineQueueOptions{Blobs: reopened, Connectivity: NewManualConnectivity(false)})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	defer restored.Close()
	if got := restored.Status().Pending; got != 1 {
		t.Fatalf("expected 1 restored operation, got %d", got)
	}
}
