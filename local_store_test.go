package trifleachievements

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	metrics := Metrics{"score": {1}}
	store.SetMetrics(metrics)
	metrics["score"][0] = 99

	if got := store.GetMetrics(); got["score"][0] != 1 {
		t.Fatalf("expected stored metrics to be isolated, got %#v", got)
	}
	store.Clear()
	if got := store.GetMetrics(); len(got) != 0 {
		t.Fatalf("expected empty metrics after clear, got %#v", got)
	}
	if got := store.GetUnlockedAchievements(); got == nil || len(got) != 0 {
		t.Fatalf("expected empty unlocked ids, got %#v", got)
	}
}

func TestLocalStore_PersistsThroughBlobs(t *testing.T) {
	blobs := NewMemoryBlobStore()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := NewLocalStore(blobs, "game")
	first.SetMetrics(Metrics{"score": {10}, "lastPlayed": {at}})
	first.SetUnlockedAchievements([]string{"first_win"})

	second := NewLocalStore(blobs, "game")
	metrics := second.GetMetrics()
	if metrics["score"][0] != float64(10) {
		t.Fatalf("unexpected score: %#v", metrics["score"])
	}
	if restored, ok := metrics["lastPlayed"][0].(time.Time); !ok || !restored.Equal(at) {
		t.Fatalf("expected date to survive persistence, got %#v", metrics["lastPlayed"][0])
	}
	if got := second.GetUnlockedAchievements(); !reflect.DeepEqual(got, []string{"first_win"}) {
		t.Fatalf("unexpected unlocked ids: %v", got)
	}

	second.Clear()
	if _, ok, _ := blobs.Load("game_metrics"); ok {
		t.Fatalf("expected metrics blob to be removed")
	}
	if got := first.GetMetrics(); len(got) != 0 {
		t.Fatalf("expected empty metrics after clear, got %#v", got)
	}
}

func TestLocalStore_ReportsFailures(t *testing.T) {
	blobs := &MemoryBlobStore{Quota: 8}
	onError, reported := errorCollector()
	store := NewLocalStore(blobs, "")
	store.OnError = onError

	store.SetUnlockedAchievements([]string{"a"})
	err := waitForError(t, reported)
	if err.Kind != KindQuotaExceeded {
		t.Fatalf("expected quota exceeded, got %+v", err)
	}

	corrupt := NewLocalStore(NewMemoryBlobStore(), "")
	corrupt.OnError = onError
	if err := corrupt.codec.blobs.Save("achievements_metrics", "{not json"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if got := corrupt.GetMetrics(); len(got) != 0 {
		t.Fatalf("expected corrupt data to read as empty, got %#v", got)
	}
	if err := waitForError(t, reported); err.Kind != KindStorage {
		t.Fatalf("expected storage error for corrupt data, got %+v", err)
	}
}

func TestBlobAsyncStore_UnderSyncCache(t *testing.T) {
	blobs := NewMemoryBlobStore()
	backend := NewBlobAsyncStore(blobs, "")
	if got := backend.Description(); got != "BlobAsyncStore(MemoryBlobStore)" {
		t.Fatalf("unexpected description: %s", got)
	}

	cache := newTestCache(t, backend, nil)
	cache.SetMetrics(Metrics{"score": {5}})
	cache.SetUnlockedAchievements([]string{"a"})
	drain(t, cache)

	metrics, err := backend.GetMetrics(context.Background())
	if err != nil {
		t.Fatalf("get metrics failed: %v", err)
	}
	if !reflect.DeepEqual(metrics, Metrics{"score": {float64(5)}}) {
		t.Fatalf("unexpected metrics: %#v", metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := backend.GetUnlockedAchievements(ctx); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}
