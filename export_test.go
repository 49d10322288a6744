package trifleachievements

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestExportImport_RoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	source := NewMemoryStore()
	source.SetMetrics(Metrics{"score": {10, 20}, "lastPlayed": {at}, "hardMode": {true}})
	source.SetUnlockedAchievements([]string{"first_win"})

	data, err := Export(source)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if envelope["version"] != ExportVersion {
		t.Fatalf("unexpected version: %v", envelope["version"])
	}

	target := NewMemoryStore()
	result, err := Import(target, data, ImportOptions{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !reflect.DeepEqual(result.ImportedMetrics, []string{"hardMode", "lastPlayed", "score"}) {
		t.Fatalf("unexpected imported metrics: %v", result.ImportedMetrics)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}

	metrics := target.GetMetrics()
	if !reflect.DeepEqual(metrics["score"], []any{float64(10), float64(20)}) {
		t.Fatalf("unexpected score: %#v", metrics["score"])
	}
	if restored, ok := metrics["lastPlayed"][0].(time.Time); !ok || !restored.Equal(at) {
		t.Fatalf("expected date to survive export, got %#v", metrics["lastPlayed"][0])
	}
	if got := target.GetUnlockedAchievements(); !reflect.DeepEqual(got, []string{"first_win"}) {
		t.Fatalf("unexpected unlocked ids: %v", got)
	}
}

func TestImport_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		problem string
	}{
		{name: "invalid json", payload: `{`, problem: "invalid JSON"},
		{name: "missing version", payload: `{"metrics":{},"unlockedAchievements":[]}`, problem: "missing version"},
		{name: "missing metrics", payload: `{"version":"1.0","unlockedAchievements":[]}`, problem: "missing metrics"},
		{name: "bad metrics shape", payload: `{"version":"1.0","metrics":{"score":5},"unlockedAchievements":[]}`, problem: "metrics must map names to arrays of values"},
		{name: "null value", payload: `{"version":"1.0","metrics":{"score":[null]},"unlockedAchievements":[]}`, problem: `metric "score" value 0`},
		{name: "missing unlocked", payload: `{"version":"1.0","metrics":{}}`, problem: "missing unlockedAchievements"},
		{name: "bad unlocked", payload: `{"version":"1.0","metrics":{},"unlockedAchievements":[1]}`, problem: "unlockedAchievements must be an array of strings"},
		{name: "empty id", payload: `{"version":"1.0","metrics":{},"unlockedAchievements":[" "]}`, problem: "unlockedAchievements[0] is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.SetUnlockedAchievements([]string{"kept"})

			_, err := Import(store, []byte(tt.payload), ImportOptions{})
			classified, ok := AsError(err)
			if !ok || classified.Kind != KindImportValidation {
				t.Fatalf("expected import validation error, got %v", err)
			}
			found := false
			for _, problem := range classified.ValidationErrors {
				if strings.Contains(problem, tt.problem) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected problem %q in %v", tt.problem, classified.ValidationErrors)
			}
			if got := store.GetUnlockedAchievements(); !reflect.DeepEqual(got, []string{"kept"}) {
				t.Fatalf("expected failed import to leave the store untouched, got %v", got)
			}
		})
	}
}

func TestImport_VersionMismatchWarns(t *testing.T) {
	payload := `{"version":"0.9","metrics":{"score":[1]},"unlockedAchievements":[]}`
	result, err := Import(NewMemoryStore(), []byte(payload), ImportOptions{})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "0.9") {
		t.Fatalf("expected version warning, got %v", result.Warnings)
	}
}

func TestImport_MergeStrategies(t *testing.T) {
	payload := []byte(`{"version":"1.0","metrics":{"score":[50],"streak":[3],"level":["gold"]},"unlockedAchievements":["a","c"]}`)

	seed := func() *MemoryStore {
		store := NewMemoryStore()
		store.SetMetrics(Metrics{"score": {100}, "streak": {1}, "level": {"silver"}})
		store.SetUnlockedAchievements([]string{"a", "b"})
		return store
	}

	t.Run("merge", func(t *testing.T) {
		store := seed()
		result, err := Import(store, payload, ImportOptions{Strategy: MergeMerge})
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		metrics := store.GetMetrics()
		if metrics["score"][0] != 100 {
			t.Fatalf("expected higher stored score to win, got %#v", metrics["score"])
		}
		if metrics["streak"][0] != float64(3) {
			t.Fatalf("expected higher imported streak to win, got %#v", metrics["streak"])
		}
		if metrics["level"][0] != "gold" {
			t.Fatalf("expected imported non-numeric value to win, got %#v", metrics["level"])
		}
		if !reflect.DeepEqual(result.ImportedMetrics, []string{"level", "streak"}) {
			t.Fatalf("unexpected imported metrics: %v", result.ImportedMetrics)
		}
		if got := store.GetUnlockedAchievements(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
			t.Fatalf("unexpected unlocked ids: %v", got)
		}
		if !reflect.DeepEqual(result.ImportedAchievements, []string{"c"}) {
			t.Fatalf("unexpected imported achievements: %v", result.ImportedAchievements)
		}
	})

	t.Run("preserve", func(t *testing.T) {
		store := seed()
		if _, err := Import(store, payload, ImportOptions{Strategy: MergePreserve}); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		metrics := store.GetMetrics()
		if metrics["streak"][0] != 1 || metrics["level"][0] != "silver" {
			t.Fatalf("expected stored values to be preserved, got %#v", metrics)
		}
	})

	t.Run("replace", func(t *testing.T) {
		store := seed()
		if _, err := Import(store, payload, ImportOptions{Strategy: MergeReplace}); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if got := store.GetUnlockedAchievements(); !reflect.DeepEqual(got, []string{"a", "c"}) {
			t.Fatalf("expected unlocked ids to be replaced, got %v", got)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Import(seed(), payload, ImportOptions{Strategy: "overwrite"})
		if classified, ok := AsError(err); !ok || classified.Kind != KindConfiguration {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}
