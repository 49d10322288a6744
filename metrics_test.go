package trifleachievements

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestMetrics_Current(t *testing.T) {
	metrics := Metrics{"score": {1, 2, 3}, "empty": {}}
	if got, ok := metrics.Current("score"); !ok || got != 3 {
		t.Fatalf("expected latest value 3, got %#v", got)
	}
	if _, ok := metrics.Current("empty"); ok {
		t.Fatalf("expected no current value for empty series")
	}
	if _, ok := metrics.Current("missing"); ok {
		t.Fatalf("expected no current value for missing metric")
	}
}

func TestCloneMetrics_DeepCopies(t *testing.T) {
	original := Metrics{"nested": {map[string]any{"a": []any{1}}}}
	clone := CloneMetrics(original)
	clone["nested"][0].(map[string]any)["a"].([]any)[0] = 2

	if original["nested"][0].(map[string]any)["a"].([]any)[0] != 1 {
		t.Fatalf("expected clone to be independent")
	}
	if CloneMetrics(nil) == nil {
		t.Fatalf("expected nil metrics to clone to an empty map")
	}
}

func TestNormalizeMetricValue(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value any
		want  any
		fails bool
	}{
		{name: "int", value: 3, want: float64(3)},
		{name: "uint8", value: uint8(7), want: float64(7)},
		{name: "json number", value: json.Number("2.5"), want: 2.5},
		{name: "string", value: "gold", want: "gold"},
		{name: "bool", value: true, want: true},
		{name: "time", value: at, want: at},
		{name: "time pointer", value: &at, want: at},
		{name: "nil", value: nil, fails: true},
		{name: "nan", value: math.NaN(), fails: true},
		{name: "map", value: map[string]any{}, fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeMetricValue(tt.value)
			if tt.fails {
				if err == nil {
					t.Fatalf("expected %#v to be rejected", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodeMetrics_RevivesDates(t *testing.T) {
	raw := json.RawMessage(`{"lastPlayed":[{"__type":"Date","value":"2025-03-01T12:00:00Z"}],"other":[{"__type":"Date","value":"not a date"}],"none":null}`)
	metrics, err := decodeMetrics(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if _, ok := metrics["lastPlayed"][0].(time.Time); !ok {
		t.Fatalf("expected revived date, got %#v", metrics["lastPlayed"][0])
	}
	if _, ok := metrics["other"][0].(map[string]any); !ok {
		t.Fatalf("expected unparseable date to stay as-is, got %#v", metrics["other"][0])
	}
	if got := metrics["none"]; got == nil || len(got) != 0 {
		t.Fatalf("expected null series to decode as empty, got %#v", got)
	}
}
