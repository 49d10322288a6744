package trifleachievements

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// CloneMetrics deep-copies metrics. A nil input yields an empty map.
func CloneMetrics(metrics Metrics) Metrics {
	out := make(Metrics, len(metrics))
	for name, values := range metrics {
		out[name] = cloneValues(values)
	}
	return out
}

// Current returns the last value recorded for a metric.
func (m Metrics) Current(name string) (any, bool) {
	values := m[name]
	if len(values) == 0 {
		return nil, false
	}
	return values[len(values)-1], true
}

func cloneValues(values []any) []any {
	if values == nil {
		return []any{}
	}
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch node := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			out[key] = cloneValue(value)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, value := range node {
			out[i] = cloneValue(value)
		}
		return out
	default:
		return node
	}
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string{}, ids...)
}

// normalizeMetricValue accepts the supported metric value kinds: numbers,
// strings, booleans and timestamps. Numbers come back as float64.
func normalizeMetricValue(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("metric value is null")
	case string, bool:
		return v, nil
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return nil, fmt.Errorf("metric value is null")
		}
		return *v, nil
	}
	if f, ok := numericValue(value); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported metric value type %T", value)
}

// numericValue converts Go and JSON number kinds to float64. NaN and Inf are
// rejected since they cannot round-trip through JSON.
func numericValue(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case int16:
		f = float64(v)
	case int8:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint64:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint8:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

const dateTypeMarker = "Date"

// encodeMetrics returns a JSON-ready copy in which timestamps are tagged so
// that decodeMetrics can restore them as time.Time.
func encodeMetrics(metrics Metrics) Metrics {
	out := make(Metrics, len(metrics))
	for name, values := range metrics {
		encoded := make([]any, len(values))
		for i, value := range values {
			switch v := value.(type) {
			case time.Time:
				encoded[i] = map[string]any{"__type": dateTypeMarker, "value": v.Format(time.RFC3339Nano)}
			case *time.Time:
				if v == nil {
					encoded[i] = nil
					continue
				}
				encoded[i] = map[string]any{"__type": dateTypeMarker, "value": v.Format(time.RFC3339Nano)}
			default:
				encoded[i] = cloneValue(v)
			}
		}
		out[name] = encoded
	}
	return out
}

// decodeMetrics parses a JSON metrics object. Numbers come back as float64 and
// tagged timestamps as time.Time.
func decodeMetrics(raw json.RawMessage) (Metrics, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Metrics{}, nil
	}
	var decoded Metrics
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		return Metrics{}, nil
	}
	for name, values := range decoded {
		if values == nil {
			decoded[name] = []any{}
			continue
		}
		for i, value := range values {
			decoded[name][i] = reviveDate(value)
		}
	}
	return decoded, nil
}

func reviveDate(value any) any {
	node, ok := value.(map[string]any)
	if !ok || node["__type"] != dateTypeMarker {
		return value
	}
	text, _ := node["value"].(string)
	at, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		return value
	}
	return at
}

// reviveTimestampStrings restores timestamps sent over the wire as plain
// RFC 3339 strings. Only strings in the exact form time.Time marshals to are
// converted.
func reviveTimestampStrings(metrics Metrics) Metrics {
	for name, values := range metrics {
		for i, value := range values {
			text, ok := value.(string)
			if !ok {
				continue
			}
			at, err := time.Parse(time.RFC3339Nano, text)
			if err != nil || at.Format(time.RFC3339Nano) != text {
				continue
			}
			metrics[name][i] = at
		}
	}
	return metrics
}
