package trifleachievements

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ExportVersion is written into every export payload.
const ExportVersion = "1.0"

// MergeStrategy controls how imported data combines with stored data.
type MergeStrategy string

const (
	// MergeReplace overwrites stored data with the import.
	MergeReplace MergeStrategy = "replace"
	// MergeMerge combines both; on conflict the higher numeric current value
	// wins, otherwise the imported series does.
	MergeMerge MergeStrategy = "merge"
	// MergePreserve keeps stored values and only adds what is missing.
	MergePreserve MergeStrategy = "preserve"
)

// ImportOptions configures Import.
type ImportOptions struct {
	Strategy MergeStrategy
}

// ImportResult describes what an import changed.
type ImportResult struct {
	ImportedMetrics      []string
	ImportedAchievements []string
	Warnings             []string
}

type exportPayload struct {
	Version              string   `json:"version"`
	Timestamp            int64    `json:"timestamp"`
	Metrics              Metrics  `json:"metrics"`
	UnlockedAchievements []string `json:"unlockedAchievements"`
}

type importPayload struct {
	Version              *string         `json:"version"`
	Timestamp            int64           `json:"timestamp"`
	Metrics              json.RawMessage `json:"metrics"`
	UnlockedAchievements json.RawMessage `json:"unlockedAchievements"`
}

// Export serializes the store's metrics and unlocked ids.
func Export(store SyncStore) ([]byte, error) {
	if store == nil {
		return nil, NewConfigurationError("export requires a store")
	}
	payload := exportPayload{
		Version:              ExportVersion,
		Timestamp:            time.Now().UnixMilli(),
		Metrics:              encodeMetrics(store.GetMetrics()),
		UnlockedAchievements: cloneIDs(store.GetUnlockedAchievements()),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, NewStorageError("failed to encode export", err)
	}
	return data, nil
}

// Import validates an Export payload and writes it into store. Validation
// failures are reported as a single ImportValidation error listing every
// problem found; nothing is written in that case.
func Import(store SyncStore, data []byte, opts ImportOptions) (ImportResult, error) {
	if store == nil {
		return ImportResult{}, NewConfigurationError("import requires a store")
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = MergeReplace
	}
	switch strategy {
	case MergeReplace, MergeMerge, MergePreserve:
	default:
		return ImportResult{}, NewConfigurationError(fmt.Sprintf("unknown merge strategy %q", strategy))
	}

	metrics, ids, warnings, problems := parseImport(data)
	if len(problems) > 0 {
		return ImportResult{}, NewImportValidationError(problems)
	}

	result := ImportResult{Warnings: warnings}
	switch strategy {
	case MergeReplace:
		store.SetMetrics(metrics)
		store.SetUnlockedAchievements(ids)
		result.ImportedMetrics = sortedNames(metrics)
		result.ImportedAchievements = cloneIDs(ids)
	case MergeMerge, MergePreserve:
		current := store.GetMetrics()
		merged, changed := mergeMetrics(current, metrics, strategy)
		unlocked, added := unionIDs(store.GetUnlockedAchievements(), ids)
		store.SetMetrics(merged)
		store.SetUnlockedAchievements(unlocked)
		result.ImportedMetrics = changed
		result.ImportedAchievements = added
	}
	return result, nil
}

func parseImport(data []byte) (Metrics, []string, []string, []string) {
	var problems, warnings []string

	var payload importPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, nil, []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	if payload.Version == nil || *payload.Version == "" {
		problems = append(problems, "missing version")
	} else if *payload.Version != ExportVersion {
		warnings = append(warnings, fmt.Sprintf("data was exported with version %s, current version is %s", *payload.Version, ExportVersion))
	}

	metrics := Metrics{}
	if len(payload.Metrics) == 0 || string(payload.Metrics) == "null" {
		problems = append(problems, "missing metrics")
	} else if decoded, err := decodeMetrics(payload.Metrics); err != nil {
		problems = append(problems, "metrics must map names to arrays of values")
	} else {
		for _, name := range sortedNames(decoded) {
			values := make([]any, 0, len(decoded[name]))
			for i, value := range decoded[name] {
				normalized, err := normalizeMetricValue(value)
				if err != nil {
					problems = append(problems, fmt.Sprintf("metric %q value %d: %v", name, i, err))
					continue
				}
				values = append(values, normalized)
			}
			metrics[name] = values
		}
	}

	ids := []string{}
	if len(payload.UnlockedAchievements) == 0 || string(payload.UnlockedAchievements) == "null" {
		problems = append(problems, "missing unlockedAchievements")
	} else if err := json.Unmarshal(payload.UnlockedAchievements, &ids); err != nil {
		problems = append(problems, "unlockedAchievements must be an array of strings")
	} else {
		for i, id := range ids {
			if strings.TrimSpace(id) == "" {
				problems = append(problems, fmt.Sprintf("unlockedAchievements[%d] is empty", i))
			}
		}
	}
	return metrics, ids, warnings, problems
}

func mergeMetrics(current, incoming Metrics, strategy MergeStrategy) (Metrics, []string) {
	out := CloneMetrics(current)
	changed := []string{}
	for _, name := range sortedNames(incoming) {
		values := incoming[name]
		existing, ok := current[name]
		if !ok || len(existing) == 0 {
			out[name] = cloneValues(values)
			changed = append(changed, name)
			continue
		}
		if strategy == MergePreserve {
			continue
		}
		if preferExisting(existing, values) {
			continue
		}
		out[name] = cloneValues(values)
		changed = append(changed, name)
	}
	return out, changed
}

func preferExisting(existing, incoming []any) bool {
	if len(incoming) == 0 {
		return true
	}
	a, okA := numericValue(existing[len(existing)-1])
	b, okB := numericValue(incoming[len(incoming)-1])
	if okA && okB {
		return a >= b
	}
	return false
}

func unionIDs(current, incoming []string) ([]string, []string) {
	out := cloneIDs(current)
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		seen[id] = struct{}{}
	}
	added := []string{}
	for _, id := range incoming {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		added = append(added, id)
	}
	return out, added
}

func sortedNames(metrics Metrics) []string {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
