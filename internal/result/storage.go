package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// BenchmarkDir returns the on-disk directory for one benchmark run.
func BenchmarkDir(resultsDir, benchmarkID string) string {
	return filepath.Join(resultsDir, benchmarkID)
}

// TrialPath returns the path of one trial's result file within a
// benchmark directory. File presence is the resumption signal: the
// scheduler skips any trial whose result file already exists.
func TrialPath(benchmarkDir, game, mapSeed, playerID string) string {
	name := fmt.Sprintf("trial_%s_%s_%s.json", game, mapSeed, playerID)
	return filepath.Join(benchmarkDir, "trials", name)
}

// AggregatePath returns the path of one (game, player) aggregation file.
func AggregatePath(benchmarkDir, game, playerID string) string {
	return filepath.Join(benchmarkDir, fmt.Sprintf("game_%s_%s.json", game, playerID))
}

// BenchmarkRecordPath returns the path of the scheduler-level record.
func BenchmarkRecordPath(benchmarkDir, benchmarkID string) string {
	return filepath.Join(benchmarkDir, fmt.Sprintf("benchmark_%s.json", benchmarkID))
}

// WriteJSONAtomic marshals v and writes it to path via a temp file and
// rename, so a reader never observes a partially-written file.
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file into %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a result file is already present — the only
// cross-process rendezvous the scheduler uses to decide whether a trial
// still needs to run.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteTrialResult atomically writes a trial's result file.
func WriteTrialResult(path string, r *TrialResult) error {
	return WriteJSONAtomic(path, r)
}

// ReadTrialResult reads back a previously written trial result.
func ReadTrialResult(path string) (*TrialResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trial result %s: %w", path, err)
	}
	var r TrialResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing trial result %s: %w", path, err)
	}
	return &r, nil
}
