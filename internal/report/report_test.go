package report_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/xentbench/xent-runtime/internal/report"
	"github.com/xentbench/xent-runtime/internal/result"
)

func writeFixtureRecord(t *testing.T, benchmarkDir, benchmarkID string) {
	t.Helper()
	br := &result.BenchmarkResult{
		BenchmarkID: benchmarkID,
		TotalTrials: 4,
		Players: []result.PlayerResult{
			{PlayerID: "claude-default", MeanScore: 3.2},
			{PlayerID: "gpt-llm", MeanScore: 2.1},
		},
		Games: []result.GamePlayerResult{
			{Game: "condense", PlayerID: "claude-default", MeanScore: 3.2, MapSeeds: []string{"a", "b"}},
			{Game: "condense", PlayerID: "gpt-llm", MeanScore: 2.1, MapSeeds: []string{"a", "b"}},
		},
	}
	path := result.BenchmarkRecordPath(benchmarkDir, benchmarkID)
	if err := result.WriteJSONAtomic(path, br); err != nil {
		t.Fatalf("writing fixture record: %v", err)
	}
}

func TestGenerateTable(t *testing.T) {
	benchmarkDir := filepath.Join(t.TempDir(), "leaderboard-1")
	writeFixtureRecord(t, benchmarkDir, "leaderboard-1")

	var buf bytes.Buffer
	if err := report.Generate(benchmarkDir, "leaderboard-1", "table", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	output := buf.String()
	if !bytes.Contains([]byte(output), []byte("claude-default")) {
		t.Error("expected claude-default in output")
	}
	if !bytes.Contains([]byte(output), []byte("gpt-llm")) {
		t.Error("expected gpt-llm in output")
	}
	if !bytes.Contains([]byte(output), []byte("condense")) {
		t.Error("expected condense in output")
	}
}

func TestGenerateMarkdown(t *testing.T) {
	benchmarkDir := filepath.Join(t.TempDir(), "leaderboard-1")
	writeFixtureRecord(t, benchmarkDir, "leaderboard-1")

	var buf bytes.Buffer
	if err := report.Generate(benchmarkDir, "leaderboard-1", "markdown", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("| Player | Mean Score |")) {
		t.Error("expected a markdown table header")
	}
}

func TestGenerateJSON(t *testing.T) {
	benchmarkDir := filepath.Join(t.TempDir(), "leaderboard-1")
	writeFixtureRecord(t, benchmarkDir, "leaderboard-1")

	var buf bytes.Buffer
	if err := report.Generate(benchmarkDir, "leaderboard-1", "json", &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"benchmark_id": "leaderboard-1"`)) {
		t.Error("expected benchmark_id field in JSON output")
	}
}

func TestGenerateMissingRecord(t *testing.T) {
	var buf bytes.Buffer
	err := report.Generate(t.TempDir(), "nonexistent", "table", &buf)
	if err == nil {
		t.Fatal("expected an error for a missing benchmark record")
	}
}
