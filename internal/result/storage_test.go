package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xent"
)

func sampleTrialResult() *result.TrialResult {
	return &result.TrialResult{
		Game:     "condense",
		MapSeed:  "1",
		PlayerID: "human-1",
		Events: []result.Event{
			{Type: result.EventRoundStarted, RoundIndex: 0},
			{Type: result.EventElicitRequest, Var: "x", MaxTokens: 5, Registers: map[string]string{"s": "Once upon a time"}},
			{Type: result.EventElicitResponse, Var: "x", ResponseText: "Fairy tale:"},
			{Type: result.EventReward, Value: ptrTokenXent(xent.New([]xent.Pair{{Surface: "Once", Xent: 1.2}}))},
			{Type: result.EventRoundFinished, RoundIndex: 0},
		},
		Rounds:        []result.RoundResult{{Index: 0, Score: 1.2, Arms: 1, Iterations: 1}},
		HeadlineScore: 1.2,
		WinningRound:  0,
		Status:        result.StatusOK,
	}
}

func ptrTokenXent(t xent.TokenXent) *xent.TokenXent { return &t }

func TestWriteAndReadTrialResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trial_condense_1_human-1.json")
	want := sampleTrialResult()
	if err := result.WriteTrialResult(path, want); err != nil {
		t.Fatalf("WriteTrialResult: %v", err)
	}
	got, err := result.ReadTrialResult(path)
	if err != nil {
		t.Fatalf("ReadTrialResult: %v", err)
	}
	if got.Game != want.Game || got.PlayerID != want.PlayerID {
		t.Errorf("got game=%q player=%q, want game=%q player=%q", got.Game, got.PlayerID, want.Game, want.PlayerID)
	}
	if got.HeadlineScore != want.HeadlineScore {
		t.Errorf("headline_score: got %f, want %f", got.HeadlineScore, want.HeadlineScore)
	}
	if len(got.Events) != len(want.Events) {
		t.Fatalf("events: got %d, want %d", len(got.Events), len(want.Events))
	}
	if got.Events[3].Value == nil || got.Events[3].Value.Total() != want.Events[3].Value.Total() {
		t.Errorf("reward event value did not round-trip")
	}
}

func TestWriteJSONAtomicNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "result.json")
	if err := result.WriteJSONAtomic(path, map[string]string{"ok": "true"}); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "result.json" {
		t.Fatalf("expected exactly one file named result.json, got %v", entries)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trial.json")
	if result.Exists(path) {
		t.Fatal("expected Exists to report false before write")
	}
	if err := result.WriteJSONAtomic(path, sampleTrialResult()); err != nil {
		t.Fatalf("WriteJSONAtomic: %v", err)
	}
	if !result.Exists(path) {
		t.Fatal("expected Exists to report true after write")
	}
}

func TestTrialPathDeterministic(t *testing.T) {
	a := result.TrialPath("/tmp/bench", "condense", "1", "human-1")
	b := result.TrialPath("/tmp/bench", "condense", "1", "human-1")
	if a != b {
		t.Errorf("TrialPath not deterministic: %q vs %q", a, b)
	}
}
