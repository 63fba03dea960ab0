package scheduler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/scheduler"
)

func newFakeJudge(t *testing.T) *judge.Gateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokenize":
			json.NewEncoder(w).Encode(map[string]any{
				"tokens": []map[string]any{{"id": 1, "surface": "moved"}},
			})
		case "/score":
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			xentVal := 5.0
			if req["context"] != "" {
				xentVal = 2.0
			}
			json.NewEncoder(w).Encode(map[string]any{
				"pairs": []map[string]any{{"surface": "moved", "xent": xentVal}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	g, err := judge.Dial(srv.URL, 16)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return g
}

func echoPresentation(registers map[string]string, since []result.Event, metadata map[string]string, full []result.Event, ctx any) ([]player.ChatMessage, any, error) {
	return []player.ChatMessage{{Role: "user", Content: "your move"}}, nil, nil
}

const condenseSource = `
assign(s="opening text" + story())
elicit(x, 5)
reveal(x)
reward(xed(s | x))
`

type fixedReplyReadWriter struct {
	*strings.Reader
}

func (fixedReplyReadWriter) Write(p []byte) (int, error) { return len(p), nil }

func buildTestConfig(t *testing.T, resultsDir, archivePath, gameSource string) *config.Config {
	t.Helper()
	return &config.Config{
		Metadata: config.Metadata{
			BenchmarkID:   "bench-1",
			JudgeModel:    "test-model",
			RoundsPerGame: 1,
			MasterSeed:    42,
		},
		Expansion: config.Expansion{
			NumMapsPerGame: 2,
			TextGenerator:  config.TextGeneratorCommunityArchive,
			MaxStoryLength: 256,
			ArchivePath:    archivePath,
		},
		Players: []config.Player{
			{ID: "human-1", Type: config.PlayerKindHuman},
		},
		Games: []config.Game{
			{Name: "condense", Source: gameSource, PresentationSource: "echo"},
		},
		Results: config.Results{Dir: resultsDir},
	}
}

func setupFixtures(t *testing.T) (archivePath, gameSource string) {
	t.Helper()
	dir := t.TempDir()

	archivePath = filepath.Join(dir, "archive.json")
	archive, err := json.Marshal([]string{"a fixed archived opening"})
	if err != nil {
		t.Fatalf("marshal archive: %v", err)
	}
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	gameSource = filepath.Join(dir, "condense.xdl")
	if err := os.WriteFile(gameSource, []byte(condenseSource), 0o644); err != nil {
		t.Fatalf("write game source: %v", err)
	}
	return archivePath, gameSource
}

func TestSchedulerExpandRunAggregate(t *testing.T) {
	archivePath, gameSource := setupFixtures(t)
	resultsDir := t.TempDir()
	cfg := buildTestConfig(t, resultsDir, archivePath, gameSource)

	jg := newFakeJudge(t)
	pool := player.NewPool()
	presentations := player.Registry{"echo": echoPresentation}

	sched, err := scheduler.New(cfg, jg, pool, presentations)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	trials, err := sched.Expand(ctx)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(trials) != cfg.Expansion.NumMapsPerGame*len(cfg.Players) {
		t.Fatalf("trials = %d, want %d", len(trials), cfg.Expansion.NumMapsPerGame*len(cfg.Players))
	}

	seen := map[string]bool{}
	for _, tr := range trials {
		if seen[tr.ID()] {
			t.Errorf("duplicate trial id %q", tr.ID())
		}
		seen[tr.ID()] = true
		tr.Opts.HumanIO = fixedReplyReadWriter{strings.NewReader("<move>moved</move>\n")}
	}

	if errs := sched.Run(ctx, trials, 2); len(errs) != 0 {
		t.Fatalf("Run errors: %v", errs)
	}

	for _, tr := range trials {
		if !result.Exists(tr.Opts.ResultPath) {
			t.Errorf("missing result file for %s", tr.ID())
		}
	}

	// Re-expanding and re-running should skip every trial via the
	// resumption check (their result files already exist), even though
	// these freshly expanded opts have no HumanIO configured — Run must
	// never reach RunTrial for them.
	trials, err = sched.Expand(ctx)
	if err != nil {
		t.Fatalf("re-Expand: %v", err)
	}
	if errs := sched.Run(ctx, trials, 2); len(errs) != 0 {
		t.Fatalf("second Run errors: %v", errs)
	}

	br, err := sched.Aggregate(trials)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if br.TotalTrials != len(trials) {
		t.Errorf("TotalTrials = %d, want %d", br.TotalTrials, len(trials))
	}
	if len(br.Players) != 1 || br.Players[0].PlayerID != "human-1" {
		t.Fatalf("unexpected players aggregate: %+v", br.Players)
	}
	if br.Players[0].MeanScore != 3.0 {
		t.Errorf("player mean score = %v, want 3.0", br.Players[0].MeanScore)
	}
	if len(br.Games) != 1 {
		t.Fatalf("expected one (game, player) aggregation, got %d", len(br.Games))
	}
	if br.Games[0].MeanScore != 3.0 {
		t.Errorf("game mean score = %v, want 3.0", br.Games[0].MeanScore)
	}

	recordPath := result.BenchmarkRecordPath(filepath.Join(resultsDir, "bench-1"), "bench-1")
	if !result.Exists(recordPath) {
		t.Errorf("expected benchmark record file at %s", recordPath)
	}
}

func TestSchedulerExpandUnknownPresentationErrors(t *testing.T) {
	archivePath, gameSource := setupFixtures(t)
	resultsDir := t.TempDir()
	cfg := buildTestConfig(t, resultsDir, archivePath, gameSource)
	cfg.Games[0].PresentationSource = "missing"

	jg := newFakeJudge(t)
	sched, err := scheduler.New(cfg, jg, player.NewPool(), player.Registry{"echo": echoPresentation})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := sched.Expand(context.Background()); err == nil {
		t.Fatal("expected an error for an unregistered presentation function")
	}
}
