package runner_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/runner"
	"github.com/xentbench/xent-runtime/internal/xdl"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

// newTestJudge wires a Gateway at a fake HTTP sidecar, mirroring the
// judge package's own Dial-against-httptest pattern.
func newTestJudge(t *testing.T) *judge.Gateway {
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

var condenseProgram = `
assign(s="opening text")
elicit(x, 5)
reveal(x)
reward(xed(s | x))
`

// discardReadWriter answers every Read from a fixed reply and throws
// away anything Written to it — a Human backend writes its rendered
// prompt there before reading the reply.
type discardReadWriter struct {
	*strings.Reader
}

func (discardReadWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRunTrialWritesResultFile(t *testing.T) {
	prog, err := xdl.Parse(condenseProgram)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	resultPath := filepath.Join(t.TempDir(), "trial.json")
	humanIO := discardReadWriter{strings.NewReader("<move>moved</move>\n")}

	tr, err := runner.RunTrial(context.Background(), &runner.TrialOpts{
		Game:         "condense",
		Program:      prog,
		Preload:      map[string]string{"s": "opening text"},
		MapSeed:      "seed-1",
		Player:       &config.Player{ID: "human-1", Type: config.PlayerKindHuman},
		Presentation: echoPresentation,
		MaxRounds:    1,
		Judge:        newTestJudge(t),
		Pool:         player.NewPool(),
		ResultPath:   resultPath,
		HumanIO:      humanIO,
	})
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if tr.Status != result.StatusOK {
		t.Fatalf("status = %v, error = %v", tr.Status, tr.Error)
	}

	if !result.Exists(resultPath) {
		t.Fatal("expected result file to exist")
	}
	read, err := result.ReadTrialResult(resultPath)
	if err != nil {
		t.Fatalf("ReadTrialResult: %v", err)
	}
	if read.Game != "condense" || read.PlayerID != "human-1" {
		t.Errorf("read back %+v", read)
	}
}

func TestRunTrialHeadlineScoreFromJudge(t *testing.T) {
	prog, err := xdl.Parse(condenseProgram)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resultPath := filepath.Join(t.TempDir(), "trial.json")

	tr, err := runner.RunTrial(context.Background(), &runner.TrialOpts{
		Game:         "condense",
		Program:      prog,
		Preload:      map[string]string{"s": "opening text"},
		MapSeed:      "seed-1",
		Player:       &config.Player{ID: "human-1", Type: config.PlayerKindHuman},
		Presentation: echoPresentation,
		MaxRounds:    1,
		Judge:        newTestJudge(t),
		Pool:         player.NewPool(),
		ResultPath:   resultPath,
		HumanIO:      discardReadWriter{strings.NewReader("<move>moved</move>\n")},
	})
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if tr.HeadlineScore != 3.0 {
		t.Errorf("headline score = %v, want 3.0 (xed total from the fake judge: 5.0 unconditioned - 2.0 conditioned)", tr.HeadlineScore)
	}
}

// blockingReadWriter never yields a reply, simulating a human back-end
// that hasn't answered yet when the trial's wall-clock cap expires.
type blockingReadWriter struct {
	r io.Reader
}

func (b blockingReadWriter) Read(p []byte) (int, error) { return b.r.Read(p) }
func (blockingReadWriter) Write(p []byte) (int, error)  { return len(p), nil }

func TestRunTrialTimesOutAndCancelsTrial(t *testing.T) {
	prog, err := xdl.Parse(condenseProgram)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	resultPath := filepath.Join(t.TempDir(), "trial.json")
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	tr, err := runner.RunTrial(context.Background(), &runner.TrialOpts{
		Game:         "condense",
		Program:      prog,
		Preload:      map[string]string{"s": "opening text"},
		MapSeed:      "seed-1",
		Player:       &config.Player{ID: "human-1", Type: config.PlayerKindHuman},
		Presentation: echoPresentation,
		MaxRounds:    1,
		Timeout:      20 * time.Millisecond,
		Judge:        newTestJudge(t),
		Pool:         player.NewPool(),
		ResultPath:   resultPath,
		HumanIO:      blockingReadWriter{r: pr},
	})
	if err != nil {
		t.Fatalf("RunTrial: %v", err)
	}
	if tr.Status != result.StatusCancelled {
		t.Fatalf("status = %v, want %v", tr.Status, result.StatusCancelled)
	}
	if tr.Error == nil || tr.Error.Kind != string(xenterr.KindTrialTimeout) {
		t.Fatalf("error = %+v, want kind %v", tr.Error, xenterr.KindTrialTimeout)
	}
}

func TestRunTrialUnknownPlayerKindErrors(t *testing.T) {
	prog, err := xdl.Parse(condenseProgram)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = runner.RunTrial(context.Background(), &runner.TrialOpts{
		Game:         "condense",
		Program:      prog,
		Preload:      map[string]string{"s": "opening text"},
		MapSeed:      "seed-1",
		Player:       &config.Player{ID: "mystery", Type: "bogus"},
		Presentation: echoPresentation,
		MaxRounds:    1,
		Judge:        newTestJudge(t),
		Pool:         player.NewPool(),
		ResultPath:   filepath.Join(t.TempDir(), "trial.json"),
	})
	if err == nil {
		t.Fatal("expected an error for an unknown player kind")
	}
}
