package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/interp"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xdl"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

// defaultTrialTimeout applies when a TrialOpts is built without one —
// config.validate always sets Metadata.TrialTimeoutSeconds, so this only
// matters for callers (tests) that construct TrialOpts directly.
const defaultTrialTimeout = 30 * time.Minute

// TrialOpts configures one (game, map, player) trial.
type TrialOpts struct {
	Game         string
	Program      *xdl.Program
	Preload      map[string]string // the map's memoised prefix bindings
	MapSeed      string
	Player       *config.Player
	Presentation player.PresentationFunc
	Metadata     map[string]string
	MaxRounds    int
	Timeout      time.Duration // overall wall-clock cap for the trial, across every round
	Judge        *judge.Gateway
	Pool         *player.Pool
	ResultPath   string
	HumanIO      io.ReadWriter // channel a human player reads/writes; defaults to stdio
}

// RunTrial constructs an Interpreter preloaded with the map's prefix
// bindings, drives it to completion under an overall wall-clock cap, and
// writes the resulting TrialResult to opts.ResultPath.
func RunTrial(ctx context.Context, opts *TrialOpts) (*result.TrialResult, error) {
	backend, err := buildBackend(opts.Player, opts.Pool, opts.HumanIO)
	if err != nil {
		return nil, fmt.Errorf("trial %s/%s/%s: %w", opts.Game, opts.MapSeed, opts.Player.ID, err)
	}

	adapter := player.NewAdapter(backend, opts.Presentation, opts.Player.Options, opts.Metadata)
	defer adapter.Close()

	it := interp.New(interp.Opts{
		Program:   opts.Program,
		Preload:   opts.Preload,
		MaxRounds: opts.MaxRounds,
		Judge:     newJudgeAdapter(opts.Judge),
		Player:    adapter,
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTrialTimeout
	}
	trialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tr := it.RunTrial(trialCtx, opts.Game, opts.MapSeed, opts.Player.ID)

	// The interpreter can return before noticing its context expired —
	// its last op may have finished a moment before the deadline and
	// every back-end call in flight unwound with its own error. The
	// deadline itself is the authority on whether this trial timed out,
	// not whatever error surfaced from the cancelled call.
	if trialCtx.Err() == context.DeadlineExceeded {
		timeoutErr := xenterr.TrialTimeout(fmt.Sprintf("trial %s/%s/%s exceeded its %s wall-clock cap", opts.Game, opts.MapSeed, opts.Player.ID, timeout))
		tr.Status = result.StatusCancelled
		tr.Error = &result.ErrorInfo{Kind: string(xenterr.KindTrialTimeout), Message: timeoutErr.Error()}
	}

	if err := result.WriteTrialResult(opts.ResultPath, tr); err != nil {
		return nil, fmt.Errorf("writing trial result for %s/%s/%s: %w", opts.Game, opts.MapSeed, opts.Player.ID, err)
	}
	return tr, nil
}

// buildBackend constructs the player back-end named by p.Type, wrapping
// it in rate limiting when p.Options.RateLimit is configured. humanIO is
// the channel a Human backend reads/writes; nil defaults to stdio, which
// is appropriate for an actual benchmark run (a human player only makes
// sense driving one interactive trial at a time).
func buildBackend(p *config.Player, pool *player.Pool, humanIO io.ReadWriter) (player.Backend, error) {
	var backend player.Backend
	var provider, credential string

	switch p.Type {
	case config.PlayerKindDefault:
		backend = player.NewDefaultBackend(p.Options)
		provider = "default:" + p.Options.Image
		credential = p.ID
	case config.PlayerKindLLM:
		backend = player.NewLLMBackend(p.Options)
		provider = p.Options.Provider
		credential = os.Getenv(player.APIKeyEnvVar(p.Options.Provider))
	case config.PlayerKindHuman:
		if humanIO == nil {
			humanIO = stdioReadWriter{}
		}
		backend = player.NewHumanBackend(humanIO)
		provider = "human"
		credential = p.ID
	default:
		return nil, fmt.Errorf("player %q: unknown backend type %q", p.ID, p.Type)
	}

	if p.Options.RateLimit.RequestsPerMinute > 0 {
		backend = player.RateLimit(backend, pool, provider, credential, p.Options.RateLimit)
	}
	return backend, nil
}

// stdioReadWriter adapts os.Stdin/os.Stdout to the io.ReadWriter a Human
// backend wants. HumanBackend owns its own buffering, so this is a
// direct passthrough.
type stdioReadWriter struct{}

func (stdioReadWriter) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdioReadWriter) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}
