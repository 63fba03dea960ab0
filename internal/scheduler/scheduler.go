// Package scheduler expands a benchmark configuration into trials,
// drives them through the Trial Orchestrator with bounded parallelism,
// and aggregates completed trial results into a BenchmarkResult.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/runner"
	"github.com/xentbench/xent-runtime/internal/xdl"
)

// Trial is one expanded (game, map seed, player) unit of work.
type Trial struct {
	Opts *runner.TrialOpts
}

// ID returns the trial's stable identity, the same one used for its
// on-disk result filename.
func (t *Trial) ID() string {
	return t.Opts.Game + "/" + t.Opts.MapSeed + "/" + t.Opts.Player.ID
}

// Scheduler owns the shared resources an expanded trial list is run
// against: the judge gateway, the player connection pool, the
// presentation function registry, and the configured story generator.
type Scheduler struct {
	cfg          *config.Config
	benchmarkDir string
	judge        *judge.Gateway
	pool         *player.Pool
	presentations player.Registry
	storyGen     runner.StoryGenerator
}

// New builds a Scheduler for cfg. presentations must have an entry for
// every game's presentation_source.
func New(cfg *config.Config, judgeGW *judge.Gateway, pool *player.Pool, presentations player.Registry) (*Scheduler, error) {
	gen, err := buildStoryGenerator(cfg, judgeGW)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:           cfg,
		benchmarkDir:  result.BenchmarkDir(cfg.Results.Dir, cfg.Metadata.BenchmarkID),
		judge:         judgeGW,
		pool:          pool,
		presentations: presentations,
		storyGen:      gen,
	}, nil
}

func buildStoryGenerator(cfg *config.Config, judgeGW *judge.Gateway) (runner.StoryGenerator, error) {
	switch cfg.Expansion.TextGenerator {
	case config.TextGeneratorJudge:
		return &runner.JudgeStoryGenerator{Judge: judgeGW}, nil
	case config.TextGeneratorCommunityArchive:
		return runner.NewArchiveStoryGenerator(cfg.Expansion.ArchivePath)
	default:
		return nil, fmt.Errorf("expansion.text_generator: unknown kind %q", cfg.Expansion.TextGenerator)
	}
}

// Expand builds the Cartesian product of games x map seeds x players.
// Each game's XDL source is parsed once and each map is generated (or
// loaded from its memoised file) once, then shared across every player
// trial drawn against it.
func (s *Scheduler) Expand(ctx context.Context) ([]*Trial, error) {
	var trials []*Trial
	for _, g := range s.cfg.Games {
		prog, present, err := s.loadGame(&g)
		if err != nil {
			return nil, err
		}

		for i := 0; i < s.cfg.Expansion.NumMapsPerGame; i++ {
			mapSeed := runner.MapSeed(s.cfg.Metadata.MasterSeed, g.Name, i)
			mapPath := runner.MapPath(s.cfg.Results.Dir, s.cfg.Metadata.BenchmarkID, g.Name, mapSeed)
			bindings, err := runner.GenerateMap(ctx, mapPath, prog, s.storyGen, mapSeed, s.cfg.Expansion.MaxStoryLength)
			if err != nil {
				return nil, fmt.Errorf("game %q map %s: %w", g.Name, mapSeed, err)
			}

			for pi := range s.cfg.Players {
				p := &s.cfg.Players[pi]
				trials = append(trials, &Trial{
					Opts: &runner.TrialOpts{
						Game:         g.Name,
						Program:      prog,
						Preload:      bindings,
						MapSeed:      mapSeed,
						Player:       p,
						Presentation: present,
						Metadata: map[string]string{
							"benchmark_id": s.cfg.Metadata.BenchmarkID,
							"game":         g.Name,
							"player_id":    p.ID,
						},
						MaxRounds:  s.cfg.Metadata.RoundsPerGame,
						Timeout:    time.Duration(s.cfg.Metadata.TrialTimeoutSeconds) * time.Second,
						Judge:      s.judge,
						Pool:       s.pool,
						ResultPath: result.TrialPath(s.benchmarkDir, g.Name, mapSeed, p.ID),
					},
				})
			}
		}
	}
	return trials, nil
}

func (s *Scheduler) loadGame(g *config.Game) (*xdl.Program, player.PresentationFunc, error) {
	src, err := os.ReadFile(g.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("game %q: reading source %s: %w", g.Name, g.Source, err)
	}
	prog, err := xdl.Parse(string(src))
	if err != nil {
		return nil, nil, fmt.Errorf("game %q: %w", g.Name, err)
	}
	present, ok := s.presentations[g.PresentationSource]
	if !ok {
		return nil, nil, fmt.Errorf("game %q: no presentation function registered as %q", g.Name, g.PresentationSource)
	}
	return prog, present, nil
}

// Run drives trials through the Trial Orchestrator with at most
// parallel concurrent trials, skipping any whose result file already
// exists and parses as a complete TrialResult. A result file that
// exists but fails to parse is treated as a crash-interrupted write
// and re-run — WriteTrialResult's temp-file-then-rename never leaves
// a corrupt file at the final path, but an operator-truncated or
// hand-edited one can still end up unparseable.
func (s *Scheduler) Run(ctx context.Context, trials []*Trial, parallel int) []error {
	jobs := make([]runner.Job, 0, len(trials))
	for _, t := range trials {
		t := t
		jobs = append(jobs, func() error {
			if resultComplete(t.Opts.ResultPath) {
				return nil
			}
			_, err := runner.RunTrial(ctx, t.Opts)
			return err
		})
	}
	return runner.RunPool(parallel, jobs)
}

func resultComplete(path string) bool {
	if !result.Exists(path) {
		return false
	}
	_, err := result.ReadTrialResult(path)
	return err == nil
}

// Aggregate reads every trial's result file and computes the
// benchmark-level record: per-player overall score (mean over games of
// per-game score), per-game per-player score (mean over maps of trial
// headline score), and per-game per-player per-iteration arrays. It
// also writes each (game, player) aggregation to its own file. Nothing
// here is retained in memory across calls; every call recomputes from
// the stored trial files.
func (s *Scheduler) Aggregate(trials []*Trial) (*result.BenchmarkResult, error) {
	type key struct{ game, player string }
	byGamePlayer := map[key]*result.GamePlayerResult{}
	var order []key

	for _, t := range trials {
		tr, err := result.ReadTrialResult(t.Opts.ResultPath)
		if err != nil {
			return nil, fmt.Errorf("aggregating %s: %w", t.Opts.ResultPath, err)
		}
		k := key{t.Opts.Game, t.Opts.Player.ID}
		gp, ok := byGamePlayer[k]
		if !ok {
			gp = &result.GamePlayerResult{Game: t.Opts.Game, PlayerID: t.Opts.Player.ID}
			byGamePlayer[k] = gp
			order = append(order, k)
		}
		gp.MapSeeds = append(gp.MapSeeds, t.Opts.MapSeed)
		gp.MapScores = append(gp.MapScores, tr.HeadlineScore)

		iters := make([]float64, len(tr.Rounds))
		for i, r := range tr.Rounds {
			iters[i] = r.Score
		}
		gp.Iterations = append(gp.Iterations, iters)
	}

	byPlayer := map[string][]float64{}
	var games []result.GamePlayerResult
	for _, k := range order {
		gp := byGamePlayer[k]
		gp.MeanScore = mean(gp.MapScores)
		games = append(games, *gp)
		byPlayer[gp.PlayerID] = append(byPlayer[gp.PlayerID], gp.MeanScore)

		aggPath := result.AggregatePath(s.benchmarkDir, gp.Game, gp.PlayerID)
		if err := result.WriteJSONAtomic(aggPath, gp); err != nil {
			return nil, fmt.Errorf("writing %s: %w", aggPath, err)
		}
	}

	var players []result.PlayerResult
	for _, p := range s.cfg.Players {
		players = append(players, result.PlayerResult{PlayerID: p.ID, MeanScore: mean(byPlayer[p.ID])})
	}

	br := &result.BenchmarkResult{
		BenchmarkID: s.cfg.Metadata.BenchmarkID,
		Players:     players,
		Games:       games,
		TotalTrials: len(trials),
	}
	recordPath := result.BenchmarkRecordPath(s.benchmarkDir, s.cfg.Metadata.BenchmarkID)
	if err := result.WriteJSONAtomic(recordPath, br); err != nil {
		return nil, fmt.Errorf("writing %s: %w", recordPath, err)
	}
	return br, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
