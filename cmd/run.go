package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/report"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/scheduler"
)

var (
	flagPlayer   string
	flagGame     string
	flagParallel int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a benchmark run",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagPlayer, "player", "", "filter to a single player id")
	cmd.Flags().StringVar(&flagGame, "game", "", "filter to a single game")
	cmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent trials")
	return cmd
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	cfg.Players = filterPlayers(cfg.Players, flagPlayer)
	if len(cfg.Players) == 0 {
		return fmt.Errorf("no players match --player=%q", flagPlayer)
	}
	cfg.Games = filterGames(cfg.Games, flagGame)
	if len(cfg.Games) == 0 {
		return fmt.Errorf("no games match --game=%q", flagGame)
	}

	secrets, err := config.LoadSecrets(cfg.Secrets.EnvFile)
	if err != nil {
		return err
	}
	for k, v := range secrets {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}

	ctx := context.Background()

	gw, err := judge.Start(ctx, &judge.StartOpts{
		Command:   cfg.Judge.SidecarCommand,
		Args:      cfg.Judge.SidecarArgs,
		Addr:      cfg.Judge.Addr,
		LogDir:    cfg.Judge.LogDir,
		CacheSize: cfg.Judge.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("starting judge gateway: %w", err)
	}
	defer gw.Stop()

	pool := player.NewPool()
	defer pool.Close()

	sched, err := scheduler.New(cfg, gw, pool, defaultPresentations)
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}

	fmt.Printf("Expanding %s: %d players x %d games x %d maps/game...\n",
		cfg.Metadata.BenchmarkID, len(cfg.Players), len(cfg.Games), cfg.Expansion.NumMapsPerGame)
	trials, err := sched.Expand(ctx)
	if err != nil {
		return fmt.Errorf("expanding trials: %w", err)
	}
	fmt.Printf("Running %d trials (parallel=%d)...\n", len(trials), flagParallel)

	for _, err := range sched.Run(ctx, trials, flagParallel) {
		fmt.Printf("  ERROR: %v\n", err)
	}

	fmt.Println("Aggregating results...")
	if _, err := sched.Aggregate(trials); err != nil {
		return fmt.Errorf("aggregating results: %w", err)
	}

	fmt.Println("\n--- Results ---")
	benchmarkDir := result.BenchmarkDir(cfg.Results.Dir, cfg.Metadata.BenchmarkID)
	return report.Generate(benchmarkDir, cfg.Metadata.BenchmarkID, "table", os.Stdout)
}

func filterPlayers(players []config.Player, id string) []config.Player {
	if id == "" {
		return players
	}
	var filtered []config.Player
	for _, p := range players {
		if p.ID == id {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func filterGames(games []config.Game, name string) []config.Game {
	if name == "" {
		return games
	}
	var filtered []config.Game
	for _, g := range games {
		if g.Name == name {
			filtered = append(filtered, g)
		}
	}
	return filtered
}
