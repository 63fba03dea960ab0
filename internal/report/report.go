// Package report renders a benchmark's aggregated BenchmarkResult as a
// table, Markdown, or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/xentbench/xent-runtime/internal/result"
)

// Generate reads the benchmark record at benchmarkDir and writes a
// summary in the requested format.
func Generate(benchmarkDir, benchmarkID, format string, w io.Writer) error {
	path := result.BenchmarkRecordPath(benchmarkDir, benchmarkID)
	br, err := readBenchmarkResult(path)
	if err != nil {
		return err
	}

	switch format {
	case "markdown":
		return writeMarkdown(br, w)
	case "json":
		return writeJSON(br, w)
	default:
		return writeTable(br, w)
	}
}

func readBenchmarkResult(path string) (*result.BenchmarkResult, error) {
	if !result.Exists(path) {
		return nil, fmt.Errorf("no benchmark record at %s (run is incomplete or aggregation hasn't been run)", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading benchmark record %s: %w", path, err)
	}
	var br result.BenchmarkResult
	if err := json.Unmarshal(data, &br); err != nil {
		return nil, fmt.Errorf("parsing benchmark record %s: %w", path, err)
	}
	return &br, nil
}

func writeTable(br *result.BenchmarkResult, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Benchmark: %s (%d trials)\n\n", br.BenchmarkID, br.TotalTrials)

	fmt.Fprintln(tw, "PLAYER\tMEAN SCORE")
	fmt.Fprintln(tw, strings.Repeat("-", 40))
	players := append([]result.PlayerResult(nil), br.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })
	for _, p := range players {
		fmt.Fprintf(tw, "%s\t%.4f\n", p.PlayerID, p.MeanScore)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "GAME\tPLAYER\tMEAN SCORE\tMAPS")
	fmt.Fprintln(tw, strings.Repeat("-", 60))
	games := append([]result.GamePlayerResult(nil), br.Games...)
	sort.Slice(games, func(i, j int) bool {
		if games[i].Game != games[j].Game {
			return games[i].Game < games[j].Game
		}
		return games[i].PlayerID < games[j].PlayerID
	})
	for _, g := range games {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%d\n", g.Game, g.PlayerID, g.MeanScore, len(g.MapSeeds))
	}
	return tw.Flush()
}

func writeMarkdown(br *result.BenchmarkResult, w io.Writer) error {
	fmt.Fprintf(w, "# Benchmark: %s\n\n%d trials total.\n\n", br.BenchmarkID, br.TotalTrials)

	fmt.Fprintln(w, "| Player | Mean Score |")
	fmt.Fprintln(w, "|---|---|")
	for _, p := range br.Players {
		fmt.Fprintf(w, "| %s | %.4f |\n", p.PlayerID, p.MeanScore)
	}

	fmt.Fprintln(w, "\n| Game | Player | Mean Score | Maps |")
	fmt.Fprintln(w, "|---|---|---|---|")
	for _, g := range br.Games {
		fmt.Fprintf(w, "| %s | %s | %.4f | %d |\n", g.Game, g.PlayerID, g.MeanScore, len(g.MapSeeds))
	}
	return nil
}

func writeJSON(br *result.BenchmarkResult, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(br)
}
