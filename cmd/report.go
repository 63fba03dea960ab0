package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/report"
	"github.com/xentbench/xent-runtime/internal/result"
)

var flagFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a summary from a completed benchmark's stored results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			benchmarkDir := result.BenchmarkDir(cfg.Results.Dir, cfg.Metadata.BenchmarkID)
			return report.Generate(benchmarkDir, cfg.Metadata.BenchmarkID, flagFormat, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	return cmd
}
