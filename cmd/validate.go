package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/xdl"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config and every configured game's XDL source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var failed int
			for _, g := range cfg.Games {
				if _, ok := defaultPresentations[g.PresentationSource]; !ok {
					fmt.Printf("FAIL %s: no presentation function registered as %q\n", g.Name, g.PresentationSource)
					failed++
					continue
				}
				src, err := os.ReadFile(g.Source)
				if err != nil {
					fmt.Printf("FAIL %s: reading %s: %v\n", g.Name, g.Source, err)
					failed++
					continue
				}
				if _, err := xdl.Parse(string(src)); err != nil {
					fmt.Printf("FAIL %s: %v\n", g.Name, err)
					failed++
					continue
				}
				fmt.Printf("OK   %s (%s)\n", g.Name, g.Source)
			}

			if failed > 0 {
				return fmt.Errorf("%d game(s) failed validation", failed)
			}
			fmt.Printf("\n%d game(s), %d player(s): config is valid.\n", len(cfg.Games), len(cfg.Players))
			return nil
		},
	}
}
