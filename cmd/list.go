package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xentbench/xent-runtime/internal/config"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured players and games",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Println("Players:")
			for _, p := range cfg.Players {
				fmt.Printf("  - %s [%s]\n", p.ID, p.Type)
			}
			fmt.Println("\nGames:")
			for _, g := range cfg.Games {
				fmt.Printf("  - %s (source: %s, presentation: %s)\n", g.Name, g.Source, g.PresentationSource)
			}
			return nil
		},
	}
}
