package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
)

// defaultPresentations is the built-in presentation registry every
// bundled game (games/condense.xdl and games/both_directions.xdl, as
// the testdata configs wire them) points at via presentation_source:
// default. A game with more specific
// prompting needs registers its own function under its own name and
// this registry never sees it — the runtime only ever calls through
// the player.Registry interface.
var defaultPresentations = player.Registry{
	"default": renderDefault,
}

// renderDefault narrates the register snapshot and every elicit/reward
// event seen so far into a single user turn, asking for the next move
// inside <move></move> tags. Grounded on the original implementation's
// single_presentation.py: state overview, then a chronological
// "previous attempts" transcript, then the response instructions.
func renderDefault(registers map[string]string, sinceEvents []result.Event, metadata map[string]string, fullHistory []result.Event, presentationCtx any) ([]player.ChatMessage, any, error) {
	var b strings.Builder

	b.WriteString("Registers:\n")
	names := make([]string, 0, len(registers))
	for name := range registers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s = %q\n", name, registers[name])
	}

	var attempts []string
	for _, ev := range fullHistory {
		switch ev.Type {
		case result.EventElicitResponse:
			attempts = append(attempts, fmt.Sprintf("You provided for %s: %q", ev.Var, ev.ResponseText))
		case result.EventReward:
			if ev.Value != nil {
				attempts = append(attempts, fmt.Sprintf("Score for that round: %.4f bits", ev.Value.Total()))
			}
		case result.EventFailedEnsure:
			attempts = append(attempts, "That attempt failed a predicate check and was rolled back.")
		}
	}
	if len(attempts) > 0 {
		b.WriteString("\nPrevious attempts:\n")
		for _, a := range attempts {
			fmt.Fprintf(&b, "  %s\n", a)
		}
	}

	b.WriteString("\nProvide your move inside <move></move> tags. Any other text is ignored.")

	return []player.ChatMessage{{Role: "user", Content: b.String()}}, presentationCtx, nil
}
