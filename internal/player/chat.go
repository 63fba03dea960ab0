// Package player implements the Player Adapter: it turns an
// elicit_request into a chat transcript via a game's presentation
// function, calls a player back-end to get a response, and extracts
// the player's move from it.
package player

import (
	"regexp"
	"strings"

	"github.com/xentbench/xent-runtime/internal/result"
)

// ChatMessage is one turn in the transcript handed to a player
// back-end.
type ChatMessage struct {
	Role    string
	Content string
}

// PresentationFunc renders a round's state into a chat transcript for
// one elicit_request. sinceEvents is the tail of the round's event log
// not yet shown to this player; fullHistory is every event so far;
// presentationCtx is whatever the function itself returned last time it
// ran in this trial, threaded through unchanged the first time (nil).
type PresentationFunc func(
	registers map[string]string,
	sinceEvents []result.Event,
	metadata map[string]string,
	fullHistory []result.Event,
	presentationCtx any,
) (transcript []ChatMessage, newCtx any, err error)

// Registry looks up a game's registered presentation function by name
// (config.Game.PresentationSource).
type Registry map[string]PresentationFunc

var moveTag = regexp.MustCompile(`(?s)<move>(.*?)</move>`)

// extractMove returns the contents of the last <move>...</move>
// fragment in text, or the empty string if none is found.
func extractMove(text string) string {
	matches := moveTag.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	last := matches[len(matches)-1][1]
	return strings.TrimSpace(last)
}
