package interp

import (
	"context"

	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xent"
)

// Judge is the subset of the Judge Gateway the interpreter's expression
// evaluator calls into. Kept as an interface so interp doesn't import
// internal/judge directly — the interpreter is a pure state machine
// over whatever scoring backend it's given. A *judge.Gateway is wired in
// through internal/runner's judgeAdapter, which converts judge.Token to
// JudgeToken.
type Judge interface {
	Tokenize(ctx context.Context, text string) ([]JudgeToken, error)
	Xent(ctx context.Context, text, context string) (xent.TokenXent, error)
	Xed(ctx context.Context, text, context string) (xent.TokenXent, error)
	Nex(ctx context.Context, text, context string) (xent.TokenXent, error)
	Dex(ctx context.Context, text, context string) (xent.TokenXent, error)
}

// JudgeToken mirrors judge.Token without importing internal/judge —
// a caller wires a *judge.Gateway into an Interpreter through a thin
// adapter that converts between the two.
type JudgeToken struct {
	ID      int
	Surface string
}

// TextGenerator produces the map's opening story text: either sampled
// from the judge model or drawn from a community archive, depending on
// expansion configuration. Consulted only while resolving
// assign(...story()...) ops that have no preloaded value.
type TextGenerator interface {
	Story(ctx context.Context) (string, error)
}

// ElicitRequest is what the interpreter hands the Player Adapter when
// it hits elicit(name, max_tokens). Events is the round's event log up
// to and including the elicit_request event just emitted; the adapter
// derives its own since-events tail from whatever slice of it it has
// already presented to this player in this round.
type ElicitRequest struct {
	Var        string
	MaxTokens  int
	Registers  map[string]string
	RoundIndex int
	Events     []result.Event
}

// Player is the subset of the Player Adapter the interpreter suspends
// into at elicit().
type Player interface {
	Elicit(ctx context.Context, req ElicitRequest) (ElicitResponse, error)
}

// ElicitResponse carries the extracted move plus optional token usage
// telemetry.
type ElicitResponse struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
