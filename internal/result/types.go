package result

import "github.com/xentbench/xent-runtime/internal/xent"

// EventType names the seven core event kinds plus the supplemented
// token_usage event, logged right after an elicit_response when the
// player back-end reports usage.
type EventType string

const (
	EventElicitRequest  EventType = "elicit_request"
	EventElicitResponse EventType = "elicit_response"
	EventReveal         EventType = "reveal"
	EventReward         EventType = "reward"
	EventFailedEnsure   EventType = "failed_ensure"
	EventRoundStarted   EventType = "round_started"
	EventRoundFinished  EventType = "round_finished"
	EventTokenUsage     EventType = "token_usage"
)

// Event is one append-only entry in a round's event log. Fields not
// relevant to Type are omitted from JSON via omitempty so a rendered
// log stays readable.
type Event struct {
	Type    EventType `json:"type"`
	LineNum int       `json:"line_num"`

	// elicit_request
	Var       string            `json:"var,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
	Registers map[string]string `json:"registers,omitempty"`

	// elicit_response
	ResponseText string `json:"response_text,omitempty"`

	// reveal
	Values map[string]string `json:"values,omitempty"`

	// reward
	Value *xent.TokenXent `json:"value,omitempty"`

	// failed_ensure
	BeaconLine   int   `json:"beacon_line,omitempty"`
	EnsureResult *bool `json:"ensure_result,omitempty"`

	// round_started / round_finished
	RoundIndex int `json:"round_index,omitempty"`

	// token_usage (supplemented)
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
}

// RoundResult summarizes one completed (or stuck) round.
type RoundResult struct {
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	Arms       int     `json:"arms"`
	Iterations int     `json:"iterations"`
	Stuck      bool    `json:"stuck,omitempty"`
}

// Status is the terminal state of a TrialResult.
type Status string

const (
	StatusOK        Status = "ok"
	StatusErrored   Status = "errored"
	StatusCancelled Status = "cancelled"
	StatusStuck     Status = "stuck"
)

// ErrorInfo is the JSON shape for a TrialResult's terminal error.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TrialResult is the JSON document produced for one (game, map, player)
// trial.
type TrialResult struct {
	Game          string        `json:"game"`
	MapSeed       string        `json:"map_seed"`
	PlayerID      string        `json:"player_id"`
	Events        []Event       `json:"events"`
	Rounds        []RoundResult `json:"rounds"`
	HeadlineScore float64       `json:"headline_score"`
	WinningRound  int           `json:"winning_round"`
	Status        Status        `json:"status"`
	Error         *ErrorInfo    `json:"error"`
}

// GamePlayerResult is one (game, player) aggregation: the per-map
// headline scores averaged into a single score, plus the raw series
// for charting.
type GamePlayerResult struct {
	Game       string    `json:"game"`
	PlayerID   string    `json:"player_id"`
	MeanScore  float64   `json:"mean_score"`
	MapSeeds   []string  `json:"map_seeds"`
	MapScores  []float64 `json:"map_scores"`
	Iterations [][]float64 `json:"iterations"` // per-map, per-round scores
}

// PlayerResult is one player's overall score: the mean of its
// per-game mean scores.
type PlayerResult struct {
	PlayerID  string  `json:"player_id"`
	MeanScore float64 `json:"mean_score"`
}

// BenchmarkResult is the scheduler-level aggregate record written once
// all of a benchmark's expanded trials have result files on disk.
// Nothing here is computed online; it is always a recomputation over
// the stored trial files, so deleting it and re-aggregating is safe.
type BenchmarkResult struct {
	BenchmarkID string             `json:"benchmark_id"`
	Players     []PlayerResult     `json:"players"`
	Games       []GamePlayerResult `json:"games"`
	TotalTrials int                `json:"total_trials"`
}
