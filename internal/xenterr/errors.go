// Package xenterr defines the error taxonomy shared across the game
// runtime: parse-time, trial-level, and round-level failures that the
// scheduler and orchestrator need to distinguish to decide whether to
// retry, mark a round stuck, or abort a trial.
package xenterr

import "fmt"

// Kind identifies which branch of the taxonomy an error belongs to.
// TrialResult.Error.Kind is always one of these strings.
type Kind string

const (
	KindParseError        Kind = "parse_error"
	KindJudgeUnavailable  Kind = "judge_unavailable"
	KindScoringAlignment  Kind = "scoring_alignment_error"
	KindPlayerUnavailable Kind = "player_unavailable"
	KindEnsureExceeded    Kind = "ensure_exceeded"
	KindTrialTimeout      Kind = "trial_timeout"
	KindPresentationError Kind = "presentation_error"
)

// Error is the concrete type carried by every taxonomy member. Callers
// match on Kind rather than type-switching on a family of Go types,
// since the taxonomy is closed and flat.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is(err, xenterr.ParseError("", nil)) style matching work by Kind
// alone, ignoring Message/Wrapped.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind Kind, msg string, wrapped error) *Error {
	return &Error{Kind: kind, Message: msg, Wrapped: wrapped}
}

// ParseError: fatal per-game. Bad XDL — the whole game is skipped and
// every trial for it is errored.
func ParseError(msg string, wrapped error) *Error {
	return newErr(KindParseError, msg, wrapped)
}

// JudgeUnavailable: retriable by the gateway, then fatal per-trial.
func JudgeUnavailable(msg string, wrapped error) *Error {
	return newErr(KindJudgeUnavailable, msg, wrapped)
}

// ScoringAlignmentError: fatal per-trial, never recovered. The judge
// produced inconsistent tokenization across two scoring calls that were
// supposed to agree token-for-token.
func ScoringAlignmentError(msg string) *Error {
	return newErr(KindScoringAlignment, msg, nil)
}

// PlayerUnavailable: retriable by the adapter, then fatal per-trial.
func PlayerUnavailable(msg string, wrapped error) *Error {
	return newErr(KindPlayerUnavailable, msg, wrapped)
}

// EnsureExceeded: non-fatal, round-level. The round is marked stuck; the
// trial continues to the next round if any remain.
func EnsureExceeded(beaconLine int) *Error {
	return newErr(KindEnsureExceeded, fmt.Sprintf("ensure retry cap exceeded at beacon line %d", beaconLine), nil)
}

// TrialTimeout: fatal per-trial, cancellation.
func TrialTimeout(msg string) *Error {
	return newErr(KindTrialTimeout, msg, nil)
}

// PresentationError: the user-authored presentation function returned
// an empty transcript. The interpreter wraps it in PlayerUnavailable,
// since the trial cannot proceed without a prompt. An error returned by
// the presentation function itself is reported by the adapter as
// PlayerUnavailable directly, not as this kind, and a panic in it is not
// recovered.
func PresentationError(msg string, wrapped error) *Error {
	return newErr(KindPresentationError, msg, wrapped)
}

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == k
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
