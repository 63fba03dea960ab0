package player

import (
	"context"
	"fmt"
	"time"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/interp"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

// Adapter implements interp.Player for one (player, game) pairing. It
// tracks how much of the current round's event log has already been
// shown to this player, so it only presents the delta at each
// elicit_request.
type Adapter struct {
	backend       Backend
	present       PresentationFunc
	requestParams map[string]string
	maxRetries    int
	metadata      map[string]string

	presentedThroughRound int
	presentedThroughIndex int
	presentationCtx       any
}

// NewAdapter builds an Adapter. present is the game's registered
// presentation function; metadata is passed through to it unchanged
// on every call.
func NewAdapter(backend Backend, present PresentationFunc, opts config.PlayerOptions, metadata map[string]string) *Adapter {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Adapter{
		backend:       backend,
		present:       present,
		requestParams: opts.RequestParams,
		maxRetries:    maxRetries,
		metadata:      metadata,
	}
}

// Elicit implements interp.Player.
func (a *Adapter) Elicit(ctx context.Context, req interp.ElicitRequest) (interp.ElicitResponse, error) {
	since := a.sinceEvents(req)

	transcript, newCtx, err := a.present(req.Registers, since, a.metadata, req.Events, a.presentationCtx)
	if err != nil {
		return interp.ElicitResponse{}, xenterr.PlayerUnavailable("presentation function failed", err)
	}
	if len(transcript) == 0 {
		return interp.ElicitResponse{}, xenterr.PresentationError("presentation function returned an empty transcript", nil)
	}
	a.presentationCtx = newCtx
	a.presentedThroughRound = req.RoundIndex
	a.presentedThroughIndex = len(req.Events)

	text, usage, err := a.completeWithRetry(ctx, transcript, req.MaxTokens)
	if err != nil {
		return interp.ElicitResponse{}, err
	}

	return interp.ElicitResponse{
		Text:             extractMove(text),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}, nil
}

// sinceEvents returns the tail of req.Events not yet presented to this
// player in this round. A new round resets the cursor to the start of
// that round's log, since each round begins its own event log.
//
// A failed ensure rolls the interpreter's event log back to the last
// beacon and resumes within the same round, which can shrink
// req.Events below a.presentedThroughIndex recorded on a prior elicit
// this round. When that happens the cursor is pulled back to just
// before the truncation point, so the player still sees the
// failed_ensure event appended right after the rollback instead of an
// empty delta.
func (a *Adapter) sinceEvents(req interp.ElicitRequest) []result.Event {
	if req.RoundIndex != a.presentedThroughRound {
		return req.Events
	}
	if a.presentedThroughIndex > len(req.Events) {
		a.presentedThroughIndex = len(req.Events) - 1
		if a.presentedThroughIndex < 0 {
			a.presentedThroughIndex = 0
		}
	}
	if a.presentedThroughIndex >= len(req.Events) {
		return nil
	}
	return req.Events[a.presentedThroughIndex:]
}

// completeWithRetry calls the back-end with exponential backoff,
// surfacing PlayerUnavailable once the retry budget is exhausted. The
// interpreter itself never retries — only the adapter does.
func (a *Adapter) completeWithRetry(ctx context.Context, transcript []ChatMessage, maxTokens int) (string, Usage, error) {
	delay := 250 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", Usage{}, ctx.Err()
			}
			delay *= 2
		}
		text, usage, err := a.backend.Complete(ctx, transcript, maxTokens, a.requestParams)
		if err == nil {
			return text, usage, nil
		}
		lastErr = err
	}
	return "", Usage{}, xenterr.PlayerUnavailable(fmt.Sprintf("back-end failed after %d attempts", a.maxRetries), lastErr)
}

// Close releases the adapter's backend.
func (a *Adapter) Close() error {
	return a.backend.Close()
}
