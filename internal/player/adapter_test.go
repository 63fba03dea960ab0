package player_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xentbench/xent-runtime/internal/config"
	"github.com/xentbench/xent-runtime/internal/interp"
	"github.com/xentbench/xent-runtime/internal/player"
	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

type fakeBackend struct {
	responses []string
	errs      []error
	calls     int
	lastSince []player.ChatMessage
}

func (b *fakeBackend) Complete(ctx context.Context, transcript []player.ChatMessage, maxTokens int, params map[string]string) (string, player.Usage, error) {
	b.lastSince = transcript
	i := b.calls
	b.calls++
	var err error
	if i < len(b.errs) {
		err = b.errs[i]
	}
	if err != nil {
		return "", player.Usage{}, err
	}
	return b.responses[i], player.Usage{PromptTokens: 10, CompletionTokens: 5}, nil
}

func (b *fakeBackend) Close() error { return nil }

func echoPresentation(registers map[string]string, since []result.Event, metadata map[string]string, full []result.Event, ctx any) ([]player.ChatMessage, any, error) {
	return []player.ChatMessage{{Role: "user", Content: "prompt"}}, nil, nil
}

func TestAdapterExtractsMove(t *testing.T) {
	backend := &fakeBackend{responses: []string{"reasoning...\n<move>north</move>"}}
	a := player.NewAdapter(backend, echoPresentation, config.PlayerOptions{MaxRetries: 1}, nil)

	resp, err := a.Elicit(context.Background(), interp.ElicitRequest{Var: "x", MaxTokens: 10, Registers: map[string]string{}})
	if err != nil {
		t.Fatalf("Elicit: %v", err)
	}
	if resp.Text != "north" {
		t.Errorf("Text = %q, want %q", resp.Text, "north")
	}
	if resp.PromptTokens != 10 || resp.CompletionTokens != 5 {
		t.Errorf("usage = %+v", resp)
	}
}

func TestAdapterRetriesOnBackendError(t *testing.T) {
	backend := &fakeBackend{
		errs:      []error{errors.New("transient"), nil},
		responses: []string{"", "<move>ok</move>"},
	}
	a := player.NewAdapter(backend, echoPresentation, config.PlayerOptions{MaxRetries: 3}, nil)

	resp, err := a.Elicit(context.Background(), interp.ElicitRequest{Var: "x", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Elicit: %v", err)
	}
	if resp.Text != "ok" {
		t.Errorf("Text = %q, want %q", resp.Text, "ok")
	}
	if backend.calls != 2 {
		t.Errorf("calls = %d, want 2", backend.calls)
	}
}

func TestAdapterSurfacesPlayerUnavailableAfterRetriesExhausted(t *testing.T) {
	backend := &fakeBackend{errs: []error{errors.New("down"), errors.New("down"), errors.New("down")}, responses: []string{"", "", ""}}
	a := player.NewAdapter(backend, echoPresentation, config.PlayerOptions{MaxRetries: 3}, nil)

	_, err := a.Elicit(context.Background(), interp.ElicitRequest{Var: "x", MaxTokens: 10})
	if !xenterr.IsKind(err, xenterr.KindPlayerUnavailable) {
		t.Errorf("expected PlayerUnavailable, got %v", err)
	}
	if backend.calls != 3 {
		t.Errorf("calls = %d, want 3", backend.calls)
	}
}

func TestAdapterSinceEventsResetsEachRound(t *testing.T) {
	var seenSince [][]result.Event
	capture := func(registers map[string]string, since []result.Event, metadata map[string]string, full []result.Event, ctx any) ([]player.ChatMessage, any, error) {
		seenSince = append(seenSince, since)
		return []player.ChatMessage{{Role: "user", Content: "prompt"}}, nil, nil
	}
	backend := &fakeBackend{responses: []string{"<move>a</move>", "<move>b</move>", "<move>c</move>"}}
	a := player.NewAdapter(backend, capture, config.PlayerOptions{MaxRetries: 1}, nil)

	round0Events := []result.Event{
		{Type: result.EventRoundStarted, RoundIndex: 0},
		{Type: result.EventElicitRequest, LineNum: 1},
	}
	if _, err := a.Elicit(context.Background(), interp.ElicitRequest{RoundIndex: 0, MaxTokens: 5, Events: round0Events}); err != nil {
		t.Fatalf("Elicit: %v", err)
	}

	round0Events2 := append(round0Events, result.Event{Type: result.EventElicitResponse}, result.Event{Type: result.EventElicitRequest, LineNum: 2})
	if _, err := a.Elicit(context.Background(), interp.ElicitRequest{RoundIndex: 0, MaxTokens: 5, Events: round0Events2}); err != nil {
		t.Fatalf("Elicit: %v", err)
	}

	round1Events := []result.Event{
		{Type: result.EventRoundStarted, RoundIndex: 1},
		{Type: result.EventElicitRequest, LineNum: 1},
	}
	if _, err := a.Elicit(context.Background(), interp.ElicitRequest{RoundIndex: 1, MaxTokens: 5, Events: round1Events}); err != nil {
		t.Fatalf("Elicit: %v", err)
	}

	if len(seenSince) != 3 {
		t.Fatalf("expected 3 presentation calls, got %d", len(seenSince))
	}
	if len(seenSince[0]) != 2 {
		t.Errorf("round 0 first call: expected the full 2-event log, got %d events", len(seenSince[0]))
	}
	if len(seenSince[1]) != 2 {
		t.Errorf("round 0 second call: expected only the 2 new events, got %d events", len(seenSince[1]))
	}
	if len(seenSince[2]) != 2 {
		t.Errorf("round 1 first call: expected the fresh round's full log (cursor reset), got %d events", len(seenSince[2]))
	}
}

// TestAdapterSinceEventsSurvivesMidRoundRollback drives the real Adapter
// (not a fake that bypasses it) through a failed-ensure rollback within
// one round: the event log handed to the second Elicit call is shorter
// than what the first call already advanced the cursor past, and the
// player must still be shown the failed_ensure event that followed it.
func TestAdapterSinceEventsSurvivesMidRoundRollback(t *testing.T) {
	var seenSince [][]result.Event
	capture := func(registers map[string]string, since []result.Event, metadata map[string]string, full []result.Event, ctx any) ([]player.ChatMessage, any, error) {
		seenSince = append(seenSince, since)
		return []player.ChatMessage{{Role: "user", Content: "prompt"}}, nil, nil
	}
	backend := &fakeBackend{responses: []string{"<move>a</move>", "<move>b</move>"}}
	a := player.NewAdapter(backend, capture, config.PlayerOptions{MaxRetries: 1}, nil)

	roundStart := []result.Event{
		{Type: result.EventRoundStarted, RoundIndex: 0},
		{Type: result.EventElicitRequest, LineNum: 1},
		{Type: result.EventReveal, LineNum: 2},
	}
	if _, err := a.Elicit(context.Background(), interp.ElicitRequest{RoundIndex: 0, MaxTokens: 5, Events: roundStart}); err != nil {
		t.Fatalf("Elicit: %v", err)
	}

	// The adapter's cursor now sits past all 3 of roundStart's events. An
	// ensure failure rolls the interpreter's event log back to the beacon
	// right after round_started and emits a failed_ensure in its place,
	// so the log the next Elicit call sees is shorter than what was
	// already presented.
	rolledBack := []result.Event{
		roundStart[0],
		{Type: result.EventFailedEnsure, LineNum: 4, BeaconLine: 1},
	}
	if _, err := a.Elicit(context.Background(), interp.ElicitRequest{RoundIndex: 0, MaxTokens: 5, Events: rolledBack}); err != nil {
		t.Fatalf("Elicit: %v", err)
	}

	if len(seenSince) != 2 {
		t.Fatalf("expected 2 presentation calls, got %d", len(seenSince))
	}
	found := false
	for _, e := range seenSince[1] {
		if e.Type == result.EventFailedEnsure {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the second presentation call to include the failed_ensure event, got %+v", seenSince[1])
	}
}
