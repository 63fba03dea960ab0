// Package interp is the Game Interpreter: a small virtual machine that
// steps through a parsed XDL Program, driving elicit/reveal/reward/
// ensure semantics over a register file and emitting an append-only
// event log.
package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/xentbench/xent-runtime/internal/result"
	"github.com/xentbench/xent-runtime/internal/xdl"
	"github.com/xentbench/xent-runtime/internal/xenterr"
)

// Opts configures one interpreter lifetime: one trial, one interpreter.
type Opts struct {
	Program        *xdl.Program
	Preload        map[string]string // map's precomputed prefix bindings, reapplied every round
	MaxRounds      int
	EnsureRetryCap int // 0 means use the default
	Judge          Judge
	Player         Player
	TextGen        TextGenerator
}

const defaultEnsureRetryCap = 10

// Interpreter runs one trial's program to completion, producing a
// TrialResult. State is a register file, an append-only event log, a
// beacon journal, and the current/max round counters.
type Interpreter struct {
	prog           *xdl.Program
	preload        map[string]string
	maxRounds      int
	ensureRetryCap int
	judge          Judge
	player         Player
	textGen        TextGenerator

	registers     *registerFile
	journal       *journal
	eventMarks    []int // event log length at each journal frame push, index-aligned with journal frames
	events        []result.Event
	ensureRetries map[int]int // ensure line -> retry count, reset each round
	round         int
}

// New builds an Interpreter for one trial.
func New(opts Opts) *Interpreter {
	retryCap := opts.EnsureRetryCap
	if retryCap <= 0 {
		retryCap = defaultEnsureRetryCap
	}
	return &Interpreter{
		prog:           opts.Program,
		preload:        opts.Preload,
		maxRounds:      opts.MaxRounds,
		ensureRetryCap: retryCap,
		judge:          opts.Judge,
		player:         opts.Player,
		textGen:        opts.TextGen,
	}
}

// RunTrial drives the program for up to maxRounds rounds, restarting a
// fresh register file each round, and returns the assembled TrialResult.
// Headline score is the max round score, ties broken by earliest round.
func (i *Interpreter) RunTrial(ctx context.Context, game, mapSeed, playerID string) *result.TrialResult {
	tr := &result.TrialResult{Game: game, MapSeed: mapSeed, PlayerID: playerID}

	bestScore := 0.0
	bestRound := -1
	haveScore := false

	for round := 0; round < i.maxRounds; round++ {
		rr, events, err := i.runRound(ctx, round)
		tr.Events = append(tr.Events, events...)
		if err != nil {
			if xenterr.IsKind(err, xenterr.KindEnsureExceeded) {
				rr.Stuck = true
				tr.Rounds = append(tr.Rounds, rr)
				continue
			}
			tr.Status = statusFor(err)
			tr.Error = &result.ErrorInfo{Kind: string(kindOf(err)), Message: err.Error()}
			return tr
		}
		tr.Rounds = append(tr.Rounds, rr)
		if !haveScore || rr.Score > bestScore {
			bestScore = rr.Score
			bestRound = round
			haveScore = true
		}
	}

	tr.HeadlineScore = bestScore
	tr.WinningRound = bestRound
	if tr.Status == "" {
		if haveScore {
			tr.Status = result.StatusOK
		} else {
			tr.Status = result.StatusStuck
		}
	}
	return tr
}

func statusFor(err error) result.Status {
	if xenterr.IsKind(err, xenterr.KindTrialTimeout) {
		return result.StatusCancelled
	}
	return result.StatusErrored
}

func kindOf(err error) xenterr.Kind {
	var e *xenterr.Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return xenterr.KindPresentationError
}

// runRound executes the program once from pc=0 with a fresh register
// file (reseeded from preload), returning that round's summary and the
// events it emitted. A non-nil, non-EnsureExceeded error aborts the
// whole trial; EnsureExceeded marks this round stuck and lets the trial
// continue to the next round.
func (i *Interpreter) runRound(ctx context.Context, round int) (result.RoundResult, []result.Event, error) {
	i.registers = newRegisterFile(i.preload)
	i.journal = &journal{}
	i.eventMarks = nil
	i.events = nil
	i.ensureRetries = make(map[int]int)
	i.round = round

	i.emit(result.Event{Type: result.EventRoundStarted, RoundIndex: round})

	rr := result.RoundResult{Index: round}

	pc := 0
	for pc < len(i.prog.Ops) {
		next, err := i.execOp(ctx, pc, &rr)
		if err != nil {
			return rr, i.events, err
		}
		pc = next
	}

	i.emit(result.Event{Type: result.EventRoundFinished, RoundIndex: round})
	return rr, i.events, nil
}

// execOp runs the op at pc and returns the next program counter.
func (i *Interpreter) execOp(ctx context.Context, pc int, rr *result.RoundResult) (int, error) {
	op := i.prog.Ops[pc]
	switch op.Kind {
	case xdl.OpAssign:
		if v, ok := i.preload[op.AssignName]; ok {
			i.journal.record(i.registers.set(op.AssignName, v))
			break
		}
		v, err := i.eval(ctx, op.AssignExpr)
		if err != nil {
			return 0, fmt.Errorf("assign at line %d: %w", op.Line, err)
		}
		i.journal.record(i.registers.set(op.AssignName, v.asString()))

	case xdl.OpReveal:
		values := make(map[string]string, len(op.RevealNames))
		for _, name := range op.RevealNames {
			v, _ := i.registers.get(name)
			values[name] = v
		}
		i.emit(result.Event{Type: result.EventReveal, LineNum: op.Line, Values: values})

	case xdl.OpElicit:
		if err := i.execElicit(ctx, op, rr); err != nil {
			return 0, err
		}

	case xdl.OpBeacon:
		i.journal.pushFrame()
		i.eventMarks = append(i.eventMarks, len(i.events))

	case xdl.OpEnsure:
		v, err := i.eval(ctx, op.EnsureExpr)
		if err != nil {
			return 0, fmt.Errorf("ensure at line %d: %w", op.Line, err)
		}
		if truthy(v) {
			return pc + 1, nil
		}
		return i.failEnsure(op)

	case xdl.OpReward:
		v, err := i.eval(ctx, op.RewardExpr)
		if err != nil {
			return 0, fmt.Errorf("reward at line %d: %w", op.Line, err)
		}
		if v.xent == nil {
			return 0, fmt.Errorf("reward at line %d: expression did not produce a TokenXent", op.Line)
		}
		i.emit(result.Event{Type: result.EventReward, LineNum: op.Line, Value: v.xent})
		rr.Iterations++
		rr.Score += v.xent.Total()

	default:
		return 0, fmt.Errorf("unhandled op kind %q at line %d", op.Kind, op.Line)
	}
	return pc + 1, nil
}

func (i *Interpreter) execElicit(ctx context.Context, op xdl.Op, rr *result.RoundResult) error {
	maxToks := 0
	if op.ElicitMaxToks != nil {
		v, err := i.eval(ctx, op.ElicitMaxToks)
		if err != nil {
			return fmt.Errorf("elicit at line %d: %w", op.Line, err)
		}
		n, _ := numericOf(v)
		maxToks = int(n)
	}
	snap := i.registers.snapshot()
	i.emit(result.Event{Type: result.EventElicitRequest, LineNum: op.Line, Var: op.ElicitName, MaxTokens: maxToks, Registers: snap})

	var respText string
	var promptToks, completionToks int
	if maxToks > 0 {
		eventsSnap := make([]result.Event, len(i.events))
		copy(eventsSnap, i.events)
		resp, err := i.player.Elicit(ctx, ElicitRequest{
			Var:        op.ElicitName,
			MaxTokens:  maxToks,
			Registers:  snap,
			RoundIndex: i.round,
			Events:     eventsSnap,
		})
		if err != nil {
			return xenterr.PlayerUnavailable(fmt.Sprintf("elicit at line %d", op.Line), err)
		}
		respText, err = i.truncateToJudgeTokens(ctx, resp.Text, maxToks)
		if err != nil {
			return fmt.Errorf("elicit at line %d: truncating response: %w", op.Line, err)
		}
		promptToks = resp.PromptTokens
		completionToks = resp.CompletionTokens
	}
	i.journal.record(i.registers.set(op.ElicitName, respText))
	i.emit(result.Event{Type: result.EventElicitResponse, LineNum: op.Line, Var: op.ElicitName, ResponseText: respText})
	rr.Arms++
	if promptToks > 0 || completionToks > 0 {
		i.emit(result.Event{Type: result.EventTokenUsage, LineNum: op.Line, PromptTokens: promptToks, CompletionTokens: completionToks})
	}
	return nil
}

// failEnsure rolls the register file and event log back to the state
// at op's matching beacon, emits failed_ensure, and resumes execution
// at the op right after that beacon.
func (i *Interpreter) failEnsure(op xdl.Op) (int, error) {
	beaconOp := i.prog.Ops[op.BeaconIndex]
	i.ensureRetries[op.Line]++
	if i.ensureRetries[op.Line] > i.ensureRetryCap {
		return 0, xenterr.EnsureExceeded(beaconOp.Line)
	}

	// The ensure's matching beacon owns the top of the journal stack: XDL
	// has no loops besides this retry jump, so execution reaches an ensure
	// only after passing its beacon. The retry resumes just past that
	// beacon, so its frame is replaced here with a fresh one and its event
	// mark is kept, ready for the next failure at the same ensure.
	depth := i.journal.depth() - 1
	truncateTo := i.eventMarks[depth]
	i.events = i.events[:truncateTo]
	i.journal.rollbackTo(i.registers, depth)
	i.journal.pushFrame()

	failed := false
	i.emit(result.Event{Type: result.EventFailedEnsure, LineNum: op.Line, BeaconLine: beaconOp.Line, EnsureResult: &failed})

	return op.BeaconIndex + 1, nil
}

func truthy(v value) bool {
	if v.isNum {
		return v.num != 0
	}
	return v.text != ""
}

func (i *Interpreter) emit(e result.Event) {
	i.events = append(i.events, e)
}

// truncateToJudgeTokens re-tokenizes a move under the judge's tokenizer
// and rejoins at most maxToks of its surfaces, since the adapter that
// produced text may have used a different (back-end) tokenizer.
func (i *Interpreter) truncateToJudgeTokens(ctx context.Context, text string, maxToks int) (string, error) {
	if text == "" {
		return "", nil
	}
	toks, err := i.judge.Tokenize(ctx, text)
	if err != nil {
		return "", err
	}
	if len(toks) <= maxToks {
		return text, nil
	}
	var b []byte
	for _, t := range toks[:maxToks] {
		b = append(b, t.Surface...)
	}
	return string(b), nil
}

func (i *Interpreter) storyText(ctx context.Context) (string, error) {
	if i.textGen == nil {
		return "", fmt.Errorf("story(): no text generator configured")
	}
	return i.textGen.Story(ctx)
}
