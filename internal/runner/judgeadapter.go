package runner

import (
	"context"

	"github.com/xentbench/xent-runtime/internal/interp"
	"github.com/xentbench/xent-runtime/internal/judge"
	"github.com/xentbench/xent-runtime/internal/xent"
)

// judgeAdapter satisfies interp.Judge over a *judge.Gateway. It exists
// purely to convert judge.Token to interp.JudgeToken — the interpreter
// doesn't import internal/judge, so it can't accept []judge.Token
// directly.
type judgeAdapter struct {
	gw *judge.Gateway
}

func newJudgeAdapter(gw *judge.Gateway) *judgeAdapter {
	return &judgeAdapter{gw: gw}
}

func (j *judgeAdapter) Tokenize(ctx context.Context, text string) ([]interp.JudgeToken, error) {
	toks, err := j.gw.Tokenize(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]interp.JudgeToken, len(toks))
	for i, t := range toks {
		out[i] = interp.JudgeToken{ID: t.ID, Surface: t.Surface}
	}
	return out, nil
}

func (j *judgeAdapter) Xent(ctx context.Context, text, context string) (xent.TokenXent, error) {
	return j.gw.Xent(ctx, text, context)
}

func (j *judgeAdapter) Xed(ctx context.Context, text, context string) (xent.TokenXent, error) {
	return j.gw.Xed(ctx, text, context)
}

func (j *judgeAdapter) Nex(ctx context.Context, text, context string) (xent.TokenXent, error) {
	return j.gw.Nex(ctx, text, context)
}

func (j *judgeAdapter) Dex(ctx context.Context, text, context string) (xent.TokenXent, error) {
	return j.gw.Dex(ctx, text, context)
}
