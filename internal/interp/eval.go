package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xentbench/xent-runtime/internal/xdl"
	"github.com/xentbench/xent-runtime/internal/xent"
)

// value is the runtime result of evaluating an Expr: a plain string (the
// common case), a TokenXent (produced by xed/dex/nex, and consumed
// directly by reward()), or a number (produced by len() and by
// comparisons, which yield 1 or 0).
type value struct {
	text  string
	xent  *xent.TokenXent
	isNum bool
	num   float64
}

func stringValue(s string) value { return value{text: s} }

func (v value) asString() string {
	if v.xent != nil {
		return v.xent.Surfaces()
	}
	return v.text
}

// eval evaluates e against the current register file, resolving
// function calls against judge and textGen. Call expressions named
// xed/dex/nex return a TokenXent-carrying value, len() calls and
// comparisons return a number, and everything else evaluates to a string.
func (i *Interpreter) eval(ctx context.Context, e xdl.Expr) (value, error) {
	switch n := e.(type) {
	case xdl.StringLit:
		return stringValue(n.Value), nil
	case xdl.Ident:
		v, ok := i.registers.get(n.Name)
		if !ok {
			return value{}, fmt.Errorf("undefined register %q", n.Name)
		}
		return stringValue(v), nil
	case xdl.Concat:
		left, err := i.eval(ctx, n.Left)
		if err != nil {
			return value{}, err
		}
		right, err := i.eval(ctx, n.Right)
		if err != nil {
			return value{}, err
		}
		return stringValue(left.asString() + right.asString()), nil
	case xdl.Call:
		return i.evalCall(ctx, n)
	case xdl.Compare:
		return i.evalCompare(ctx, n)
	default:
		return value{}, fmt.Errorf("unhandled expression type %T", e)
	}
}

func (i *Interpreter) evalCall(ctx context.Context, c xdl.Call) (value, error) {
	switch c.Name {
	case "story":
		text, err := i.storyText(ctx)
		if err != nil {
			return value{}, err
		}
		return stringValue(text), nil

	case "remove_common_words":
		if len(c.Args) != 2 {
			return value{}, fmt.Errorf("remove_common_words expects 2 arguments, got %d", len(c.Args))
		}
		a, err := i.eval(ctx, c.Args[0])
		if err != nil {
			return value{}, err
		}
		b, err := i.eval(ctx, c.Args[1])
		if err != nil {
			return value{}, err
		}
		return stringValue(removeCommonWords(a.asString(), b.asString())), nil

	case "len":
		if len(c.Args) != 1 {
			return value{}, fmt.Errorf("len expects 1 argument, got %d", len(c.Args))
		}
		a, err := i.eval(ctx, c.Args[0])
		if err != nil {
			return value{}, err
		}
		return value{isNum: true, num: float64(len(a.asString()))}, nil

	case "xed", "dex", "nex":
		return i.evalXentFunc(ctx, c)

	default:
		return value{}, fmt.Errorf("unknown function %q", c.Name)
	}
}

// evalXentFunc handles xed/dex/nex, which share the (text[ | context])
// call shape: exactly one text argument, with an optional context given
// only in the pipe form. A comma-separated second argument is rejected.
func (i *Interpreter) evalXentFunc(ctx context.Context, c xdl.Call) (value, error) {
	if len(c.Args) != 1 {
		return value{}, fmt.Errorf("%s expects exactly one text argument, got %d", c.Name, len(c.Args))
	}
	textVal, err := i.eval(ctx, c.Args[0])
	if err != nil {
		return value{}, err
	}
	contextText := ""
	if c.Context != nil {
		ctxVal, err := i.eval(ctx, c.Context)
		if err != nil {
			return value{}, err
		}
		contextText = ctxVal.asString()
	}

	var tx xent.TokenXent
	switch c.Name {
	case "xed":
		tx, err = i.judge.Xed(ctx, textVal.asString(), contextText)
	case "dex":
		tx, err = i.judge.Dex(ctx, textVal.asString(), contextText)
	case "nex":
		tx, err = i.judge.Nex(ctx, textVal.asString(), contextText)
	}
	if err != nil {
		return value{}, err
	}
	return value{xent: &tx}, nil
}

func (i *Interpreter) evalCompare(ctx context.Context, c xdl.Compare) (value, error) {
	left, err := i.eval(ctx, c.Left)
	if err != nil {
		return value{}, err
	}
	right, err := i.eval(ctx, c.Right)
	if err != nil {
		return value{}, err
	}
	leftNum, leftIsNum := numericOf(left)
	rightNum, rightIsNum := numericOf(right)

	var result bool
	if leftIsNum && rightIsNum {
		switch c.Op {
		case xdl.CompareGE:
			result = leftNum >= rightNum
		case xdl.CompareLE:
			result = leftNum <= rightNum
		case xdl.CompareEQ:
			result = leftNum == rightNum
		}
	} else {
		switch c.Op {
		case xdl.CompareEQ:
			result = left.asString() == right.asString()
		default:
			return value{}, fmt.Errorf("comparison %s requires numeric operands", c.Op)
		}
	}
	return value{isNum: true, num: boolToFloat(result)}, nil
}

func numericOf(v value) (float64, bool) {
	if v.isNum {
		return v.num, true
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// removeCommonWords returns the words of a with any word also present
// in b removed, space-joined, preserving a's original word order.
func removeCommonWords(a, b string) string {
	bWords := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		bWords[w] = true
	}
	var out []string
	for _, w := range strings.Fields(a) {
		if !bWords[w] {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
