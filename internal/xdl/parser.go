package xdl

import (
	"fmt"
	"strings"

	"github.com/xentbench/xent-runtime/internal/xenterr"
)

func parseErrorf(line int, format string, args ...any) error {
	return xenterr.ParseError(fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)), nil)
}

// Parse turns raw XDL source into a linear Program. One operation per
// line; blank lines and comment-only lines are skipped. Every ensure
// records the index of the most recently seen beacon; an ensure with no
// preceding beacon is a ParseError.
func Parse(source string) (*Program, error) {
	prog := &Program{}
	lastBeacon := -1

	lines := strings.Split(source, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		toks, err := lex(text, lineNo)
		if err != nil {
			return nil, err
		}
		op, err := parseLine(toks, lineNo)
		if err != nil {
			return nil, err
		}
		if op.Kind == OpEnsure {
			if lastBeacon < 0 {
				return nil, parseErrorf(lineNo, "ensure with no preceding beacon")
			}
			op.BeaconIndex = lastBeacon
		}
		prog.Ops = append(prog.Ops, *op)
		if op.Kind == OpBeacon {
			lastBeacon = len(prog.Ops) - 1
		}
	}
	if len(prog.Ops) == 0 {
		return nil, parseErrorf(0, "empty program")
	}
	return prog, nil
}

// parseLine dispatches on the leading identifier (the op name) and
// parses that op's fixed argument shape.
func parseLine(toks []token, lineNo int) (*Op, error) {
	p := &tokenStream{toks: toks, line: lineNo}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch OpKind(name) {
	case OpAssign:
		return parseAssign(p, lineNo)
	case OpReveal:
		return parseReveal(p, lineNo)
	case OpElicit:
		return parseElicit(p, lineNo)
	case OpEnsure:
		return parseEnsure(p, lineNo)
	case OpBeacon:
		if err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return &Op{Kind: OpBeacon, Line: lineNo}, nil
	case OpReward:
		return parseReward(p, lineNo)
	default:
		return nil, parseErrorf(lineNo, "unknown operation %q", name)
	}
}

func parseAssign(p *tokenStream, lineNo int) (*Op, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokAssign); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Op{Kind: OpAssign, Line: lineNo, AssignName: name, AssignExpr: expr}, nil
}

func parseReveal(p *tokenStream, lineNo int) (*Op, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var names []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		if p.peek().kind == tokComma {
			p.next()
			continue
		}
		break
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Op{Kind: OpReveal, Line: lineNo, RevealNames: names}, nil
}

func parseElicit(p *tokenStream, lineNo int) (*Op, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokComma); err != nil {
		return nil, err
	}
	maxToks, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Op{Kind: OpElicit, Line: lineNo, ElicitName: name, ElicitMaxToks: maxToks}, nil
}

func parseEnsure(p *tokenStream, lineNo int) (*Op, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	expr, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Op{Kind: OpEnsure, Line: lineNo, EnsureExpr: expr}, nil
}

func parseReward(p *tokenStream, lineNo int) (*Op, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return &Op{Kind: OpReward, Line: lineNo, RewardExpr: expr}, nil
}

// tokenStream is a tiny cursor over one line's tokens. XDL's expression
// grammar has exactly two precedence levels (comparison below '+'), so a
// hand-rolled recursive descent needs no precedence table.
type tokenStream struct {
	toks []token
	pos  int
	line int
}

func (p *tokenStream) peek() token {
	return p.toks[p.pos]
}

func (p *tokenStream) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *tokenStream) expect(k tokenKind) error {
	t := p.next()
	if t.kind != k {
		return parseErrorf(p.line, "unexpected token %q", t.text)
	}
	return nil
}

func (p *tokenStream) expectIdent() (string, error) {
	t := p.next()
	if t.kind != tokIdent {
		return "", parseErrorf(p.line, "expected identifier, got %q", t.text)
	}
	return t.text, nil
}

// parsePredicate parses an ensure() body: an expression, optionally
// followed by a comparison operator and a second expression.
func (p *tokenStream) parsePredicate() (Expr, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var op CompareOp
	switch p.peek().kind {
	case tokGE:
		op = CompareGE
	case tokLE:
		op = CompareLE
	case tokEqEq:
		op = CompareEQ
	default:
		return left, nil
	}
	p.next()
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return Compare{Left: left, Right: right, Op: op}, nil
}

// parseExpr parses '+'-concatenated terms, left-associative.
func (p *tokenStream) parseExpr() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPlus {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = Concat{Left: left, Right: right}
	}
	return left, nil
}

func (p *tokenStream) parseTerm() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return StringLit{Value: t.text}, nil
	case tokNumber:
		p.next()
		return StringLit{Value: t.text}, nil
	case tokIdent:
		name := t.text
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseCall(name)
		}
		return Ident{Name: name}, nil
	default:
		return nil, parseErrorf(p.line, "unexpected token %q", t.text)
	}
}

// parseCall parses a call's argument list, which is either
// comma-separated (story(), remove_common_words(a,b)) or a single
// pipe-separated pair (xed(text|context)).
func (p *tokenStream) parseCall(name string) (Expr, error) {
	if err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	if p.peek().kind == tokRParen {
		p.next()
		return Call{Name: name}, nil
	}
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	call := Call{Name: name, Args: []Expr{first}}
	for {
		switch p.peek().kind {
		case tokComma:
			p.next()
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			continue
		case tokPipe:
			p.next()
			ctx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Context = ctx
			continue
		}
		break
	}
	if err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return call, nil
}
