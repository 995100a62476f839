// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package selector

import (
	"github.com/sv-project/sv/lib/sverr"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokLParen
	tokRParen
	tokPipe
	tokAmp
	tokTilde
	tokEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokPipe:
		return "|"
	case tokAmp:
		return "&"
	case tokTilde:
		return "~"
	default:
		return "end of input"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse turns a selector expression into its tree. Errors report the
// byte offset of the offending token.
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tokEOF); err != nil {
		return nil, err
	}
	return expr, nil
}

func lex(input string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(input) {
		ch := input[pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++
		case ch == '(':
			tokens = append(tokens, token{kind: tokLParen, pos: pos})
			pos++
		case ch == ')':
			tokens = append(tokens, token{kind: tokRParen, pos: pos})
			pos++
		case ch == '|':
			tokens = append(tokens, token{kind: tokPipe, pos: pos})
			pos++
		case ch == '&':
			tokens = append(tokens, token{kind: tokAmp, pos: pos})
			pos++
		case ch == '~':
			tokens = append(tokens, token{kind: tokTilde, pos: pos})
			pos++
		case ch == '"':
			text, next, err := lexString(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, text: text, pos: pos})
			pos = next
		case isIdentStart(ch):
			start := pos
			pos++
			for pos < len(input) && isIdentContinue(input[pos]) {
				pos++
			}
			tokens = append(tokens, token{kind: tokIdent, text: input[start:pos], pos: start})
		default:
			return nil, sverr.Validationf("unexpected character %q at %d in selector", ch, pos)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(input)})
	return tokens, nil
}

func lexString(input string, start int) (string, int, error) {
	pos := start + 1
	var out []byte
	for pos < len(input) {
		ch := input[pos]
		switch ch {
		case '"':
			return string(out), pos + 1, nil
		case '\\':
			pos++
			if pos >= len(input) {
				return "", 0, sverr.Validationf("unterminated string literal at %d in selector", start)
			}
			switch input[pos] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			default:
				out = append(out, input[pos])
			}
			pos++
		default:
			out = append(out, ch)
			pos++
		}
	}
	return "", 0, sverr.Validationf("unterminated string literal at %d in selector", start)
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentContinue(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9' || ch == '-'
}

type parser struct {
	tokens []token
	index  int
}

func (p *parser) peek() token { return p.tokens[p.index] }

func (p *parser) next() token {
	tok := p.tokens[p.index]
	if p.index < len(p.tokens)-1 {
		p.index++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) error {
	tok := p.next()
	if tok.kind != kind {
		return sverr.Validationf("expected %s at %d in selector", kind, tok.pos)
	}
	return nil
}

// Binding order, loosest first: union, then intersection and
// difference at the same level, then atoms and parenthesized groups.
func (p *parser) parseExpr() (Expr, error) {
	return p.parseUnion()
}

func (p *parser) parseUnion() (Expr, error) {
	expr, err := p.parseIntersection()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokPipe {
		p.next()
		rhs, err := p.parseIntersection()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{Op: OpUnion, Left: expr, Right: rhs}
	}
	return expr, nil
}

func (p *parser) parseIntersection() (Expr, error) {
	expr, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokAmp:
			p.next()
			rhs, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: OpIntersect, Left: expr, Right: rhs}
		case tokTilde:
			p.next()
			rhs, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			expr = &BinaryExpr{Op: OpDifference, Left: expr, Right: rhs}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	switch p.peek().kind {
	case tokLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case tokIdent:
		return p.parseAtom()
	default:
		return nil, sverr.Validationf("expected selector term at %d", p.peek().pos)
	}
}

func (p *parser) parseAtom() (Expr, error) {
	ident := p.next()
	kind, isEntity := entityKind(ident.text)
	if isEntity && p.peek().kind == tokLParen {
		p.next()
		atom := &AtomExpr{Kind: kind}
		if p.peek().kind != tokRParen {
			pred, err := p.parsePredicate()
			if err != nil {
				return nil, err
			}
			atom.Predicate = pred
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return atom, nil
	}
	pred, err := p.predicateFromIdent(ident)
	if err != nil {
		return nil, err
	}
	return &AtomExpr{Predicate: pred}, nil
}

func (p *parser) parsePredicate() (*Predicate, error) {
	tok := p.next()
	if tok.kind != tokIdent {
		return nil, sverr.Validationf("expected identifier at %d in selector", tok.pos)
	}
	return p.predicateFromIdent(tok)
}

func (p *parser) predicateFromIdent(tok token) (*Predicate, error) {
	switch tok.text {
	case "active":
		return &Predicate{Kind: PredActive}, nil
	case "stale":
		return &Predicate{Kind: PredStale}, nil
	case "blocked":
		return &Predicate{Kind: PredBlocked}, nil
	case "name":
		if err := p.expect(tokTilde); err != nil {
			return nil, err
		}
		value, err := p.expectString()
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredName, Arg: value}, nil
	case "ahead":
		arg, err := p.parseCallArg()
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredAhead, Arg: arg}, nil
	case "touching":
		arg, err := p.parseCallArg()
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredTouching, Arg: arg}, nil
	case "overlaps":
		arg, err := p.parseCallArg()
		if err != nil {
			return nil, err
		}
		return &Predicate{Kind: PredOverlaps, Arg: arg}, nil
	default:
		return nil, sverr.Validationf("unknown predicate %q at %d in selector", tok.text, tok.pos)
	}
}

func (p *parser) parseCallArg() (string, error) {
	if err := p.expect(tokLParen); err != nil {
		return "", err
	}
	value, err := p.expectString()
	if err != nil {
		return "", err
	}
	if err := p.expect(tokRParen); err != nil {
		return "", err
	}
	return value, nil
}

func (p *parser) expectString() (string, error) {
	tok := p.next()
	if tok.kind != tokString {
		return "", sverr.Validationf("expected string literal at %d in selector", tok.pos)
	}
	return tok.text, nil
}

func entityKind(ident string) (EntityKind, bool) {
	switch ident {
	case "ws":
		return KindWorkspace, true
	case "lease":
		return KindLease, true
	case "branch":
		return KindBranch, true
	}
	return "", false
}
