// Package route selects a pipeline branch by evaluating an ordered list
// of named boolean conditions against a string-keyed context.
//
// Conditions are written in a small closed predicate grammar rather than
// a general expression language: comparisons between a declared context
// key and a literal, boolean combinators, and membership over a literal
// list. Predicates are compiled once at flow construction; compilation
// rejects unknown keys and malformed expressions.
package route

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrUnknownKey is returned when a predicate references a context
	// key that was not declared at compile time or is absent at
	// evaluation time.
	ErrUnknownKey = errors.New("unknown context key")

	// ErrTypeMismatch is returned when a comparison is applied to
	// incompatible operand types.
	ErrTypeMismatch = errors.New("type mismatch")
)

// CompileError reports a malformed predicate source.
type CompileError struct {
	Source string
	Pos    int
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q at offset %d: %s", e.Source, e.Pos, e.Reason)
}

// Predicate is a compiled boolean condition over a context mapping.
type Predicate struct {
	source string
	root   node
}

// Source returns the original predicate text.
func (p *Predicate) Source() string { return p.source }

// Eval evaluates the predicate against the given context.
// A reference to a key missing from the context fails with ErrUnknownKey;
// callers recover this into the synthetic "error" route.
func (p *Predicate) Eval(ctx map[string]any) (bool, error) {
	return p.root.eval(ctx)
}

// Compile parses source into a Predicate. keys declares the context keys
// the predicate may reference; any other identifier is a compile error.
func Compile(source string, keys []string) (*Predicate, error) {
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	pr := &parser{lex: lexer{src: source}, known: known}
	pr.next()
	root, err := pr.parseOr()
	if err != nil {
		return nil, err
	}
	if pr.tok.kind != tokEOF {
		return nil, pr.errf("unexpected %q", pr.tok.text)
	}
	return &Predicate{source: source, root: root}, nil
}

// MustCompile is like Compile but panics on error. It is intended for
// predicates fixed at program construction.
func MustCompile(source string, keys []string) *Predicate {
	p, err := Compile(source, keys)
	if err != nil {
		panic(err)
	}
	return p
}

// ---- AST ----

type node interface {
	eval(ctx map[string]any) (bool, error)
}

type binaryNode struct {
	op          string // "&&" or "||"
	left, right node
}

func (n *binaryNode) eval(ctx map[string]any) (bool, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return false, err
	}
	// Short-circuit the way the operators read.
	if n.op == "&&" && !l {
		return false, nil
	}
	if n.op == "||" && l {
		return true, nil
	}
	return n.right.eval(ctx)
}

type notNode struct {
	inner node
}

func (n *notNode) eval(ctx map[string]any) (bool, error) {
	v, err := n.inner.eval(ctx)
	if err != nil {
		return false, err
	}
	return !v, nil
}

type compareNode struct {
	key string
	op  string // == != < <= > >=
	lit literal
}

func (n *compareNode) eval(ctx map[string]any) (bool, error) {
	v, ok := ctx[n.key]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKey, n.key)
	}
	switch n.op {
	case "==", "!=":
		eq, err := literalEquals(n.lit, v)
		if err != nil {
			return false, fmt.Errorf("%s %s: %w", n.key, n.op, err)
		}
		if n.op == "!=" {
			return !eq, nil
		}
		return eq, nil
	default:
		return compareOrdered(n.key, n.op, n.lit, v)
	}
}

type memberNode struct {
	key  string
	set  []literal
}

func (n *memberNode) eval(ctx map[string]any) (bool, error) {
	v, ok := ctx[n.key]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownKey, n.key)
	}
	for _, lit := range n.set {
		eq, err := literalEquals(lit, v)
		if err != nil {
			return false, fmt.Errorf("%s in: %w", n.key, err)
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// ---- literals ----

type litKind int

const (
	litString litKind = iota
	litNumber
	litBool
)

type literal struct {
	kind litKind
	s    string
	n    float64
	b    bool
}

func literalEquals(lit literal, v any) (bool, error) {
	switch lit.kind {
	case litString:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("%w: string literal against %T", ErrTypeMismatch, v)
		}
		return s == lit.s, nil
	case litBool:
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("%w: bool literal against %T", ErrTypeMismatch, v)
		}
		return b == lit.b, nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return false, fmt.Errorf("%w: number literal against %T", ErrTypeMismatch, v)
		}
		return f == lit.n, nil
	}
}

func compareOrdered(key, op string, lit literal, v any) (bool, error) {
	if lit.kind != litNumber {
		return false, fmt.Errorf("%s %s: %w: ordered comparison requires a number", key, op, ErrTypeMismatch)
	}
	f, ok := toFloat(v)
	if !ok {
		return false, fmt.Errorf("%s %s: %w: context value is %T", key, op, ErrTypeMismatch, v)
	}
	switch op {
	case "<":
		return f < lit.n, nil
	case "<=":
		return f <= lit.n, nil
	case ">":
		return f > lit.n, nil
	default:
		return f >= lit.n, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// ---- lexer ----

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokString
	tokNumber
	tokBool
	tokOp     // comparison operators
	tokAnd    // &&
	tokOr     // ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokLBrack // [
	tokRBrack // ]
	tokComma  // ,
	tokIn     // in
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) scan() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '[':
		l.pos++
		return token{kind: tokLBrack, text: "[", pos: start}, nil
	case c == ']':
		l.pos++
		return token{kind: tokRBrack, text: "]", pos: start}, nil
	case c == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case c == '&':
		if !strings.HasPrefix(l.src[l.pos:], "&&") {
			return token{}, fmt.Errorf("expected && at offset %d", start)
		}
		l.pos += 2
		return token{kind: tokAnd, text: "&&", pos: start}, nil
	case c == '|':
		if !strings.HasPrefix(l.src[l.pos:], "||") {
			return token{}, fmt.Errorf("expected || at offset %d", start)
		}
		l.pos += 2
		return token{kind: tokOr, text: "||", pos: start}, nil
	case c == '=':
		if !strings.HasPrefix(l.src[l.pos:], "==") {
			return token{}, fmt.Errorf("expected == at offset %d", start)
		}
		l.pos += 2
		return token{kind: tokOp, text: "==", pos: start}, nil
	case c == '!':
		if strings.HasPrefix(l.src[l.pos:], "!=") {
			l.pos += 2
			return token{kind: tokOp, text: "!=", pos: start}, nil
		}
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case c == '<' || c == '>':
		op := string(c)
		l.pos++
		if l.pos < len(l.src) && l.src[l.pos] == '=' {
			op += "="
			l.pos++
		}
		return token{kind: tokOp, text: op, pos: start}, nil
	case c == '\'' || c == '"':
		quote := c
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string at offset %d", start)
		}
		text := l.src[start+1 : l.pos]
		l.pos++
		return token{kind: tokString, text: text, pos: start}, nil
	case c == '-' || (c >= '0' && c <= '9'):
		l.pos++
		for l.pos < len(l.src) && (l.src[l.pos] == '.' || (l.src[l.pos] >= '0' && l.src[l.pos] <= '9')) {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
	case unicode.IsLetter(rune(c)) || c == '_':
		for l.pos < len(l.src) && (unicode.IsLetter(rune(l.src[l.pos])) || unicode.IsDigit(rune(l.src[l.pos])) || l.src[l.pos] == '_') {
			l.pos++
		}
		word := l.src[start:l.pos]
		switch word {
		case "true", "false":
			return token{kind: tokBool, text: word, pos: start}, nil
		case "in":
			return token{kind: tokIn, text: word, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
}

// ---- parser ----

type parser struct {
	lex   lexer
	tok   token
	known map[string]bool
	err   error
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	tok, err := p.lex.scan()
	if err != nil {
		p.err = err
		p.tok = token{kind: tokEOF}
		return
	}
	p.tok = tok
}

func (p *parser) errf(format string, args ...any) error {
	if p.err != nil {
		return &CompileError{Source: p.lex.src, Pos: p.tok.pos, Reason: p.err.Error()}
	}
	return &CompileError{Source: p.lex.src, Pos: p.tok.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "||", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "&&", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.err != nil {
		return nil, p.errf("scan error")
	}
	switch p.tok.kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errf("expected )")
		}
		p.next()
		return inner, nil
	case tokIdent:
		return p.parseComparison()
	}
	return nil, p.errf("expected condition, got %q", p.tok.text)
}

func (p *parser) parseComparison() (node, error) {
	key := p.tok.text
	if !p.known[key] {
		return nil, p.errf("%s: not a declared context key", key)
	}
	p.next()
	switch p.tok.kind {
	case tokOp:
		op := p.tok.text
		p.next()
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &compareNode{key: key, op: op, lit: lit}, nil
	case tokIn:
		p.next()
		if p.tok.kind != tokLBrack {
			return nil, p.errf("expected [ after in")
		}
		p.next()
		var set []literal
		for {
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			set = append(set, lit)
			if p.tok.kind == tokComma {
				p.next()
				continue
			}
			break
		}
		if p.tok.kind != tokRBrack {
			return nil, p.errf("expected ] to close membership list")
		}
		p.next()
		return &memberNode{key: key, set: set}, nil
	}
	return nil, p.errf("expected comparison operator after %q", key)
}

func (p *parser) parseLiteral() (literal, error) {
	switch p.tok.kind {
	case tokString:
		lit := literal{kind: litString, s: p.tok.text}
		p.next()
		return lit, nil
	case tokBool:
		lit := literal{kind: litBool, b: p.tok.text == "true"}
		p.next()
		return lit, nil
	case tokNumber:
		n, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return literal{}, p.errf("bad number %q", p.tok.text)
		}
		lit := literal{kind: litNumber, n: n}
		p.next()
		return lit, nil
	}
	return literal{}, p.errf("expected literal, got %q", p.tok.text)
}
