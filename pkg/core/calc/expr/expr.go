package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Identifier is a bare name in a formula. Optional is true only when every
// occurrence carries the '?' suffix.
type Identifier struct {
	Name     string
	Optional bool
}

// Formula is a parsed formula source.
type Formula struct {
	Source      string
	Identifiers []Identifier
	Calls       []Call

	tokens []token
}

// Analyze parses src in formula mode and lists its identifiers and calls
// in order of first appearance.
func Analyze(src string) (*Formula, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrSyntax)
	}
	toks, err := lex(src, modeFormula)
	if err != nil {
		return nil, err
	}
	p, _, err := parse(toks, modeFormula)
	if err != nil {
		return nil, err
	}

	f := &Formula{Source: src, Calls: p.calls, tokens: toks}
	index := make(map[string]int)
	for _, id := range p.idents {
		if i, ok := index[id.name]; ok {
			f.Identifiers[i].Optional = f.Identifiers[i].Optional && id.optional
			continue
		}
		index[id.name] = len(f.Identifiers)
		f.Identifiers = append(f.Identifiers, Identifier{Name: id.name, Optional: id.optional})
	}
	return f, nil
}

// Names returns every name the formula needs: identifiers followed by
// call arguments, without duplicates.
func (f *Formula) Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range f.Identifiers {
		if !seen[id.Name] {
			seen[id.Name] = true
			out = append(out, id.Name)
		}
	}
	for _, c := range f.Calls {
		if !seen[c.Arg] {
			seen[c.Arg] = true
			out = append(out, c.Arg)
		}
	}
	return out
}

// IsOptional reports whether name appears only as an optional identifier.
// Call arguments are always required.
func (f *Formula) IsOptional(name string) bool {
	for _, c := range f.Calls {
		if c.Arg == name {
			return false
		}
	}
	for _, id := range f.Identifiers {
		if id.Name == name {
			return id.Optional
		}
	}
	return false
}

// ExpandCalls replaces every call with the literal returned by expand and
// keeps the rest of the source text as written. expand receives calls in
// source order.
func (f *Formula) ExpandCalls(expand func(Call) (float64, error)) (string, error) {
	var b strings.Builder
	toks := f.tokens
	last, callIdx := 0, 0
	for i := 0; i < len(toks) && toks[i].kind != tokEOF; i++ {
		tok := toks[i]
		if tok.kind != tokIdent || toks[i+1].kind != tokLParen {
			continue
		}
		if callIdx >= len(f.Calls) {
			return "", fmt.Errorf("%w: call %q not analyzed", ErrSyntax, tok.text)
		}
		v, err := expand(f.Calls[callIdx])
		if err != nil {
			return "", err
		}
		lit, err := FormatNumber(v)
		if err != nil {
			return "", err
		}
		callIdx++
		// Calls never nest, so the first ')' closes this one.
		for toks[i].kind != tokRParen {
			i++
		}
		b.WriteString(f.Source[last:tok.pos])
		b.WriteString(lit)
		last = toks[i].pos + 1
	}
	b.WriteString(f.Source[last:])
	return b.String(), nil
}

// Substitute replaces identifiers in text with literals from lookup. The
// optional flag reflects a '?' suffix at that occurrence.
func Substitute(text string, lookup func(name string, optional bool) (float64, error)) (string, error) {
	toks, err := lex(text, modeFormula)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	last := 0
	for i, tok := range toks {
		if tok.kind != tokIdent {
			continue
		}
		if toks[i+1].kind == tokLParen {
			return "", fmt.Errorf("%w: unexpanded call %q", ErrUnsafe, tok.text)
		}
		if tok.pos > 0 && (isDigit(text[tok.pos-1]) || text[tok.pos-1] == '.') {
			return "", fmt.Errorf("%w: identifier %q joined to a number at %d", ErrSyntax, tok.text, tok.pos)
		}
		v, err := lookup(tok.text, tok.optional)
		if err != nil {
			return "", err
		}
		lit, err := FormatNumber(v)
		if err != nil {
			return "", err
		}
		end := tok.pos + len(tok.text)
		if tok.optional {
			end++
		}
		b.WriteString(text[last:tok.pos])
		b.WriteString(lit)
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

// Evaluate computes pure arithmetic text. Anything outside
// [0-9+\-*/().\s] is rejected before parsing.
func Evaluate(text string) (float64, error) {
	if err := checkArithmeticCharset(text); err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	toks, err := lex(text, modeArithmetic)
	if err != nil {
		return 0, err
	}
	_, root, err := parse(toks, modeArithmetic)
	if err != nil {
		return 0, err
	}
	return eval(root)
}

// FormatNumber renders v as a grammar literal. Negative values are wrapped
// in parentheses so "a - b" with b < 0 stays well formed.
func FormatNumber(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", ErrNonFinite
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + s + ")", nil
	}
	return s, nil
}
