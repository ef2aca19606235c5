// Package expr implements the formula language: identifiers, numeric
// literals, + - * / ( ), unary minus and a closed set of functions.
//
// Evaluation never executes text. A formula goes through three steps:
//
//  1. ExpandCalls replaces each function call with a numeric literal.
//  2. Substitute replaces each identifier with a numeric literal.
//  3. Evaluate checks the result holds only [0-9+\-*/().\s], parses it with
//     a recursive-descent parser and interprets the tree.
//
// Nested function calls are not supported and fail to parse.
package expr

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

func (k tokenKind) String() string {
	switch k {
	case tokNumber:
		return "number"
	case tokIdent:
		return "identifier"
	case tokPlus:
		return "'+'"
	case tokMinus:
		return "'-'"
	case tokStar:
		return "'*'"
	case tokSlash:
		return "'/'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokEOF:
		return "end of input"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	// optional is set for identifiers written with a trailing '?'.
	optional bool
	pos      int
}

// lexMode selects the character set accepted by the lexer.
type lexMode int

const (
	// modeFormula accepts identifiers, '?' suffixes and commas.
	modeFormula lexMode = iota
	// modeArithmetic accepts only digits, '.', operators, parentheses and
	// whitespace.
	modeArithmetic
)

// maxFormulaLen bounds the input a single formula may carry.
const maxFormulaLen = 4096

func lex(src string, mode lexMode) ([]token, error) {
	if len(src) > maxFormulaLen {
		return nil, fmt.Errorf("%w: formula longer than %d bytes", ErrUnsafe, maxFormulaLen)
	}
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || c == '.':
			start := i
			dots := 0
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				if src[i] == '.' {
					dots++
				}
				i++
			}
			text := src[start:i]
			if dots > 1 || text == "." {
				return nil, fmt.Errorf("%w: malformed number %q at %d", ErrSyntax, text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, pos: start})
		case mode == modeFormula && isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tok := token{kind: tokIdent, text: src[start:i], pos: start}
			if i < len(src) && src[i] == '?' {
				tok.optional = true
				i++
			}
			toks = append(toks, tok)
		case c == '+':
			toks = append(toks, token{kind: tokPlus, text: "+", pos: i})
			i++
		case c == '-':
			toks = append(toks, token{kind: tokMinus, text: "-", pos: i})
			i++
		case c == '*':
			toks = append(toks, token{kind: tokStar, text: "*", pos: i})
			i++
		case c == '/':
			toks = append(toks, token{kind: tokSlash, text: "/", pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case mode == modeFormula && c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		default:
			return nil, fmt.Errorf("%w: character %q at %d", ErrUnsafe, unsafeRune(src[i:]), i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// checkArithmeticCharset fails closed on anything outside [0-9+\-*/().\s].
func checkArithmeticCharset(text string) error {
	for i, r := range text {
		if strings.ContainsRune("0123456789+-*/(). \t\n\r", r) {
			continue
		}
		return fmt.Errorf("%w: character %q at %d", ErrUnsafe, r, i)
	}
	return nil
}

func unsafeRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
