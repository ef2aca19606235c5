package expr

import (
	"fmt"
	"math"
	"strconv"
)

// maxDepth bounds nesting of parentheses and unary operators.
const maxDepth = 64

// node is an AST node.
type node interface{}

type numberNode struct{ value float64 }

type identNode struct {
	name     string
	optional bool
}

type callNode struct{ call Call }

type negNode struct{ x node }

type binaryNode struct {
	op   tokenKind
	x, y node
}

type parser struct {
	toks  []token
	pos   int
	mode  lexMode
	depth int

	idents []identNode
	calls  []Call
}

func parse(toks []token, mode lexMode) (*parser, node, error) {
	p := &parser{toks: toks, mode: mode}
	root, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.kind, tok.pos)
	}
	return p, root, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, fmt.Errorf("%w: expected %s, found %s at %d", ErrSyntax, kind, tok.kind, tok.pos)
	}
	return tok, nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrSyntax, maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// expr := term (('+' | '-') term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokPlus && op != tokMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, x: left, y: right}
	}
}

// term := unary (('*' | '/') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.peek().kind
		if op != tokStar && op != tokSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, x: left, y: right}
	}
}

// unary := ('-' | '+') unary | primary
func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokMinus, tokPlus:
		op := p.next().kind
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if op == tokMinus {
			return negNode{x: x}, nil
		}
		return x, nil
	}
	return p.parsePrimary()
}

// primary := number | '(' expr ')' | ident | call
func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: number %q at %d", ErrSyntax, tok.text, tok.pos)
		}
		return numberNode{value: v}, nil

	case tokLParen:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil

	case tokIdent:
		if p.mode != modeFormula {
			return nil, fmt.Errorf("%w: identifier %q in arithmetic", ErrUnsafe, tok.text)
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		id := identNode{name: tok.text, optional: tok.optional}
		p.idents = append(p.idents, id)
		return id, nil
	}
	return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok.kind, tok.pos)
}

// call := func '(' ident [',' number] ')'
func (p *parser) parseCall(name token) (node, error) {
	kind, ok := LookupFunc(name.text)
	if !ok || name.optional {
		return nil, fmt.Errorf("%w: unknown function %q at %d", ErrUnsafe, name.text, name.pos)
	}
	p.next() // '('

	arg, err := p.expect(tokIdent)
	if err != nil {
		return nil, fmt.Errorf("%s() takes a concept name: %w", name.text, err)
	}
	if p.peek().kind == tokLParen {
		return nil, fmt.Errorf("%w: nested function calls are not supported (%s inside %s)", ErrSyntax, arg.text, name.text)
	}
	if arg.optional {
		return nil, fmt.Errorf("%w: optional marker not allowed in %s() argument", ErrSyntax, name.text)
	}

	c := Call{Kind: kind, Arg: arg.text}
	if p.peek().kind == tokComma {
		p.next()
		n, err := p.expect(tokNumber)
		if err != nil {
			return nil, err
		}
		c.N, err = strconv.ParseFloat(n.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: number %q at %d", ErrSyntax, n.text, n.pos)
		}
		c.HasN = true
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	p.calls = append(p.calls, c)
	return callNode{call: c}, nil
}

// eval interprets an arithmetic tree.
func eval(n node) (float64, error) {
	switch n := n.(type) {
	case numberNode:
		return n.value, nil
	case negNode:
		x, err := eval(n.x)
		if err != nil {
			return 0, err
		}
		return -x, nil
	case binaryNode:
		x, err := eval(n.x)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.y)
		if err != nil {
			return 0, err
		}
		var v float64
		switch n.op {
		case tokPlus:
			v = x + y
		case tokMinus:
			v = x - y
		case tokStar:
			v = x * y
		case tokSlash:
			if y == 0 {
				return 0, ErrDivisionByZero
			}
			v = x / y
		default:
			return 0, fmt.Errorf("%w: operator %s", ErrSyntax, n.op)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, ErrNonFinite
		}
		return v, nil
	case identNode:
		return 0, fmt.Errorf("%w: unsubstituted identifier %q", ErrUnsafe, n.name)
	case callNode:
		return 0, fmt.Errorf("%w: unexpanded call %s", ErrUnsafe, n.call.Kind)
	}
	return 0, fmt.Errorf("%w: unknown node %T", ErrSyntax, n)
}
