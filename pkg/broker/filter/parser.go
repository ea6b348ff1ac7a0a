package filter

import (
	"strings"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Parser builds the filter AST by recursive descent. Precedence, high to
// low: unary (not, -), multiplicative (mul div mod), additive (add sub),
// comparison (eq ne gt ge lt le), and, or. Comparison and additive
// operators are left-associative.
type Parser struct {
	lexer *Lexer
	tok   Token // one-token lookahead
}

// Parse parses a filter expression. Empty (or all-whitespace) input yields
// a nil AST, which means "match everything".
func Parse(input string) (Node, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	p := &Parser{lexer: NewLexer(input)}
	if err := p.next(); err != nil {
		return nil, err
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != EOF {
		return nil, p.unexpected("end of expression")
	}
	return node, nil
}

// MustParse parses input and panics on error. For tests and static rules.
func MustParse(input string) Node {
	node, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return node
}

func (p *Parser) next() error {
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) unexpected(expected string) error {
	got := p.tok.Kind.String()
	if p.tok.Kind == IDENT || p.tok.Kind.IsLiteral() {
		got = "'" + p.tok.Literal + "'"
	}
	return sberr.NewSyntaxError("unexpected "+got+", expected "+expected,
		p.tok.Pos.Line, p.tok.Pos.Column, "")
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == OR {
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OR, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == AND {
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: AND, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == EQ || p.tok.Kind == NE || p.tok.Kind == GT ||
		p.tok.Kind == GE || p.tok.Kind == LT || p.tok.Kind == LE {
		op := p.tok.Kind
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == ADD || p.tok.Kind == SUB {
		op := p.tok.Kind
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.Kind == MUL || p.tok.Kind == DIV || p.tok.Kind == MOD {
		op := p.tok.Kind
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right, Position: pos}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Node, error) {
	switch p.tok.Kind {
	case NOT:
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: NOT, Operand: operand, Position: pos}, nil

	case MINUS:
		pos := p.tok.Pos
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: MINUS, Operand: operand, Position: pos}, nil

	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.tok

	switch tok.Kind {
	case LPAREN:
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.Kind != RPAREN {
			return nil, p.unexpected("')'")
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return inner, nil

	case STRING, INTEGER, FLOAT, BOOLEAN, NULL, DATETIME, GUID:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &Literal{Value: tok.Value, Type: literalType(tok.Kind), Position: tok.Pos}, nil

	case IDENT:
		if err := p.next(); err != nil {
			return nil, err
		}
		return &Property{Name: tok.Literal, Position: tok.Pos}, nil

	case FUNCTION:
		return p.parseCall(tok)

	default:
		return nil, p.unexpected("a literal, property, or function")
	}
}

// parseCall parses a function invocation. The argument list is a
// parenthesized tuple; arity is validated against the function registry.
func (p *Parser) parseCall(name Token) (Node, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok.Kind != LPAREN {
		return nil, p.unexpected("'(' after function name")
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	var args []Node
	if p.tok.Kind != RPAREN {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.Kind != COMMA {
				break
			}
			if err := p.next(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.Kind != RPAREN {
		return nil, p.unexpected("')'")
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	fn, ok := defaultRegistry.Lookup(name.Literal)
	if !ok {
		return nil, sberr.NewUnknownFunction(name.Literal, suggestFunction(name.Literal))
	}
	if len(args) < fn.MinArgs || len(args) > fn.MaxArgs {
		return nil, sberr.NewSyntaxError(
			"wrong number of arguments to "+name.Literal,
			name.Pos.Line, name.Pos.Column,
			fn.ArityHint())
	}

	return &Call{Name: name.Literal, Args: args, Position: name.Pos}, nil
}

func literalType(kind Kind) EdmType {
	switch kind {
	case STRING:
		return EdmString
	case INTEGER:
		return EdmInt64
	case FLOAT:
		return EdmDouble
	case BOOLEAN:
		return EdmBoolean
	case NULL:
		return EdmNull
	case DATETIME:
		return EdmDateTime
	case GUID:
		return EdmGuid
	default:
		return EdmUnknown
	}
}
