package filter

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// datetime literal layouts accepted inside datetime'...'. The prefix form
// requires at least a full date; times may omit the zone.
var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Lexer scans a filter expression into a stream of tokens. It is a small
// DFA over the UTF-8 input; each token carries its byte offset and
// (line, column) position.
type Lexer struct {
	input string
	pos   int // byte offset of next rune
	line  int
	col   int // 1-based column of next rune
}

// NewLexer creates a lexer over the given expression source.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize scans the whole input, returning all tokens up to and including
// EOF. Used by tests and by callers that want eager validation.
func Tokenize(input string) ([]Token, error) {
	lx := NewLexer(input)
	var toks []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *Lexer) peekAt(offset int) rune {
	p := l.pos + offset
	if p >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[p:])
	return r
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r := l.peek()
		if r != ' ' && r != '\t' && r != '\r' && r != '\n' {
			return
		}
		l.advance()
	}
}

// Next returns the next token, or a syntax error carrying the position of
// the offending input.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	pos := l.position()
	r := l.peek()

	switch {
	case r == 0:
		return Token{Kind: EOF, Pos: pos}, nil

	case r == '(':
		l.advance()
		return Token{Kind: LPAREN, Literal: "(", Pos: pos}, nil

	case r == ')':
		l.advance()
		return Token{Kind: RPAREN, Literal: ")", Pos: pos}, nil

	case r == ',':
		l.advance()
		return Token{Kind: COMMA, Literal: ",", Pos: pos}, nil

	case r == '\'':
		return l.scanString(pos)

	case r >= '0' && r <= '9':
		return l.scanNumber(pos, "")

	case r == '-' || r == '+':
		// A sign directly followed by a digit is part of a numeric
		// literal; a bare '-' is the unary minus operator.
		if next := l.peekAt(1); next >= '0' && next <= '9' {
			sign := string(l.advance())
			return l.scanNumber(pos, sign)
		}
		if r == '-' {
			l.advance()
			return Token{Kind: MINUS, Literal: "-", Pos: pos}, nil
		}
		l.advance()
		return Token{}, sberr.NewSyntaxError("unexpected '+'", pos.Line, pos.Column,
			"a leading '+' is only valid on numeric literals")

	case r == '=':
		return Token{}, sberr.NewSyntaxError("unexpected '='", pos.Line, pos.Column,
			"use 'eq' for equality comparisons")

	case isIdentStart(r):
		return l.scanIdent(pos)

	default:
		l.advance()
		return Token{}, sberr.NewSyntaxError("unexpected character "+strconv.QuoteRune(r),
			pos.Line, pos.Column, "")
	}
}

// scanString scans a single-quoted string literal. A doubled quote ('')
// inside the literal is an escaped quote.
func (l *Lexer) scanString(pos Position) (Token, error) {
	l.advance() // opening quote

	var sb strings.Builder
	for {
		r := l.peek()
		if r == 0 {
			return Token{}, sberr.NewSyntaxError("unterminated string literal",
				pos.Line, pos.Column, "close the string with a single quote")
		}
		l.advance()
		if r == '\'' {
			if l.peek() == '\'' {
				l.advance()
				sb.WriteByte('\'')
				continue
			}
			break
		}
		sb.WriteRune(r)
	}

	return Token{Kind: STRING, Literal: sb.String(), Value: sb.String(), Pos: pos}, nil
}

// scanNumber scans an integer or float literal, including scientific form.
func (l *Lexer) scanNumber(pos Position, sign string) (Token, error) {
	var sb strings.Builder
	sb.WriteString(sign)

	isFloat := false
	for {
		r := l.peek()
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(l.advance())
		case r == '.':
			if isFloat {
				return Token{}, sberr.NewSyntaxError("malformed number", pos.Line, pos.Column, "")
			}
			isFloat = true
			sb.WriteRune(l.advance())
		case r == 'e' || r == 'E':
			isFloat = true
			sb.WriteRune(l.advance())
			if n := l.peek(); n == '+' || n == '-' {
				sb.WriteRune(l.advance())
			}
			if n := l.peek(); n < '0' || n > '9' {
				return Token{}, sberr.NewSyntaxError("malformed exponent", pos.Line, pos.Column,
					"an exponent must be followed by digits")
			}
		default:
			goto done
		}
	}
done:
	lit := sb.String()
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Token{}, sberr.NewSyntaxError("malformed number "+strconv.Quote(lit),
				pos.Line, pos.Column, "")
		}
		return Token{Kind: FLOAT, Literal: lit, Value: f, Pos: pos}, nil
	}
	i, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		// Out of int64 range; fall back to float like the reference engine.
		f, ferr := strconv.ParseFloat(lit, 64)
		if ferr != nil {
			return Token{}, sberr.NewSyntaxError("malformed number "+strconv.Quote(lit),
				pos.Line, pos.Column, "")
		}
		return Token{Kind: FLOAT, Literal: lit, Value: f, Pos: pos}, nil
	}
	return Token{Kind: INTEGER, Literal: lit, Value: i, Pos: pos}, nil
}

// scanIdent scans an identifier, keyword, boolean/null literal, function
// name, or a typed literal prefix (datetime'...', guid'...').
func (l *Lexer) scanIdent(pos Position) (Token, error) {
	var sb strings.Builder
	for isIdentPart(l.peek()) {
		sb.WriteRune(l.advance())
	}
	word := sb.String()
	lower := strings.ToLower(word)

	// Typed literal prefixes bind to an immediately following quote.
	if l.peek() == '\'' {
		switch lower {
		case "datetime":
			return l.scanDateTime(pos)
		case "guid":
			return l.scanGuid(pos)
		}
	}

	switch lower {
	case "true":
		return Token{Kind: BOOLEAN, Literal: word, Value: true, Pos: pos}, nil
	case "false":
		return Token{Kind: BOOLEAN, Literal: word, Value: false, Pos: pos}, nil
	case "null":
		return Token{Kind: NULL, Literal: word, Value: nil, Pos: pos}, nil
	}

	if kind, ok := keywords[lower]; ok {
		return Token{Kind: kind, Literal: word, Pos: pos}, nil
	}
	if functionNames[lower] {
		return Token{Kind: FUNCTION, Literal: lower, Pos: pos}, nil
	}

	return Token{Kind: IDENT, Literal: word, Pos: pos}, nil
}

// scanDateTime scans the quoted body of a datetime'...' literal. The body
// must be ISO-8601 with at least a full date (length >= 10).
func (l *Lexer) scanDateTime(pos Position) (Token, error) {
	body, err := l.scanString(l.position())
	if err != nil {
		return Token{}, err
	}
	raw := body.Literal
	if len(raw) < 10 {
		return Token{}, sberr.NewSyntaxError("invalid datetime literal "+strconv.Quote(raw),
			pos.Line, pos.Column, "use ISO-8601, e.g. datetime'2024-01-02T03:04:05Z'")
	}
	for _, layout := range datetimeLayouts {
		if ts, perr := time.Parse(layout, raw); perr == nil {
			return Token{Kind: DATETIME, Literal: raw, Value: ts.UTC(), Pos: pos}, nil
		}
	}
	return Token{}, sberr.NewSyntaxError("invalid datetime literal "+strconv.Quote(raw),
		pos.Line, pos.Column, "use ISO-8601, e.g. datetime'2024-01-02T03:04:05Z'")
}

// scanGuid scans the quoted body of a guid'...' literal: exactly 36
// characters with four hyphens.
func (l *Lexer) scanGuid(pos Position) (Token, error) {
	body, err := l.scanString(l.position())
	if err != nil {
		return Token{}, err
	}
	raw := body.Literal
	if len(raw) != 36 || strings.Count(raw, "-") != 4 {
		return Token{}, sberr.NewSyntaxError("invalid guid literal "+strconv.Quote(raw),
			pos.Line, pos.Column, "a guid is 36 characters with four hyphens")
	}
	id, perr := uuid.Parse(raw)
	if perr != nil {
		return Token{}, sberr.NewSyntaxError("invalid guid literal "+strconv.Quote(raw),
			pos.Line, pos.Column, "")
	}
	return Token{Kind: GUID, Literal: raw, Value: id, Pos: pos}, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
