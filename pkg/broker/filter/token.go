package filter

import "fmt"

// Kind classifies a lexical token in a filter expression.
type Kind int

const (
	ILLEGAL Kind = iota
	EOF

	literalBeg
	STRING   // 'text' (single-quoted, '' escapes a quote)
	INTEGER  // 42, -7
	FLOAT    // 3.14, 1e10, -2.5E-3
	BOOLEAN  // true, false
	NULL     // null
	DATETIME // datetime'2024-01-02T03:04:05Z'
	GUID     // guid'xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx'
	literalEnd

	IDENT    // property name, case preserved
	FUNCTION // reserved function name, case-insensitive

	operatorBeg
	AND // and
	OR  // or
	NOT // not
	EQ  // eq
	NE  // ne
	GT  // gt
	GE  // ge
	LT  // lt
	LE  // le
	ADD // add
	SUB // sub
	MUL // mul
	DIV // div
	MOD // mod
	MINUS // unary -
	operatorEnd

	LPAREN // (
	RPAREN // )
	COMMA  // ,
)

var kindNames = map[Kind]string{
	ILLEGAL:  "ILLEGAL",
	EOF:      "EOF",
	STRING:   "STRING",
	INTEGER:  "INTEGER",
	FLOAT:    "FLOAT",
	BOOLEAN:  "BOOLEAN",
	NULL:     "NULL",
	DATETIME: "DATETIME",
	GUID:     "GUID",
	IDENT:    "IDENT",
	FUNCTION: "FUNCTION",
	AND:      "and",
	OR:       "or",
	NOT:      "not",
	EQ:       "eq",
	NE:       "ne",
	GT:       "gt",
	GE:       "ge",
	LT:       "lt",
	LE:       "le",
	ADD:      "add",
	SUB:      "sub",
	MUL:      "mul",
	DIV:      "div",
	MOD:      "mod",
	MINUS:    "-",
	LPAREN:   "(",
	RPAREN:   ")",
	COMMA:    ",",
}

// String returns a human-readable name for the token kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsLiteral reports whether the kind is a literal value.
func (k Kind) IsLiteral() bool { return k > literalBeg && k < literalEnd }

// IsOperator reports whether the kind is a word operator.
func (k Kind) IsOperator() bool { return k > operatorBeg && k < operatorEnd }

// keywords maps lowercase reserved words to their token kinds.
// Keyword detection is case-insensitive; identifiers preserve case.
var keywords = map[string]Kind{
	"and": AND,
	"or":  OR,
	"not": NOT,
	"eq":  EQ,
	"ne":  NE,
	"gt":  GT,
	"ge":  GE,
	"lt":  LT,
	"le":  LE,
	"add": ADD,
	"sub": SUB,
	"mul": MUL,
	"div": DIV,
	"mod": MOD,
}

// functionNames is the case-insensitive reserved function set.
var functionNames = map[string]bool{
	"startswith":  true,
	"endswith":    true,
	"contains":    true,
	"substringof": true,
	"tolower":     true,
	"toupper":     true,
	"trim":        true,
	"concat":      true,
	"substring":   true,
	"length":      true,
	"indexof":     true,
	"replace":     true,
	"year":        true,
	"month":       true,
	"day":         true,
	"hour":        true,
	"minute":      true,
	"second":      true,
	"round":       true,
	"floor":       true,
	"ceiling":     true,
	"isof":        true,
	"cast":        true,
}

// Position locates a token in the source expression. Offset is the byte
// offset; Line and Column are 1-based.
type Position struct {
	Offset int
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is a lexical token with its source position. Value holds the
// decoded literal value for literal kinds (string, int64, float64, bool,
// time.Time, uuid.UUID, or nil).
type Token struct {
	Kind    Kind
	Literal string
	Value   any
	Pos     Position
}

func (t Token) String() string {
	if t.Kind.IsLiteral() || t.Kind == IDENT || t.Kind == FUNCTION {
		return fmt.Sprintf("%s(%s)", t.Kind, t.Literal)
	}
	return t.Kind.String()
}
