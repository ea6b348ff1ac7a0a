package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Node is an immutable filter AST node. Every node carries its source
// position for error reporting. String renders a canonical form used for
// plan-cache keys.
type Node interface {
	Pos() Position
	String() string
}

// Literal is a constant value with its EDM type.
type Literal struct {
	Value    any
	Type     EdmType
	Position Position
}

func (n *Literal) Pos() Position { return n.Position }

func (n *Literal) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case time.Time:
		return "datetime'" + v.UTC().Format(time.RFC3339Nano) + "'"
	case uuid.UUID:
		return "guid'" + v.String() + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Property is an access of a named message property.
type Property struct {
	Name     string
	Position Position
}

func (n *Property) Pos() Position  { return n.Position }
func (n *Property) String() string { return n.Name }

// Unary is a prefix operator application (not, unary minus).
type Unary struct {
	Op       Kind
	Operand  Node
	Position Position
}

func (n *Unary) Pos() Position { return n.Position }

func (n *Unary) String() string {
	if n.Op == MINUS {
		return "-(" + n.Operand.String() + ")"
	}
	return n.Op.String() + " (" + n.Operand.String() + ")"
}

// Binary is an infix operator application.
type Binary struct {
	Op       Kind
	Left     Node
	Right    Node
	Position Position
}

func (n *Binary) Pos() Position { return n.Position }

func (n *Binary) String() string {
	return "(" + n.Left.String() + " " + n.Op.String() + " " + n.Right.String() + ")"
}

// Call is a function invocation with a fixed argument tuple.
type Call struct {
	Name     string // lowercase
	Args     []Node
	Position Position
}

func (n *Call) Pos() Position { return n.Position }

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// Walk calls fn for node and every descendant, depth-first. Walking stops
// early when fn returns false.
func Walk(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *Unary:
		Walk(n.Operand, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}
