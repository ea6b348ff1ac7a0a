package filter

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// EdmType is an OData v3 (EDM) primitive type.
type EdmType int

const (
	// EdmUnknown marks expressions whose type cannot be determined
	// statically, such as property accesses.
	EdmUnknown EdmType = iota
	EdmNull
	EdmString
	EdmInt32
	EdmInt64
	EdmDouble
	EdmBoolean
	EdmDateTime
	EdmGuid
	EdmBinary
)

// String returns the EDM type name.
func (t EdmType) String() string {
	switch t {
	case EdmNull:
		return "Null"
	case EdmString:
		return "Edm.String"
	case EdmInt32:
		return "Edm.Int32"
	case EdmInt64:
		return "Edm.Int64"
	case EdmDouble:
		return "Edm.Double"
	case EdmBoolean:
		return "Edm.Boolean"
	case EdmDateTime:
		return "Edm.DateTime"
	case EdmGuid:
		return "Edm.Guid"
	case EdmBinary:
		return "Edm.Binary"
	default:
		return "Unknown"
	}
}

// ParseEdmType resolves an EDM type name as used by isof/cast. Short names
// without the Edm. prefix are accepted, case-insensitively.
func ParseEdmType(name string) (EdmType, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(name, "Edm."), "edm.")) {
	case "string":
		return EdmString, true
	case "int32":
		return EdmInt32, true
	case "int64":
		return EdmInt64, true
	case "double":
		return EdmDouble, true
	case "boolean", "bool":
		return EdmBoolean, true
	case "datetime":
		return EdmDateTime, true
	case "guid":
		return EdmGuid, true
	case "binary":
		return EdmBinary, true
	case "null":
		return EdmNull, true
	default:
		return EdmUnknown, false
	}
}

// TypeOf classifies a runtime value into its EDM type.
func TypeOf(v any) EdmType {
	switch v.(type) {
	case nil:
		return EdmNull
	case string:
		return EdmString
	case int32:
		return EdmInt32
	case int, int64:
		return EdmInt64
	case float32, float64:
		return EdmDouble
	case bool:
		return EdmBoolean
	case time.Time:
		return EdmDateTime
	case uuid.UUID:
		return EdmGuid
	case []byte:
		return EdmBinary
	default:
		return EdmUnknown
	}
}

// IsNumeric reports whether the type participates in numeric promotion
// (Int32 ⊆ Int64 ⊆ Double).
func (t EdmType) IsNumeric() bool {
	return t == EdmInt32 || t == EdmInt64 || t == EdmDouble
}

// IsOrdered reports whether values of the type support gt/ge/lt/le.
func (t EdmType) IsOrdered() bool {
	return t.IsNumeric() || t == EdmDateTime
}

// Promote returns the common numeric type for arithmetic between a and b.
func Promote(a, b EdmType) EdmType {
	if a == EdmDouble || b == EdmDouble {
		return EdmDouble
	}
	if a == EdmInt64 || b == EdmInt64 {
		return EdmInt64
	}
	return EdmInt32
}

// CheckTypes statically validates the AST against the EDM typing rules,
// to the extent types are known before evaluation. Property accesses type
// as Unknown and are checked dynamically by the evaluator.
//
// Returns the inferred type of the root expression.
func CheckTypes(node Node) (EdmType, error) {
	if node == nil {
		return EdmBoolean, nil
	}
	return checkNode(node)
}

func checkNode(node Node) (EdmType, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Type, nil

	case *Property:
		return EdmUnknown, nil

	case *Unary:
		operand, err := checkNode(n.Operand)
		if err != nil {
			return EdmUnknown, err
		}
		if n.Op == NOT {
			if operand != EdmBoolean && operand != EdmNull && operand != EdmUnknown {
				return EdmUnknown, typeMismatch("Edm.Boolean", operand, n.Operand.Pos())
			}
			return EdmBoolean, nil
		}
		// unary minus
		if operand != EdmUnknown && !operand.IsNumeric() {
			return EdmUnknown, typeMismatch("numeric", operand, n.Operand.Pos())
		}
		if operand == EdmUnknown {
			return EdmUnknown, nil
		}
		return operand, nil

	case *Binary:
		left, err := checkNode(n.Left)
		if err != nil {
			return EdmUnknown, err
		}
		right, err := checkNode(n.Right)
		if err != nil {
			return EdmUnknown, err
		}
		return checkBinary(n, left, right)

	case *Call:
		return checkCall(n)

	default:
		return EdmUnknown, sberr.New(sberr.CodeInvalidQueryParameterValue,
			"unsupported expression node %T", node)
	}
}

func checkBinary(n *Binary, left, right EdmType) (EdmType, error) {
	switch n.Op {
	case AND, OR:
		if left != EdmBoolean && left != EdmNull && left != EdmUnknown {
			return EdmUnknown, typeMismatch("Edm.Boolean", left, n.Left.Pos())
		}
		if right != EdmBoolean && right != EdmNull && right != EdmUnknown {
			return EdmUnknown, typeMismatch("Edm.Boolean", right, n.Right.Pos())
		}
		return EdmBoolean, nil

	case EQ, NE:
		// Same-type equality is always allowed; null compares to anything;
		// numeric promotion covers mixed numeric comparisons.
		if !equalityComparable(left, right) {
			return EdmUnknown, typeMismatch(left.String(), right, n.Right.Pos())
		}
		return EdmBoolean, nil

	case GT, GE, LT, LE:
		if left == EdmNull || right == EdmNull {
			return EdmUnknown, sberr.NewTypeMismatch("an ordered type", "Null",
				n.Position.Line, n.Position.Column)
		}
		if left != EdmUnknown && !left.IsOrdered() {
			return EdmUnknown, typeMismatch("an ordered type", left, n.Left.Pos())
		}
		if right != EdmUnknown && !right.IsOrdered() {
			return EdmUnknown, typeMismatch("an ordered type", right, n.Right.Pos())
		}
		if left != EdmUnknown && right != EdmUnknown && !orderingCompatible(left, right) {
			return EdmUnknown, typeMismatch(left.String(), right, n.Right.Pos())
		}
		return EdmBoolean, nil

	case ADD, SUB, MUL, DIV, MOD:
		if left == EdmNull || right == EdmNull {
			return EdmNull, nil
		}
		if left != EdmUnknown && !left.IsNumeric() {
			return EdmUnknown, typeMismatch("numeric", left, n.Left.Pos())
		}
		if right != EdmUnknown && !right.IsNumeric() {
			return EdmUnknown, typeMismatch("numeric", right, n.Right.Pos())
		}
		if left == EdmUnknown || right == EdmUnknown {
			return EdmUnknown, nil
		}
		return Promote(left, right), nil

	default:
		return EdmUnknown, sberr.New(sberr.CodeInvalidQueryParameterValue,
			"unsupported operator %s", n.Op)
	}
}

func checkCall(n *Call) (EdmType, error) {
	for _, a := range n.Args {
		if _, err := checkNode(a); err != nil {
			return EdmUnknown, err
		}
	}
	fn, ok := defaultRegistry.Lookup(n.Name)
	if !ok {
		return EdmUnknown, sberr.NewUnknownFunction(n.Name, suggestFunction(n.Name))
	}
	return fn.ReturnType, nil
}

func equalityComparable(a, b EdmType) bool {
	if a == EdmUnknown || b == EdmUnknown || a == EdmNull || b == EdmNull {
		return true
	}
	if a == b {
		return true
	}
	return a.IsNumeric() && b.IsNumeric()
}

func orderingCompatible(a, b EdmType) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a == b
}

func typeMismatch(expected string, actual EdmType, pos Position) *sberr.Error {
	return sberr.NewTypeMismatch(expected, actual.String(), pos.Line, pos.Column)
}
