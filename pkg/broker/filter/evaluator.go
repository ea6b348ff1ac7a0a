package filter

import (
	"bytes"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Stats accumulates per-query evaluation counters.
type Stats struct {
	EntitiesScanned int64
	EntitiesMatched int64
	Elapsed         time.Duration
}

// Evaluator walks a filter AST against message property maps using
// three-valued logic. An Evaluator is NOT safe for concurrent use; create
// one per evaluation run. The function registry it references is shared.
type Evaluator struct {
	registry      *Registry
	caseSensitive bool // property lookup; default is case-insensitive
	deadline      time.Time
	start         time.Time
	stats         Stats
}

// EvalOption configures an Evaluator.
type EvalOption func(*Evaluator)

// WithRegistry overrides the function registry.
func WithRegistry(r *Registry) EvalOption {
	return func(e *Evaluator) { e.registry = r }
}

// WithCaseSensitiveProperties makes property lookup case-sensitive.
func WithCaseSensitiveProperties() EvalOption {
	return func(e *Evaluator) { e.caseSensitive = true }
}

// WithDeadline aborts evaluation with a QueryTimeout once the deadline
// passes mid-scan.
func WithDeadline(deadline time.Time) EvalOption {
	return func(e *Evaluator) { e.deadline = deadline }
}

// NewEvaluator creates an evaluator with the default shared registry.
func NewEvaluator(opts ...EvalOption) *Evaluator {
	e := &Evaluator{registry: defaultRegistry, start: time.Now()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the counters accumulated so far.
func (e *Evaluator) Stats() Stats {
	s := e.stats
	s.Elapsed = time.Since(e.start)
	return s
}

// Matches evaluates the filter against one property map. A nil AST matches
// everything. A null (unknown) result does not match.
func (e *Evaluator) Matches(node Node, props map[string]any) (bool, error) {
	e.stats.EntitiesScanned++

	if err := e.checkDeadline(); err != nil {
		return false, err
	}

	if node == nil {
		e.stats.EntitiesMatched++
		return true, nil
	}

	result, err := e.eval(node, props)
	if err != nil {
		return false, err
	}
	matched, _ := result.(bool)
	if matched {
		e.stats.EntitiesMatched++
	}
	return matched, nil
}

func (e *Evaluator) checkDeadline() error {
	if e.deadline.IsZero() {
		return nil
	}
	if now := time.Now(); now.After(e.deadline) {
		elapsed := now.Sub(e.start).Seconds()
		limit := e.deadline.Sub(e.start).Seconds()
		return sberr.NewQueryTimeout(elapsed, limit)
	}
	return nil
}

// eval returns the value of node: nil for Null, or one of string, int64,
// float64, bool, time.Time, uuid.UUID, []byte.
func (e *Evaluator) eval(node Node, props map[string]any) (any, error) {
	switch n := node.(type) {
	case *Literal:
		return normalize(n.Value), nil

	case *Property:
		return e.lookup(n.Name, props), nil

	case *Unary:
		return e.evalUnary(n, props)

	case *Binary:
		return e.evalBinary(n, props)

	case *Call:
		return e.evalCall(n, props)

	default:
		return nil, sberr.NewEvaluationError("unsupported expression node %T", node)
	}
}

// lookup resolves a property value; a missing property is Null.
func (e *Evaluator) lookup(name string, props map[string]any) any {
	if v, ok := props[name]; ok {
		return normalize(v)
	}
	if e.caseSensitive {
		return nil
	}
	for k, v := range props {
		if strings.EqualFold(k, name) {
			return normalize(v)
		}
	}
	return nil
}

func (e *Evaluator) evalUnary(n *Unary, props map[string]any) (any, error) {
	operand, err := e.eval(n.Operand, props)
	if err != nil {
		return nil, err
	}

	if n.Op == NOT {
		if operand == nil {
			return nil, nil // not null -> null
		}
		b, ok := operand.(bool)
		if !ok {
			return nil, sberr.NewEvaluationError("not requires a boolean operand, got %s", TypeOf(operand))
		}
		return !b, nil
	}

	// unary minus
	switch v := operand.(type) {
	case nil:
		return nil, nil
	case int64:
		return -v, nil
	case float64:
		return -v, nil
	default:
		return nil, sberr.NewEvaluationError("unary '-' requires a numeric operand, got %s", TypeOf(operand))
	}
}

func (e *Evaluator) evalBinary(n *Binary, props map[string]any) (any, error) {
	switch n.Op {
	case AND:
		return e.evalAnd(n, props)
	case OR:
		return e.evalOr(n, props)
	}

	left, err := e.eval(n.Left, props)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.Right, props)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case EQ:
		return valuesEqual(left, right), nil
	case NE:
		return !valuesEqual(left, right), nil
	case GT, GE, LT, LE:
		return compareOrdered(n.Op, left, right)
	case ADD, SUB, MUL, DIV, MOD:
		return arithmetic(n.Op, left, right)
	default:
		return nil, sberr.NewEvaluationError("unsupported operator %s", n.Op)
	}
}

// evalAnd implements three-valued AND: false dominates, null is sticky
// otherwise. Short-circuits when the left side is false.
func (e *Evaluator) evalAnd(n *Binary, props map[string]any) (any, error) {
	left, err := e.eval(n.Left, props)
	if err != nil {
		return nil, err
	}
	if b, ok := left.(bool); ok && !b {
		return false, nil
	}
	if left != nil {
		if _, ok := left.(bool); !ok {
			return nil, sberr.NewEvaluationError("and requires boolean operands, got %s", TypeOf(left))
		}
	}

	right, err := e.eval(n.Right, props)
	if err != nil {
		return nil, err
	}
	if b, ok := right.(bool); ok && !b {
		return false, nil
	}
	if right != nil {
		if _, ok := right.(bool); !ok {
			return nil, sberr.NewEvaluationError("and requires boolean operands, got %s", TypeOf(right))
		}
	}

	if left == nil || right == nil {
		return nil, nil
	}
	return true, nil
}

// evalOr implements three-valued OR: true dominates. Short-circuits when
// the left side is true.
func (e *Evaluator) evalOr(n *Binary, props map[string]any) (any, error) {
	left, err := e.eval(n.Left, props)
	if err != nil {
		return nil, err
	}
	if b, ok := left.(bool); ok && b {
		return true, nil
	}
	if left != nil {
		if _, ok := left.(bool); !ok {
			return nil, sberr.NewEvaluationError("or requires boolean operands, got %s", TypeOf(left))
		}
	}

	right, err := e.eval(n.Right, props)
	if err != nil {
		return nil, err
	}
	if b, ok := right.(bool); ok && b {
		return true, nil
	}
	if right != nil {
		if _, ok := right.(bool); !ok {
			return nil, sberr.NewEvaluationError("or requires boolean operands, got %s", TypeOf(right))
		}
	}

	if left == nil || right == nil {
		return nil, nil
	}
	return false, nil
}

func (e *Evaluator) evalCall(n *Call, props map[string]any) (any, error) {
	fn, ok := e.registry.Lookup(n.Name)
	if !ok {
		return nil, sberr.NewUnknownFunction(n.Name, suggestFunction(n.Name))
	}

	args := make([]any, len(n.Args))
	hasNull := false
	for i, argNode := range n.Args {
		v, err := e.eval(argNode, props)
		if err != nil {
			return nil, err
		}
		args[i] = v
		if v == nil {
			hasNull = true
		}
	}

	if hasNull && fn.PropagatesNull {
		return nil, nil
	}
	return fn.Apply(args)
}

// ============================================================================
// Value semantics
// ============================================================================

// normalize widens runtime values to the evaluator's canonical types:
// int64 for integers, float64 for floats.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// valuesEqual implements eq. Null is comparable to anything: null eq null
// is true, null eq x is false. String comparison is case-insensitive.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(as, bs)
		}
		return false
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}

	switch at := a.(type) {
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	case uuid.UUID:
		bt, ok := b.(uuid.UUID)
		return ok && at == bt
	case []byte:
		bt, ok := b.([]byte)
		return ok && bytes.Equal(at, bt)
	default:
		return false
	}
}

// compareOrdered implements gt/ge/lt/le over numeric and DateTime values.
// Ordering against null or a non-ordered type is an evaluation error.
func compareOrdered(op Kind, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, sberr.NewEvaluationError("cannot order against null; only eq and ne accept null")
	}

	var cmp int
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return nil, sberr.NewEvaluationError("cannot compare %s with %s", TypeOf(a), TypeOf(b))
		}
		cmp = at.Compare(bt)
	} else {
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if !aok || !bok {
			return nil, sberr.NewEvaluationError("cannot order %s and %s", TypeOf(a), TypeOf(b))
		}
		switch {
		case af < bf:
			cmp = -1
		case af > bf:
			cmp = 1
		default:
			cmp = 0
		}
	}

	switch op {
	case GT:
		return cmp > 0, nil
	case GE:
		return cmp >= 0, nil
	case LT:
		return cmp < 0, nil
	default:
		return cmp <= 0, nil
	}
}

// arithmetic implements add/sub/mul/div/mod with numeric promotion. Null
// propagates. Integer operands stay integral except under promotion.
func arithmetic(op Kind, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}

	ai, aIsInt := toInt(a)
	bi, bIsInt := toInt(b)
	if aIsInt && bIsInt {
		switch op {
		case ADD:
			return ai + bi, nil
		case SUB:
			return ai - bi, nil
		case MUL:
			return ai * bi, nil
		case DIV:
			if bi == 0 {
				return nil, sberr.NewEvaluationError("division by zero")
			}
			return ai / bi, nil
		case MOD:
			if bi == 0 {
				return nil, sberr.NewEvaluationError("modulo by zero")
			}
			return ai % bi, nil
		}
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return nil, sberr.NewEvaluationError("arithmetic requires numeric operands, got %s and %s",
			TypeOf(a), TypeOf(b))
	}
	switch op {
	case ADD:
		return af + bf, nil
	case SUB:
		return af - bf, nil
	case MUL:
		return af * bf, nil
	case DIV:
		if bf == 0 {
			return nil, sberr.NewEvaluationError("division by zero")
		}
		return af / bf, nil
	case MOD:
		if bf == 0 {
			return nil, sberr.NewEvaluationError("modulo by zero")
		}
		return math.Mod(af, bf), nil
	}
	return nil, sberr.NewEvaluationError("unsupported arithmetic operator %s", op)
}

func toInt(v any) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
