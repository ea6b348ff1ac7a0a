package filter

import "strings"

// PlanKind classifies a query plan by the key constraints that could be
// extracted from the filter.
type PlanKind int

const (
	// PointQuery has equality constraints on both PartitionKey and RowKey.
	PointQuery PlanKind = iota

	// RangeQuery has PartitionKey equality plus at least one RowKey bound.
	RangeQuery

	// PartitionScan has PartitionKey equality only.
	PartitionScan

	// TableScan has no extractable key constraints.
	TableScan
)

func (k PlanKind) String() string {
	switch k {
	case PointQuery:
		return "PointQuery"
	case RangeQuery:
		return "RangeQuery"
	case PartitionScan:
		return "PartitionScan"
	default:
		return "TableScan"
	}
}

// KeyBound is an extracted range constraint on RowKey.
type KeyBound struct {
	Op    Kind // GT, GE, LT, LE
	Value any
}

// Plan is the outcome of optimizing a filter: the extracted key
// constraints, the residual filter with those constraints removed, and an
// estimated cost.
type Plan struct {
	Kind PlanKind

	// PartitionKey and RowKey hold the extracted equality values; nil when
	// not extracted.
	PartitionKey any
	RowKey       any

	// RowKeyBounds holds extracted range constraints for RangeQuery plans.
	RowKeyBounds []KeyBound

	// Residual is the filter that must still run against candidate rows.
	// Nil means the key lookup alone answers the query.
	Residual Node

	Cost float64
}

const (
	costPoint         = 1.0
	costRangeBase     = 15.0
	costPartitionBase = 10.0
	costTableBase     = 100.0
)

// Optimize classifies the filter into a plan shape by pattern-matching
// equality and range constraints on the distinguished PartitionKey/RowKey
// properties. Constraints are removed from the residual only when the
// planned lookup has already applied them; anything under an or/not stays
// in the residual and forces a TableScan.
func Optimize(node Node) *Plan {
	if node == nil {
		return &Plan{Kind: TableScan, Cost: costTableBase}
	}

	conjuncts := splitConjuncts(node)

	var (
		partitionKey any
		rowKey       any
		rowKeyBounds []KeyBound
		residual     []Node
		havePK       bool
		haveRK       bool
	)

	for _, c := range conjuncts {
		name, op, value, ok := keyConstraint(c)
		if !ok {
			residual = append(residual, c)
			continue
		}
		switch {
		case strings.EqualFold(name, "PartitionKey") && op == EQ && !havePK:
			partitionKey = value
			havePK = true
		case strings.EqualFold(name, "RowKey") && op == EQ && !haveRK:
			rowKey = value
			haveRK = true
		case strings.EqualFold(name, "RowKey") && (op == GT || op == GE || op == LT || op == LE):
			rowKeyBounds = append(rowKeyBounds, KeyBound{Op: op, Value: value})
		default:
			residual = append(residual, c)
		}
	}

	plan := &Plan{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		RowKeyBounds: rowKeyBounds,
		Residual:     joinConjuncts(residual),
	}

	switch {
	case havePK && haveRK:
		plan.Kind = PointQuery
		plan.Cost = costPoint
	case havePK && len(rowKeyBounds) > 0:
		plan.Kind = RangeQuery
		plan.Cost = costRangeBase + Complexity(plan.Residual)
	case havePK:
		plan.Kind = PartitionScan
		plan.Cost = costPartitionBase + Complexity(plan.Residual)
	default:
		// Without PartitionKey equality nothing was applied by a lookup;
		// the whole filter is residual and no keys are extracted.
		plan.Kind = TableScan
		plan.PartitionKey = nil
		plan.RowKey = nil
		plan.RowKeyBounds = nil
		plan.Residual = node
		plan.Cost = costTableBase + Complexity(node)
	}

	return plan
}

// Complexity estimates filter evaluation cost: 0.1 per comparison, 0.05
// per unary operator, 0.2 per function call, recursively.
func Complexity(node Node) float64 {
	if node == nil {
		return 0
	}
	total := 0.0
	Walk(node, func(n Node) bool {
		switch t := n.(type) {
		case *Binary:
			switch t.Op {
			case EQ, NE, GT, GE, LT, LE:
				total += 0.1
			}
		case *Unary:
			total += 0.05
		case *Call:
			total += 0.2
		}
		return true
	})
	return total
}

// splitConjuncts flattens a tree of top-level ANDs into its conjuncts.
// Or/not subtrees are kept whole so their key references are never
// extracted.
func splitConjuncts(node Node) []Node {
	if b, ok := node.(*Binary); ok && b.Op == AND {
		return append(splitConjuncts(b.Left), splitConjuncts(b.Right)...)
	}
	return []Node{node}
}

// joinConjuncts folds conjuncts back into a left-leaning AND tree.
func joinConjuncts(conjuncts []Node) Node {
	if len(conjuncts) == 0 {
		return nil
	}
	result := conjuncts[0]
	for _, c := range conjuncts[1:] {
		result = &Binary{Op: AND, Left: result, Right: c, Position: result.Pos()}
	}
	return result
}

// keyConstraint recognizes `Property <cmp> Literal` (either operand
// order) and returns the property name, comparison with the property on
// the left, and the literal value.
func keyConstraint(node Node) (name string, op Kind, value any, ok bool) {
	b, isBinary := node.(*Binary)
	if !isBinary {
		return "", 0, nil, false
	}
	switch b.Op {
	case EQ, GT, GE, LT, LE:
	default:
		return "", 0, nil, false
	}

	if prop, okL := b.Left.(*Property); okL {
		if lit, okR := b.Right.(*Literal); okR {
			return prop.Name, b.Op, lit.Value, true
		}
	}
	if lit, okL := b.Left.(*Literal); okL {
		if prop, okR := b.Right.(*Property); okR {
			return prop.Name, flipComparison(b.Op), lit.Value, true
		}
	}
	return "", 0, nil, false
}

func flipComparison(op Kind) Kind {
	switch op {
	case GT:
		return LT
	case GE:
		return LE
	case LT:
		return GT
	case LE:
		return GE
	default:
		return op
	}
}
