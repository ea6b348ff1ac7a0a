package entity

import (
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/filter"
	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// DefaultRuleName is the rule created with every subscription. Its filter
// matches every message until the client replaces or deletes it.
const DefaultRuleName = "$Default"

// FilterKind tags the filter variant a rule carries.
type FilterKind int

const (
	FilterTrue FilterKind = iota
	FilterSQL
	FilterCorrelation
)

// Rule is a named filter on a subscription. For SQL rules the expression
// text is compiled once at rule creation; evaluation reuses the AST.
type Rule struct {
	Name        string
	Kind        FilterKind
	Expression  string
	AST         filter.Node
	Correlation *filter.CorrelationFilter
	Action      string
	CreatedAt   time.Time
}

// NewTrueRule builds a rule that matches every message.
func NewTrueRule(name string) *Rule {
	return &Rule{Name: name, Kind: FilterTrue}
}

// NewSQLRule compiles expr and builds a SQL-filter rule. Compilation and
// static type errors surface at rule creation, not at evaluation.
func NewSQLRule(name, expr string) (*Rule, error) {
	node, err := filter.Parse(expr)
	if err != nil {
		return nil, err
	}
	if _, err := filter.CheckTypes(node); err != nil {
		return nil, err
	}
	return &Rule{Name: name, Kind: FilterSQL, Expression: expr, AST: node}, nil
}

// NewCorrelationRule builds a correlation-filter rule. An empty filter is
// rejected because it would match nothing, which is never what a client
// means.
func NewCorrelationRule(name string, f *filter.CorrelationFilter) (*Rule, error) {
	if f == nil || f.IsEmpty() {
		return nil, sberr.NewInvalidOperation("create rule", "correlation filter must constrain at least one field")
	}
	return &Rule{Name: name, Kind: FilterCorrelation, Correlation: f}, nil
}

// Matches evaluates the rule against a message's property maps. SQL rules
// use a fresh evaluator per call since evaluators are single-use.
func (r *Rule) Matches(system, user map[string]any) (bool, error) {
	switch r.Kind {
	case FilterTrue:
		return true, nil
	case FilterCorrelation:
		return r.Correlation.Matches(system, user), nil
	case FilterSQL:
		props := make(map[string]any, len(system)+len(user))
		for k, v := range system {
			props[k] = v
		}
		for k, v := range user {
			props[k] = v
		}
		return filter.NewEvaluator().Matches(r.AST, props)
	default:
		return false, nil
	}
}
