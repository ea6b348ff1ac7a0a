package filter

import (
	"math"
	"testing"
)

func TestOptimize_PointQuery(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("PartitionKey eq 'p1' and RowKey eq 'r1'"))
	if plan.Kind != PointQuery {
		t.Fatalf("kind = %v, want PointQuery", plan.Kind)
	}
	if plan.PartitionKey != "p1" || plan.RowKey != "r1" {
		t.Fatalf("keys = %v/%v", plan.PartitionKey, plan.RowKey)
	}
	if plan.Cost != 1.0 {
		t.Fatalf("cost = %v, want 1.0", plan.Cost)
	}
	if plan.Residual != nil {
		t.Fatalf("residual = %v, want nil", plan.Residual)
	}
}

func TestOptimize_PointQueryWithExtraPredicate(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("PartitionKey eq 'p1' and RowKey eq 'r1' and size gt 10"))
	if plan.Kind != PointQuery {
		t.Fatalf("kind = %v, want PointQuery", plan.Kind)
	}
	if plan.Residual == nil {
		t.Fatal("extra predicate should remain in the residual")
	}
	if plan.Residual.String() != "(size gt 10)" {
		t.Fatalf("residual = %q", plan.Residual.String())
	}
}

func TestOptimize_RangeQuery(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("PartitionKey eq 'p1' and RowKey ge 'a' and RowKey lt 'z'"))
	if plan.Kind != RangeQuery {
		t.Fatalf("kind = %v, want RangeQuery", plan.Kind)
	}
	if len(plan.RowKeyBounds) != 2 {
		t.Fatalf("bounds = %v, want 2", plan.RowKeyBounds)
	}
	if plan.Cost != costRangeBase {
		t.Fatalf("cost = %v, want %v (no residual)", plan.Cost, costRangeBase)
	}
}

func TestOptimize_PartitionScan(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("PartitionKey eq 'p1' and size gt 10"))
	if plan.Kind != PartitionScan {
		t.Fatalf("kind = %v, want PartitionScan", plan.Kind)
	}
	wantCost := costPartitionBase + 0.1 // one residual comparison
	if math.Abs(plan.Cost-wantCost) > 1e-9 {
		t.Fatalf("cost = %v, want %v", plan.Cost, wantCost)
	}
}

func TestOptimize_TableScan(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("size gt 10"))
	if plan.Kind != TableScan {
		t.Fatalf("kind = %v, want TableScan", plan.Kind)
	}
}

func TestOptimize_RowKeyOnlyIsTableScan(t *testing.T) {
	t.Parallel()

	// RowKey equality without PartitionKey cannot drive a lookup; the
	// plan must not advertise an extracted key it will not apply.
	plan := Optimize(MustParse("RowKey eq 'r1' and size gt 10"))
	if plan.Kind != TableScan {
		t.Fatalf("kind = %v, want TableScan", plan.Kind)
	}
	if plan.PartitionKey != nil || plan.RowKey != nil || plan.RowKeyBounds != nil {
		t.Fatalf("extracted keys = %v/%v/%v, want none",
			plan.PartitionKey, plan.RowKey, plan.RowKeyBounds)
	}
	if plan.Residual == nil || plan.Residual.String() != "((RowKey eq 'r1') and (size gt 10))" {
		t.Fatalf("residual = %v, want the whole filter", plan.Residual)
	}
}

func TestOptimize_OrForcesTableScan(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("PartitionKey eq 'p1' or RowKey eq 'r1'"))
	if plan.Kind != TableScan {
		t.Fatalf("kind = %v, want TableScan (or at the key path)", plan.Kind)
	}
	if plan.Residual == nil {
		t.Fatal("whole filter must remain residual for a TableScan")
	}
}

func TestOptimize_NotForcesTableScan(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("not (PartitionKey eq 'p1')"))
	if plan.Kind != TableScan {
		t.Fatalf("kind = %v, want TableScan (not at the key path)", plan.Kind)
	}
}

func TestOptimize_ReversedOperands(t *testing.T) {
	t.Parallel()

	plan := Optimize(MustParse("'p1' eq PartitionKey and 'a' lt RowKey"))
	if plan.Kind != RangeQuery {
		t.Fatalf("kind = %v, want RangeQuery", plan.Kind)
	}
	if plan.RowKeyBounds[0].Op != GT {
		t.Fatalf("flipped bound op = %v, want gt", plan.RowKeyBounds[0].Op)
	}
}

func TestComplexity(t *testing.T) {
	t.Parallel()

	// two comparisons + one function call + one unary
	node := MustParse("not (a eq 1) and startswith(b, 'x') and c gt 2")
	got := Complexity(node)
	want := 0.1 + 0.1 + 0.2 + 0.05
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Complexity = %v, want %v", got, want)
	}
}

func TestPlanCache_HitAndBound(t *testing.T) {
	t.Parallel()

	cache := NewPlanCache(2)
	a := MustParse("PartitionKey eq 'p1'")
	b := MustParse("size gt 10")

	p1 := cache.Get(a, nil)
	p2 := cache.Get(a, nil)
	if p1 != p2 {
		t.Fatal("identical filter should hit the cache")
	}

	// Different projected columns yield distinct cache entries.
	p3 := cache.Get(a, []string{"size"})
	if p3 == p1 {
		t.Fatal("different column projection must not share a plan entry")
	}

	cache.Get(b, nil)
	if cache.Len() > 2 {
		t.Fatalf("cache exceeded its bound: %d", cache.Len())
	}
}
