package filter

import (
	"testing"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	node, err := Parse("   ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if node != nil {
		t.Fatal("empty input should yield a nil AST (match everything)")
	}
}

func TestParse_Precedence(t *testing.T) {
	t.Parallel()

	// or binds loosest: (a eq 1 and b eq 2) or c eq 3
	node := MustParse("a eq 1 and b eq 2 or c eq 3")
	root, ok := node.(*Binary)
	if !ok || root.Op != OR {
		t.Fatalf("root = %v, want or", node)
	}
	left, ok := root.Left.(*Binary)
	if !ok || left.Op != AND {
		t.Fatalf("left = %v, want and", root.Left)
	}
}

func TestParse_ArithmeticPrecedence(t *testing.T) {
	t.Parallel()

	// mul binds tighter than add: a add (b mul c)
	node := MustParse("a add b mul c eq 7")
	cmp := node.(*Binary)
	if cmp.Op != EQ {
		t.Fatalf("root op = %v, want eq", cmp.Op)
	}
	sum := cmp.Left.(*Binary)
	if sum.Op != ADD {
		t.Fatalf("left op = %v, want add", sum.Op)
	}
	if prod, ok := sum.Right.(*Binary); !ok || prod.Op != MUL {
		t.Fatalf("add right = %v, want mul", sum.Right)
	}
}

func TestParse_LeftAssociative(t *testing.T) {
	t.Parallel()

	// a sub b sub c parses as (a sub b) sub c
	node := MustParse("a sub b sub c eq 0")
	cmp := node.(*Binary)
	outer := cmp.Left.(*Binary)
	if outer.Op != SUB {
		t.Fatalf("op = %v, want sub", outer.Op)
	}
	if inner, ok := outer.Left.(*Binary); !ok || inner.Op != SUB {
		t.Fatalf("left = %v, want nested sub", outer.Left)
	}
}

func TestParse_Parentheses(t *testing.T) {
	t.Parallel()

	node := MustParse("a eq 1 and (b eq 2 or c eq 3)")
	root := node.(*Binary)
	if root.Op != AND {
		t.Fatalf("root = %v, want and", root.Op)
	}
	if right, ok := root.Right.(*Binary); !ok || right.Op != OR {
		t.Fatalf("right = %v, want or", root.Right)
	}
}

func TestParse_UnaryNot(t *testing.T) {
	t.Parallel()

	node := MustParse("not (a eq 1)")
	u, ok := node.(*Unary)
	if !ok || u.Op != NOT {
		t.Fatalf("node = %v, want not", node)
	}
}

func TestParse_FunctionCall(t *testing.T) {
	t.Parallel()

	node := MustParse("startswith(label, 'ord')")
	call, ok := node.(*Call)
	if !ok {
		t.Fatalf("node = %T, want *Call", node)
	}
	if call.Name != "startswith" || len(call.Args) != 2 {
		t.Fatalf("call = %v", call)
	}
}

func TestParse_SubstringArity(t *testing.T) {
	t.Parallel()

	if _, err := Parse("substring(label, 1)"); err != nil {
		t.Fatalf("substring/2 should parse: %v", err)
	}
	if _, err := Parse("substring(label, 1, 2)"); err != nil {
		t.Fatalf("substring/3 should parse: %v", err)
	}
	if _, err := Parse("substring(label)"); err == nil {
		t.Fatal("substring/1 should be rejected")
	}
	if _, err := Parse("substring(label, 1, 2, 3)"); err == nil {
		t.Fatal("substring/4 should be rejected")
	}
}

func TestParse_UnknownFunctionViaIdent(t *testing.T) {
	t.Parallel()

	// "startwith" is not reserved, so it lexes as an identifier and the
	// parser rejects the stray parenthesis.
	if _, err := Parse("startwith(label, 'x')"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParse_TrailingGarbage(t *testing.T) {
	t.Parallel()

	_, err := Parse("a eq 1 b")
	if sberr.CodeOf(err) != sberr.CodeInvalidQueryParameterValue {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestParse_StringRoundTrip(t *testing.T) {
	t.Parallel()

	// The canonical form must itself be parseable to an identical form.
	sources := []string{
		"priority eq 'high'",
		"a add b mul c ge 10 and not (flag eq true)",
		"substringof('x', label) or length(label) gt 3",
	}
	for _, src := range sources {
		first := MustParse(src).String()
		second := MustParse(first).String()
		if first != second {
			t.Errorf("canonical form not stable for %q: %q != %q", src, first, second)
		}
	}
}
