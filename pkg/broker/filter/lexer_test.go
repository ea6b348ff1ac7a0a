package filter

import (
	"testing"
	"time"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

func TestTokenize_Basic(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("priority eq 'high'")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}

	kinds := []Kind{IDENT, EQ, STRING, EOF}
	if len(toks) != len(kinds) {
		t.Fatalf("expected %d tokens, got %d", len(kinds), len(toks))
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
	if toks[2].Value != "high" {
		t.Errorf("string value = %v, want high", toks[2].Value)
	}
}

func TestTokenize_EscapedQuote(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("'it''s'")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Value != "it's" {
		t.Fatalf("value = %q, want %q", toks[0].Value, "it's")
	}
}

func TestTokenize_UnterminatedString(t *testing.T) {
	t.Parallel()

	_, err := Tokenize("label eq 'oops")
	if sberr.CodeOf(err) != sberr.CodeInvalidQueryParameterValue {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestTokenize_Numbers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		kind  Kind
		value any
	}{
		{"42", INTEGER, int64(42)},
		{"-7", INTEGER, int64(-7)},
		{"+3", INTEGER, int64(3)},
		{"3.14", FLOAT, 3.14},
		{"1e3", FLOAT, 1000.0},
		{"-2.5E-1", FLOAT, -0.25},
	}
	for _, tc := range cases {
		toks, err := Tokenize(tc.input)
		if err != nil {
			t.Fatalf("Tokenize(%q) failed: %v", tc.input, err)
		}
		if toks[0].Kind != tc.kind {
			t.Errorf("Tokenize(%q): kind = %v, want %v", tc.input, toks[0].Kind, tc.kind)
		}
		if toks[0].Value != tc.value {
			t.Errorf("Tokenize(%q): value = %v, want %v", tc.input, toks[0].Value, tc.value)
		}
	}
}

func TestTokenize_KeywordsCaseInsensitive(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("a EQ 1 AND b Ne 2 Or NOT c")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	want := []Kind{IDENT, EQ, INTEGER, AND, IDENT, NE, INTEGER, OR, NOT, IDENT, EOF}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %v, want %v", i, toks[i].Kind, k)
		}
	}
}

func TestTokenize_IdentifierPreservesCase(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("MyProperty")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Literal != "MyProperty" {
		t.Fatalf("identifier literal = %q, want MyProperty", toks[0].Literal)
	}
}

func TestTokenize_DateTime(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("datetime'2024-06-01T12:30:00Z'")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Kind != DATETIME {
		t.Fatalf("kind = %v, want DATETIME", toks[0].Kind)
	}
	want := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	if !toks[0].Value.(time.Time).Equal(want) {
		t.Fatalf("value = %v, want %v", toks[0].Value, want)
	}
}

func TestTokenize_DateTimeTooShort(t *testing.T) {
	t.Parallel()

	if _, err := Tokenize("datetime'2024'"); err == nil {
		t.Fatal("expected error for short datetime literal")
	}
}

func TestTokenize_Guid(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("guid'0f8fad5b-d9cb-469f-a165-70867728950e'")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[0].Kind != GUID {
		t.Fatalf("kind = %v, want GUID", toks[0].Kind)
	}
}

func TestTokenize_GuidMalformed(t *testing.T) {
	t.Parallel()

	if _, err := Tokenize("guid'not-a-guid'"); err == nil {
		t.Fatal("expected error for malformed guid")
	}
}

func TestTokenize_StrayEquals(t *testing.T) {
	t.Parallel()

	_, err := Tokenize("priority === 'high'")
	e, ok := sberr.AsError(err)
	if !ok {
		t.Fatalf("expected taxonomy error, got %v", err)
	}
	if e.Code != sberr.CodeInvalidQueryParameterValue {
		t.Fatalf("code = %v, want InvalidQueryParameterValue", e.Code)
	}
	pos := e.Details["position"].(map[string]any)
	if pos["column"] != 10 {
		t.Fatalf("position.column = %v, want 10", pos["column"])
	}
	if e.Details["suggestion"] == "" {
		t.Fatal("expected an 'eq' suggestion")
	}
}

func TestTokenize_Positions(t *testing.T) {
	t.Parallel()

	toks, err := Tokenize("a eq\nb")
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if toks[2].Pos.Line != 2 || toks[2].Pos.Column != 1 {
		t.Fatalf("token position = %v, want 2:1", toks[2].Pos)
	}
}
