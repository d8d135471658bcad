package lexical

import (
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/nihei9/urartu/spec"
)

// run simulates a DFA over the UTF-16 encoding of input and reports the
// token accepted at the end of input.
func run(dfa *DFA, input string) (TermID, bool) {
	units := utf16.Encode([]rune(input))
	st := dfa.States[0]
	for _, u := range units {
		next := -1
		for _, e := range st.Edges {
			if u >= e.Lo && u <= e.Hi {
				next = e.Target
				break
			}
		}
		if next < 0 {
			return 0, false
		}
		st = dfa.States[next]
	}
	if len(st.Accepts) == 0 {
		return 0, false
	}
	return st.Accepts[0], true
}

func lit(v string) *spec.LiteralExpr {
	return &spec.LiteralExpr{Value: v}
}

func name(n string, args ...spec.Expression) *spec.NameExpr {
	return &spec.NameExpr{Name: n, Args: args}
}

func seq(exprs ...spec.Expression) *spec.SeqExpr {
	return &spec.SeqExpr{
		Exprs:   exprs,
		Markers: make([][]spec.ConflictMarker, len(exprs)+1),
	}
}

func rep(e spec.Expression, kind spec.RepeatKind) *spec.RepeatExpr {
	return &spec.RepeatExpr{Expr: e, Kind: kind}
}

func set(inverted bool, ranges ...[2]rune) *spec.SetExpr {
	return &spec.SetExpr{Ranges: ranges, Inverted: inverted}
}

func buildSet(t *testing.T, add func(b *Builder) error) *Set {
	t.Helper()
	b := NewBuilder(nil)
	err := add(b)
	if err != nil {
		t.Fatal(err)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBuildDFA_Literal(t *testing.T) {
	s := buildSet(t, func(b *Builder) error {
		return b.AddToken(1, "if", lit("if"), spec.Position{})
	})
	dfa, err := s.BuildDFA([]TermID{1})
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := run(dfa, "if"); !ok || id != 1 {
		t.Fatalf("want accept of token 1 on %q", "if")
	}
	if _, ok := run(dfa, "i"); ok {
		t.Fatalf("%q must not be accepted", "i")
	}
	if _, ok := run(dfa, "ifx"); ok {
		t.Fatalf("%q must not be accepted", "ifx")
	}
}

func TestBuildDFA_RepeatAndClass(t *testing.T) {
	// id = asciiLetter (asciiLetter | digit)*
	expr := seq(
		&spec.NameExpr{Namespace: "std", Name: "asciiLetter"},
		rep(&spec.ChoiceExpr{Exprs: []spec.Expression{
			&spec.NameExpr{Namespace: "std", Name: "asciiLetter"},
			&spec.NameExpr{Namespace: "std", Name: "digit"},
		}}, spec.RepeatZeroOrMore),
	)
	s := buildSet(t, func(b *Builder) error {
		return b.AddToken(3, "id", expr, spec.Position{})
	})
	dfa, err := s.BuildDFA([]TermID{3})
	if err != nil {
		t.Fatal(err)
	}
	for _, input := range []string{"a", "a1", "Zz9"} {
		if id, ok := run(dfa, input); !ok || id != 3 {
			t.Fatalf("want accept of %q", input)
		}
	}
	for _, input := range []string{"", "1a", "_"} {
		if _, ok := run(dfa, input); ok {
			t.Fatalf("%q must not be accepted", input)
		}
	}
}

func TestBuildDFA_AstralSet(t *testing.T) {
	// Everything above ASCII, including astral code points lowered to
	// surrogate pairs.
	s := buildSet(t, func(b *Builder) error {
		return b.AddToken(7, "nonAscii", set(true, [2]rune{0x0000, 0x007f}), spec.Position{})
	})
	dfa, err := s.BuildDFA([]TermID{7})
	if err != nil {
		t.Fatal(err)
	}
	for _, input := range []string{"é", "€", "\U00010400", "\U0010FFFF"} {
		if id, ok := run(dfa, input); !ok || id != 7 {
			t.Fatalf("want accept of %q", input)
		}
	}
	for _, input := range []string{"a", "\x7f"} {
		if _, ok := run(dfa, input); ok {
			t.Fatalf("%q must not be accepted", input)
		}
	}
}

func TestAddToken_ZeroLength(t *testing.T) {
	b := NewBuilder(nil)
	err := b.AddToken(1, "maybe", rep(lit("a"), spec.RepeatZeroOrMore), spec.Position{})
	if err == nil || !strings.Contains(err.Error(), "may match the empty string") {
		t.Fatalf("want a zero-length token error, got %v", err)
	}
}

func TestAddToken_TailRecursion(t *testing.T) {
	b := NewBuilder(nil)
	err := b.AddRules([]*spec.RuleDecl{
		{Name: "rest", Expr: &spec.ChoiceExpr{Exprs: []spec.Expression{
			seq(lit("a"), name("rest")),
			lit("b"),
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = b.AddToken(1, "chain", name("rest"), spec.Position{})
	if err != nil {
		t.Fatal(err)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	dfa, err := s.BuildDFA([]TermID{1})
	if err != nil {
		t.Fatal(err)
	}
	for _, input := range []string{"b", "ab", "aaab"} {
		if id, ok := run(dfa, input); !ok || id != 1 {
			t.Fatalf("want accept of %q", input)
		}
	}
	if _, ok := run(dfa, "a"); ok {
		t.Fatalf("%q must not be accepted", "a")
	}
}

func TestAddToken_NonTailRecursion(t *testing.T) {
	b := NewBuilder(nil)
	err := b.AddRules([]*spec.RuleDecl{
		{Name: "wrap", Expr: &spec.ChoiceExpr{Exprs: []spec.Expression{
			seq(lit("("), name("wrap"), lit(")")),
			lit("x"),
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = b.AddToken(1, "nested", name("wrap"), spec.Position{})
	if err == nil || !strings.Contains(err.Error(), "non-tail recursion") {
		t.Fatalf("want a non-tail recursion error, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "wrap -> wrap") {
		t.Fatalf("the error must name the recursion chain, got %v", err)
	}
}

func TestBuild_CyclicPrecedence(t *testing.T) {
	b := NewBuilder(nil)
	if err := b.AddToken(1, "a", lit("a"), spec.Position{}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddToken(2, "b", lit("b"), spec.Position{}); err != nil {
		t.Fatal(err)
	}
	b.AddPrecedence(1, 2)
	b.AddPrecedence(2, 1)
	_, err := b.Build()
	if err == nil || !strings.Contains(err.Error(), "cyclic token precedence") {
		t.Fatalf("want a cyclic precedence error, got %v", err)
	}
}

func TestBuild_Conflicts(t *testing.T) {
	s := buildSet(t, func(b *Builder) error {
		err := b.AddToken(1, "kw", lit("if"), spec.Position{})
		if err != nil {
			return err
		}
		return b.AddToken(2, "id", rep(&spec.NameExpr{Namespace: "std", Name: "asciiLetter"}, spec.RepeatOneOrMore), spec.Position{})
	})
	if !s.Conflicting(1, 2) || !s.Conflicting(2, 1) {
		t.Fatalf("kw and id overlap on %q and must conflict", "if")
	}
	if _, err := s.BuildDFA([]TermID{1, 2}); err == nil {
		t.Fatalf("a context holding both conflicting tokens must be rejected")
	}
}

func TestBuild_PrecedenceResolvesConflict(t *testing.T) {
	b := NewBuilder(nil)
	if err := b.AddToken(1, "kw", lit("if"), spec.Position{}); err != nil {
		t.Fatal(err)
	}
	if err := b.AddToken(2, "id", rep(&spec.NameExpr{Namespace: "std", Name: "asciiLetter"}, spec.RepeatOneOrMore), spec.Position{}); err != nil {
		t.Fatal(err)
	}
	b.AddPrecedence(1, 2)
	s, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if s.Conflicting(1, 2) {
		t.Fatalf("ordered tokens must not conflict")
	}
	dfa, err := s.BuildDFA([]TermID{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := run(dfa, "if"); !ok || id != 1 {
		t.Fatalf("the keyword must win on %q, got %v", "if", id)
	}
	if id, ok := run(dfa, "iffy"); !ok || id != 2 {
		t.Fatalf("want the identifier on %q, got %v", "iffy", id)
	}
}

func TestLiteralDFA(t *testing.T) {
	dfa := LiteralDFA("}", 9)
	if id, ok := run(dfa, "}"); !ok || id != 9 {
		t.Fatalf("want accept of %q", "}")
	}
	for _, input := range []string{"", "{", "}}"} {
		if _, ok := run(dfa, input); ok {
			t.Fatalf("%q must not be accepted", input)
		}
	}
}
