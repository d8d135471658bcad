package grammar

import (
	"strings"
	"testing"

	"github.com/npillmayer/schuko/tracing/gotestingadapter"

	"github.com/nihei9/urartu/spec"
)

func compileSource(t *testing.T, src string) *CompiledGrammar {
	t.Helper()
	cg, err := tryCompile(src)
	if err != nil {
		t.Fatal(err)
	}
	return cg
}

func tryCompile(src string) (*CompiledGrammar, error) {
	file, err := spec.Parse(strings.NewReader(src), "test")
	if err != nil {
		return nil, err
	}
	return Compile(file, WithWarnings(func(spec.Position, string) {}))
}

func findTerm(t *testing.T, cg *CompiledGrammar, name string) *Term {
	t.Helper()
	for _, term := range cg.Terms {
		if term.Name == name {
			return term
		}
	}
	t.Fatalf("term %v not found", name)
	return nil
}

const arithSrc = `
@top { Expr }
@precedence { times @left, plus @left }
@tokens { num { std.digit+ } }
Expr { Expr !times "*" Expr | Expr !plus "+" Expr | num }
`

func TestCompile_ArithPrecedence(t *testing.T) {
	teardown := gotestingadapter.QuickConfig(t, "urartu.grammar")
	defer teardown()

	cg := compileSource(t, arithSrc)

	times := findTerm(t, cg, `"*"`)
	plus := findTerm(t, cg, `"+"`)

	// After Expr "+" Expr, a "*" must keep shifting while a "+" reduces:
	// that is what makes 1+2*3 parse as (+ 1 (* 2 3)).
	found := false
	for _, st := range cg.atm.states {
		onTimes := st.findAction(times)
		onPlus := st.findAction(plus)
		if onTimes == nil || onPlus == nil {
			continue
		}
		if onTimes.isShift() && !onPlus.isShift() {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("no state prefers shifting %v while reducing on %v", times, plus)
	}

	if cg.AmbiguousStateCount() == 0 {
		t.Fatalf("precedence resolution must mark states ambiguous")
	}
}

func TestCompile_DanglingElse(t *testing.T) {
	src := `
@top { Stmt }
@precedence { else @right }
Stmt { "if" Stmt !else "else" Stmt | "if" Stmt !else | "x" }
`
	cg := compileSource(t, src)

	elseTerm := findTerm(t, cg, `"else"`)
	found := false
	for _, st := range cg.atm.states {
		a := st.findAction(elseTerm)
		if a == nil {
			continue
		}
		reducible, shiftable := false, false
		for _, item := range st.items {
			if item.reducible() {
				reducible = true
			}
			if item.next() == elseTerm {
				shiftable = true
			}
		}
		if !reducible || !shiftable {
			continue
		}
		if !a.isShift() {
			t.Fatalf("state %v reduces on %v instead of shifting", st.num, elseTerm)
		}
		found = true
	}
	if !found {
		t.Fatalf("no state faces the dangling-else choice")
	}
}

func TestCompile_Conflicts(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		msg     string
	}{
		{
			caption: "unannotated dangling else",
			src: `
@top { Stmt }
Stmt { "if" Stmt "else" Stmt | "if" Stmt | "x" }
`,
			msg: "shift/reduce conflict",
		},
		{
			caption: "two rules for the same sentence",
			src: `
@top { S }
S { A | B }
A { "a" "x" "y" }
B { "a" "x" "y" }
`,
			msg: "reduce/reduce conflict",
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			_, err := tryCompile(tt.src)
			if err == nil {
				t.Fatalf("want an error containing %q, got none", tt.msg)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("want an error containing %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestCompile_Repeat(t *testing.T) {
	src := `@top { "i"* }`
	cg := compileSource(t, src)

	var repeated *Term
	for _, term := range cg.Terms {
		if term.IsRepeated() {
			repeated = term
			break
		}
	}
	if repeated == nil {
		t.Fatalf("the repeat expansion must mark its inner term repeated")
	}

	// At the junction between two inner terms the automaton must keep
	// shifting, which is what leans the derivation to the right.
	item := findTerm(t, cg, `"i"`)
	found := false
	for _, st := range cg.atm.states {
		a := st.findAction(item)
		if a == nil {
			continue
		}
		for _, it := range st.items {
			if it.reducible() && it.rule.lhs.IsRepeated() && len(it.rule.parts) == 2 {
				if !a.isShift() {
					t.Fatalf("state %v must keep consuming items via a shift", st.num)
				}
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("no state faces the repeat junction")
	}
}

func TestCompile_Specialize(t *testing.T) {
	src := `
@top { E }
@tokens { id { std.asciiLetter+ } }
E { id | @specialize<id, "if"> }
`
	cg := compileSource(t, src)

	if len(cg.Specials) != 1 {
		t.Fatalf("want 1 specialization, got %v", len(cg.Specials))
	}
	sp := cg.Specials[0]
	if sp.Base.Name != "id" || sp.Value != "if" || sp.Extend {
		t.Fatalf("specialization recorded wrong: %+v", sp)
	}

	// The specialized term acts like any other terminal in the
	// automaton while sharing the base token's tokenizer.
	if cg.atm.initial.findAction(sp.Term) == nil {
		t.Fatalf("initial state must shift the specialized terminal")
	}
}

func TestCompile_SpecializeExtendConflict(t *testing.T) {
	src := `
@top { E }
@tokens { id { std.asciiLetter+ } }
E { @specialize<id, "if"> | @extend<id, "if"> }
`
	_, err := tryCompile(src)
	if err == nil || !strings.Contains(err.Error(), "specialized and extended") {
		t.Fatalf("want a specialize/extend clash error, got %v", err)
	}
}

func TestCompile_Nested(t *testing.T) {
	src := `
@top { "{" nest.js<:block, "}"> "}" }
`
	cg := compileSource(t, src)

	if len(cg.Nested) != 1 {
		t.Fatalf("want 1 nested grammar, got %v", len(cg.Nested))
	}
	n := cg.Nested[0]
	if n.Name != "js" || n.End != "}" {
		t.Fatalf("nested grammar recorded wrong: %+v", n)
	}
	if len(cg.Tables.NestedOffsets) != 1 {
		t.Fatalf("the end token automaton was not packed")
	}
	if n.Placeholder.Tag != "block" {
		t.Fatalf("the placeholder must carry the block tag, got %q", n.Placeholder.Tag)
	}
}

func TestCompile_Determinism(t *testing.T) {
	a := compileSource(t, arithSrc)
	b := compileSource(t, arithSrc)

	if !equalU16(a.Tables.States, b.Tables.States) {
		t.Fatalf("state tables differ between identical builds")
	}
	if !equalU16(a.Tables.Data, b.Tables.Data) {
		t.Fatalf("data tables differ between identical builds")
	}
	if !equalU16(a.Tables.Goto, b.Tables.Goto) {
		t.Fatalf("goto tables differ between identical builds")
	}
	if !equalU16(a.Tables.TokenData, b.Tables.TokenData) {
		t.Fatalf("token tables differ between identical builds")
	}
}

func equalU16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCompile_TokenGroups(t *testing.T) {
	src := `
@top { kw id }
@tokens {
  id { std.asciiLetter+ }
  kw { "if" }
}
`
	cg := compileSource(t, src)
	if len(cg.Tables.GroupOffsets) < 2 {
		t.Fatalf("conflicting tokens in different states need separate groups, got %v", len(cg.Tables.GroupOffsets))
	}
}

func TestCompile_TokenGroupConflict(t *testing.T) {
	src := `
@top { kw | id }
@tokens {
  id { std.asciiLetter+ }
  kw { "if" }
}
`
	_, err := tryCompile(src)
	if err == nil || !strings.Contains(err.Error(), "overlapping tokens used in same context") {
		t.Fatalf("want an overlap error, got %v", err)
	}
}

func TestCompile_TokenPrecedenceResolvesOverlap(t *testing.T) {
	src := `
@top { kw | id }
@tokens {
  id { std.asciiLetter+ }
  kw { "if" }
  @precedence { kw, id }
}
`
	cg := compileSource(t, src)
	if len(cg.Tables.GroupOffsets) != 1 {
		t.Fatalf("ordered tokens share one group, got %v", len(cg.Tables.GroupOffsets))
	}
}

func TestCompile_Skip(t *testing.T) {
	src := `
@top { "a" "b" }
@tokens { space { std.whitespace+ } }
@skip { space }
`
	cg := compileSource(t, src)
	if len(cg.Tables.SkipOffsets) != 1 {
		t.Fatalf("want one skip context, got %v", len(cg.Tables.SkipOffsets))
	}
	off := cg.Tables.SkipOffsets[0]
	if cg.Tables.Data[off] == dataEnd {
		t.Fatalf("the skip section must hold the skip token")
	}
	// The skip token consumes and stays in place.
	hi := cg.Tables.Data[off+2]
	if uint32(hi)<<16&actionStayFlag == 0 {
		t.Fatalf("skip actions must carry the stay flag")
	}
}

func TestCompile_UnusedRuleWarning(t *testing.T) {
	src := `
@top { "a" }
Dead { "d" }
`
	var warnings []string
	file, err := spec.Parse(strings.NewReader(src), "test")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Compile(file, WithWarnings(func(_ spec.Position, msg string) {
		warnings = append(warnings, msg)
	}))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "unused rule Dead") {
			found = true
		}
	}
	if !found {
		t.Fatalf("want an unused-rule warning, got %v", warnings)
	}
}

func TestCompile_DetectDelim(t *testing.T) {
	src := `
@top { Block }
@tags { @detect-delim }
Block = blk { "(" "x" ")" }
`
	cg := compileSource(t, src)
	blk := findTerm(t, cg, "Block")
	if !strings.Contains(blk.Tag, `delim="( )"`) {
		t.Fatalf("want delim metadata on the tag, got %q", blk.Tag)
	}
}
