package grammar

import (
	"testing"
)

func TestInlinePass(t *testing.T) {
	terms := newTermTable()
	top, _ := terms.makeTop("@top")
	a := terms.makeTerminal("a", "")
	b := terms.makeTerminal("b", "")
	c := terms.makeTerminal("c", "")
	S := terms.makeNonTerminal("S", "")
	A := terms.makeNonTerminal("A", "")

	p := Precedence{Group: "g", Level: 1, Assoc: AssocLeft}

	rs := newRuleSet()
	rs.add(top, []*Term{S}, nil, nil)
	// S → A c, with a precedence on the bridge before c.
	rs.add(S, []*Term{A, c}, []Conflict{{}, {Precs: []Precedence{p}}, {}}, nil)
	// A → a b, short, uninteresting, not self-recursive: inlined.
	rs.add(A, []*Term{a, b}, []Conflict{{}, {Ambigs: []string{"m"}}, {}}, nil)

	simplifyRules(rs, terms)

	if len(rs.findByLHS(A)) != 0 {
		t.Fatalf("A must be inlined away")
	}
	if len(rs.findByLHS(S)) != 0 {
		t.Fatalf("S must be inlined away in turn")
	}
	topRules := rs.findByLHS(top)
	if len(topRules) != 1 {
		t.Fatalf("want one top rule, got %v", len(topRules))
	}
	r := topRules[0]
	want := []*Term{a, b, c}
	if len(r.parts) != len(want) {
		t.Fatalf("want %v parts, got %v", len(want), len(r.parts))
	}
	for i, p := range want {
		if r.parts[i] != p {
			t.Fatalf("part %v: want %v, got %v", i, p, r.parts[i])
		}
	}
	// The interior marker of A survives, and the bridge precedence
	// lands between b and c.
	if len(r.conflicts[1].Ambigs) != 1 || r.conflicts[1].Ambigs[0] != "m" {
		t.Fatalf("the interior marker was lost: %+v", r.conflicts)
	}
	if len(r.conflicts[2].Precs) != 1 || r.conflicts[2].Precs[0].Group != "g" {
		t.Fatalf("the bridge precedence was lost: %+v", r.conflicts)
	}
}

func TestInlinePass_KeepsInterestingAndRecursive(t *testing.T) {
	terms := newTermTable()
	top, _ := terms.makeTop("@top")
	a := terms.makeTerminal("a", "")
	S := terms.makeNonTerminal("S", "")
	T := terms.makeNonTerminal("T", "tagged")
	R := terms.makeNonTerminal("R", "")

	rs := newRuleSet()
	rs.add(top, []*Term{S}, nil, nil)
	rs.add(S, []*Term{T, R}, nil, nil)
	rs.add(T, []*Term{a}, nil, nil)
	rs.add(R, []*Term{a, R}, nil, nil)
	rs.add(R, []*Term{a}, nil, nil)

	simplifyRules(rs, terms)

	if len(rs.findByLHS(T)) != 1 {
		t.Fatalf("a tagged term must survive inlining")
	}
	if len(rs.findByLHS(R)) != 2 {
		t.Fatalf("a self-recursive term must survive inlining")
	}
}

func TestMergePass(t *testing.T) {
	terms := newTermTable()
	top, _ := terms.makeTop("@top")
	a := terms.makeTerminal("a", "")
	b := terms.makeTerminal("b", "")
	c := terms.makeTerminal("c", "")
	S := terms.makeNonTerminal("S", "")
	A := terms.makeNonTerminal("A", "")
	B := terms.makeNonTerminal("B", "")

	rs := newRuleSet()
	rs.add(top, []*Term{S}, nil, nil)
	rs.add(S, []*Term{A, B}, nil, nil)
	rs.add(A, []*Term{a, b, c}, nil, nil)
	rs.add(B, []*Term{a, b, c}, nil, nil)

	simplifyRules(rs, terms)

	if len(rs.findByLHS(B)) != 0 {
		t.Fatalf("duplicate term B must be merged into A")
	}
	// S itself is inlined before the merge, so the rewrite shows up in
	// the top rule.
	topRules := rs.findByLHS(top)
	if len(topRules) != 1 || len(topRules[0].parts) != 2 {
		t.Fatalf("want top → A A, got %v", topRules)
	}
	if topRules[0].parts[0] != A || topRules[0].parts[1] != A {
		t.Fatalf("occurrences of B must be rewritten to A: %v", topRules[0])
	}
}

func TestRule_SameBodyTrailingPrecedence(t *testing.T) {
	terms := newTermTable()
	a := terms.makeTerminal("a", "")
	b := terms.makeTerminal("b", "")
	A := terms.makeNonTerminal("A", "")
	B := terms.makeNonTerminal("B", "")

	p := Precedence{Group: "g", Level: 1, Assoc: AssocNone}
	q := Precedence{Group: "h", Level: 2, Assoc: AssocNone}

	short := newRule(0, A, []*Term{a, b}, []Conflict{{}, {Precs: []Precedence{p}}, {}}, nil)
	long := newRule(1, B, []*Term{a, b}, []Conflict{{}, {Precs: []Precedence{p, q}}, {}}, nil)
	if !short.sameBody(long) {
		t.Fatalf("precedence lists differing only in trailing entries compare equal")
	}

	ambig := newRule(2, B, []*Term{a, b}, []Conflict{{}, {Precs: []Precedence{p}, Ambigs: []string{"m"}}, {}}, nil)
	if short.sameBody(ambig) {
		t.Fatalf("an extra ambiguity group must distinguish bodies")
	}

	cut := newRule(3, B, []*Term{a, b}, []Conflict{{}, {Precs: []Precedence{p}, Cut: true}, {}}, nil)
	if short.sameBody(cut) {
		t.Fatalf("a cut marker must distinguish bodies")
	}
}
