package grammar

import (
	"fmt"
	"strings"
)

type Associativity string

const (
	AssocLeft  = Associativity("left")
	AssocRight = Associativity("right")
	AssocCut   = Associativity("cut")
	AssocNone  = Associativity("none")
)

// Precedence is a named level within a precedence group. Two precedences
// interact only when they share a group; a higher level binds tighter.
// A negative level marks an intentional, silenced conflict.
type Precedence struct {
	Group string
	Level int
	Assoc Associativity
}

func (p Precedence) eq(q Precedence) bool {
	return p.Group == q.Group && p.Level == q.Level && p.Assoc == q.Assoc
}

// Conflict is the annotation attached to one inter-term position of a
// rule: precedence entries, ambiguity group names, and a cut marker.
type Conflict struct {
	Precs  []Precedence
	Ambigs []string
	Cut    bool
}

func (c Conflict) isEmpty() bool {
	return len(c.Precs) == 0 && len(c.Ambigs) == 0 && !c.Cut
}

// join merges two conflict records, as happens when inlining splices
// rule bodies together.
func (c Conflict) join(o Conflict) Conflict {
	out := Conflict{
		Cut: c.Cut || o.Cut,
	}
	out.Precs = mergePrecs(c.Precs, o.Precs)
	out.Ambigs = append(out.Ambigs, c.Ambigs...)
	for _, a := range o.Ambigs {
		if !containsString(out.Ambigs, a) {
			out.Ambigs = append(out.Ambigs, a)
		}
	}
	return out
}

func (c Conflict) eq(o Conflict) bool {
	if len(c.Precs) != len(o.Precs) || len(c.Ambigs) != len(o.Ambigs) || c.Cut != o.Cut {
		return false
	}
	for i, p := range c.Precs {
		if !p.eq(o.Precs[i]) {
			return false
		}
	}
	for i, a := range c.Ambigs {
		if a != o.Ambigs[i] {
			return false
		}
	}
	return true
}

// mergePrecs concatenates two precedence lists keeping only the first
// entry of each group.
func mergePrecs(a, b []Precedence) []Precedence {
	if len(b) == 0 {
		return a
	}
	out := make([]Precedence, 0, len(a)+len(b))
	for _, p := range a {
		if findPrecGroup(out, p.Group) < 0 {
			out = append(out, p)
		}
	}
	for _, p := range b {
		if findPrecGroup(out, p.Group) < 0 {
			out = append(out, p)
		}
	}
	return out
}

func findPrecGroup(ps []Precedence, group string) int {
	for i, p := range ps {
		if p.Group == group {
			return i
		}
	}
	return -1
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Rule is one production. conflicts always has len(parts)+1 entries, one
// per inter-term position including both ends. skip names the skip
// context active inside the production; it may be nil.
type Rule struct {
	id        int
	lhs       *Term
	parts     []*Term
	conflicts []Conflict
	skip      *Term
}

func newRule(id int, lhs *Term, parts []*Term, conflicts []Conflict, skip *Term) *Rule {
	if conflicts == nil {
		conflicts = make([]Conflict, len(parts)+1)
	}
	if len(conflicts) != len(parts)+1 {
		padded := make([]Conflict, len(parts)+1)
		copy(padded, conflicts)
		conflicts = padded
	}
	return &Rule{
		id:        id,
		lhs:       lhs,
		parts:     parts,
		conflicts: conflicts,
		skip:      skip,
	}
}

func (r *Rule) isEmpty() bool {
	return len(r.parts) == 0
}

func (r *Rule) conflictAt(i int) Conflict {
	if i < 0 || i >= len(r.conflicts) {
		return Conflict{}
	}
	return r.conflicts[i]
}

// aggregatePrec is the precedence used when reducing this rule: the
// union of all per-position entries, first occurrence per group winning.
func (r *Rule) aggregatePrec() []Precedence {
	var out []Precedence
	for _, c := range r.conflicts {
		out = mergePrecs(out, c.Precs)
	}
	return out
}

func (r *Rule) aggregateAmbigs() []string {
	var out []string
	for _, c := range r.conflicts {
		for _, a := range c.Ambigs {
			if !containsString(out, a) {
				out = append(out, a)
			}
		}
	}
	return out
}

// sameBody reports whether two rules have term-wise equal bodies under
// the same skip context. Conflict lists compare equal when one is a
// prefix of the other and every trailing entry is empty of ambiguity
// groups and cut markers; precedence-only tails do not distinguish
// otherwise identical bodies.
func (r *Rule) sameBody(o *Rule) bool {
	if len(r.parts) != len(o.parts) || r.skip != o.skip {
		return false
	}
	for i, p := range r.parts {
		if p != o.parts[i] {
			return false
		}
	}
	for i := range r.conflicts {
		c, d := r.conflicts[i], o.conflicts[i]
		if c.Cut != d.Cut || len(c.Ambigs) != len(d.Ambigs) {
			return false
		}
		for j, a := range c.Ambigs {
			if a != d.Ambigs[j] {
				return false
			}
		}
		n := len(c.Precs)
		if len(d.Precs) < n {
			n = len(d.Precs)
		}
		for j := 0; j < n; j++ {
			if !c.Precs[j].eq(d.Precs[j]) {
				return false
			}
		}
	}
	return true
}

func (r *Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v →", r.lhs)
	for _, p := range r.parts {
		fmt.Fprintf(&b, " %v", p)
	}
	if len(r.parts) == 0 {
		fmt.Fprint(&b, " ε")
	}
	return b.String()
}

// ruleSet owns the normalized rule list. Rules with the same lhs are
// kept adjacent; byLHS preserves definition order.
type ruleSet struct {
	rules []*Rule
	byLHS map[TermID][]*Rule
	num   int
}

func newRuleSet() *ruleSet {
	return &ruleSet{
		byLHS: map[TermID][]*Rule{},
	}
}

func (rs *ruleSet) add(lhs *Term, parts []*Term, conflicts []Conflict, skip *Term) *Rule {
	r := newRule(rs.num, lhs, parts, conflicts, skip)
	rs.num++
	rs.rules = append(rs.rules, r)
	rs.byLHS[lhs.ID] = append(rs.byLHS[lhs.ID], r)
	return r
}

func (rs *ruleSet) findByLHS(lhs *Term) []*Rule {
	return rs.byLHS[lhs.ID]
}

func (rs *ruleSet) all() []*Rule {
	return rs.rules
}

// replace installs a new rule list, renumbering so that rules sharing a
// lhs stay adjacent in definition order.
func (rs *ruleSet) replace(rules []*Rule) {
	ordered := make([]*Rule, 0, len(rules))
	seen := map[TermID]bool{}
	byLHS := map[TermID][]*Rule{}
	for _, r := range rules {
		byLHS[r.lhs.ID] = append(byLHS[r.lhs.ID], r)
	}
	for _, r := range rules {
		if seen[r.lhs.ID] {
			continue
		}
		seen[r.lhs.ID] = true
		ordered = append(ordered, byLHS[r.lhs.ID]...)
	}
	for i, r := range ordered {
		r.id = i
	}
	rs.rules = ordered
	rs.byLHS = byLHS
	rs.num = len(ordered)
}
