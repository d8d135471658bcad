package grammar

import "strings"

// simplifyRules runs the inlining and merging passes to a joint
// fixpoint and drops rules that became unreachable.
func simplifyRules(rs *ruleSet, terms *termTable) {
	for {
		inlined := inlinePass(rs)
		merged := mergePass(rs)
		if !inlined && !merged {
			break
		}
	}
	removeUnreachable(rs, terms)
	rs.replace(rs.all())
}

// inlinable reports whether every production of lhs may be substituted
// into its use sites: the term is not interesting or otherwise pinned,
// none of its productions self-recurse or have three or more parts, and
// the expansion cannot multiply (a single production, or only
// single-part productions).
func inlinable(lhs *Term, rules []*Rule) bool {
	if lhs.Interesting() || lhs.Flags&(TermPreserve|TermTop|TermRepeated) != 0 {
		return false
	}
	if lhs.IsTerminal() || len(rules) == 0 {
		return false
	}
	for _, r := range rules {
		if len(r.parts) >= 3 {
			return false
		}
		for _, p := range r.parts {
			if p == lhs {
				return false
			}
		}
	}
	if len(rules) == 1 {
		return true
	}
	for _, r := range rules {
		if len(r.parts) != 1 {
			return false
		}
	}
	return true
}

func inlinePass(rs *ruleSet) bool {
	var target *Term
	for _, r := range rs.all() {
		for _, p := range r.parts {
			if p == r.lhs {
				continue
			}
			if prods := rs.findByLHS(p); inlinable(p, prods) && usedAsPart(rs, p) {
				target = p
				break
			}
		}
		if target != nil {
			break
		}
	}
	if target == nil {
		return false
	}

	prods := rs.findByLHS(target)
	var out []*Rule
	for _, r := range rs.all() {
		if r.lhs == target {
			continue
		}
		out = append(out, expandOccurrences(r, target, prods)...)
	}
	rs.replace(out)
	return true
}

func usedAsPart(rs *ruleSet, t *Term) bool {
	for _, r := range rs.all() {
		if r.lhs == t {
			continue
		}
		for _, p := range r.parts {
			if p == t {
				return true
			}
		}
	}
	return false
}

// expandOccurrences substitutes every production of target into each of
// its occurrences in r, merging conflict records at the splice
// boundaries.
func expandOccurrences(r *Rule, target *Term, prods []*Rule) []*Rule {
	i := -1
	for n, p := range r.parts {
		if p == target {
			i = n
			break
		}
	}
	if i < 0 {
		return []*Rule{r}
	}

	var out []*Rule
	for _, prod := range prods {
		parts := make([]*Term, 0, len(r.parts)+len(prod.parts)-1)
		parts = append(parts, r.parts[:i]...)
		parts = append(parts, prod.parts...)
		parts = append(parts, r.parts[i+1:]...)

		conflicts := make([]Conflict, 0, len(parts)+1)
		conflicts = append(conflicts, r.conflicts[:i]...)
		if len(prod.parts) == 0 {
			conflicts = append(conflicts, r.conflicts[i].join(prod.conflicts[0]).join(r.conflicts[i+1]))
		} else {
			conflicts = append(conflicts, r.conflicts[i].join(prod.conflicts[0]))
			conflicts = append(conflicts, prod.conflicts[1:len(prod.parts)]...)
			conflicts = append(conflicts, prod.conflicts[len(prod.parts)].join(r.conflicts[i+1]))
		}
		conflicts = append(conflicts, r.conflicts[i+2:]...)

		expanded := newRule(r.id, r.lhs, parts, conflicts, r.skip)
		out = append(out, expandOccurrences(expanded, target, prods)...)
	}
	return out
}

// mergePass unifies non-interesting terms that derive exactly the same
// bodies; occurrences of the later term are rewritten to the earlier
// one.
func mergePass(rs *ruleSet) bool {
	var lhsOrder []*Term
	seen := map[TermID]bool{}
	for _, r := range rs.all() {
		if !seen[r.lhs.ID] {
			seen[r.lhs.ID] = true
			lhsOrder = append(lhsOrder, r.lhs)
		}
	}

	for i, a := range lhsOrder {
		if !mergeable(a) {
			continue
		}
		for _, c := range lhsOrder[i+1:] {
			if !mergeable(c) {
				continue
			}
			if !sameRuleSets(rs, a, c) {
				continue
			}
			rewriteTerm(rs, c, a)
			return true
		}
	}
	return false
}

func mergeable(t *Term) bool {
	return !t.Interesting() && t.Flags&(TermPreserve|TermTop|TermRepeated) == 0 && !t.IsTerminal()
}

// sameRuleSets compares the productions of two terms body-wise, with
// self-references on either side treated as equal.
func sameRuleSets(rs *ruleSet, a, c *Term) bool {
	ra, rc := rs.findByLHS(a), rs.findByLHS(c)
	if len(ra) != len(rc) {
		return false
	}
	for i := range ra {
		x, y := ra[i], rc[i]
		if len(x.parts) != len(y.parts) || x.skip != y.skip {
			return false
		}
		for n := range x.parts {
			px, py := x.parts[n], y.parts[n]
			if px == py {
				continue
			}
			if px == a && py == c {
				continue
			}
			return false
		}
		sub := newRule(y.id, y.lhs, x.parts, y.conflicts, y.skip)
		if !x.sameBody(sub) {
			return false
		}
	}
	return true
}

func rewriteTerm(rs *ruleSet, from, to *Term) {
	var out []*Rule
	for _, r := range rs.all() {
		if r.lhs == from {
			continue
		}
		changed := false
		parts := make([]*Term, len(r.parts))
		for i, p := range r.parts {
			if p == from {
				parts[i] = to
				changed = true
			} else {
				parts[i] = p
			}
		}
		if changed {
			out = append(out, newRule(r.id, r.lhs, parts, r.conflicts, r.skip))
		} else {
			out = append(out, r)
		}
	}
	rs.replace(out)
}

// removeUnreachable drops rules whose lhs cannot be reached from the
// top term or a skip context.
func removeUnreachable(rs *ruleSet, terms *termTable) {
	reachable := map[TermID]bool{}
	var visit func(t *Term)
	visit = func(t *Term) {
		if reachable[t.ID] {
			return
		}
		reachable[t.ID] = true
		for _, r := range rs.findByLHS(t) {
			for _, p := range r.parts {
				visit(p)
			}
		}
	}
	if terms.topTerm != nil {
		visit(terms.topTerm)
	}
	for _, t := range terms.all() {
		if t.Flags&TermPreserve != 0 || strings.HasPrefix(t.Name, "%skip") {
			visit(t)
		}
	}

	var out []*Rule
	for _, r := range rs.all() {
		if reachable[r.lhs.ID] {
			out = append(out, r)
		}
	}
	rs.replace(out)
}
