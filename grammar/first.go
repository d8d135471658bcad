package grammar

import (
	"fmt"
	"sort"
)

// firstSet records, for every non-terminal, the terminals a derivation
// of it can begin with and whether it can derive the empty string.
type firstSet struct {
	syms     map[TermID]map[TermID]bool
	nullable map[TermID]bool
}

// genFirstSet runs the FIRST fixpoint: every pass scans each rule body
// from the left, folding the initial terminals of the prefix into the
// lhs entry, and stops at the first part that cannot vanish. The loop
// ends when a full pass learns nothing new.
func genFirstSet(rs *ruleSet) (*firstSet, error) {
	f := &firstSet{
		syms:     map[TermID]map[TermID]bool{},
		nullable: map[TermID]bool{},
	}
	for _, r := range rs.all() {
		if f.syms[r.lhs.ID] == nil {
			f.syms[r.lhs.ID] = map[TermID]bool{}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, r := range rs.all() {
			into := f.syms[r.lhs.ID]
			tailVanishes := true
			for _, part := range r.parts {
				if part.IsTerminal() {
					if !into[part.ID] {
						into[part.ID] = true
						changed = true
					}
					tailVanishes = false
					break
				}
				src, ok := f.syms[part.ID]
				if !ok {
					return nil, fmt.Errorf("FIRST is undefined for %v; the term has no rules", part)
				}
				for t := range src {
					if !into[t] {
						into[t] = true
						changed = true
					}
				}
				if !f.nullable[part.ID] {
					tailVanishes = false
					break
				}
			}
			if tailVanishes && !f.nullable[r.lhs.ID] {
				f.nullable[r.lhs.ID] = true
				changed = true
			}
		}
	}
	return f, nil
}

// suffix is FIRST of a rule tail: the terminals parts[from:] can begin
// with, sorted by id, plus whether the whole tail can vanish. A from
// past the end of the body yields the vacuous answer (nothing, true).
func (f *firstSet) suffix(r *Rule, from int) ([]TermID, bool, error) {
	acc := map[TermID]bool{}
	vanishes := true
	for i := from; i < len(r.parts); i++ {
		part := r.parts[i]
		if part.IsTerminal() {
			acc[part.ID] = true
			vanishes = false
			break
		}
		src, ok := f.syms[part.ID]
		if !ok {
			return nil, false, fmt.Errorf("FIRST is undefined for %v; the term has no rules", part)
		}
		for t := range src {
			acc[t] = true
		}
		if !f.nullable[part.ID] {
			vanishes = false
			break
		}
	}

	ids := make([]TermID, 0, len(acc))
	for t := range acc {
		ids = append(ids, t)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids, vanishes, nil
}
