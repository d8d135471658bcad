package grammar

import (
	"fmt"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/emirpasic/gods/sets/treeset"
)

// collisionKey identifies an action collision independent of the state
// it happened in: the terminal plus the rule ids of the colliding
// actions (-1 standing for a shift, whose target is determined by the
// terminal).
type collisionKey struct {
	term   TermID
	r1, r2 int
}

func newCollisionKey(a, b *action) collisionKey {
	r1, r2 := -1, -1
	if a.rule != nil {
		r1 = a.rule.id
	}
	if b.rule != nil {
		r2 = b.rule.id
	}
	if r1 > r2 {
		r1, r2 = r2, r1
	}
	return collisionKey{term: a.term.ID, r1: r1, r2: r2}
}

func (s *state) recordCollision(a, b *action) {
	if s.collisions == nil {
		s.collisions = map[collisionKey]bool{}
	}
	s.collisions[newCollisionKey(a, b)] = true
}

func stateComparator(a, b interface{}) int {
	return a.(*state).num - b.(*state).num
}

// collapseLALR merges LR(1) states that share an item core, reverting a
// merge whenever it would manufacture a conflict that neither source
// state already resolved. Reverted pairs are kept apart on the next
// pass; the loop terminates because every pass strictly refines the
// partitioning, with the original automaton as the worst case.
func collapseLALR(atm *automaton) (*automaton, error) {
	incompatible := map[[2]int]bool{}

	for round := 0; ; round++ {
		parts := partitionByCore(atm.states, incompatible)

		partOf := map[*state]int{}
		for n, part := range parts {
			for _, st := range part {
				partOf[st] = n
			}
		}

		witnesses := arraylist.New()
		for _, part := range parts {
			if len(part) < 2 {
				continue
			}
			if !trialMerge(part, partOf) {
				for i := 0; i < len(part); i++ {
					for j := i + 1; j < len(part); j++ {
						witnesses.Add([2]int{part[i].num, part[j].num})
					}
				}
			}
		}
		if witnesses.Empty() {
			tracer().Debugf("LALR collapse settled after %d round(s): %d -> %d states", round+1, len(atm.states), len(parts))
			return rebuild(atm, parts, partOf)
		}
		it := witnesses.Iterator()
		for it.Next() {
			incompatible[it.Value().([2]int)] = true
		}
	}
}

// partitionByCore groups states by their item core, keeping recorded
// incompatible pairs in separate partitions. Member order and partition
// order both follow state numbering.
func partitionByCore(states []*state, incompatible map[[2]int]bool) [][]*state {
	byCore := map[string]*treeset.Set{}
	var coreOrder []string
	for _, st := range states {
		key := coreSignature(st.items)
		set, ok := byCore[key]
		if !ok {
			set = treeset.NewWith(stateComparator)
			byCore[key] = set
			coreOrder = append(coreOrder, key)
		}
		set.Add(st)
	}

	var parts [][]*state
	for _, key := range coreOrder {
		var subParts [][]*state
		it := byCore[key].Iterator()
		for it.Next() {
			st := it.Value().(*state)
			placed := false
			for n, sub := range subParts {
				ok := true
				for _, member := range sub {
					if pairIncompatible(incompatible, member.num, st.num) {
						ok = false
						break
					}
				}
				if ok {
					subParts[n] = append(sub, st)
					placed = true
					break
				}
			}
			if !placed {
				subParts = append(subParts, []*state{st})
			}
		}
		parts = append(parts, subParts...)
	}
	return parts
}

func pairIncompatible(incompatible map[[2]int]bool, a, b int) bool {
	if a > b {
		a, b = b, a
	}
	return incompatible[[2]int{a, b}]
}

// trialMerge unions the action tables of a partition without building
// the merged state, reporting whether the union stays conflict-free.
// A collision is tolerated only when one of the members already
// resolved the same collision on its own.
func trialMerge(part []*state, partOf map[*state]int) bool {
	samePart := func(a, b *state) bool {
		return partOf[a] == partOf[b]
	}
	scratch := &state{}
	for _, member := range part {
		for _, a := range member.actions {
			old := scratch.findAction(a.term)
			if old != nil && !actionEq(old, a, samePart) {
				key := newCollisionKey(old, a)
				known := false
				for _, m := range part {
					if m.collisions[key] {
						known = true
						break
					}
				}
				if !known {
					return false
				}
			}
			cp := *a
			if scratch.addAction(&cp, nil, samePart, nil) != nil {
				return false
			}
		}
	}
	return true
}

// rebuild constructs the collapsed automaton from a settled partition.
func rebuild(atm *automaton, parts [][]*state, partOf map[*state]int) (*automaton, error) {
	merged := make([]*state, len(parts))
	newOf := map[*state]*state{}
	for n, part := range parts {
		ns := &state{
			num:        n,
			skip:       part[0].skip,
			partOfSkip: part[0].partOfSkip,
			tokenGroup: -1,
		}
		merged[n] = ns
		for _, st := range part {
			newOf[st] = ns
		}
	}

	for n, part := range parts {
		ns := merged[n]

		var items []*lrItem
		seen := map[string]bool{}
		for _, st := range part {
			for _, item := range st.items {
				key := itemsSignature([]*lrItem{item})
				if seen[key] {
					continue
				}
				seen[key] = true
				items = append(items, item)
			}
			if st.ambiguous {
				ns.ambiguous = true
			}
		}
		sortItems(items)
		ns.items = items

		for _, st := range part {
			for _, a := range st.actions {
				cp := *a
				if cp.target != nil {
					cp.target = newOf[cp.target]
				}
				err := ns.addAction(&cp, nil, stateIdentity, nil)
				if err != nil {
					return nil, fmt.Errorf("merge of core partition %v failed after a clean trial", n)
				}
			}
			for _, g := range st.goTos {
				if ns.findGoTo(g.term) != nil {
					continue
				}
				ns.goTos = append(ns.goTos, &action{term: g.term, target: newOf[g.target]})
			}
		}
	}

	out := &automaton{
		states:     merged,
		initial:    newOf[atm.initial],
		skipStarts: map[TermID]*state{},
	}
	for id, st := range atm.skipStarts {
		out.skipStarts[id] = newOf[st]
	}
	return out, nil
}
