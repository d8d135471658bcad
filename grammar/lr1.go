package grammar

import (
	"errors"
	"fmt"
)

// action is either a shift (target != nil) or a reduce (rule != nil) on
// a terminal, annotated with the precedence entries and ambiguity groups
// it was added under.
type action struct {
	term   *Term
	target *state
	rule   *Rule
	precs  []Precedence
	ambigs []string
}

func (a *action) isShift() bool {
	return a.target != nil
}

// state is one automaton state. goTos holds the non-terminal
// transitions; actions the terminal ones.
type state struct {
	num        int
	items      []*lrItem
	actions    []*action
	goTos      []*action
	ambiguous  bool
	skip       *Term
	partOfSkip *Term
	tokenGroup int
	explored   bool
	collisions map[collisionKey]bool
}

func (s *state) findAction(t *Term) *action {
	for _, a := range s.actions {
		if a.term == t {
			return a
		}
	}
	return nil
}

func (s *state) findGoTo(t *Term) *action {
	for _, a := range s.goTos {
		if a.term == t {
			return a
		}
	}
	return nil
}

type automaton struct {
	states     []*state
	initial    *state
	skipStarts map[TermID]*state
}

var errMergeConflict = errors.New("conflicting actions")

// sameTargetFunc abstracts shift-target identity so that a merge trial
// can treat targets from the same partition as equal.
type sameTargetFunc func(a, b *state) bool

func stateIdentity(a, b *state) bool {
	return a == b
}

func actionEq(a, b *action, sameTarget sameTargetFunc) bool {
	if a.isShift() != b.isShift() {
		return false
	}
	if a.isShift() {
		return sameTarget(a.target, b.target)
	}
	return a.rule == b.rule
}

func sharesAmbig(a, b []string) bool {
	for _, x := range a {
		if containsString(b, x) {
			return true
		}
	}
	return false
}

// addAction inserts act into s, resolving collisions by precedence. When
// report is non-nil an unresolvable collision is raised through it as a
// fatal error; otherwise errMergeConflict signals the caller to abort.
func (s *state) addAction(act *action, item *lrItem, sameTarget sameTargetFunc, report func(error) error) error {
	old := s.findAction(act.term)
	if old == nil {
		s.actions = append(s.actions, act)
		return nil
	}
	if actionEq(old, act, sameTarget) {
		old.precs = interMergePrecs(old.precs, act.precs)
		return nil
	}

	s.ambiguous = true
	s.recordCollision(old, act)

	if sharesAmbig(old.ambigs, act.ambigs) {
		return nil
	}

	for _, np := range act.precs {
		oi := findPrecGroup(old.precs, np.Group)
		if oi < 0 {
			continue
		}
		op := old.precs[oi]
		if np.Level < 0 {
			return nil
		}
		if np.Level > op.Level {
			s.replaceAction(old, act)
			return nil
		}
		if np.Level < op.Level {
			return nil
		}
		// Equal levels: associativity decides a shift/reduce pair.
		if old.isShift() != act.isShift() {
			switch op.Assoc {
			case AssocLeft:
				if act.isShift() {
					return nil
				}
				s.replaceAction(old, act)
				return nil
			case AssocRight, AssocCut:
				if act.isShift() {
					s.replaceAction(old, act)
					return nil
				}
				return nil
			}
		}
		break
	}

	if report != nil {
		kind := "reduce/reduce"
		if old.isShift() != act.isShift() {
			kind = "shift/reduce"
		}
		return report(fmt.Errorf("%v conflict at %v on %v", kind, item, act.term))
	}
	return errMergeConflict
}

func (s *state) replaceAction(old, act *action) {
	for i, a := range s.actions {
		if a == old {
			s.actions[i] = act
			return
		}
	}
}

// interMergePrecs merges precedence lists contributed by different
// items into one action, keeping the higher level per group.
func interMergePrecs(a, b []Precedence) []Precedence {
	out := append([]Precedence{}, a...)
	for _, p := range b {
		i := findPrecGroup(out, p.Group)
		if i < 0 {
			out = append(out, p)
			continue
		}
		if p.Level > out[i].Level {
			out[i] = p
		}
	}
	return out
}

type kernelRoot struct {
	items []*lrItem
	skip  *Term
	// non-nil when the root starts a stateful skip context
	partOfSkip *Term
}

type lrBuilder struct {
	rules *ruleSet
	first *firstSet
	terms *termTable

	byKey  map[string]*state
	states []*state
}

type transition struct {
	term   *Term
	target *state
	// originating items, used for shift precedence
	items []*lrItem
}

// genLR1Automaton explores the canonical LR(1) state space from the
// given roots in breadth-first order. States are numbered in discovery
// order, which makes the whole build deterministic.
func genLR1Automaton(rs *ruleSet, fst *firstSet, terms *termTable, roots []*kernelRoot) (*automaton, map[*state][]*transition, error) {
	b := &lrBuilder{
		rules: rs,
		first: fst,
		terms: terms,
		byKey: map[string]*state{},
	}

	atm := &automaton{
		skipStarts: map[TermID]*state{},
	}
	transitions := map[*state][]*transition{}

	var unchecked []*state
	for n, root := range roots {
		items, err := b.closure(root.items)
		if err != nil {
			return nil, nil, err
		}
		st, known := b.intern(items)
		st.skip = root.skip
		st.partOfSkip = root.partOfSkip
		if n == 0 {
			atm.initial = st
		} else if root.partOfSkip != nil {
			atm.skipStarts[root.partOfSkip.ID] = st
		}
		if !known && !st.explored {
			st.explored = true
			unchecked = append(unchecked, st)
		}
	}

	for len(unchecked) > 0 {
		var next []*state
		for _, st := range unchecked {
			trs, err := b.genTransitions(st)
			if err != nil {
				return nil, nil, err
			}
			transitions[st] = trs
			for _, tr := range trs {
				if tr.target.skip == nil {
					tr.target.skip = st.skip
				}
				if tr.target.partOfSkip == nil {
					tr.target.partOfSkip = st.partOfSkip
				}
				if !tr.target.explored {
					tr.target.explored = true
					next = append(next, tr.target)
				}
			}
		}
		unchecked = next
	}

	atm.states = b.states
	return atm, transitions, nil
}

// intern returns the canonical state for a closed, sorted item set.
func (b *lrBuilder) intern(items []*lrItem) (*state, bool) {
	key := itemsSignature(items)
	if st, ok := b.byKey[key]; ok {
		return st, true
	}
	st := &state{
		num:        len(b.states),
		items:      items,
		tokenGroup: -1,
	}
	b.byKey[key] = st
	b.states = append(b.states, st)
	return st, false
}

func (b *lrBuilder) closure(kernel []*lrItem) ([]*lrItem, error) {
	items := append([]*lrItem{}, kernel...)
	known := map[string]bool{}
	for _, i := range items {
		known[itemsSignature([]*lrItem{i})] = true
	}
	unchecked := append([]*lrItem{}, kernel...)
	for len(unchecked) > 0 {
		var next []*lrItem
		for _, item := range unchecked {
			sym := item.next()
			if sym == nil || sym.IsTerminal() {
				continue
			}

			inherited := mergePrecs(item.rule.conflictAt(item.dot).Precs, item.prec)

			ids, vanishes, err := b.first.suffix(item.rule, item.dot+1)
			if err != nil {
				return nil, err
			}
			aheads := make([]*Term, 0, len(ids)+1)
			for _, t := range ids {
				aheads = append(aheads, b.terms.byID(t))
			}
			if vanishes {
				aheads = append(aheads, item.ahead)
			}

			for _, prod := range b.rules.findByLHS(sym) {
				for _, a := range aheads {
					newItem := newLRItem(prod, 0, a, inherited)
					key := itemsSignature([]*lrItem{newItem})
					if known[key] {
						continue
					}
					known[key] = true
					items = append(items, newItem)
					next = append(next, newItem)
				}
			}
		}
		unchecked = next
	}
	sortItems(items)
	return items, nil
}

func sortTerms(ts []*Term) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].ID < ts[j-1].ID; j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// genTransitions advances every dotted item of st, interning the target
// states.
func (b *lrBuilder) genTransitions(st *state) ([]*transition, error) {
	order := []*Term{}
	advanced := map[TermID][]*lrItem{}
	origins := map[TermID][]*lrItem{}
	for _, item := range st.items {
		sym := item.next()
		if sym == nil {
			continue
		}
		if _, ok := advanced[sym.ID]; !ok {
			order = append(order, sym)
		}
		advanced[sym.ID] = append(advanced[sym.ID], item.advance())
		origins[sym.ID] = append(origins[sym.ID], item)
	}
	sortTerms(order)

	var trs []*transition
	for _, sym := range order {
		kernel := advanced[sym.ID]
		items, err := b.closure(kernel)
		if err != nil {
			return nil, err
		}
		target, _ := b.intern(items)
		trs = append(trs, &transition{
			term:   sym,
			target: target,
			items:  origins[sym.ID],
		})
	}
	return trs, nil
}

// genActions fills in the action and goto tables of every state. report
// receives unresolved conflicts; returning nil from it suppresses the
// failure.
func genActions(atm *automaton, transitions map[*state][]*transition, report func(error) error) error {
	for _, st := range atm.states {
		for _, tr := range transitions[st] {
			if !tr.term.IsTerminal() {
				st.goTos = append(st.goTos, &action{term: tr.term, target: tr.target})
				continue
			}
			var precs []Precedence
			var ambigs []string
			for _, item := range tr.items {
				precs = interMergePrecs(precs, item.shiftPrec())
				for _, a := range item.shiftAmbigs() {
					if !containsString(ambigs, a) {
						ambigs = append(ambigs, a)
					}
				}
			}
			act := &action{term: tr.term, target: tr.target, precs: precs, ambigs: ambigs}
			err := st.addAction(act, tr.items[0], stateIdentity, report)
			if err != nil {
				return err
			}
		}

		for _, item := range st.items {
			if !item.reducible() {
				continue
			}
			act := &action{
				term:   item.ahead,
				rule:   item.rule,
				precs:  item.reducePrec(),
				ambigs: item.rule.aggregateAmbigs(),
			}
			err := st.addAction(act, item, stateIdentity, report)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
