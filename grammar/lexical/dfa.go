package lexical

import (
	"fmt"
	"sort"
	"strings"
)

type DFAEdge struct {
	Lo, Hi uint16
	Target int
}

type DFAState struct {
	ID      int
	Accepts []TermID
	Edges   []DFAEdge
}

type DFA struct {
	States []*DFAState
}

// LiteralDFA builds the automaton matching exactly the given literal,
// used for the end tokens of nested grammars.
func LiteralDFA(value string, id TermID) *DFA {
	units := encodeUnits(value)
	dfa := &DFA{}
	for i := range units {
		dfa.States = append(dfa.States, &DFAState{
			ID:    i,
			Edges: []DFAEdge{{Lo: units[i], Hi: units[i], Target: i + 1}},
		})
	}
	dfa.States = append(dfa.States, &DFAState{
		ID:      len(units),
		Accepts: []TermID{id},
	})
	return dfa
}

// Set is the finished token universe: every compiled token plus the
// derived priority order and conflict table.
type Set struct {
	tokens    []*tokenNFA
	byID      map[TermID]*tokenNFA
	precEdges map[TermID][]TermID
	priority  map[TermID]int
	conflicts map[[2]TermID]bool
}

// Build freezes the builder: it linearizes the precedence DAG, builds a
// DFA over all tokens, and records every pair of tokens that can end up
// accepted by one DFA state without a precedence relation between them.
func (b *Builder) Build() (*Set, error) {
	s := &Set{
		tokens:    b.tokens,
		byID:      b.byID,
		precEdges: b.precEdges,
		conflicts: map[[2]TermID]bool{},
	}

	priority, err := b.sortPriorities()
	if err != nil {
		return nil, err
	}
	s.priority = priority

	if len(b.tokens) > 0 {
		var all []TermID
		for _, tok := range b.tokens {
			all = append(all, tok.id)
		}
		dfa, err := s.buildDFA(all, false)
		if err != nil {
			return nil, err
		}
		for _, st := range dfa.States {
			for i := 0; i < len(st.Accepts); i++ {
				for j := i + 1; j < len(st.Accepts); j++ {
					a, c := st.Accepts[i], st.Accepts[j]
					if s.related(a, c) {
						continue
					}
					s.conflicts[normPair(a, c)] = true
				}
			}
		}
		tracer().Debugf("token set: %d tokens, %d conflicting pairs", len(all), len(s.conflicts))
	}

	return s, nil
}

// sortPriorities topologically sorts the precedence DAG. A cycle is
// fatal.
func (b *Builder) sortPriorities() (map[TermID]int, error) {
	indeg := map[TermID]int{}
	for _, tok := range b.tokens {
		indeg[tok.id] = 0
	}
	for hi, los := range b.precEdges {
		if _, ok := indeg[hi]; !ok {
			continue
		}
		for _, lo := range los {
			if _, ok := indeg[lo]; ok {
				indeg[lo]++
			}
		}
	}

	var queue []TermID
	for _, tok := range b.tokens {
		if indeg[tok.id] == 0 {
			queue = append(queue, tok.id)
		}
	}

	priority := map[TermID]int{}
	n := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		priority[id] = n
		n++
		for _, lo := range b.precEdges[id] {
			if _, ok := indeg[lo]; !ok {
				continue
			}
			indeg[lo]--
			if indeg[lo] == 0 {
				queue = append(queue, lo)
			}
		}
	}
	if n < len(b.tokens) {
		var cyclic []string
		for _, tok := range b.tokens {
			if _, ok := priority[tok.id]; !ok {
				cyclic = append(cyclic, tok.name)
			}
		}
		return nil, fmt.Errorf("cyclic token precedence: %v", strings.Join(cyclic, ", "))
	}
	return priority, nil
}

// related reports whether one of the two tokens takes precedence over
// the other through the declared DAG.
func (s *Set) related(a, b TermID) bool {
	return s.reaches(a, b, map[TermID]bool{}) || s.reaches(b, a, map[TermID]bool{})
}

func (s *Set) reaches(from, to TermID, seen map[TermID]bool) bool {
	if from == to {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, next := range s.precEdges[from] {
		if s.reaches(next, to, seen) {
			return true
		}
	}
	return false
}

func normPair(a, b TermID) [2]TermID {
	if a > b {
		a, b = b, a
	}
	return [2]TermID{a, b}
}

// Conflicting reports whether two tokens may overlap without an order
// between them.
func (s *Set) Conflicting(a, b TermID) bool {
	return s.conflicts[normPair(a, b)]
}

func (s *Set) Conflicts() [][2]TermID {
	var out [][2]TermID
	for pair := range s.conflicts {
		out = append(out, pair)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Priority is the token's rank in the linearized precedence order;
// lower ranks win.
func (s *Set) Priority(id TermID) int {
	return s.priority[id]
}

// Has reports whether the set compiled a token for id.
func (s *Set) Has(id TermID) bool {
	_, ok := s.byID[id]
	return ok
}

func (s *Set) TokenName(id TermID) string {
	if tok, ok := s.byID[id]; ok {
		return tok.name
	}
	return fmt.Sprintf("<token %v>", int(id))
}

// BuildDFA determinizes the union of the given tokens. Two members that
// conflict with each other make the context invalid.
func (s *Set) BuildDFA(members []TermID) (*DFA, error) {
	return s.buildDFA(members, true)
}

func (s *Set) buildDFA(members []TermID, rejectConflicts bool) (*DFA, error) {
	var starts []*nfaState
	for _, id := range members {
		tok, ok := s.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown token %v", int(id))
		}
		starts = append(starts, tok.start)
	}
	if rejectConflicts {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if s.Conflicting(members[i], members[j]) {
					return nil, fmt.Errorf("overlapping tokens used in same context: %v and %v",
						s.TokenName(members[i]), s.TokenName(members[j]))
				}
			}
		}
	}

	dfa := &DFA{}
	stateMap := map[string]*DFAState{}

	initial := nullClosure(starts)
	initialState := s.internDFAState(dfa, stateMap, initial)

	unmarked := []closureEntry{{key: setKey(initial), set: initial, state: initialState}}
	for len(unmarked) > 0 {
		var next []closureEntry
		for _, entry := range unmarked {
			for _, span := range splitEdges(entry.set) {
				targets := nullClosure(span.targets)
				key := setKey(targets)
				target, known := stateMap[key]
				if !known {
					target = s.internDFAState(dfa, stateMap, targets)
					next = append(next, closureEntry{key: key, set: targets, state: target})
				}
				entry.state.Edges = append(entry.state.Edges, DFAEdge{
					Lo:     span.lo,
					Hi:     span.hi,
					Target: target.ID,
				})
			}
		}
		unmarked = next
	}

	return dfa, nil
}

type closureEntry struct {
	key   string
	set   []*nfaState
	state *DFAState
}

func (s *Set) internDFAState(dfa *DFA, stateMap map[string]*DFAState, set []*nfaState) *DFAState {
	st := &DFAState{
		ID: len(dfa.States),
	}
	for _, n := range set {
		if n.accept == termNil {
			continue
		}
		dup := false
		for _, a := range st.Accepts {
			if a == n.accept {
				dup = true
				break
			}
		}
		if !dup {
			st.Accepts = append(st.Accepts, n.accept)
		}
	}
	// Highest precedence first.
	sort.Slice(st.Accepts, func(i, j int) bool {
		return s.priority[st.Accepts[i]] < s.priority[st.Accepts[j]]
	})
	dfa.States = append(dfa.States, st)
	stateMap[setKey(set)] = st
	return st
}

func nullClosure(states []*nfaState) []*nfaState {
	seen := map[int]*nfaState{}
	var walk func(s *nfaState)
	walk = func(s *nfaState) {
		if _, ok := seen[s.id]; ok {
			return
		}
		seen[s.id] = s
		for _, n := range s.nulls {
			walk(n)
		}
	}
	for _, s := range states {
		walk(s)
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*nfaState, len(ids))
	for i, id := range ids {
		out[i] = seen[id]
	}
	return out
}

func setKey(states []*nfaState) string {
	var b strings.Builder
	for _, s := range states {
		fmt.Fprintf(&b, "%v,", s.id)
	}
	return b.String()
}

type edgeSpan struct {
	lo, hi  uint16
	targets []*nfaState
}

// splitEdges partitions the unit space into maximal spans over which the
// member edges agree on the reachable target set.
func splitEdges(set []*nfaState) []edgeSpan {
	var edges []nfaEdge
	for _, s := range set {
		edges = append(edges, s.edges...)
	}
	if len(edges) == 0 {
		return nil
	}

	points := map[int]bool{}
	for _, e := range edges {
		points[int(e.lo)] = true
		points[int(e.hi)+1] = true
	}
	cuts := make([]int, 0, len(points))
	for p := range points {
		cuts = append(cuts, p)
	}
	sort.Ints(cuts)

	var spans []edgeSpan
	for i := 0; i < len(cuts)-1; i++ {
		lo := cuts[i]
		hi := cuts[i+1] - 1
		var targets []*nfaState
		seen := map[int]bool{}
		for _, e := range edges {
			if int(e.lo) <= lo && int(e.hi) >= hi {
				if !seen[e.target.id] {
					seen[e.target.id] = true
					targets = append(targets, e.target)
				}
			}
		}
		if len(targets) == 0 {
			continue
		}
		sort.Slice(targets, func(a, b int) bool { return targets[a].id < targets[b].id })

		if n := len(spans); n > 0 && spans[n-1].hi+1 == uint16(lo) && sameTargets(spans[n-1].targets, targets) {
			spans[n-1].hi = uint16(hi)
			continue
		}
		spans = append(spans, edgeSpan{lo: uint16(lo), hi: uint16(hi), targets: targets})
	}
	return spans
}

func sameTargets(a, b []*nfaState) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].id != b[i].id {
			return false
		}
	}
	return true
}
