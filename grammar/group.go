package grammar

import (
	"fmt"

	"github.com/nihei9/urartu/grammar/lexical"
)

// maxTokenGroups bounds the number of tokenizer contexts; the packed
// state record selects them through a 16-bit mask.
const maxTokenGroups = 16

type tokenGroups struct {
	// member base terminals per group, in first-assignment order
	groups [][]TermID
	// external tokenizer indices used per state
	externs map[int]uint16
}

// assignTokenGroups gives every state a tokenizer group containing at
// least the terminals the state expects, never placing two conflicting
// tokens in one group. States are visited in numbering order, so group
// numbering is deterministic.
func assignTokenGroups(atm *automaton, lex *lexical.Set, origins map[TermID]TermID, skips []*skipInfo, externals []*ExternalTokenSet, terms *termTable) (*tokenGroups, error) {
	externOf := map[TermID]int{}
	for _, ext := range externals {
		for _, t := range ext.Terms {
			externOf[t.ID] = ext.Index
		}
	}
	skipOf := map[TermID]*skipInfo{}
	for _, info := range skips {
		skipOf[info.term.ID] = info
	}

	tg := &tokenGroups{
		externs: map[int]uint16{},
	}

	for _, st := range atm.states {
		var expected []TermID
		var externMask uint16
		add := func(id TermID) {
			if base, ok := origins[id]; ok {
				id = base
			}
			if ext, ok := externOf[id]; ok {
				externMask |= 1 << uint(ext)
				return
			}
			term := terms.byID(id)
			if term.IsEOF() || term.IsError() || !lex.Has(lexical.TermID(id)) {
				return
			}
			for _, have := range expected {
				if have == id {
					return
				}
			}
			expected = append(expected, id)
		}

		for _, a := range st.actions {
			add(a.term.ID)
		}
		if st.skip != nil {
			if info, ok := skipOf[st.skip.ID]; ok {
				for _, t := range info.tokens {
					add(t.ID)
				}
			}
		}

		for i := 0; i < len(expected); i++ {
			for j := i + 1; j < len(expected); j++ {
				if lex.Conflicting(lexical.TermID(expected[i]), lexical.TermID(expected[j])) {
					return nil, fmt.Errorf("overlapping tokens used in same context: %v and %v",
						terms.byID(expected[i]), terms.byID(expected[j]))
				}
			}
		}

		group := -1
		for g, members := range tg.groups {
			ok := true
		check:
			for _, t := range expected {
				for _, m := range members {
					if lex.Conflicting(lexical.TermID(t), lexical.TermID(m)) {
						ok = false
						break check
					}
				}
			}
			if ok {
				group = g
				break
			}
		}
		if group < 0 {
			if len(tg.groups) == maxTokenGroups {
				return nil, fmt.Errorf("%w: more than %v needed", errTooManyGroups, maxTokenGroups)
			}
			tg.groups = append(tg.groups, nil)
			group = len(tg.groups) - 1
		}
		for _, t := range expected {
			present := false
			for _, m := range tg.groups[group] {
				if m == t {
					present = true
					break
				}
			}
			if !present {
				tg.groups[group] = append(tg.groups[group], t)
			}
		}

		st.tokenGroup = group
		if externMask != 0 {
			tg.externs[st.num] = externMask
		}
	}

	tracer().Debugf("assigned %d token group(s) across %d states", len(tg.groups), len(atm.states))
	return tg, nil
}
