package grammar

import (
	"fmt"
	"sort"

	"github.com/nihei9/urartu/grammar/lexical"
)

// Packed action values are 32 bits, split into lo/hi halves in the data
// array: a shift stores the target state, a reduce stores the lhs term
// id plus the flags and pop depth below.
const (
	actionReduceFlag       = uint32(1) << 16
	actionRepeatFlag       = uint32(1) << 17
	actionStayFlag         = uint32(1) << 18
	actionReduceDepthShift = 19
)

const (
	stateFlagAmbiguous = uint16(1) << 0
	stateFlagAccepting = uint16(1) << 1
	stateFlagSkipped   = uint16(1) << 2
)

// stateRecSize is the fixed record per state: flags, action offset,
// recover offset, skip offset, tokenizer mask, default-reduce lo/hi,
// forced-reduce lo/hi.
const stateRecSize = 9

const (
	dataEnd   = uint16(0xffff)
	noOffset  = uint16(0xffff)
	noTermRef = uint16(0xffff)
)

// Tables is the packed artifact: every array is flat 16-bit data ready
// for serialization.
type Tables struct {
	States    []uint16
	Data      []uint16
	Goto      []uint16
	TokenData []uint16

	// offsets into TokenData, one per token group
	GroupOffsets []int
	// offsets into TokenData for nested-grammar end tokens
	NestedOffsets []int
	// offsets into Data of each skip context's action list
	SkipOffsets []int
}

func encodeReduce(lhs *Term, depth int, stay bool) uint32 {
	v := uint32(lhs.ID) | actionReduceFlag | uint32(depth)<<actionReduceDepthShift
	if lhs.IsRepeated() {
		v |= actionRepeatFlag
	}
	if stay {
		v |= actionStayFlag
	}
	return v
}

func encodeAction(a *action) uint32 {
	if a.isShift() {
		return uint32(a.target.num)
	}
	return encodeReduce(a.rule.lhs, len(a.rule.parts), false)
}

// appendSection adds a sub-array to data, reusing an existing
// occurrence when one is already present. The scan is left-to-right, so
// offsets are deterministic.
func appendSection(data []uint16, section []uint16) ([]uint16, int) {
	if len(section) == 0 {
		return data, 0
	}
scan:
	for off := 0; off+len(section) <= len(data); off++ {
		for i, v := range section {
			if data[off+i] != v {
				continue scan
			}
		}
		return data, off
	}
	off := len(data)
	return append(data, section...), off
}

type packer struct {
	atm     *automaton
	rules   *ruleSet
	terms   *termTable
	groups  *tokenGroups
	lex     *lexical.Set
	skips   []*skipInfo
	nested  []*NestedGrammar
	origins map[TermID]TermID
}

func packTables(p *packer) (*Tables, error) {
	t := &Tables{
		// A lone terminator at offset 0 doubles as the empty section.
		Data: []uint16{dataEnd},
	}

	if len(p.groups.groups)+len(externIndexes(p.groups)) > maxTokenGroups {
		return nil, fmt.Errorf("%w: group and external tokenizers exceed the mask width", errTooManyGroups)
	}

	skipOffsets, err := p.packSkips(t)
	if err != nil {
		return nil, err
	}

	for _, st := range p.atm.states {
		if st.num*stateRecSize != len(t.States) {
			return nil, fmt.Errorf("states are not packed in numbering order")
		}
		rec, err := p.packState(t, st, skipOffsets)
		if err != nil {
			return nil, err
		}
		t.States = append(t.States, rec...)
	}

	p.packGoto(t)
	err = p.packTokenData(t)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func externIndexes(tg *tokenGroups) []int {
	present := map[int]bool{}
	for _, mask := range tg.externs {
		for i := 0; i < 16; i++ {
			if mask&(1<<uint(i)) != 0 {
				present[i] = true
			}
		}
	}
	var out []int
	for i := range present {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// packSkips lays out one section per skip context: simple contexts get
// stay-flagged consume actions, stateful ones the shift actions of
// their start state.
func (p *packer) packSkips(t *Tables) (map[TermID]uint16, error) {
	offsets := map[TermID]uint16{}
	for _, info := range p.skips {
		var section []uint16
		for _, tok := range info.tokens {
			v := actionStayFlag
			section = append(section, uint16(tok.ID), uint16(v&0xffff), uint16(v>>16))
		}
		if info.stateful {
			start, ok := p.atm.skipStarts[info.term.ID]
			if !ok {
				return nil, fmt.Errorf("missing start state for skip context %v", info.term)
			}
			for _, a := range sortedActions(start.actions) {
				v := encodeAction(a)
				section = append(section, uint16(a.term.ID), uint16(v&0xffff), uint16(v>>16))
			}
		}
		section = append(section, dataEnd)
		var off int
		t.Data, off = appendSection(t.Data, section)
		offsets[info.term.ID] = uint16(off)
		t.SkipOffsets = append(t.SkipOffsets, off)
	}
	return offsets, nil
}

func sortedActions(actions []*action) []*action {
	out := append([]*action{}, actions...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].term.ID < out[j].term.ID
	})
	return out
}

func (p *packer) packState(t *Tables, st *state, skipOffsets map[TermID]uint16) ([]uint16, error) {
	var section []uint16
	var recoverSection []uint16
	accepting := false
	for _, a := range sortedActions(st.actions) {
		v := encodeAction(a)
		if !a.isShift() && a.rule.lhs.IsTop() && a.term.IsEOF() {
			accepting = true
		}
		if a.isShift() && a.term.IsError() {
			recoverSection = append(recoverSection, uint16(a.term.ID), uint16(a.target.num))
			continue
		}
		section = append(section, uint16(a.term.ID), uint16(v&0xffff), uint16(v>>16))
	}
	section = append(section, dataEnd)
	var actionOff int
	t.Data, actionOff = appendSection(t.Data, section)

	recoverOff := 0
	if len(recoverSection) > 0 {
		recoverSection = append(recoverSection, dataEnd)
		t.Data, recoverOff = appendSection(t.Data, recoverSection)
	}

	flags := uint16(0)
	if st.ambiguous {
		flags |= stateFlagAmbiguous
	}
	if accepting {
		flags |= stateFlagAccepting
	}
	if st.partOfSkip != nil {
		flags |= stateFlagSkipped
	}

	skipOff := uint16(0)
	if st.skip != nil {
		if off, ok := skipOffsets[st.skip.ID]; ok {
			skipOff = off
		}
	}

	mask := uint16(0)
	if st.tokenGroup >= 0 {
		mask |= 1 << uint(st.tokenGroup)
	}
	if ext, ok := p.groups.externs[st.num]; ok {
		mask |= ext << uint(len(p.groups.groups))
	}

	defaultReduce := p.defaultReduce(st)
	forcedReduce := p.forcedReduce(st)

	return []uint16{
		flags,
		uint16(actionOff),
		uint16(recoverOff),
		skipOff,
		mask,
		uint16(defaultReduce & 0xffff),
		uint16(defaultReduce >> 16),
		uint16(forcedReduce & 0xffff),
		uint16(forcedReduce >> 16),
	}, nil
}

// defaultReduce is set when every action of a state reduces the same
// rule, letting the runtime skip the token read.
func (p *packer) defaultReduce(st *state) uint32 {
	var rule *Rule
	for _, a := range st.actions {
		if a.isShift() {
			return 0
		}
		if rule == nil {
			rule = a.rule
		} else if rule != a.rule {
			return 0
		}
	}
	if rule == nil || len(st.goTos) > 0 {
		return 0
	}
	return encodeReduce(rule.lhs, len(rule.parts), false)
}

// forcedReduce picks the recovery reduction: the item with the smallest
// remaining suffix, ties broken toward the longest rule.
func (p *packer) forcedReduce(st *state) uint32 {
	var best *lrItem
	for _, item := range st.items {
		if item.dot == 0 || item.rule.lhs.IsTop() {
			continue
		}
		if best == nil {
			best = item
			continue
		}
		rem, bestRem := len(item.rule.parts)-item.dot, len(best.rule.parts)-best.dot
		if rem < bestRem || (rem == bestRem && len(item.rule.parts) > len(best.rule.parts)) {
			best = item
		}
	}
	if best == nil {
		return 0
	}
	return encodeReduce(best.rule.lhs, best.dot, false)
}

// packGoto lays out the goto table: a header indexed by term id, then
// per target a record (count<<1|last, target, sources...).
func (p *packer) packGoto(t *Tables) {
	type gotoRec struct {
		target  int
		sources []int
	}
	byTerm := map[TermID][]*gotoRec{}
	for _, st := range p.atm.states {
		for _, g := range st.goTos {
			recs := byTerm[g.term.ID]
			var rec *gotoRec
			for _, r := range recs {
				if r.target == g.target.num {
					rec = r
					break
				}
			}
			if rec == nil {
				rec = &gotoRec{target: g.target.num}
				byTerm[g.term.ID] = append(byTerm[g.term.ID], rec)
			}
			rec.sources = append(rec.sources, st.num)
		}
	}

	termCount := p.terms.count()
	header := make([]uint16, termCount)
	var data []uint16
	for id := 0; id < termCount; id++ {
		recs := byTerm[TermID(id)]
		if len(recs) == 0 {
			header[id] = noOffset
			continue
		}
		header[id] = uint16(termCount + len(data))
		for n, rec := range recs {
			sort.Ints(rec.sources)
			v := uint16(len(rec.sources)) << 1
			if n == len(recs)-1 {
				v |= 1
			}
			data = append(data, v, uint16(rec.target))
			for _, src := range rec.sources {
				data = append(data, uint16(src))
			}
		}
	}
	t.Goto = append(header, data...)
}

// serializeDFA lays out one automaton: a state count, a state offset
// table, then per state the accept list and edge list.
func serializeDFA(dfa *lexical.DFA) []uint16 {
	out := []uint16{uint16(len(dfa.States))}
	offsets := make([]uint16, len(dfa.States))
	out = append(out, offsets...)
	for i, st := range dfa.States {
		out[1+i] = uint16(len(out))
		out = append(out, uint16(len(st.Accepts)))
		for _, a := range st.Accepts {
			out = append(out, uint16(a))
		}
		out = append(out, uint16(len(st.Edges)))
		for _, e := range st.Edges {
			out = append(out, e.Lo, e.Hi, uint16(e.Target))
		}
	}
	return out
}

func (p *packer) packTokenData(t *Tables) error {
	for g, members := range p.groups.groups {
		withSkips := append([]TermID{}, members...)
		for _, info := range p.skips {
			for _, tok := range info.tokens {
				present := false
				for _, m := range withSkips {
					if m == tok.ID {
						present = true
						break
					}
				}
				if !present && !conflictsWithAny(p.lex, tok.ID, withSkips) {
					withSkips = append(withSkips, tok.ID)
				}
			}
		}
		lexMembers := make([]lexical.TermID, len(withSkips))
		for i, m := range withSkips {
			lexMembers[i] = lexical.TermID(m)
		}
		dfa, err := p.lex.BuildDFA(lexMembers)
		if err != nil {
			return fmt.Errorf("token group %v: %w", g, err)
		}
		t.GroupOffsets = append(t.GroupOffsets, len(t.TokenData))
		t.TokenData = append(t.TokenData, serializeDFA(dfa)...)
	}

	for _, n := range p.nested {
		t.NestedOffsets = append(t.NestedOffsets, len(t.TokenData))
		dfa := lexical.LiteralDFA(n.End, lexical.TermID(n.Placeholder.ID))
		t.TokenData = append(t.TokenData, serializeDFA(dfa)...)
	}
	return nil
}

func conflictsWithAny(lex *lexical.Set, id TermID, members []TermID) bool {
	for _, m := range members {
		if lex.Conflicting(lexical.TermID(id), lexical.TermID(m)) {
			return true
		}
	}
	return false
}
