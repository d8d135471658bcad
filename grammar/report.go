package grammar

import (
	"fmt"
	"io"
)

// WriteReport renders a human-readable description of the compiled
// grammar: terms, rules, and every state with its items and actions.
func (cg *CompiledGrammar) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "# Terms\n\n%v terms:\n\n", len(cg.Terms))
	for _, t := range cg.Terms {
		kind := "nonterm"
		if t.IsTerminal() {
			kind = "term"
		}
		if t.Tag != "" {
			fmt.Fprintf(w, "%4v %v %v tag=%v\n", t.ID, kind, t.Name, t.Tag)
		} else {
			fmt.Fprintf(w, "%4v %v %v\n", t.ID, kind, t.Name)
		}
	}

	fmt.Fprintf(w, "\n# Rules\n\n%v rules:\n\n", len(cg.rules.all()))
	for _, r := range cg.rules.all() {
		fmt.Fprintf(w, "%4v %v\n", r.id, r)
	}

	fmt.Fprintf(w, "\n# States\n\n%v states:\n\n", len(cg.atm.states))
	for _, st := range cg.atm.states {
		fmt.Fprintf(w, "state %v", st.num)
		if st.ambiguous {
			fmt.Fprintf(w, " (ambiguous)")
		}
		if st.partOfSkip != nil {
			fmt.Fprintf(w, " (skip %v)", st.partOfSkip)
		}
		fmt.Fprintf(w, "  tokens:%v\n", st.tokenGroup)
		for _, item := range st.items {
			fmt.Fprintf(w, "    %v\n", item)
		}
		fmt.Fprintf(w, "\n")
		for _, a := range sortedActions(st.actions) {
			if a.isShift() {
				fmt.Fprintf(w, "    shift  %4v on %v\n", a.target.num, a.term)
			} else if a.rule.lhs.IsTop() && a.term.IsEOF() {
				fmt.Fprintf(w, "    accept on %v\n", a.term)
			} else {
				fmt.Fprintf(w, "    reduce %4v on %v\n", a.rule.id, a.term)
			}
		}
		for _, g := range st.goTos {
			fmt.Fprintf(w, "    goto   %4v on %v\n", g.target.num, g.term)
		}
		fmt.Fprintf(w, "\n")
	}
}

// StateCount reports the size of the collapsed automaton.
func (cg *CompiledGrammar) StateCount() int {
	return len(cg.atm.states)
}

// AmbiguousStateCount counts states that resolved at least one action
// collision.
func (cg *CompiledGrammar) AmbiguousStateCount() int {
	n := 0
	for _, st := range cg.atm.states {
		if st.ambiguous {
			n++
		}
	}
	return n
}
