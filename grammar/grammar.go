package grammar

import (
	"github.com/nihei9/urartu/grammar/lexical"
	"github.com/nihei9/urartu/spec"
)

// CompiledGrammar is everything the emitters need: the packed tables
// plus the symbolic surroundings (terms, specializations, external and
// nested references, token priorities).
type CompiledGrammar struct {
	Tables *Tables
	Terms  []*Term

	TopID   TermID
	EOFID   TermID
	ErrorID TermID

	Externals []*ExternalTokenSet
	Nested    []*NestedGrammar
	Specials  []*Specialization

	// token ids ordered from highest to lowest precedence
	TokenPrec []TermID

	atm   *automaton
	rules *ruleSet
	terms *termTable
}

type compileConfig struct {
	warn WarnFunc
}

type CompileOption func(*compileConfig)

// WithWarnings routes non-fatal diagnostics through w instead of the
// default tracer sink.
func WithWarnings(w WarnFunc) CompileOption {
	return func(c *compileConfig) {
		c.warn = w
	}
}

// Compile runs the whole pipeline: normalize, simplify, build the
// LR(1) automaton, collapse it, partition the tokens, and pack the
// tables. A single fatal condition aborts the build.
func Compile(file *spec.GrammarFile, opts ...CompileOption) (*CompiledGrammar, error) {
	config := &compileConfig{}
	for _, opt := range opts {
		opt(config)
	}

	b := newBuilder(file, config.warn)
	err := b.build()
	if err != nil {
		return nil, err
	}

	simplifyRules(b.rules, b.terms)
	b.detectDelims()

	lexSet, err := b.lex.Build()
	if err != nil {
		return nil, err
	}

	fst, err := genFirstSet(b.rules)
	if err != nil {
		return nil, err
	}

	roots, err := b.kernelRoots()
	if err != nil {
		return nil, err
	}

	lr, transitions, err := genLR1Automaton(b.rules, fst, b.terms, roots)
	if err != nil {
		return nil, err
	}
	tracer().Debugf("LR(1) automaton: %d states", len(lr.states))

	err = genActions(lr, transitions, func(e error) error { return e })
	if err != nil {
		return nil, err
	}

	atm, err := collapseLALR(lr)
	if err != nil {
		return nil, err
	}

	groups, err := assignTokenGroups(atm, lexSet, b.tokenOrigins, b.skips, b.externals, b.terms)
	if err != nil {
		return nil, err
	}

	tables, err := packTables(&packer{
		atm:     atm,
		rules:   b.rules,
		terms:   b.terms,
		groups:  groups,
		lex:     lexSet,
		skips:   b.skips,
		nested:  b.nested,
		origins: b.tokenOrigins,
	})
	if err != nil {
		return nil, err
	}

	cg := &CompiledGrammar{
		Tables:    tables,
		Terms:     b.terms.all(),
		TopID:     b.terms.topTerm.ID,
		EOFID:     b.terms.eofTerm.ID,
		ErrorID:   b.terms.errorTerm.ID,
		Externals: b.externals,
		Nested:    b.nested,
		Specials:  b.specials,
		TokenPrec: tokenPriorities(lexSet, b.terms),
		atm:       atm,
		rules:     b.rules,
		terms:     b.terms,
	}
	return cg, nil
}

func tokenPriorities(lex *lexical.Set, terms *termTable) []TermID {
	var out []TermID
	for _, t := range terms.all() {
		if t.IsTerminal() && lex.Has(lexical.TermID(t.ID)) {
			out = append(out, t.ID)
		}
	}
	// Keep highest precedence first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && lex.Priority(lexical.TermID(out[j])) < lex.Priority(lexical.TermID(out[j-1])); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// kernelRoots builds the exploration roots: the top kernel plus one per
// stateful skip context.
func (b *builder) kernelRoots() ([]*kernelRoot, error) {
	var roots []*kernelRoot

	var topItems []*lrItem
	for _, r := range b.rules.findByLHS(b.terms.topTerm) {
		topItems = append(topItems, newLRItem(r, 0, b.terms.eofTerm, nil))
	}
	roots = append(roots, &kernelRoot{
		items: topItems,
		skip:  b.skipTerm(b.topSkip),
	})

	for _, info := range b.skips {
		if !info.stateful {
			continue
		}
		var items []*lrItem
		for _, r := range b.rules.findByLHS(info.term) {
			items = append(items, newLRItem(r, 0, b.terms.eofTerm, nil))
		}
		if len(items) == 0 {
			continue
		}
		roots = append(roots, &kernelRoot{
			items:      items,
			partOfSkip: info.term,
		})
	}
	return roots, nil
}
