package grammar

import (
	"fmt"
)

type TermID int

type TermFlag uint8

const (
	TermTerminal TermFlag = 1 << iota
	TermEOF
	TermError
	TermTop
	TermRepeated
	TermPreserve
)

// Term is a grammar symbol. Terminals and non-terminals share one
// namespace and one id space.
type Term struct {
	ID    TermID
	Name  string
	Flags TermFlag
	Tag   string
}

func (t *Term) IsTerminal() bool {
	return t.Flags&TermTerminal != 0
}

func (t *Term) IsEOF() bool {
	return t.Flags&TermEOF != 0
}

func (t *Term) IsError() bool {
	return t.Flags&TermError != 0
}

func (t *Term) IsTop() bool {
	return t.Flags&TermTop != 0
}

func (t *Term) IsRepeated() bool {
	return t.Flags&TermRepeated != 0
}

// Interesting reports whether the term labels a node in output trees.
// Interesting terms survive inlining.
func (t *Term) Interesting() bool {
	return t.Tag != "" || t.Flags&(TermError|TermTop) != 0
}

func (t *Term) String() string {
	return t.Name
}

const (
	termNameEOF   = "<eof>"
	termNameError = "<err>"
)

type termTable struct {
	terms  []*Term
	byName map[string]*Term

	eofTerm   *Term
	errorTerm *Term
	topTerm   *Term
}

func newTermTable() *termTable {
	t := &termTable{
		byName: map[string]*Term{},
	}
	t.eofTerm = t.register(termNameEOF, "", TermTerminal|TermEOF)
	t.errorTerm = t.register(termNameError, "", TermTerminal|TermError)
	return t
}

func (t *termTable) register(name, tag string, flags TermFlag) *Term {
	term := &Term{
		ID:    TermID(len(t.terms)),
		Name:  name,
		Flags: flags,
		Tag:   tag,
	}
	t.terms = append(t.terms, term)
	if name != "" {
		t.byName[name] = term
	}
	return term
}

func (t *termTable) makeTerminal(name, tag string) *Term {
	return t.register(name, tag, TermTerminal)
}

func (t *termTable) makeNonTerminal(name, tag string) *Term {
	return t.register(name, tag, 0)
}

func (t *termTable) makeTop(name string) (*Term, error) {
	if t.topTerm != nil {
		return nil, fmt.Errorf("duplicate top term %v", name)
	}
	t.topTerm = t.register(name, "", TermTop)
	return t.topTerm, nil
}

func (t *termTable) lookup(name string) (*Term, bool) {
	term, ok := t.byName[name]
	return term, ok
}

func (t *termTable) all() []*Term {
	return t.terms
}

func (t *termTable) byID(id TermID) *Term {
	return t.terms[id]
}

func (t *termTable) count() int {
	return len(t.terms)
}
