// Package grammar turns a parsed grammar file into packed parse tables:
// it normalizes the surface expressions into plain rules, builds a
// canonical LR(1) automaton, collapses it LALR-style, partitions the
// tokens into tokenizer groups, and serializes everything into flat
// numeric arrays.
package grammar

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'urartu.grammar'.
func tracer() tracing.Trace {
	return tracing.Select("urartu.grammar")
}
