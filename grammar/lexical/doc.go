// Package lexical compiles token rules into deterministic automata over
// UTF-16 code units. Astral characters are lowered to surrogate-pair
// transitions so the emitted tables match the code-unit model of the
// runtime.
package lexical

import (
	"github.com/npillmayer/schuko/tracing"
)

// tracer traces with key 'urartu.lexical'.
func tracer() tracing.Trace {
	return tracing.Select("urartu.lexical")
}
