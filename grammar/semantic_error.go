package grammar

import "errors"

var (
	errDuplicateRule      = errors.New("duplicate rule")
	errDuplicateTop       = errors.New("duplicate @top declaration")
	errUnknownRule        = errors.New("unknown rule")
	errUnknownPrecedence  = errors.New("unknown precedence name")
	errWrongArgCount      = errors.New("wrong number of arguments")
	errArgsToArgument     = errors.New("passing arguments to a parameter that already has arguments")
	errSpecializeShape    = errors.New("@specialize and @extend take a token and a literal value")
	errSpecializeConflict = errors.New("a value cannot be both specialized and extended")
	errNamespaceCollision = errors.New("namespace collision")
	errTooManyGroups      = errors.New("too many token groups needed")
)
