package lexical

import (
	"fmt"
	"strings"

	"github.com/nihei9/urartu/spec"
)

// TermID mirrors the generator's term ids without creating an import
// cycle; accepting states carry these.
type TermID int

const termNil = TermID(-1)

type nfaEdge struct {
	lo, hi uint16
	target *nfaState
}

type nfaState struct {
	id     int
	edges  []nfaEdge
	nulls  []*nfaState
	accept TermID
}

type tokenNFA struct {
	id     TermID
	name   string
	start  *nfaState
	accept *nfaState
	pos    spec.Position
}

// Builder accumulates token rules and compiles each into an NFA
// fragment. Build then derives precedence, conflicts, and the DFAs.
type Builder struct {
	rules     map[string]*spec.RuleDecl
	states    []*nfaState
	tokens    []*tokenNFA
	byID      map[TermID]*tokenNFA
	subMemo   map[string]*nfaState
	precEdges map[TermID][]TermID
	warn      func(spec.Position, string)
}

func NewBuilder(warn func(spec.Position, string)) *Builder {
	if warn == nil {
		warn = func(pos spec.Position, msg string) {
			tracer().Infof("warning: %v (%v:%v)", msg, pos.Row, pos.Col)
		}
	}
	return &Builder{
		rules:     map[string]*spec.RuleDecl{},
		byID:      map[TermID]*tokenNFA{},
		subMemo:   map[string]*nfaState{},
		precEdges: map[TermID][]TermID{},
		warn:      warn,
	}
}

// AddRules registers the named token rules that token expressions may
// reference.
func (b *Builder) AddRules(rules []*spec.RuleDecl) error {
	for _, r := range rules {
		if _, ok := b.rules[r.Name]; ok {
			return fmt.Errorf("duplicate token rule %v", r.Name)
		}
		b.rules[r.Name] = r
	}
	return nil
}

func (b *Builder) newState() *nfaState {
	s := &nfaState{
		id:     len(b.states),
		accept: termNil,
	}
	b.states = append(b.states, s)
	return s
}

type binding struct {
	expr spec.Expression
	env  map[string]binding
}

type callFrame struct {
	key  string
	name string
}

type compileCtx struct {
	accept *nfaState
	env    map[string]binding
	stack  []callFrame
}

// AddToken compiles one token. The expression may reference named token
// rules; recursion among them is only allowed in tail position.
func (b *Builder) AddToken(id TermID, name string, expr spec.Expression, pos spec.Position) error {
	start := b.newState()
	accept := b.newState()
	accept.accept = id

	ctx := &compileCtx{accept: accept}
	err := b.compile(expr, start, accept, ctx)
	if err != nil {
		return err
	}

	if nullReach(start, accept) {
		return fmt.Errorf("token %v may match the empty string", name)
	}

	tok := &tokenNFA{
		id:     id,
		name:   name,
		start:  start,
		accept: accept,
		pos:    pos,
	}
	b.tokens = append(b.tokens, tok)
	b.byID[id] = tok
	return nil
}

// AddPrecedence records that token hi takes precedence over token lo.
func (b *Builder) AddPrecedence(hi, lo TermID) {
	b.precEdges[hi] = append(b.precEdges[hi], lo)
}

func (b *Builder) compile(expr spec.Expression, from, to *nfaState, ctx *compileCtx) error {
	switch x := expr.(type) {
	case *spec.LiteralExpr:
		return b.compileLiteral(x.Value, from, to)
	case *spec.AnyCharExpr:
		b.addRange(from, to, 0, maxChar)
		return nil
	case *spec.SetExpr:
		for _, r := range resolveSet(x) {
			b.addRange(from, to, r[0], r[1])
		}
		return nil
	case *spec.SeqExpr:
		cur := from
		for i, sub := range x.Exprs {
			next := to
			if i < len(x.Exprs)-1 {
				next = b.newState()
			}
			err := b.compile(sub, cur, next, ctx)
			if err != nil {
				return err
			}
			cur = next
		}
		if len(x.Exprs) == 0 {
			from.nulls = append(from.nulls, to)
		}
		return nil
	case *spec.ChoiceExpr:
		for _, sub := range x.Exprs {
			err := b.compile(sub, from, to, ctx)
			if err != nil {
				return err
			}
		}
		return nil
	case *spec.RepeatExpr:
		return b.compileRepeat(x, from, to, ctx)
	case *spec.NameExpr:
		return b.compileName(x, from, to, ctx)
	default:
		return fmt.Errorf("this expression form cannot appear inside token rules: %v", spec.ExprString(expr))
	}
}

func (b *Builder) compileLiteral(value string, from, to *nfaState) error {
	units := encodeUnits(value)
	if len(units) == 0 {
		from.nulls = append(from.nulls, to)
		return nil
	}
	cur := from
	for i, u := range units {
		next := to
		if i < len(units)-1 {
			next = b.newState()
		}
		cur.edges = append(cur.edges, nfaEdge{lo: u, hi: u, target: next})
		cur = next
	}
	return nil
}

func encodeUnits(value string) []uint16 {
	var units []uint16
	for _, r := range value {
		if r < astralMin {
			units = append(units, uint16(r))
			continue
		}
		h, l := encodePair(r)
		units = append(units, h, l)
	}
	return units
}

func (b *Builder) compileRepeat(x *spec.RepeatExpr, from, to *nfaState, ctx *compileCtx) error {
	switch x.Kind {
	case spec.RepeatOptional:
		from.nulls = append(from.nulls, to)
		return b.compile(x.Expr, from, to, ctx)
	case spec.RepeatZeroOrMore:
		loop := b.newState()
		from.nulls = append(from.nulls, loop)
		loop.nulls = append(loop.nulls, to)
		exit := b.newState()
		err := b.compile(x.Expr, loop, exit, ctx)
		if err != nil {
			return err
		}
		exit.nulls = append(exit.nulls, loop)
		return nil
	case spec.RepeatOneOrMore:
		loop := b.newState()
		from.nulls = append(from.nulls, loop)
		exit := b.newState()
		err := b.compile(x.Expr, loop, exit, ctx)
		if err != nil {
			return err
		}
		exit.nulls = append(exit.nulls, loop)
		exit.nulls = append(exit.nulls, to)
		return nil
	}
	return fmt.Errorf("unknown repeat kind %q", x.Kind)
}

func (b *Builder) compileName(x *spec.NameExpr, from, to *nfaState, ctx *compileCtx) error {
	if x.Namespace == "std" {
		ranges, ok := builtinRanges[x.Name]
		if !ok {
			return fmt.Errorf("unknown built-in character class std.%v", x.Name)
		}
		for _, r := range ranges {
			b.addRange(from, to, r[0], r[1])
		}
		return nil
	}
	if x.Namespace != "" {
		return fmt.Errorf("unknown namespace %v in token rules", x.Namespace)
	}

	if bound, ok := ctx.env[x.Name]; ok {
		if len(x.Args) > 0 {
			return fmt.Errorf("passing arguments to a parameter that already has arguments: %v", x.Name)
		}
		sub := &compileCtx{
			accept: ctx.accept,
			env:    bound.env,
			stack:  ctx.stack,
		}
		return b.compile(bound.expr, from, to, sub)
	}

	rule, ok := b.rules[x.Name]
	if !ok {
		return fmt.Errorf("unknown token rule %v", x.Name)
	}
	if len(x.Args) != len(rule.Params) {
		return fmt.Errorf("wrong number of arguments for token rule %v: want %v, have %v", x.Name, len(rule.Params), len(x.Args))
	}

	env := map[string]binding{}
	for i, param := range rule.Params {
		env[param] = binding{expr: x.Args[i], env: ctx.env}
	}

	key := callKey(x)
	if to == ctx.accept {
		// A tail call null-edges into a memoized sub-automaton, which
		// is what lets tail recursion terminate.
		memoKey := fmt.Sprintf("%v@%v", key, ctx.accept.id)
		if start, ok := b.subMemo[memoKey]; ok {
			from.nulls = append(from.nulls, start)
			return nil
		}
		start := b.newState()
		b.subMemo[memoKey] = start
		from.nulls = append(from.nulls, start)
		sub := &compileCtx{
			accept: ctx.accept,
			env:    env,
			stack:  append(ctx.stack, callFrame{key: key, name: x.Name}),
		}
		return b.compile(rule.Expr, start, ctx.accept, sub)
	}

	for _, frame := range ctx.stack {
		if frame.key == key {
			var chain []string
			for _, f := range ctx.stack {
				chain = append(chain, f.name)
			}
			chain = append(chain, x.Name)
			return fmt.Errorf("invalid non-tail recursion in token rules: %v", strings.Join(chain, " -> "))
		}
	}
	sub := &compileCtx{
		accept: ctx.accept,
		env:    env,
		stack:  append(ctx.stack, callFrame{key: key, name: x.Name}),
	}
	return b.compile(rule.Expr, from, to, sub)
}

func callKey(x *spec.NameExpr) string {
	return spec.ExprString(x)
}

// resolveSet turns a surface character set into inclusive code point
// ranges, applying inversion against the full character range less the
// surrogate block.
func resolveSet(x *spec.SetExpr) [][2]rune {
	if !x.Inverted {
		return x.Ranges
	}
	var out [][2]rune
	next := rune(0)
	for _, r := range sortRanges(x.Ranges) {
		if r[0] > next {
			out = append(out, [2]rune{next, r[0] - 1})
		}
		if r[1]+1 > next {
			next = r[1] + 1
		}
	}
	if next <= maxChar {
		out = append(out, [2]rune{next, maxChar})
	}
	return out
}

func sortRanges(ranges [][2]rune) [][2]rune {
	out := append([][2]rune{}, ranges...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j][0] < out[j-1][0]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// addRange adds transitions matching the inclusive code point range
// <lo..hi>, lowering astral portions to surrogate-pair transitions via
// intermediate states. Surrogate code points themselves never match.
func (b *Builder) addRange(from, to *nfaState, lo, hi rune) {
	if lo > hi {
		return
	}
	if lo <= 0xffff {
		bmpHi := hi
		if bmpHi > 0xffff {
			bmpHi = 0xffff
		}
		if lo < surrogateMin {
			h := bmpHi
			if h > surrogateMin-1 {
				h = surrogateMin - 1
			}
			from.edges = append(from.edges, nfaEdge{lo: uint16(lo), hi: uint16(h), target: to})
		}
		if bmpHi > surrogateMax {
			l := lo
			if l < surrogateMax+1 {
				l = surrogateMax + 1
			}
			from.edges = append(from.edges, nfaEdge{lo: uint16(l), hi: uint16(bmpHi), target: to})
		}
	}
	if hi < astralMin {
		return
	}
	aLo := lo
	if aLo < astralMin {
		aLo = astralMin
	}
	blks, err := genSurrogateBlocks(aLo, hi)
	if err != nil {
		return
	}
	for _, blk := range blks {
		mid := b.newState()
		from.edges = append(from.edges, nfaEdge{lo: blk.hiFrom, hi: blk.hiTo, target: mid})
		mid.edges = append(mid.edges, nfaEdge{lo: blk.loFrom, hi: blk.loTo, target: to})
	}
}

// nullReach reports whether to is reachable from from over null edges
// alone.
func nullReach(from, to *nfaState) bool {
	seen := map[int]bool{}
	var walk func(s *nfaState) bool
	walk = func(s *nfaState) bool {
		if s == to {
			return true
		}
		if seen[s.id] {
			return false
		}
		seen[s.id] = true
		for _, n := range s.nulls {
			if walk(n) {
				return true
			}
		}
		return false
	}
	return walk(from)
}
