package grammar

import (
	"fmt"
	"strings"

	verr "github.com/nihei9/urartu/error"
	"github.com/nihei9/urartu/grammar/lexical"
	"github.com/nihei9/urartu/spec"
)

// WarnFunc receives non-fatal diagnostics. The default routes through
// the package tracer.
type WarnFunc func(pos spec.Position, msg string)

// precRepeat is the internal precedence level attached to repeat rules
// to force right-leaning derivations without reporting a conflict.
const precRepeat = 1 << 29

type alternative struct {
	parts     []*Term
	conflicts []Conflict
}

func emptyAlternative() alternative {
	return alternative{conflicts: make([]Conflict, 1)}
}

// Specialization promotes a literal value of a base token to a distinct
// terminal. When Extend is true the base stays valid alongside.
type Specialization struct {
	Base   *Term
	Term   *Term
	Value  string
	Extend bool
}

// ExternalTokenSet is a tokenizer provided from outside the grammar.
type ExternalTokenSet struct {
	Index  int
	Name   string
	Source string
	Terms  []*Term
}

// NestedGrammar is a placeholder for a sub-language delimited by an end
// token.
type NestedGrammar struct {
	Index       int
	Name        string
	Placeholder *Term
	End         string
}

type skipInfo struct {
	index    int
	term     *Term
	tokens   []*Term
	stateful bool
}

type namedDecl struct {
	decl *spec.RuleDecl
	skip *skipInfo
}

type builder struct {
	file  *spec.GrammarFile
	terms *termTable
	rules *ruleSet
	lex   *lexical.Builder
	warn  WarnFunc

	precs      map[string]Precedence
	named      map[string]*namedDecl
	tokenDecls map[string]*spec.RuleDecl

	ruleMemo   map[string]*Term
	tokenMemo  map[string]*Term
	litMemo    map[string]*Term
	repeatMemo map[string]*Term
	tagMemo    map[string]*Term

	specialMemo  map[string]*Term
	specials     []*Specialization
	tokenOrigins map[TermID]TermID

	externals []*ExternalTokenSet
	nested    []*NestedGrammar
	skips     []*skipInfo
	topSkip   *skipInfo

	detectDelim bool
	punctuation string
	used        map[string]bool
	anonNum     int
}

func newBuilder(file *spec.GrammarFile, warn WarnFunc) *builder {
	if warn == nil {
		warn = func(pos spec.Position, msg string) {
			tracer().Infof("warning: %v (%v:%v)", msg, pos.Row, pos.Col)
		}
	}
	return &builder{
		file:         file,
		terms:        newTermTable(),
		rules:        newRuleSet(),
		lex:          lexical.NewBuilder(func(pos spec.Position, msg string) { warn(pos, msg) }),
		warn:         warn,
		precs:        map[string]Precedence{},
		named:        map[string]*namedDecl{},
		tokenDecls:   map[string]*spec.RuleDecl{},
		ruleMemo:     map[string]*Term{},
		tokenMemo:    map[string]*Term{},
		litMemo:      map[string]*Term{},
		repeatMemo:   map[string]*Term{},
		tagMemo:      map[string]*Term{},
		specialMemo:  map[string]*Term{},
		tokenOrigins: map[TermID]TermID{},
		used:         map[string]bool{},
	}
}

func (b *builder) raise(pos spec.Position, err error) error {
	return verr.SpecErrors{
		{
			Cause: err,
			Row:   pos.Row,
			Col:   pos.Col,
		},
	}
}

func (b *builder) build() error {
	if err := b.registerPrecedences(); err != nil {
		return err
	}
	if err := b.registerTokens(); err != nil {
		return err
	}
	if err := b.registerExternals(); err != nil {
		return err
	}
	if err := b.registerNamedRules(); err != nil {
		return err
	}
	if err := b.registerSkips(); err != nil {
		return err
	}
	if err := b.registerTags(); err != nil {
		return err
	}
	if err := b.buildTop(); err != nil {
		return err
	}
	if err := b.applyLateTags(); err != nil {
		return err
	}
	if err := b.applyTokenPrecedences(); err != nil {
		return err
	}
	b.applyPunctuation()
	b.warnUnused()
	return nil
}

func (b *builder) registerPrecedences() error {
	for n, decl := range b.file.Precedences {
		group := fmt.Sprintf("prec%v", n)
		for i, item := range decl.Items {
			if _, ok := b.precs[item.Name]; ok {
				return b.raise(item.Pos, fmt.Errorf("duplicate precedence name %v", item.Name))
			}
			assoc := AssocNone
			switch item.Assoc {
			case spec.PrecLeft:
				assoc = AssocLeft
			case spec.PrecRight:
				assoc = AssocRight
			case spec.PrecCut:
				assoc = AssocCut
			}
			b.precs[item.Name] = Precedence{
				Group: group,
				Level: len(decl.Items) - i,
				Assoc: assoc,
			}
		}
	}
	return nil
}

func (b *builder) registerTokens() error {
	if b.file.Tokens == nil {
		return nil
	}
	for _, r := range b.file.Tokens.Rules {
		if _, ok := b.tokenDecls[r.Name]; ok {
			return b.raise(r.DeclPos, fmt.Errorf("%w: token %v", errDuplicateRule, r.Name))
		}
		b.tokenDecls[r.Name] = r
	}
	return b.lex.AddRules(b.file.Tokens.Rules)
}

func (b *builder) registerExternals() error {
	for n, decl := range b.file.ExternalTokens {
		ext := &ExternalTokenSet{
			Index:  n,
			Name:   decl.Name,
			Source: decl.Source,
		}
		for _, item := range decl.Tokens {
			if _, ok := b.terms.lookup(item.Name); ok {
				return b.raise(item.Pos, fmt.Errorf("%w: %v", errNamespaceCollision, item.Name))
			}
			tag := ""
			if item.Tag != nil {
				tag = item.Tag.String()
			}
			ext.Terms = append(ext.Terms, b.terms.makeTerminal(item.Name, tag))
		}
		b.externals = append(b.externals, ext)
	}
	return nil
}

func (b *builder) registerNamedRules() error {
	for _, decl := range b.file.Rules {
		if err := b.registerNamedRule(decl, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) registerNamedRule(decl *spec.RuleDecl, skip *skipInfo) error {
	if _, ok := b.named[decl.Name]; ok {
		return b.raise(decl.DeclPos, fmt.Errorf("%w: %v", errDuplicateRule, decl.Name))
	}
	if _, ok := b.tokenDecls[decl.Name]; ok {
		return b.raise(decl.DeclPos, fmt.Errorf("%w: %v is also a token rule", errNamespaceCollision, decl.Name))
	}
	b.named[decl.Name] = &namedDecl{decl: decl, skip: skip}
	return nil
}

func (b *builder) registerSkips() error {
	for n, decl := range b.file.Skip {
		info := &skipInfo{index: n}
		info.term = b.terms.makeNonTerminal(fmt.Sprintf("%%skip%v", n), "")
		b.skips = append(b.skips, info)
		if len(decl.Rules) == 0 && b.topSkip == nil {
			b.topSkip = info
		}
		for _, r := range decl.Rules {
			if err := b.registerNamedRule(r, info); err != nil {
				return err
			}
		}
	}
	// Skip bodies reference tokens, so normalize them after the maps
	// above are in place.
	for n, decl := range b.file.Skip {
		info := b.skips[n]
		alts, err := b.normalizeExpr(decl.Expr, nil)
		if err != nil {
			return err
		}
		for _, alt := range alts {
			if len(alt.parts) == 1 && alt.parts[0].IsTerminal() {
				info.tokens = append(info.tokens, alt.parts[0])
				continue
			}
			if len(alt.parts) == 0 {
				return b.raise(decl.DeclPos, fmt.Errorf("a skip expression may not match the empty sequence"))
			}
			info.stateful = true
			b.rules.add(info.term, alt.parts, alt.conflicts, nil)
		}
	}
	return nil
}

func (b *builder) registerTags() error {
	for _, decl := range b.file.Tags {
		for _, exp := range decl.Exports {
			if _, ok := b.terms.lookup(exp.Name); ok {
				return b.raise(exp.Pos, fmt.Errorf("%w: %v", errNamespaceCollision, exp.Name))
			}
			term := b.terms.makeNonTerminal(exp.Name, exp.Tag.String())
			term.Flags |= TermPreserve
		}
		if decl.DetectDelim {
			b.detectDelim = true
		}
		for _, p := range decl.Punctuation {
			b.punctuation += p
		}
	}
	return nil
}

// applyLateTags resolves `term = :tag` assignments from @tags blocks,
// which may name rules or tokens defined anywhere in the file.
func (b *builder) applyLateTags() error {
	for _, decl := range b.file.Tags {
		for _, as := range decl.Assigns {
			term, ok := b.terms.lookup(as.Term)
			if !ok {
				b.warn(as.Pos, fmt.Sprintf("tag assignment for unknown term %v", as.Term))
				continue
			}
			term.Tag = as.Tag.String()
		}
	}
	return nil
}

func (b *builder) buildTop() error {
	top, err := b.terms.makeTop("@top")
	if err != nil {
		return err
	}
	alts, err := b.normalizeExpr(b.file.Top.Expr, b.topSkip)
	if err != nil {
		return err
	}
	b.defineRule(top, alts, b.topSkip)
	return nil
}

func (b *builder) skipTerm(info *skipInfo) *Term {
	if info == nil {
		return nil
	}
	return info.term
}

func (b *builder) defineRule(lhs *Term, alts []alternative, skip *skipInfo) {
	for _, alt := range alts {
		b.rules.add(lhs, alt.parts, alt.conflicts, b.skipTerm(skip))
	}
}

// normalizeExpr reduces a surface expression to a flat list of
// alternatives, each a sequence of terms with per-position conflict
// annotations.
func (b *builder) normalizeExpr(expr spec.Expression, skip *skipInfo) ([]alternative, error) {
	switch x := expr.(type) {
	case nil:
		return []alternative{emptyAlternative()}, nil
	case *spec.ChoiceExpr:
		var alts []alternative
		for _, sub := range x.Exprs {
			sa, err := b.normalizeExpr(sub, skip)
			if err != nil {
				return nil, err
			}
			alts = append(alts, sa...)
		}
		return alts, nil
	case *spec.SeqExpr:
		return b.normalizeSeq(x, skip)
	case *spec.RepeatExpr:
		if x.Kind == spec.RepeatOptional {
			alts, err := b.normalizeExpr(x.Expr, skip)
			if err != nil {
				return nil, err
			}
			return append([]alternative{emptyAlternative()}, alts...), nil
		}
		term, err := b.normalizeRepeat(x, skip)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.LiteralExpr:
		term, err := b.litTerm(x)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.SetExpr, *spec.AnyCharExpr:
		term, err := b.anonToken(expr)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.NameExpr:
		term, err := b.resolveName(x, skip)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.TagExpr:
		term, err := b.normalizeTagged(x, skip)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.SpecializeExpr:
		term, err := b.normalizeSpecialize(x)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	case *spec.NestExpr:
		term, err := b.normalizeNest(x)
		if err != nil {
			return nil, err
		}
		return []alternative{singleTerm(term)}, nil
	}
	return nil, fmt.Errorf("unhandled expression form %T", expr)
}

func singleTerm(t *Term) alternative {
	return alternative{
		parts:     []*Term{t},
		conflicts: make([]Conflict, 2),
	}
}

func (b *builder) markerConflict(markers []spec.ConflictMarker) (Conflict, error) {
	var c Conflict
	for _, m := range markers {
		if m.Precedence {
			p, ok := b.precs[m.Name]
			if !ok {
				return c, b.raise(m.Pos, fmt.Errorf("%w: %v", errUnknownPrecedence, m.Name))
			}
			if p.Assoc == AssocCut {
				c.Cut = true
			}
			c.Precs = mergePrecs(c.Precs, []Precedence{p})
			continue
		}
		if !containsString(c.Ambigs, m.Name) {
			c.Ambigs = append(c.Ambigs, m.Name)
		}
	}
	return c, nil
}

// normalizeSeq distributes a sequence over the choices inside it,
// duplicating conflict markers onto the bridge positions of every
// resulting alternative.
func (b *builder) normalizeSeq(x *spec.SeqExpr, skip *skipInfo) ([]alternative, error) {
	acc := []alternative{emptyAlternative()}
	for i, sub := range x.Exprs {
		marker, err := b.markerConflict(x.Markers[i])
		if err != nil {
			return nil, err
		}
		subAlts, err := b.normalizeExpr(sub, skip)
		if err != nil {
			return nil, err
		}
		var next []alternative
		for _, left := range acc {
			for _, right := range subAlts {
				next = append(next, joinAlternatives(left, marker, right))
			}
		}
		acc = next
	}
	last, err := b.markerConflict(x.Markers[len(x.Exprs)])
	if err != nil {
		return nil, err
	}
	if !last.isEmpty() {
		for n, alt := range acc {
			alt.conflicts[len(alt.conflicts)-1] = alt.conflicts[len(alt.conflicts)-1].join(last)
			acc[n] = alt
		}
	}
	return acc, nil
}

// joinAlternatives concatenates two alternatives, merging the conflict
// records at the splice boundary with the marker written between them.
func joinAlternatives(left alternative, marker Conflict, right alternative) alternative {
	parts := make([]*Term, 0, len(left.parts)+len(right.parts))
	parts = append(parts, left.parts...)
	parts = append(parts, right.parts...)

	conflicts := make([]Conflict, 0, len(parts)+1)
	conflicts = append(conflicts, left.conflicts[:len(left.conflicts)-1]...)
	bridge := left.conflicts[len(left.conflicts)-1].join(marker).join(right.conflicts[0])
	conflicts = append(conflicts, bridge)
	conflicts = append(conflicts, right.conflicts[1:]...)

	return alternative{parts: parts, conflicts: conflicts}
}

// normalizeRepeat produces the outer/inner rule pair for `E*` and `E+`,
// memoized per structurally equal E so each shape exists exactly once.
func (b *builder) normalizeRepeat(x *spec.RepeatExpr, skip *skipInfo) (*Term, error) {
	key := fmt.Sprintf("%c%v", x.Kind, spec.ExprString(x.Expr))
	if term, ok := b.repeatMemo[key]; ok {
		return term, nil
	}

	name := fmt.Sprintf("%v%c", exprName(x.Expr), x.Kind)
	outer := b.terms.makeNonTerminal(name, "")
	b.repeatMemo[key] = outer
	inner := b.terms.makeNonTerminal(name+"-inner", "")
	inner.Flags |= TermRepeated

	elemAlts, err := b.normalizeExpr(x.Expr, skip)
	if err != nil {
		return nil, err
	}

	if x.Kind == spec.RepeatZeroOrMore {
		b.defineRule(outer, []alternative{emptyAlternative()}, skip)
	}
	b.defineRule(outer, []alternative{singleTerm(inner)}, skip)

	b.defineRule(inner, elemAlts, skip)

	group := fmt.Sprintf("repeat:%v", key)
	rec := alternative{
		parts: []*Term{inner, inner},
		conflicts: []Conflict{
			{Precs: []Precedence{{Group: group, Level: precRepeat - 1, Assoc: AssocRight}}},
			{Precs: []Precedence{{Group: group, Level: precRepeat, Assoc: AssocRight}}},
			{Precs: []Precedence{{Group: group, Level: precRepeat, Assoc: AssocRight}}},
		},
	}
	b.defineRule(inner, []alternative{rec}, skip)

	return outer, nil
}

func exprName(e spec.Expression) string {
	if n, ok := e.(*spec.NameExpr); ok && n.Namespace == "" && len(n.Args) == 0 {
		return n.Name
	}
	return fmt.Sprintf("(%v)", spec.ExprString(e))
}

func (b *builder) litTerm(x *spec.LiteralExpr) (*Term, error) {
	if term, ok := b.litMemo[x.Value]; ok {
		return term, nil
	}
	term := b.terms.makeTerminal(fmt.Sprintf("%q", x.Value), "")
	err := b.lex.AddToken(lexical.TermID(term.ID), fmt.Sprintf("%q", x.Value), x, x.Pos())
	if err != nil {
		return nil, b.raise(x.Pos(), err)
	}
	b.litMemo[x.Value] = term
	return term, nil
}

// anonToken registers an inline character-class expression as its own
// terminal, memoized by structural equality.
func (b *builder) anonToken(expr spec.Expression) (*Term, error) {
	key := spec.ExprString(expr)
	if term, ok := b.tokenMemo[key]; ok {
		return term, nil
	}
	term := b.terms.makeTerminal(key, "")
	err := b.lex.AddToken(lexical.TermID(term.ID), key, expr, expr.Pos())
	if err != nil {
		return nil, b.raise(expr.Pos(), err)
	}
	b.tokenMemo[key] = term
	return term, nil
}

// tokenTerm makes a terminal for a reference to a token rule, carrying
// any arguments along into the tokenizer compiler.
func (b *builder) tokenTerm(x *spec.NameExpr) (*Term, error) {
	key := spec.ExprString(x)
	if term, ok := b.tokenMemo[key]; ok {
		return term, nil
	}
	term := b.terms.makeTerminal(key, "")
	err := b.lex.AddToken(lexical.TermID(term.ID), key, x, x.Pos())
	if err != nil {
		return nil, b.raise(x.Pos(), err)
	}
	b.tokenMemo[key] = term
	return term, nil
}

func (b *builder) resolveName(x *spec.NameExpr, skip *skipInfo) (*Term, error) {
	if x.Namespace == "std" {
		return b.anonToken(x)
	}
	if x.Namespace != "" {
		for _, eg := range b.file.ExternalGrammars {
			if eg.Name == x.Namespace || eg.Alias == x.Namespace {
				name := fmt.Sprintf("%v.%v", x.Namespace, x.Name)
				if term, ok := b.terms.lookup(name); ok {
					return term, nil
				}
				return b.terms.makeTerminal(name, ""), nil
			}
		}
		return nil, b.raise(x.Pos(), fmt.Errorf("unknown namespace %v", x.Namespace))
	}

	if decl, ok := b.named[x.Name]; ok {
		b.used[x.Name] = true
		return b.instantiateRule(decl, x)
	}
	if _, ok := b.tokenDecls[x.Name]; ok {
		b.used[x.Name] = true
		return b.tokenTerm(x)
	}
	for _, ext := range b.externals {
		for _, t := range ext.Terms {
			if t.Name == x.Name {
				return t, nil
			}
		}
	}
	if term, ok := b.terms.lookup(x.Name); ok {
		return term, nil
	}
	return nil, b.raise(x.Pos(), fmt.Errorf("%w: %v", errUnknownRule, x.Name))
}

// instantiateRule expands a parameterized rule for one argument vector
// by capture-free substitution, memoized so syntactically equal
// instantiations share a term.
func (b *builder) instantiateRule(nd *namedDecl, call *spec.NameExpr) (*Term, error) {
	decl := nd.decl
	if len(call.Args) != len(decl.Params) {
		return nil, b.raise(call.Pos(), fmt.Errorf("%w for %v: want %v, have %v",
			errWrongArgCount, decl.Name, len(decl.Params), len(call.Args)))
	}

	env := map[string]spec.Expression{}
	for i, param := range decl.Params {
		env[param] = call.Args[i]
	}
	body, err := b.substitute(decl.Expr, env)
	if err != nil {
		return nil, err
	}

	name := decl.Name
	if len(call.Args) > 0 {
		var keys []string
		for _, a := range call.Args {
			keys = append(keys, spec.ExprString(a))
		}
		name = fmt.Sprintf("%v<%v>", decl.Name, strings.Join(keys, ", "))
	}
	if term, ok := b.ruleMemo[name]; ok {
		return term, nil
	}

	tag, err := b.resolveTag(decl.Tag, env)
	if err != nil {
		return nil, err
	}
	term := b.terms.makeNonTerminal(name, tag)
	if decl.Export {
		term.Flags |= TermPreserve
	}
	b.ruleMemo[name] = term

	skip := nd.skip
	if skip == nil {
		skip = b.topSkip
	}
	alts, err := b.normalizeExpr(body, skip)
	if err != nil {
		return nil, err
	}
	b.defineRule(term, alts, skip)
	return term, nil
}

// substitute replaces parameter references in an expression. Bound
// arguments were fully substituted at the call site already, so the
// substitution cannot capture.
func (b *builder) substitute(expr spec.Expression, env map[string]spec.Expression) (spec.Expression, error) {
	if len(env) == 0 {
		return expr, nil
	}
	switch x := expr.(type) {
	case nil:
		return nil, nil
	case *spec.NameExpr:
		bound, ok := env[x.Name]
		if ok && x.Namespace == "" {
			if len(x.Args) > 0 {
				return nil, b.raise(x.Pos(), errArgsToArgument)
			}
			return bound, nil
		}
		args, err := b.substituteList(x.Args, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Args = args
		return &cp, nil
	case *spec.SeqExpr:
		exprs, err := b.substituteList(x.Exprs, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Exprs = exprs
		return &cp, nil
	case *spec.ChoiceExpr:
		exprs, err := b.substituteList(x.Exprs, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Exprs = exprs
		return &cp, nil
	case *spec.RepeatExpr:
		sub, err := b.substitute(x.Expr, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Expr = sub
		return &cp, nil
	case *spec.TagExpr:
		sub, err := b.substitute(x.Expr, env)
		if err != nil {
			return nil, err
		}
		tag, err := b.substituteTag(x.Tag, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Expr = sub
		cp.Tag = tag
		return &cp, nil
	case *spec.SpecializeExpr:
		tok, err := b.substitute(x.Token, env)
		if err != nil {
			return nil, err
		}
		val, err := b.substitute(x.Value, env)
		if err != nil {
			return nil, err
		}
		cp := *x
		cp.Token = tok
		cp.Value = val
		return &cp, nil
	default:
		return expr, nil
	}
}

func (b *builder) substituteList(exprs []spec.Expression, env map[string]spec.Expression) ([]spec.Expression, error) {
	out := make([]spec.Expression, len(exprs))
	for i, e := range exprs {
		sub, err := b.substitute(e, env)
		if err != nil {
			return nil, err
		}
		out[i] = sub
	}
	return out, nil
}

// substituteTag resolves $name interpolations against the environment.
// The bound expression must be a plain name or a literal; anything else
// has no tag-segment form.
func (b *builder) substituteTag(tag *spec.Tag, env map[string]spec.Expression) (*spec.Tag, error) {
	if tag == nil {
		return nil, nil
	}
	cp := &spec.Tag{Pos: tag.Pos}
	for _, part := range tag.Parts {
		if !part.Interp {
			cp.Parts = append(cp.Parts, part)
			continue
		}
		bound, ok := env[part.Name]
		if !ok {
			cp.Parts = append(cp.Parts, part)
			continue
		}
		seg, err := tagSegment(bound)
		if err != nil {
			return nil, b.raise(tag.Pos, err)
		}
		cp.Parts = append(cp.Parts, spec.TagPart{Name: seg})
	}
	return cp, nil
}

func tagSegment(e spec.Expression) (string, error) {
	switch x := e.(type) {
	case *spec.NameExpr:
		if x.Namespace == "" && len(x.Args) == 0 {
			return x.Name, nil
		}
	case *spec.LiteralExpr:
		return x.Value, nil
	}
	return "", fmt.Errorf("this argument cannot be interpolated into a tag: %v", spec.ExprString(e))
}

func (b *builder) resolveTag(tag *spec.Tag, env map[string]spec.Expression) (string, error) {
	if tag == nil {
		return "", nil
	}
	resolved, err := b.substituteTag(tag, env)
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

// normalizeTagged wraps an expression into a fresh interesting
// non-terminal so the subtree survives inlining and labels a node.
func (b *builder) normalizeTagged(x *spec.TagExpr, skip *skipInfo) (*Term, error) {
	tag := ""
	if x.Tag != nil {
		tag = x.Tag.String()
	}
	key := fmt.Sprintf("%v:%v", spec.ExprString(x.Expr), tag)
	if term, ok := b.tagMemo[key]; ok {
		return term, nil
	}

	b.anonNum++
	term := b.terms.makeNonTerminal(fmt.Sprintf("%%tag%v", b.anonNum), tag)
	if tag == "" {
		term.Flags |= TermPreserve
	}
	b.tagMemo[key] = term

	if x.Expr == nil {
		b.defineRule(term, []alternative{emptyAlternative()}, skip)
		return term, nil
	}
	alts, err := b.normalizeExpr(x.Expr, skip)
	if err != nil {
		return nil, err
	}
	b.defineRule(term, alts, skip)
	return term, nil
}

func (b *builder) normalizeSpecialize(x *spec.SpecializeExpr) (*Term, error) {
	tokName, ok := x.Token.(*spec.NameExpr)
	if !ok {
		return nil, b.raise(x.Pos(), errSpecializeShape)
	}
	lit, ok := x.Value.(*spec.LiteralExpr)
	if !ok {
		return nil, b.raise(x.Pos(), errSpecializeShape)
	}
	base, err := b.resolveName(tokName, nil)
	if err != nil {
		return nil, err
	}
	if !base.IsTerminal() {
		return nil, b.raise(x.Pos(), errSpecializeShape)
	}

	key := fmt.Sprintf("%v/%q", base.ID, lit.Value)
	if term, ok := b.specialMemo[key]; ok {
		for _, sp := range b.specials {
			if sp.Term == term && sp.Extend != x.Extend {
				return nil, b.raise(x.Pos(), fmt.Errorf("%w: %q", errSpecializeConflict, lit.Value))
			}
		}
		return term, nil
	}

	tag := ""
	if x.Tag != nil {
		tag = x.Tag.String()
	}
	term := b.terms.makeTerminal(fmt.Sprintf("%v/%q", base.Name, lit.Value), tag)
	b.specialMemo[key] = term
	b.specials = append(b.specials, &Specialization{
		Base:   base,
		Term:   term,
		Value:  lit.Value,
		Extend: x.Extend,
	})
	b.tokenOrigins[term.ID] = base.ID
	return term, nil
}

func (b *builder) normalizeNest(x *spec.NestExpr) (*Term, error) {
	name := fmt.Sprintf("nest.%v", x.Name)
	if term, ok := b.terms.lookup(name); ok {
		return term, nil
	}
	tag := ""
	if x.Tag != nil {
		tag = x.Tag.String()
	}
	term := b.terms.makeTerminal(name, tag)
	end := ""
	if lit, ok := x.End.(*spec.LiteralExpr); ok {
		end = lit.Value
	}
	b.nested = append(b.nested, &NestedGrammar{
		Index:       len(b.nested),
		Name:        x.Name,
		Placeholder: term,
		End:         end,
	})
	return term, nil
}

// applyTokenPrecedences wires the `@precedence` lists of the @tokens
// block into the tokenizer's DAG: each list orders its members from
// highest to lowest.
func (b *builder) applyTokenPrecedences() error {
	if b.file.Tokens == nil {
		return nil
	}
	for _, decl := range b.file.Tokens.Precedences {
		var prev *Term
		for _, e := range decl.Tokens {
			term, ok := b.lookupTokenExpr(e)
			if !ok {
				b.warn(e.Pos(), fmt.Sprintf("precedence specified for unknown token %v", spec.ExprString(e)))
				continue
			}
			if prev != nil {
				b.lex.AddPrecedence(lexical.TermID(prev.ID), lexical.TermID(term.ID))
			}
			prev = term
		}
	}
	// Specializations outrank the tokens they specialize.
	for _, sp := range b.specials {
		b.lex.AddPrecedence(lexical.TermID(sp.Term.ID), lexical.TermID(sp.Base.ID))
	}
	return nil
}

func (b *builder) lookupTokenExpr(e spec.Expression) (*Term, bool) {
	switch x := e.(type) {
	case *spec.NameExpr:
		if term, ok := b.tokenMemo[spec.ExprString(x)]; ok {
			return term, ok
		}
		if _, ok := b.tokenDecls[x.Name]; ok && len(x.Args) == 0 {
			term, err := b.tokenTerm(x)
			if err == nil {
				return term, true
			}
		}
		return nil, false
	case *spec.LiteralExpr:
		term, ok := b.litMemo[x.Value]
		return term, ok
	}
	return nil, false
}

// standardPunctTags maps bracket and punctuation characters to the tag
// labels assigned by @punctuation.
var standardPunctTags = map[rune]string{
	'(': "punctuation.paren.open",
	')': "punctuation.paren.close",
	'[': "punctuation.bracket.open",
	']': "punctuation.bracket.close",
	'{': "punctuation.brace.open",
	'}': "punctuation.brace.close",
	'<': "punctuation.angle.open",
	'>': "punctuation.angle.close",
	'.': "punctuation.dot",
	',': "punctuation.comma",
	';': "punctuation.semicolon",
	':': "punctuation.colon",
}

func (b *builder) applyPunctuation() {
	for _, c := range b.punctuation {
		tag, ok := standardPunctTags[c]
		if !ok {
			continue
		}
		if term, ok := b.litMemo[string(c)]; ok && term.Tag == "" {
			term.Tag = tag
		}
	}
}

var matchingDelims = map[string]string{
	"(": ")",
	"[": "]",
	"{": "}",
	"<": ">",
}

// detectDelims appends delim metadata to the tag of every interesting
// rule whose body opens and closes with a matching bracket pair.
func (b *builder) detectDelims() {
	if !b.detectDelim {
		return
	}
	litOf := map[TermID]string{}
	for value, term := range b.litMemo {
		litOf[term.ID] = value
	}
	for _, r := range b.rules.all() {
		if r.lhs.Tag == "" || len(r.parts) < 2 {
			continue
		}
		open, ok := litOf[r.parts[0].ID]
		if !ok {
			continue
		}
		close_, ok := litOf[r.parts[len(r.parts)-1].ID]
		if !ok {
			continue
		}
		if matchingDelims[open] != close_ {
			continue
		}
		if strings.Contains(r.lhs.Tag, "delim=") {
			continue
		}
		r.lhs.Tag = fmt.Sprintf("%v.delim=%q", r.lhs.Tag, open+" "+close_)
	}
}

func (b *builder) warnUnused() {
	for name, nd := range b.named {
		if b.used[name] {
			continue
		}
		b.warn(nd.decl.DeclPos, fmt.Sprintf("unused rule %v", name))
	}
}
