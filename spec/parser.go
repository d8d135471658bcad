package spec

import (
	"fmt"
	"io"

	verr "github.com/nihei9/urartu/error"
)

// Parse reads a grammar file. The returned error is a verr.SpecErrors
// value when the failure has a source position.
func Parse(src io.Reader, name string) (*GrammarFile, error) {
	lex, err := newLexer(src, name)
	if err != nil {
		return nil, err
	}
	p := &parser{
		lex: lex,
	}
	return p.parse()
}

type parser struct {
	lex       *lexer
	peekedTok *token
	lastTok   *token
}

func raiseSyntaxError(pos Position, format string, args ...interface{}) {
	panic(&SyntaxError{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *parser) parse() (file *GrammarFile, retErr error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		synErr, ok := v.(*SyntaxError)
		if !ok {
			panic(v)
		}
		retErr = verr.SpecErrors{
			{
				Cause: synErr,
				Row:   synErr.Pos.Row,
				Col:   synErr.Pos.Col,
			},
		}
	}()

	file = &GrammarFile{}
	for {
		if p.consume(tokenKindEOF) {
			break
		}
		p.parseDeclaration(file)
	}
	if file.Top == nil {
		raiseSyntaxError(p.lastPos(), "missing @top declaration")
	}
	return file, nil
}

func (p *parser) next() *token {
	if p.peekedTok != nil {
		p.lastTok = p.peekedTok
		p.peekedTok = nil
		return p.lastTok
	}
	tok, err := p.lex.next()
	if err != nil {
		if synErr, ok := err.(*SyntaxError); ok {
			panic(synErr)
		}
		panic(&SyntaxError{Pos: p.lex.pos(), Message: err.Error()})
	}
	p.lastTok = tok
	return tok
}

func (p *parser) peek() *token {
	if p.peekedTok == nil {
		last := p.lastTok
		p.peekedTok = p.next()
		p.lastTok = last
	}
	return p.peekedTok
}

func (p *parser) consume(kind tokenKind) bool {
	if p.peek().kind != kind {
		return false
	}
	p.next()
	return true
}

func (p *parser) expect(kind tokenKind) *token {
	tok := p.next()
	if tok.kind != kind {
		raiseSyntaxError(tok.pos, "expected %v, found %v", kind, describeToken(tok))
	}
	return tok
}

func describeToken(tok *token) string {
	switch tok.kind {
	case tokenKindID:
		return fmt.Sprintf("%q", tok.text)
	case tokenKindKeyword:
		return fmt.Sprintf("@%v", tok.text)
	case tokenKindString:
		return fmt.Sprintf("string %q", tok.text)
	case tokenKindEOF:
		return "end of file"
	default:
		return fmt.Sprintf("%q", string(tok.kind))
	}
}

func (p *parser) lastPos() Position {
	if p.lastTok != nil {
		return p.lastTok.pos
	}
	return newPosition(1, 1)
}

func (p *parser) parseDeclaration(file *GrammarFile) {
	tok := p.peek()
	if tok.kind == tokenKindKeyword {
		p.next()
		switch tok.text {
		case "top":
			if file.Top != nil {
				raiseSyntaxError(tok.pos, "duplicate @top declaration")
			}
			p.expect(tokenKindLBrace)
			expr := p.parseChoice()
			p.expect(tokenKindRBrace)
			file.Top = &RuleDecl{DeclPos: tok.pos, Name: "@top", Expr: expr}
		case "tokens":
			if file.Tokens != nil {
				raiseSyntaxError(tok.pos, "duplicate @tokens declaration")
			}
			file.Tokens = p.parseTokens(tok.pos)
		case "external-tokens":
			file.ExternalTokens = append(file.ExternalTokens, p.parseExternalTokens(tok.pos))
		case "external-grammar":
			file.ExternalGrammars = append(file.ExternalGrammars, p.parseExternalGrammar(tok.pos))
		case "precedence":
			file.Precedences = append(file.Precedences, p.parsePrecedence(tok.pos))
		case "skip":
			file.Skip = append(file.Skip, p.parseSkip(tok.pos))
		case "tags":
			file.Tags = append(file.Tags, p.parseTags(tok.pos))
		case "export":
			rule := p.parseRule()
			rule.Export = true
			file.Rules = append(file.Rules, rule)
		default:
			raiseSyntaxError(tok.pos, "unexpected keyword @%v", tok.text)
		}
		return
	}
	if tok.kind == tokenKindID {
		file.Rules = append(file.Rules, p.parseRule())
		return
	}
	raiseSyntaxError(tok.pos, "unexpected token %v", describeToken(tok))
}

// parseRule parses `Id[<params>] [= name] [[props]] { expr }`. The
// leading @export, when present, was consumed by the caller.
func (p *parser) parseRule() *RuleDecl {
	id := p.expect(tokenKindID)
	rule := &RuleDecl{
		DeclPos: id.pos,
		Name:    id.text,
	}
	if p.consume(tokenKindLAngle) {
		for {
			param := p.expect(tokenKindID)
			rule.Params = append(rule.Params, param.text)
			if !p.consume(tokenKindComma) {
				break
			}
		}
		p.expect(tokenKindRAngle)
	}
	if p.consume(tokenKindEqual) {
		name := p.expect(tokenKindID)
		rule.Tag = &Tag{Pos: name.pos, Parts: []TagPart{{Name: name.text}}}
	}
	if p.consume(tokenKindLBracket) {
		props := p.parseTagProps()
		if rule.Tag == nil {
			rule.Tag = &Tag{Pos: p.lastPos()}
		}
		rule.Tag.Parts = append(rule.Tag.Parts, props...)
	}
	p.expect(tokenKindLBrace)
	rule.Expr = p.parseChoice()
	p.expect(tokenKindRBrace)
	return rule
}

func (p *parser) parseTagProps() []TagPart {
	var props []TagPart
	for {
		name := p.expect(tokenKindID)
		p.expect(tokenKindEqual)
		value := p.expect(tokenKindString)
		props = append(props, TagPart{Name: name.text, Value: value.text, IsProp: true})
		if !p.consume(tokenKindComma) {
			break
		}
	}
	p.expect(tokenKindRBracket)
	return props
}

func (p *parser) parseTokens(pos Position) *TokensDecl {
	decl := &TokensDecl{DeclPos: pos}
	p.expect(tokenKindLBrace)
	for !p.consume(tokenKindRBrace) {
		tok := p.peek()
		if tok.kind == tokenKindKeyword && tok.text == "precedence" {
			p.next()
			decl.Precedences = append(decl.Precedences, p.parseTokenPrecedence(tok.pos))
			continue
		}
		if tok.kind != tokenKindID {
			raiseSyntaxError(tok.pos, "expected a token rule, found %v", describeToken(tok))
		}
		decl.Rules = append(decl.Rules, p.parseRule())
	}
	return decl
}

func (p *parser) parseTokenPrecedence(pos Position) *TokenPrecDecl {
	decl := &TokenPrecDecl{DeclPos: pos}
	p.expect(tokenKindLBrace)
	for !p.consume(tokenKindRBrace) {
		tok := p.next()
		switch tok.kind {
		case tokenKindID:
			decl.Tokens = append(decl.Tokens, &NameExpr{exprBase: exprBase{pos: tok.pos}, Name: tok.text})
		case tokenKindString:
			decl.Tokens = append(decl.Tokens, &LiteralExpr{exprBase: exprBase{pos: tok.pos}, Value: tok.text})
		case tokenKindComma:
		default:
			raiseSyntaxError(tok.pos, "expected a token name, found %v", describeToken(tok))
		}
	}
	return decl
}

func (p *parser) parseExternalTokens(pos Position) *ExternalTokensDecl {
	name := p.expect(tokenKindID)
	from := p.expect(tokenKindID)
	if from.text != "from" {
		raiseSyntaxError(from.pos, "expected 'from', found %q", from.text)
	}
	source := p.expect(tokenKindString)
	decl := &ExternalTokensDecl{
		DeclPos: pos,
		Name:    name.text,
		Source:  source.text,
	}
	p.expect(tokenKindLBrace)
	for !p.consume(tokenKindRBrace) {
		id := p.expect(tokenKindID)
		item := &ExternalTokenItem{Pos: id.pos, Name: id.text}
		if p.consume(tokenKindEqual) {
			item.Tag = p.parseTag()
		}
		decl.Tokens = append(decl.Tokens, item)
		p.consume(tokenKindComma)
	}
	return decl
}

// parseExternalGrammar parses `@external-grammar NAME [as id] [from "source"]`.
// An identifier `as` or `from` right after the form is always read as the
// clause keyword, so a rule named `as` or `from` cannot directly follow
// it: such a rule fails with the clause's own syntax error.
func (p *parser) parseExternalGrammar(pos Position) *ExternalGrammarDecl {
	name := p.expect(tokenKindID)
	decl := &ExternalGrammarDecl{
		DeclPos: pos,
		Name:    name.text,
	}
	for p.peek().kind == tokenKindID {
		clause := p.peek()
		switch clause.text {
		case "as":
			p.next()
			alias := p.next()
			if alias.kind != tokenKindID {
				raiseSyntaxError(alias.pos, "expected an alias after 'as'")
			}
			decl.Alias = alias.text
		case "from":
			p.next()
			source := p.next()
			if source.kind != tokenKindString {
				raiseSyntaxError(source.pos, "expected a source string after 'from'")
			}
			decl.Source = source.text
		default:
			return decl
		}
	}
	if next := p.peek(); next.kind == tokenKindID && (next.text == "as" || next.text == "from") {
		raiseSyntaxError(next.pos, "a rule named %q may not directly follow @external-grammar; move the rule elsewhere", next.text)
	}
	return decl
}

func (p *parser) parsePrecedence(pos Position) *PrecGroupDecl {
	decl := &PrecGroupDecl{DeclPos: pos}
	p.expect(tokenKindLBrace)
	for !p.consume(tokenKindRBrace) {
		id := p.expect(tokenKindID)
		item := PrecItem{Pos: id.pos, Name: id.text, Assoc: PrecNone}
		if p.peek().kind == tokenKindKeyword {
			kw := p.next()
			switch kw.text {
			case "left":
				item.Assoc = PrecLeft
			case "right":
				item.Assoc = PrecRight
			case "cut":
				item.Assoc = PrecCut
			default:
				raiseSyntaxError(kw.pos, "expected @left, @right, or @cut, found @%v", kw.text)
			}
		}
		decl.Items = append(decl.Items, item)
		p.consume(tokenKindComma)
	}
	return decl
}

func (p *parser) parseSkip(pos Position) *SkipDecl {
	decl := &SkipDecl{DeclPos: pos}
	p.expect(tokenKindLBrace)
	decl.Expr = p.parseChoice()
	p.expect(tokenKindRBrace)
	if p.peek().kind == tokenKindLBrace {
		p.next()
		for !p.consume(tokenKindRBrace) {
			tok := p.peek()
			export := false
			if tok.kind == tokenKindKeyword && tok.text == "export" {
				p.next()
				export = true
			}
			rule := p.parseRule()
			rule.Export = export
			decl.Rules = append(decl.Rules, rule)
		}
	}
	return decl
}

func (p *parser) parseTags(pos Position) *TagsDecl {
	decl := &TagsDecl{DeclPos: pos}
	p.expect(tokenKindLBrace)
	for !p.consume(tokenKindRBrace) {
		tok := p.peek()
		if tok.kind == tokenKindKeyword {
			p.next()
			switch tok.text {
			case "export":
				id := p.expect(tokenKindID)
				decl.Exports = append(decl.Exports, &TagExport{
					Pos:  id.pos,
					Name: id.text,
					Tag:  p.parseTag(),
				})
			case "punctuation":
				s := p.expect(tokenKindString)
				decl.Punctuation = append(decl.Punctuation, s.text)
			case "detect-delim":
				decl.DetectDelim = true
			default:
				raiseSyntaxError(tok.pos, "unexpected keyword @%v in @tags", tok.text)
			}
		} else {
			id := p.expect(tokenKindID)
			p.expect(tokenKindEqual)
			decl.Assigns = append(decl.Assigns, &TagAssign{
				Pos:  id.pos,
				Term: id.text,
				Tag:  p.parseTag(),
			})
		}
		p.consume(tokenKindComma)
	}
	return decl
}

// parseTag parses `:part(.part)*`. Each part is a name, a `$name`
// interpolation, or a `name="value"` property.
func (p *parser) parseTag() *Tag {
	colon := p.expect(tokenKindColon)
	return p.parseTagRest(colon.pos)
}

func (p *parser) parseTagRest(pos Position) *Tag {
	tag := &Tag{Pos: pos}
	for {
		if p.consume(tokenKindDollar) {
			id := p.expect(tokenKindID)
			tag.Parts = append(tag.Parts, TagPart{Name: id.text, Interp: true})
		} else {
			id := p.expect(tokenKindID)
			part := TagPart{Name: id.text}
			if p.consume(tokenKindEqual) {
				value := p.expect(tokenKindString)
				part.Value = value.text
				part.IsProp = true
			}
			tag.Parts = append(tag.Parts, part)
		}
		if !p.consume(tokenKindDot) {
			break
		}
	}
	return tag
}

func (p *parser) parseChoice() Expression {
	pos := p.peek().pos
	first := p.parseSequence()
	if p.peek().kind != tokenKindOr {
		return first
	}
	exprs := []Expression{first}
	for p.consume(tokenKindOr) {
		exprs = append(exprs, p.parseSequence())
	}
	return &ChoiceExpr{exprBase: exprBase{pos: pos}, Exprs: exprs}
}

var exprStartKinds = map[tokenKind]struct{}{
	tokenKindID:         {},
	tokenKindString:     {},
	tokenKindLBracket:   {},
	tokenKindLParen:     {},
	tokenKindUnderscore: {},
	tokenKindColon:      {},
	tokenKindKeyword:    {},
	tokenKindBang:       {},
	tokenKindTilde:      {},
}

func (p *parser) parseSequence() Expression {
	pos := p.peek().pos
	var exprs []Expression
	markers := [][]ConflictMarker{nil}
	for {
		for {
			tok := p.peek()
			if tok.kind == tokenKindTilde || tok.kind == tokenKindBang {
				p.next()
				id := p.expect(tokenKindID)
				markers[len(markers)-1] = append(markers[len(markers)-1], ConflictMarker{
					Pos:        tok.pos,
					Name:       id.text,
					Precedence: tok.kind == tokenKindBang,
				})
				continue
			}
			break
		}
		tok := p.peek()
		if _, ok := exprStartKinds[tok.kind]; !ok {
			break
		}
		if tok.kind == tokenKindKeyword && tok.text != "specialize" && tok.text != "extend" {
			break
		}
		exprs = append(exprs, p.parseElement())
		markers = append(markers, nil)
	}
	if len(exprs) == 0 {
		// An empty alternative.
		return &SeqExpr{exprBase: exprBase{pos: pos}, Markers: markers}
	}
	if len(exprs) == 1 && markers[0] == nil && markers[1] == nil {
		return exprs[0]
	}
	return &SeqExpr{exprBase: exprBase{pos: pos}, Exprs: exprs, Markers: markers}
}

func (p *parser) parseElement() Expression {
	expr := p.parsePrimary()
	for {
		switch p.peek().kind {
		case tokenKindStar:
			p.next()
			expr = &RepeatExpr{exprBase: exprBase{pos: expr.Pos()}, Expr: expr, Kind: RepeatZeroOrMore}
		case tokenKindPlus:
			p.next()
			expr = &RepeatExpr{exprBase: exprBase{pos: expr.Pos()}, Expr: expr, Kind: RepeatOneOrMore}
		case tokenKindQuestion:
			p.next()
			expr = &RepeatExpr{exprBase: exprBase{pos: expr.Pos()}, Expr: expr, Kind: RepeatOptional}
		case tokenKindEqual:
			p.next()
			id := p.expect(tokenKindID)
			expr = &TagExpr{
				exprBase: exprBase{pos: expr.Pos()},
				Expr:     expr,
				Tag:      &Tag{Pos: id.pos, Parts: []TagPart{{Name: id.text}}},
			}
		default:
			return expr
		}
	}
}

func (p *parser) parsePrimary() Expression {
	tok := p.next()
	switch tok.kind {
	case tokenKindLParen:
		expr := p.parseChoice()
		p.expect(tokenKindRParen)
		return expr
	case tokenKindString:
		return &LiteralExpr{exprBase: exprBase{pos: tok.pos}, Value: tok.text}
	case tokenKindLBracket:
		ranges, inverted, err := p.lex.lexCharSetBody(tok.pos)
		if err != nil {
			if synErr, ok := err.(*SyntaxError); ok {
				panic(synErr)
			}
			panic(&SyntaxError{Pos: tok.pos, Message: err.Error()})
		}
		return &SetExpr{exprBase: exprBase{pos: tok.pos}, Ranges: ranges, Inverted: inverted}
	case tokenKindUnderscore:
		return &AnyCharExpr{exprBase: exprBase{pos: tok.pos}}
	case tokenKindColon:
		return &TagExpr{exprBase: exprBase{pos: tok.pos}, Tag: p.parseTagRest(tok.pos)}
	case tokenKindKeyword:
		switch tok.text {
		case "specialize", "extend":
			p.expect(tokenKindLAngle)
			token := p.parseElement()
			p.expect(tokenKindComma)
			value := p.parseElement()
			var tag *Tag
			if p.peek().kind == tokenKindColon {
				tag = p.parseTag()
			}
			p.expect(tokenKindRAngle)
			return &SpecializeExpr{
				exprBase: exprBase{pos: tok.pos},
				Extend:   tok.text == "extend",
				Token:    token,
				Value:    value,
				Tag:      tag,
			}
		}
		raiseSyntaxError(tok.pos, "unexpected keyword @%v in an expression", tok.text)
	case tokenKindID:
		if tok.text == "tagged" && p.peek().kind == tokenKindLParen {
			p.next()
			expr := p.parseChoice()
			p.expect(tokenKindRParen)
			return &TagExpr{exprBase: exprBase{pos: tok.pos}, Expr: expr}
		}
		ns := ""
		name := tok.text
		if p.peek().kind == tokenKindDot {
			p.next()
			ns = name
			id := p.expect(tokenKindID)
			name = id.text
		}
		var args []Expression
		if p.consume(tokenKindLAngle) {
			for {
				args = append(args, p.parseChoice())
				if !p.consume(tokenKindComma) {
					break
				}
			}
			p.expect(tokenKindRAngle)
		}
		if ns == "nest" {
			return p.makeNestExpr(tok.pos, name, args)
		}
		return &NameExpr{exprBase: exprBase{pos: tok.pos}, Namespace: ns, Name: name, Args: args}
	}
	raiseSyntaxError(tok.pos, "unexpected token %v", describeToken(tok))
	return nil
}

func (p *parser) makeNestExpr(pos Position, name string, args []Expression) Expression {
	nest := &NestExpr{exprBase: exprBase{pos: pos}, Name: name}
	for _, arg := range args {
		switch a := arg.(type) {
		case *TagExpr:
			if a.Expr == nil && nest.Tag == nil {
				nest.Tag = a.Tag
				continue
			}
		case *LiteralExpr:
			if nest.End == nil {
				nest.End = a
				continue
			}
		}
		raiseSyntaxError(arg.Pos(), "a nested grammar takes an optional tag and an optional end token")
	}
	return nest
}
