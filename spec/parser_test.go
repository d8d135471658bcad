package spec

import (
	"strings"
	"testing"
)

func parseSource(t *testing.T, src string) *GrammarFile {
	t.Helper()
	file, err := Parse(strings.NewReader(src), "test")
	if err != nil {
		t.Fatal(err)
	}
	return file
}

func TestParse_Declarations(t *testing.T) {
	src := `
@top { Expr }

@precedence { times @left, plus @left, cond @cut }

@tokens {
  num { std.digit+ }
  space { std.whitespace+ }
  @precedence { num, space }
}

@skip { space }

@external-tokens indents from "./tokens" { indent = :indent, dedent }

@external-grammar js as javascript from "lang-javascript"

@tags {
  num = :number.value
  @export Statement :statement
  @punctuation "()"
  @detect-delim
}

Expr { Expr !times "*" Expr | Expr !plus "+" Expr | num }
`
	file := parseSource(t, src)

	if file.Top == nil {
		t.Fatalf("missing top declaration")
	}
	if name, ok := file.Top.Expr.(*NameExpr); !ok || name.Name != "Expr" {
		t.Fatalf("top must reference Expr, got %v", ExprString(file.Top.Expr))
	}

	if len(file.Precedences) != 1 || len(file.Precedences[0].Items) != 3 {
		t.Fatalf("want one precedence block with 3 items")
	}
	if file.Precedences[0].Items[0].Assoc != PrecLeft || file.Precedences[0].Items[2].Assoc != PrecCut {
		t.Fatalf("wrong associativities: %+v", file.Precedences[0].Items)
	}

	if file.Tokens == nil || len(file.Tokens.Rules) != 2 || len(file.Tokens.Precedences) != 1 {
		t.Fatalf("@tokens block parsed wrong")
	}

	if len(file.Skip) != 1 {
		t.Fatalf("want one skip declaration")
	}

	if len(file.ExternalTokens) != 1 || file.ExternalTokens[0].Source != "./tokens" {
		t.Fatalf("@external-tokens parsed wrong")
	}
	items := file.ExternalTokens[0].Tokens
	if len(items) != 2 || items[0].Tag == nil || items[1].Tag != nil {
		t.Fatalf("external token items parsed wrong: %+v", items)
	}

	if len(file.ExternalGrammars) != 1 {
		t.Fatalf("want one external grammar")
	}
	eg := file.ExternalGrammars[0]
	if eg.Name != "js" || eg.Alias != "javascript" || eg.Source != "lang-javascript" {
		t.Fatalf("@external-grammar parsed wrong: %+v", eg)
	}

	if len(file.Tags) != 1 {
		t.Fatalf("want one @tags block")
	}
	tags := file.Tags[0]
	if len(tags.Assigns) != 1 || tags.Assigns[0].Tag.String() != "number.value" {
		t.Fatalf("tag assignment parsed wrong")
	}
	if len(tags.Exports) != 1 || tags.Exports[0].Name != "Statement" {
		t.Fatalf("tag export parsed wrong")
	}
	if len(tags.Punctuation) != 1 || !tags.DetectDelim {
		t.Fatalf("punctuation/detect-delim parsed wrong")
	}

	if len(file.Rules) != 1 || file.Rules[0].Name != "Expr" {
		t.Fatalf("rules parsed wrong")
	}
}

func TestParse_Expressions(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		want    string
	}{
		{
			caption: "conflict markers sit between sequence elements",
			src:     `@top { a !p b ~q c }`,
			want:    `(a !p b ~q c)`,
		},
		{
			caption: "repeats and options",
			src:     `@top { a* b+ c? }`,
			want:    `(a* b+ c?)`,
		},
		{
			caption: "choice of literals and sets",
			src:     `@top { "x" | [a-z] | _ }`,
			want:    `("x" | [\u{61}-\u{7a}] | _)`,
		},
		{
			caption: "specialize with a tag",
			src:     `@top { @specialize<id, "if" :keyword> }`,
			want:    `@specialize<id, "if":keyword>`,
		},
		{
			caption: "nested grammar",
			src:     `@top { nest.js<:block, "}"> }`,
			want:    `nest.js<:block, "}">`,
		},
		{
			caption: "parameterized call",
			src:     `@top { commaSep<expr> }`,
			want:    `commaSep<expr>`,
		},
		{
			caption: "inline naming",
			src:     `@top { (a b) = group }`,
			want:    `tagged((a b)):group`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			file := parseSource(t, tt.src)
			got := ExprString(file.Top.Expr)
			if got != tt.want {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		msg     string
	}{
		{
			caption: "missing top",
			src:     `X { "a" }`,
			msg:     "missing @top declaration",
		},
		{
			caption: "duplicate top",
			src:     `@top { a } @top { b }`,
			msg:     "duplicate @top declaration",
		},
		{
			caption: "rule named as directly after external grammar",
			src:     `@top { x } @external-grammar js as { "a" }`,
			msg:     "expected an alias after 'as'",
		},
		{
			caption: "unexpected token",
			src:     `@top { a } }`,
			msg:     "unexpected token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src), "test")
			if err == nil {
				t.Fatalf("want an error containing %q, got none", tt.msg)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("want an error containing %q, got %q", tt.msg, err.Error())
			}
		})
	}
}
