package spec

import (
	"strings"
	"testing"
)

func TestLexer_Run(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		tokens  []*token
	}{
		{
			caption: "identifiers, keywords, and punctuation",
			src:     "@top { Expr } rule-name | : = ! ~ + * ? _",
			tokens: []*token{
				{kind: tokenKindKeyword, text: "top"},
				{kind: tokenKindLBrace},
				{kind: tokenKindID, text: "Expr"},
				{kind: tokenKindRBrace},
				{kind: tokenKindID, text: "rule-name"},
				{kind: tokenKindOr},
				{kind: tokenKindColon},
				{kind: tokenKindEqual},
				{kind: tokenKindBang},
				{kind: tokenKindTilde},
				{kind: tokenKindPlus},
				{kind: tokenKindStar},
				{kind: tokenKindQuestion},
				{kind: tokenKindUnderscore},
				{kind: tokenKindEOF},
			},
		},
		{
			caption: "comments are skipped",
			src:     "a // to end of line\n/* block\n comment */ b",
			tokens: []*token{
				{kind: tokenKindID, text: "a"},
				{kind: tokenKindID, text: "b"},
				{kind: tokenKindEOF},
			},
		},
		{
			caption: "strings with escapes",
			src:     `"ab" 'c' "\n\t\r\b\0" "\x41B\u{1F600}" "\q"`,
			tokens: []*token{
				{kind: tokenKindString, text: "ab"},
				{kind: tokenKindString, text: "c"},
				{kind: tokenKindString, text: "\n\t\r\b\x00"},
				{kind: tokenKindString, text: "AB\U0001F600"},
				{kind: tokenKindString, text: "q"},
				{kind: tokenKindEOF},
			},
		},
		{
			caption: "namespaced reference",
			src:     "std.digit",
			tokens: []*token{
				{kind: tokenKindID, text: "std"},
				{kind: tokenKindDot},
				{kind: tokenKindID, text: "digit"},
				{kind: tokenKindEOF},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			l, err := newLexer(strings.NewReader(tt.src), "test")
			if err != nil {
				t.Fatal(err)
			}
			for i, want := range tt.tokens {
				got, err := l.next()
				if err != nil {
					t.Fatalf("unexpected error at token %v: %v", i, err)
				}
				if got.kind != want.kind || got.text != want.text {
					t.Fatalf("token %v: want (%v, %q), got (%v, %q)", i, want.kind, want.text, got.kind, got.text)
				}
			}
		})
	}
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		caption string
		src     string
		msg     string
	}{
		{
			caption: "unterminated string",
			src:     `"abc`,
			msg:     "unterminated string literal",
		},
		{
			caption: "unterminated block comment",
			src:     "/* no end",
			msg:     "unterminated block comment",
		},
		{
			caption: "bad hex escape",
			src:     `"\xZZ"`,
			msg:     "invalid hexadecimal escape",
		},
	}
	for _, tt := range tests {
		t.Run(tt.caption, func(t *testing.T) {
			l, err := newLexer(strings.NewReader(tt.src), "test")
			if err != nil {
				t.Fatal(err)
			}
			for {
				tok, err := l.next()
				if err != nil {
					if !strings.Contains(err.Error(), tt.msg) {
						t.Fatalf("want an error containing %q, got %q", tt.msg, err.Error())
					}
					return
				}
				if tok.kind == tokenKindEOF {
					t.Fatalf("want an error containing %q, got none", tt.msg)
				}
			}
		})
	}
}

func TestLexer_CharSetBody(t *testing.T) {
	l, err := newLexer(strings.NewReader(`^a-zA-Z]`), "test")
	if err != nil {
		t.Fatal(err)
	}
	ranges, inverted, err := l.lexCharSetBody(newPosition(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !inverted {
		t.Fatalf("want an inverted set")
	}
	want := [][2]rune{{'a', 'z'}, {'A', 'Z'}}
	if len(ranges) != len(want) {
		t.Fatalf("want %v ranges, got %v", len(want), len(ranges))
	}
	for i, r := range want {
		if ranges[i] != r {
			t.Fatalf("range %v: want %v, got %v", i, r, ranges[i])
		}
	}
}
