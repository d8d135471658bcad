package spec

import (
	"fmt"
	"strings"
)

// ExprString renders an expression into a canonical, position-free
// form. Two expressions are structurally equal iff their renderings are
// equal, which makes the result usable as a memoization key.
func ExprString(e Expression) string {
	var b strings.Builder
	writeExpr(&b, e)
	return b.String()
}

func writeExpr(b *strings.Builder, e Expression) {
	switch x := e.(type) {
	case nil:
		b.WriteString("ε")
	case *NameExpr:
		if x.Namespace != "" {
			fmt.Fprintf(b, "%v.", x.Namespace)
		}
		b.WriteString(x.Name)
		if len(x.Args) > 0 {
			b.WriteByte('<')
			for i, a := range x.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				writeExpr(b, a)
			}
			b.WriteByte('>')
		}
	case *LiteralExpr:
		fmt.Fprintf(b, "%q", x.Value)
	case *AnyCharExpr:
		b.WriteByte('_')
	case *SetExpr:
		b.WriteByte('[')
		if x.Inverted {
			b.WriteByte('^')
		}
		for _, r := range x.Ranges {
			if r[0] == r[1] {
				fmt.Fprintf(b, "\\u{%x}", r[0])
			} else {
				fmt.Fprintf(b, "\\u{%x}-\\u{%x}", r[0], r[1])
			}
		}
		b.WriteByte(']')
	case *SeqExpr:
		var pieces []string
		for i, sub := range x.Exprs {
			for _, m := range x.Markers[i] {
				pieces = append(pieces, markerString(m))
			}
			pieces = append(pieces, ExprString(sub))
		}
		for _, m := range x.Markers[len(x.Exprs)] {
			pieces = append(pieces, markerString(m))
		}
		fmt.Fprintf(b, "(%v)", strings.Join(pieces, " "))
	case *ChoiceExpr:
		b.WriteByte('(')
		for i, sub := range x.Exprs {
			if i > 0 {
				b.WriteString(" | ")
			}
			writeExpr(b, sub)
		}
		b.WriteByte(')')
	case *RepeatExpr:
		writeExpr(b, x.Expr)
		b.WriteByte(byte(x.Kind))
	case *TagExpr:
		if x.Expr == nil {
			fmt.Fprintf(b, ":%v", x.Tag)
		} else {
			b.WriteString("tagged(")
			writeExpr(b, x.Expr)
			b.WriteByte(')')
			if x.Tag != nil {
				fmt.Fprintf(b, ":%v", x.Tag)
			}
		}
	case *SpecializeExpr:
		kw := "specialize"
		if x.Extend {
			kw = "extend"
		}
		fmt.Fprintf(b, "@%v<", kw)
		writeExpr(b, x.Token)
		b.WriteString(", ")
		writeExpr(b, x.Value)
		if x.Tag != nil {
			fmt.Fprintf(b, ":%v", x.Tag)
		}
		b.WriteByte('>')
	case *NestExpr:
		fmt.Fprintf(b, "nest.%v<", x.Name)
		if x.Tag != nil {
			fmt.Fprintf(b, ":%v", x.Tag)
		}
		if x.End != nil {
			b.WriteString(", ")
			writeExpr(b, x.End)
		}
		b.WriteByte('>')
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

func markerString(m ConflictMarker) string {
	if m.Precedence {
		return "!" + m.Name
	}
	return "~" + m.Name
}
