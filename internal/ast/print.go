package ast

import (
	"fmt"
	"strings"
)

// Print renders an expression back to equation syntax. Output uses the
// normalized operator spellings, so it is stable under reparsing but not
// byte-identical to arbitrary input.
func Print(e Expr) string {
	var b strings.Builder
	printExpr(&b, e)
	return b.String()
}

func printExpr(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case *Const:
		b.WriteString(n.Text)
	case *Var:
		b.WriteString(string(n.Name))
	case *App:
		b.WriteString(string(n.Name))
		b.WriteByte('(')
		for i, arg := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printExpr(b, arg)
		}
		b.WriteByte(')')
	case *Subscript:
		b.WriteString(string(n.Base))
		b.WriteByte('[')
		for i, sub := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			printSub(b, sub)
		}
		b.WriteByte(']')
	case *Op1:
		switch n.Op {
		case Positive:
			b.WriteByte('+')
		case Negative:
			b.WriteByte('-')
		case Not:
			b.WriteByte('!')
		}
		printExpr(b, n.X)
	case *Op2:
		b.WriteByte('(')
		printExpr(b, n.X)
		fmt.Fprintf(b, " %s ", n.Op)
		printExpr(b, n.Y)
		b.WriteByte(')')
	case *If:
		b.WriteString("if ")
		printExpr(b, n.Cond)
		b.WriteString(" then ")
		printExpr(b, n.T)
		b.WriteString(" else ")
		printExpr(b, n.F)
	case *Transpose:
		printExpr(b, n.X)
		b.WriteByte('\'')
	}
}

func printSub(b *strings.Builder, s SubElement) {
	switch n := s.(type) {
	case *SubExpr:
		printExpr(b, n.X)
	case *SubWildcard:
		b.WriteByte('*')
	case *SubRange:
		printExpr(b, n.Lo)
		b.WriteByte(':')
		printExpr(b, n.Hi)
	case *SubStarRange:
		fmt.Fprintf(b, "*:%s", n.Dim)
	case *SubDimPosition:
		fmt.Fprintf(b, "@%d", n.N)
	}
}
