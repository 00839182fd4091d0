package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/testutil"
)

// The printed form of each equation is pinned by a golden file, which
// keeps operator normalization and spacing stable across refactors.
func TestPrintGolden(t *testing.T) {
	inputs := []string{
		"1+2*3",
		"if x > 0 then x else -x",
		"max(a, b ^ 2)",
		"a[1:3, *]'",
		"not a and b <= c",
		`"Birth Rate" / 2`,
	}

	var b strings.Builder
	for _, input := range inputs {
		e, errs := Parse(input)
		require.False(t, errs.HasErrors(), "parse %q: %v", input, errs)
		b.WriteString(input)
		b.WriteString(" => ")
		b.WriteString(ast.Print(e))
		b.WriteByte('\n')
	}
	testutil.AssertGolden(t, "print", b.String())
}
