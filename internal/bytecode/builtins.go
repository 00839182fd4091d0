package bytecode

import "github.com/simlin-project/simlin/internal/ident"

// Pure builtins are interned to stable ids for OpCallBuiltin.
var builtinNames = []ident.Ident{
	"abs", "exp", "ln", "log10", "sqrt",
	"sin", "cos", "tan", "arcsin", "arccos", "arctan",
	"int", "sign", "min", "max",
	"pulse", "step", "ramp", "rand",
}

var builtinIDs = func() map[ident.Ident]int {
	m := make(map[ident.Ident]int, len(builtinNames))
	for i, n := range builtinNames {
		m[n] = i
	}
	return m
}()

// BuiltinID returns the opcode operand for a pure builtin.
func BuiltinID(name ident.Ident) (int, bool) {
	id, ok := builtinIDs[name]
	return id, ok
}

// BuiltinName is the inverse of BuiltinID.
func BuiltinName(id int) ident.Ident {
	if id < 0 || id >= len(builtinNames) {
		return ""
	}
	return builtinNames[id]
}
