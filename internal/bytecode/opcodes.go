// Package bytecode defines the opcode set and chunk representation the VM
// executes.
//
// Instructions are fixed-width: an opcode plus integer operands A and B,
// and a third operand C that only OpCopyVar uses.
// Jumps hold absolute instruction offsets, resolved at compile time.
package bytecode

type OpCode int

const (
	// OpPushConst pushes Consts[A].
	OpPushConst OpCode = iota
	// OpLoadVar pushes state[A].
	OpLoadVar
	// OpStoreVar pops into state[A].
	OpStoreVar
	// OpStoreTemp pops into scratch[A].
	OpStoreTemp
	// OpCopyVar copies C slots from state[A]... to state[B]...; operands
	// are A=src, B=dst and the count rides in C.
	OpCopyVar

	// OpOp1 applies unary op A (Neg, Not).
	OpOp1
	// OpOp2 pops y then x and applies binary op A.
	OpOp2

	// OpJump sets pc to A.
	OpJump
	// OpJumpIfFalse pops the condition and jumps to A when it is zero.
	OpJumpIfFalse

	// OpCallBuiltin calls pure builtin A with B arguments popped from the
	// stack (first argument deepest).
	OpCallBuiltin
	// OpLookup pops x and pushes GFs[A] applied to it.
	OpLookup

	// OpLoadDyn pushes one element of Views[A]. The view's dynamic axes
	// consume 1-based indices popped from the stack (last axis on top).
	OpLoadDyn

	// OpReduce pops the dynamic indices of Views[B] and pushes the
	// reduction A (sum, mean, stddev, min, max, size) over the view.
	OpReduce
	// OpReduceRank pops n, then the dynamic indices of Views[A], and
	// pushes the n-th largest element of the view.
	OpReduceRank

	// OpRet ends execution of the chunk.
	OpRet
)

// Unary ops for OpOp1.
const (
	Op1Neg = iota
	Op1Not
)

// Binary ops for OpOp2.
const (
	Op2Add = iota
	Op2Sub
	Op2Mul
	Op2Div
	Op2Mod
	Op2Pow
	Op2Eq
	Op2Neq
	Op2Lt
	Op2Lte
	Op2Gt
	Op2Gte
	Op2And
	Op2Or
)

// Reduction ops for OpReduce.
const (
	ReduceSum = iota
	ReduceMean
	ReduceStddev
	ReduceMin
	ReduceMax
	ReduceSize
)

var opNames = map[OpCode]string{
	OpPushConst:   "PushConst",
	OpLoadVar:     "LoadVar",
	OpStoreVar:    "StoreVar",
	OpStoreTemp:   "StoreTemp",
	OpCopyVar:     "CopyVar",
	OpOp1:         "Op1",
	OpOp2:         "Op2",
	OpJump:        "Jump",
	OpJumpIfFalse: "JumpIfFalse",
	OpCallBuiltin: "CallBuiltin",
	OpLookup:      "Lookup",
	OpLoadDyn:     "LoadDyn",
	OpReduce:      "Reduce",
	OpReduceRank:  "ReduceRank",
	OpRet:         "Ret",
}

func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "Op?"
}
