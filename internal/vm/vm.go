// Package vm is the stack-based bytecode evaluator.
//
// Execution is a tight dispatch loop over a chunk's instruction stream: a
// numeric stack of doubles, with array access going through the chunk's
// static view table. Arithmetic follows IEEE-754; boolean operators treat
// nonzero as true and return 0 or 1.
package vm

import (
	"math"

	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/bytecode"
	"github.com/simlin-project/simlin/internal/compiler"
	"github.com/simlin-project/simlin/internal/dims"
)

// VM executes a compiled project's chunks against a state vector.
type VM struct {
	cp    *compiler.CompiledProject
	stack []float64
	args  [8]float64
}

// New creates a VM for a compiled project.
func New(cp *compiler.CompiledProject) *VM {
	return &VM{cp: cp, stack: make([]float64, 0, 64)}
}

// EvalInitials runs the initials chunk.
func (vm *VM) EvalInitials(state, scratch []float64, env *builtins.Env) {
	vm.exec(vm.cp.InitialsCode, state, scratch, env)
}

// EvalFlows runs the per-step flows chunk.
func (vm *VM) EvalFlows(state, scratch []float64, env *builtins.Env) {
	vm.exec(vm.cp.FlowsCode, state, scratch, env)
}

var reduceNames = [...]string{
	bytecode.ReduceSum:    "sum",
	bytecode.ReduceMean:   "mean",
	bytecode.ReduceStddev: "stddev",
	bytecode.ReduceMin:    "min",
	bytecode.ReduceMax:    "max",
	bytecode.ReduceSize:   "size",
}

func (vm *VM) exec(ch *bytecode.Chunk, state, scratch []float64, env *builtins.Env) {
	stack := vm.stack[:0]
	push := func(v float64) { stack = append(stack, v) }
	pop := func() float64 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	code := ch.Code
	for pc := 0; pc < len(code); pc++ {
		in := code[pc]
		switch in.Op {
		case bytecode.OpPushConst:
			push(ch.Consts[in.A])
		case bytecode.OpLoadVar:
			push(state[in.A])
		case bytecode.OpStoreVar:
			state[in.A] = pop()
		case bytecode.OpStoreTemp:
			scratch[in.A] = pop()
		case bytecode.OpCopyVar:
			copy(state[in.B:in.B+in.C], state[in.A:in.A+in.C])
		case bytecode.OpOp1:
			x := pop()
			if in.A == bytecode.Op1Not {
				if x == 0 {
					push(1)
				} else {
					push(0)
				}
			} else {
				push(-x)
			}
		case bytecode.OpOp2:
			y := pop()
			x := pop()
			push(binop(in.A, x, y))
		case bytecode.OpJump:
			pc = in.A - 1
		case bytecode.OpJumpIfFalse:
			if pop() == 0 {
				pc = in.A - 1
			}
		case bytecode.OpCallBuiltin:
			argc := in.B
			args := vm.args[:argc]
			for i := argc - 1; i >= 0; i-- {
				args[i] = pop()
			}
			push(builtins.Call(bytecode.BuiltinName(in.A), args, env))
		case bytecode.OpLookup:
			push(ch.GFs[in.A].Lookup(pop()))
		case bytecode.OpLoadDyn:
			sv := ch.Views[in.A]
			idx, ok := vm.popDynIndices(sv, &stack)
			if !ok {
				push(math.NaN())
				continue
			}
			off := sv.Base + sv.View.OffsetAt(idx)
			push(vm.backing(sv, state, scratch)[off])
		case bytecode.OpReduce:
			sv := ch.Views[in.B]
			vals, ok := vm.gather(sv, &stack, state, scratch)
			if !ok {
				push(math.NaN())
				continue
			}
			push(builtins.Reduce(reduceNames[in.A], vals))
		case bytecode.OpReduceRank:
			sv := ch.Views[in.A]
			n := pop()
			vals, ok := vm.gather(sv, &stack, state, scratch)
			if !ok || n != math.Trunc(n) {
				push(math.NaN())
				continue
			}
			push(builtins.Rank(vals, int(n)))
		case bytecode.OpRet:
			vm.stack = stack[:0]
			return
		}
	}
	vm.stack = stack[:0]
}

func binop(op int, x, y float64) float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case bytecode.Op2Add:
		return x + y
	case bytecode.Op2Sub:
		return x - y
	case bytecode.Op2Mul:
		return x * y
	case bytecode.Op2Div:
		return x / y
	case bytecode.Op2Mod:
		return math.Mod(x, y)
	case bytecode.Op2Pow:
		return math.Pow(x, y)
	case bytecode.Op2Eq:
		return b(x == y)
	case bytecode.Op2Neq:
		return b(x != y)
	case bytecode.Op2Lt:
		return b(x < y)
	case bytecode.Op2Lte:
		return b(x <= y)
	case bytecode.Op2Gt:
		return b(x > y)
	case bytecode.Op2Gte:
		return b(x >= y)
	case bytecode.Op2And:
		return b(x != 0 && y != 0)
	case bytecode.Op2Or:
		return b(x != 0 || y != 0)
	}
	return math.NaN()
}

func (vm *VM) backing(sv *bytecode.StaticView, state, scratch []float64) []float64 {
	if sv.Backing == bytecode.BackScratch {
		return scratch
	}
	return state
}

// popDynIndices resolves a view's run-time axes from the stack. Indices
// were pushed in ascending axis order, so they pop in descending order.
// A non-integer or out-of-range index invalidates the access.
func (vm *VM) popDynIndices(sv *bytecode.StaticView, stack *[]float64) ([]int, bool) {
	idx := make([]int, len(sv.Fixed))
	ok := true
	for axis := len(sv.Fixed) - 1; axis >= 0; axis-- {
		switch sv.Fixed[axis] {
		case bytecode.DynAxis:
			s := *stack
			v := s[len(s)-1]
			*stack = s[:len(s)-1]
			i := int(v) - 1
			if v != math.Trunc(v) || i < 0 || i >= sv.View.Axes[axis].Size {
				ok = false
				continue
			}
			idx[axis] = i
		case bytecode.IterAxis:
			idx[axis] = 0
		default:
			idx[axis] = sv.Fixed[axis]
		}
	}
	return idx, ok
}

// gather pops any run-time indices, then collects the view's iterated
// elements in row-major order.
func (vm *VM) gather(sv *bytecode.StaticView, stack *[]float64, state, scratch []float64) ([]float64, bool) {
	fixed := make([]int, len(sv.Fixed))
	ok := true
	for axis := len(sv.Fixed) - 1; axis >= 0; axis-- {
		switch sv.Fixed[axis] {
		case bytecode.DynAxis:
			s := *stack
			v := s[len(s)-1]
			*stack = s[:len(s)-1]
			i := int(v) - 1
			if v != math.Trunc(v) || i < 0 || i >= sv.View.Axes[axis].Size {
				ok = false
				continue
			}
			fixed[axis] = i
		case bytecode.IterAxis:
			fixed[axis] = -1
		default:
			fixed[axis] = sv.Fixed[axis]
		}
	}
	if !ok {
		return nil, false
	}

	backing := vm.backing(sv, state, scratch)
	vals := make([]float64, 0, sv.View.Size())
	dims.EachFixed(sv.View, fixed, func(off int) {
		vals = append(vals, backing[sv.Base+off])
	})
	return vals, true
}
