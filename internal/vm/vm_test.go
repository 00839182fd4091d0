package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/bytecode"
	"github.com/simlin-project/simlin/internal/compiler"
	"github.com/simlin-project/simlin/internal/dims"
)

func execChunk(t *testing.T, ch *bytecode.Chunk, state, scratch []float64) {
	t.Helper()
	ch.Emit(bytecode.OpRet, 0, 0)
	vm := New(&compiler.CompiledProject{InitialsCode: ch, FlowsCode: ch})
	vm.exec(ch, state, scratch, &builtins.Env{DT: 1, RNG: builtins.NewRand(1)})
}

func TestArithmetic(t *testing.T) {
	ch := &bytecode.Chunk{}
	// state[4] = (2 + 3) * 4
	ch.Emit(bytecode.OpPushConst, ch.Const(2), 0)
	ch.Emit(bytecode.OpPushConst, ch.Const(3), 0)
	ch.Emit(bytecode.OpOp2, bytecode.Op2Add, 0)
	ch.Emit(bytecode.OpPushConst, ch.Const(4), 0)
	ch.Emit(bytecode.OpOp2, bytecode.Op2Mul, 0)
	ch.Emit(bytecode.OpStoreVar, 4, 0)

	state := make([]float64, 5)
	execChunk(t, ch, state, nil)
	assert.Equal(t, 20.0, state[4])
}

func TestConditionalJumps(t *testing.T) {
	// state[4] = if state[0] > 1 then 10 else 20
	build := func() *bytecode.Chunk {
		ch := &bytecode.Chunk{}
		ch.Emit(bytecode.OpLoadVar, 0, 0)
		ch.Emit(bytecode.OpPushConst, ch.Const(1), 0)
		ch.Emit(bytecode.OpOp2, bytecode.Op2Gt, 0)
		jf := ch.Emit(bytecode.OpJumpIfFalse, 0, 0)
		ch.Emit(bytecode.OpPushConst, ch.Const(10), 0)
		jend := ch.Emit(bytecode.OpJump, 0, 0)
		ch.Patch(jf, len(ch.Code))
		ch.Emit(bytecode.OpPushConst, ch.Const(20), 0)
		ch.Patch(jend, len(ch.Code))
		ch.Emit(bytecode.OpStoreVar, 4, 0)
		return ch
	}

	state := make([]float64, 5)
	state[0] = 2
	execChunk(t, build(), state, nil)
	assert.Equal(t, 10.0, state[4])

	state[0] = 0
	execChunk(t, build(), state, nil)
	assert.Equal(t, 20.0, state[4])
}

func TestBuiltinCall(t *testing.T) {
	ch := &bytecode.Chunk{}
	id, ok := bytecode.BuiltinID("max")
	require.True(t, ok)
	ch.Emit(bytecode.OpPushConst, ch.Const(-3), 0)
	ch.Emit(bytecode.OpPushConst, ch.Const(7), 0)
	ch.Emit(bytecode.OpCallBuiltin, id, 2)
	ch.Emit(bytecode.OpStoreVar, 4, 0)

	state := make([]float64, 5)
	execChunk(t, ch, state, nil)
	assert.Equal(t, 7.0, state[4])
}

func TestReduceOverView(t *testing.T) {
	// state[4..7] = 1,2,3,4; sum over a dense view → state[8]
	ch := &bytecode.Chunk{}
	view := ch.AddView(&bytecode.StaticView{
		Backing: bytecode.BackState,
		Base:    4,
		View:    dims.ContiguousSizes(0, []int{4}),
		Fixed:   []int{bytecode.IterAxis},
	})
	ch.Emit(bytecode.OpReduce, bytecode.ReduceSum, view)
	ch.Emit(bytecode.OpStoreVar, 8, 0)

	state := []float64{0, 0, 0, 0, 1, 2, 3, 4, 0}
	execChunk(t, ch, state, nil)
	assert.Equal(t, 10.0, state[8])
}

func TestLoadDynOutOfRangeIsNaN(t *testing.T) {
	ch := &bytecode.Chunk{}
	view := ch.AddView(&bytecode.StaticView{
		Backing: bytecode.BackState,
		Base:    4,
		View:    dims.ContiguousSizes(0, []int{3}),
		Fixed:   []int{bytecode.DynAxis},
	})
	ch.Emit(bytecode.OpPushConst, ch.Const(5), 0) // 1-based index beyond size 3
	ch.Emit(bytecode.OpLoadDyn, view, 0)
	ch.Emit(bytecode.OpStoreVar, 7, 0)

	state := make([]float64, 8)
	execChunk(t, ch, state, nil)
	assert.True(t, math.IsNaN(state[7]))
}
