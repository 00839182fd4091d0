package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstInterning(t *testing.T) {
	ch := &Chunk{}
	a := ch.Const(1.5)
	b := ch.Const(2.5)
	c := ch.Const(1.5)
	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.Len(t, ch.Consts, 2)
}

func TestJumpPatching(t *testing.T) {
	ch := &Chunk{}
	j := ch.Emit(OpJumpIfFalse, 0, 0)
	ch.Emit(OpPushConst, 0, 0)
	end := ch.Emit(OpRet, 0, 0)
	ch.Patch(j, end)
	assert.Equal(t, end, ch.Code[j].A)
}

func TestBuiltinIDs(t *testing.T) {
	id, ok := BuiltinID("max")
	assert.True(t, ok)
	assert.Equal(t, "max", string(BuiltinName(id)))

	_, ok = BuiltinID("smth3")
	assert.False(t, ok, "stateful builtins have no direct opcode")

	assert.Equal(t, "", string(BuiltinName(-1)))
}

func TestStaticViewNDyn(t *testing.T) {
	sv := &StaticView{Fixed: []int{2, DynAxis, IterAxis, DynAxis}}
	assert.Equal(t, 2, sv.NDyn())
}
