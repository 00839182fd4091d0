package bytecode

import (
	"fmt"
	"strings"

	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/project"
)

// Backing selects which buffer a static view reads.
type Backing int

const (
	// BackState reads the state vector.
	BackState Backing = iota
	// BackScratch reads the temporary scratch region.
	BackScratch
)

// Axis markers in StaticView.Fixed.
const (
	// DynAxis marks an axis whose 1-based index is popped at run time.
	DynAxis = -1
	// IterAxis marks an axis a reduction iterates.
	IterAxis = -2
)

// StaticView is a view resolved at compile time, except for axes whose
// index arrives on the stack at run time (DynAxis) or is iterated by a
// reduction (IterAxis).
type StaticView struct {
	Backing Backing
	// Base is the variable's absolute offset (or the temporary's scratch
	// offset); View.Offset is relative to it.
	Base int
	View *dims.View
	// Fixed holds, per axis, the 0-based compile-time index, DynAxis, or
	// IterAxis.
	Fixed []int
}

// NDyn counts the run-time-indexed axes.
func (sv *StaticView) NDyn() int {
	n := 0
	for _, f := range sv.Fixed {
		if f == DynAxis {
			n++
		}
	}
	return n
}

// Instr is one fixed-width instruction.
type Instr struct {
	Op   OpCode
	A, B int
	C    int // only OpCopyVar uses the third operand
}

// Chunk is a compiled opcode stream plus the context tables it indexes:
// interned constants, static views, and graphical functions.
type Chunk struct {
	Code   []Instr
	Consts []float64
	Views  []*StaticView
	GFs    []*project.GraphicalFunction
}

// Emit appends an instruction and returns its index.
func (c *Chunk) Emit(op OpCode, a, b int) int {
	c.Code = append(c.Code, Instr{Op: op, A: a, B: b})
	return len(c.Code) - 1
}

// Patch rewrites the A operand of instruction i, used to resolve forward
// jumps.
func (c *Chunk) Patch(i, a int) {
	c.Code[i].A = a
}

// Const interns a constant and returns its index.
func (c *Chunk) Const(v float64) int {
	for i, existing := range c.Consts {
		if existing == v || (existing != existing && v != v) {
			return i
		}
	}
	c.Consts = append(c.Consts, v)
	return len(c.Consts) - 1
}

// AddView registers a static view.
func (c *Chunk) AddView(sv *StaticView) int {
	c.Views = append(c.Views, sv)
	return len(c.Views) - 1
}

// AddGF registers a graphical function.
func (c *Chunk) AddGF(gf *project.GraphicalFunction) int {
	for i, existing := range c.GFs {
		if existing == gf {
			return i
		}
	}
	c.GFs = append(c.GFs, gf)
	return len(c.GFs) - 1
}

// Disassemble renders the chunk for debugging.
func (c *Chunk) Disassemble() string {
	var b strings.Builder
	for i, in := range c.Code {
		fmt.Fprintf(&b, "%4d %-12s %d %d", i, in.Op, in.A, in.B)
		if in.Op == OpCopyVar {
			fmt.Fprintf(&b, " %d", in.C)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
