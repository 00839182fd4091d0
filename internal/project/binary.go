package project

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/simlin-project/simlin/internal/ident"
)

// The binary project format: length-prefixed fields with numeric tags and
// varint integers. Encoding is canonical (fields in ascending tag order,
// defaults omitted), so serialize∘deserialize is the identity on
// well-formed blobs and deserialize∘serialize is structural identity.

const (
	fProjectName    = 1
	fProjectSpecs   = 2
	fProjectDim     = 3
	fProjectModel   = 4
	fProjectSource  = 5
	fSpecsStart     = 1
	fSpecsStop      = 2
	fSpecsDT        = 3
	fSpecsSaveStep  = 4
	fSpecsMethod    = 5
	fSpecsTimeUnits = 6
	fDimName        = 1
	fDimSize        = 2
	fDimElement     = 3
	fModelName      = 1
	fModelVar       = 2
	fVarKind        = 1
	fVarName        = 2
	fVarDoc         = 3
	fVarUnits       = 4
	fVarEquation    = 5
	fVarInitial     = 6
	fVarInflow      = 7
	fVarOutflow     = 8
	fVarNonNeg      = 9
	fVarGF          = 10
	fVarModelName   = 11
	fVarRef         = 12
	fEqnKind        = 1
	fEqnText        = 2
	fEqnDim         = 3
	fEqnElement     = 4
	fElemSubscript  = 1
	fElemText       = 2
	fGFKind         = 1
	fGFY            = 2
	fGFX            = 3
	fGFXMin         = 4
	fGFXMax         = 5
	fRefSrc         = 1
	fRefDst         = 2
)

const (
	kindStock = 1
	kindFlow  = 2
	kindAux   = 3
	kindMod   = 4
)

const (
	eqnScalar  = 0
	eqnA2A     = 1
	eqnArrayed = 2
)

// Marshal serializes the project to its canonical binary form.
func Marshal(p *Project) []byte {
	var b []byte
	b = appendString(b, fProjectName, p.Name)
	b = appendMessage(b, fProjectSpecs, marshalSpecs(p.SimSpecs))
	for _, d := range p.Dimensions {
		b = appendMessage(b, fProjectDim, marshalDimension(d))
	}
	for _, m := range p.Models {
		b = appendMessage(b, fProjectModel, marshalModel(m))
	}
	if len(p.Source) > 0 {
		b = protowire.AppendTag(b, fProjectSource, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Source)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func marshalSpecs(s SimSpecs) []byte {
	var b []byte
	b = appendDouble(b, fSpecsStart, s.Start)
	b = appendDouble(b, fSpecsStop, s.Stop)
	b = appendDouble(b, fSpecsDT, s.DT)
	b = appendDouble(b, fSpecsSaveStep, s.SaveStep)
	b = appendVarint(b, fSpecsMethod, uint64(s.Method))
	b = appendString(b, fSpecsTimeUnits, s.TimeUnits)
	return b
}

func marshalDimension(d Dimension) []byte {
	var b []byte
	b = appendString(b, fDimName, d.Name)
	b = appendVarint(b, fDimSize, uint64(d.Size))
	for _, el := range d.Elements {
		b = appendString(b, fDimElement, el)
	}
	return b
}

func marshalModel(m *Model) []byte {
	var b []byte
	b = appendString(b, fModelName, string(m.Name))
	for _, v := range m.Variables {
		b = appendMessage(b, fModelVar, marshalVariable(v))
	}
	return b
}

func marshalVariable(v Variable) []byte {
	var b []byte
	switch x := v.(type) {
	case *Stock:
		b = appendVarint(b, fVarKind, kindStock)
		b = marshalCommon(b, &x.Common)
		if x.Initial != nil {
			b = appendMessage(b, fVarInitial, marshalEquation(x.Initial))
		}
		for _, in := range x.Inflows {
			b = appendString(b, fVarInflow, string(in))
		}
		for _, out := range x.Outflows {
			b = appendString(b, fVarOutflow, string(out))
		}
		if x.NonNegative {
			b = appendVarint(b, fVarNonNeg, 1)
		}
	case *Flow:
		b = appendVarint(b, fVarKind, kindFlow)
		b = marshalCommon(b, &x.Common)
		if x.Equation != nil {
			b = appendMessage(b, fVarEquation, marshalEquation(x.Equation))
		}
		if x.NonNegative {
			b = appendVarint(b, fVarNonNeg, 1)
		}
		if x.GF != nil {
			b = appendMessage(b, fVarGF, marshalGF(x.GF))
		}
	case *Aux:
		b = appendVarint(b, fVarKind, kindAux)
		b = marshalCommon(b, &x.Common)
		if x.Equation != nil {
			b = appendMessage(b, fVarEquation, marshalEquation(x.Equation))
		}
		if x.GF != nil {
			b = appendMessage(b, fVarGF, marshalGF(x.GF))
		}
	case *Module:
		b = appendVarint(b, fVarKind, kindMod)
		b = marshalCommon(b, &x.Common)
		b = appendString(b, fVarModelName, string(x.ModelName))
		for _, ref := range x.References {
			var rb []byte
			rb = appendString(rb, fRefSrc, string(ref.Src))
			rb = appendString(rb, fRefDst, string(ref.Dst))
			b = appendMessage(b, fVarRef, rb)
		}
	}
	return b
}

func marshalCommon(b []byte, c *Common) []byte {
	b = appendString(b, fVarName, string(c.Ident))
	b = appendString(b, fVarDoc, c.Documentation)
	b = appendString(b, fVarUnits, c.UnitsString)
	return b
}

func marshalEquation(e Equation) []byte {
	var b []byte
	switch x := e.(type) {
	case Scalar:
		b = appendVarint(b, fEqnKind, eqnScalar)
		b = appendString(b, fEqnText, x.Equation)
	case ApplyToAll:
		b = appendVarint(b, fEqnKind, eqnA2A)
		b = appendString(b, fEqnText, x.Equation)
		for _, d := range x.Dimensions {
			b = appendString(b, fEqnDim, d)
		}
	case Arrayed:
		b = appendVarint(b, fEqnKind, eqnArrayed)
		for _, d := range x.Dimensions {
			b = appendString(b, fEqnDim, d)
		}
		for _, el := range x.Elements {
			var eb []byte
			for _, s := range el.Subscript {
				eb = appendString(eb, fElemSubscript, s)
			}
			eb = appendString(eb, fElemText, el.Equation)
			b = appendMessage(b, fEqnElement, eb)
		}
	}
	return b
}

func marshalGF(gf *GraphicalFunction) []byte {
	var b []byte
	b = appendVarint(b, fGFKind, uint64(gf.Kind))
	if len(gf.YPoints) > 0 {
		var pb []byte
		for _, y := range gf.YPoints {
			pb = protowire.AppendFixed64(pb, math.Float64bits(y))
		}
		b = appendMessage(b, fGFY, pb)
	}
	if len(gf.XPoints) > 0 {
		var pb []byte
		for _, x := range gf.XPoints {
			pb = protowire.AppendFixed64(pb, math.Float64bits(x))
		}
		b = appendMessage(b, fGFX, pb)
	}
	b = appendDouble(b, fGFXMin, gf.XScale[0])
	b = appendDouble(b, fGFXMax, gf.XScale[1])
	return b
}

// Unmarshal parses the canonical binary form.
func Unmarshal(data []byte) (*Project, error) {
	p := &Project{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fProjectName:
			p.Name = string(payload)
		case fProjectSpecs:
			specs, err := unmarshalSpecs(payload)
			if err != nil {
				return err
			}
			p.SimSpecs = specs
		case fProjectDim:
			d, err := unmarshalDimension(payload)
			if err != nil {
				return err
			}
			p.Dimensions = append(p.Dimensions, d)
		case fProjectModel:
			m, err := unmarshalModel(payload)
			if err != nil {
				return err
			}
			p.Models = append(p.Models, m)
		case fProjectSource:
			p.Source = append([]byte(nil), payload...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// eachField walks a message's fields, handing bytes payloads (or raw varint
// and fixed64 payloads re-encoded as byte slices) to fn.
func eachField(data []byte, fn func(num protowire.Number, typ protowire.Type, payload []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("corrupt project data: %w", protowire.ParseError(n))
		}
		data = data[n:]
		switch typ {
		case protowire.BytesType:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("corrupt project data: %w", protowire.ParseError(n))
			}
			if err := fn(num, typ, payload); err != nil {
				return err
			}
			data = data[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("corrupt project data: %w", protowire.ParseError(n))
			}
			if err := fn(num, typ, protowire.AppendVarint(nil, v)); err != nil {
				return err
			}
			data = data[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("corrupt project data: %w", protowire.ParseError(n))
			}
			if err := fn(num, typ, protowire.AppendFixed64(nil, v)); err != nil {
				return err
			}
			data = data[n:]
		default:
			return fmt.Errorf("corrupt project data: unsupported wire type %d", typ)
		}
	}
	return nil
}

func fieldVarint(payload []byte) uint64 {
	v, _ := protowire.ConsumeVarint(payload)
	return v
}

func fieldDouble(payload []byte) float64 {
	v, _ := protowire.ConsumeFixed64(payload)
	return math.Float64frombits(v)
}

func unmarshalSpecs(data []byte) (SimSpecs, error) {
	var s SimSpecs
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fSpecsStart:
			s.Start = fieldDouble(payload)
		case fSpecsStop:
			s.Stop = fieldDouble(payload)
		case fSpecsDT:
			s.DT = fieldDouble(payload)
		case fSpecsSaveStep:
			s.SaveStep = fieldDouble(payload)
		case fSpecsMethod:
			s.Method = SimMethod(fieldVarint(payload))
		case fSpecsTimeUnits:
			s.TimeUnits = string(payload)
		}
		return nil
	})
	return s, err
}

func unmarshalDimension(data []byte) (Dimension, error) {
	var d Dimension
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fDimName:
			d.Name = string(payload)
		case fDimSize:
			d.Size = int(fieldVarint(payload))
		case fDimElement:
			d.Elements = append(d.Elements, string(payload))
		}
		return nil
	})
	return d, err
}

func unmarshalModel(data []byte) (*Model, error) {
	m := &Model{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fModelName:
			m.Name = ident.Ident(payload)
		case fModelVar:
			v, err := unmarshalVariable(payload)
			if err != nil {
				return err
			}
			m.Variables = append(m.Variables, v)
		}
		return nil
	})
	return m, err
}

func unmarshalVariable(data []byte) (Variable, error) {
	var (
		kind             uint64
		common           Common
		eqn, initial     Equation
		inflows          []ident.Ident
		outflows         []ident.Ident
		nonNeg           bool
		gf               *GraphicalFunction
		modelName        ident.Ident
		refs             []Ref
		unmarshalFailure error
	)
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fVarKind:
			kind = fieldVarint(payload)
		case fVarName:
			common.Ident = ident.Ident(payload)
		case fVarDoc:
			common.Documentation = string(payload)
		case fVarUnits:
			common.UnitsString = string(payload)
		case fVarEquation:
			e, err := unmarshalEquation(payload)
			if err != nil {
				unmarshalFailure = err
				return err
			}
			eqn = e
		case fVarInitial:
			e, err := unmarshalEquation(payload)
			if err != nil {
				unmarshalFailure = err
				return err
			}
			initial = e
		case fVarInflow:
			inflows = append(inflows, ident.Ident(payload))
		case fVarOutflow:
			outflows = append(outflows, ident.Ident(payload))
		case fVarNonNeg:
			nonNeg = fieldVarint(payload) != 0
		case fVarGF:
			g, err := unmarshalGF(payload)
			if err != nil {
				unmarshalFailure = err
				return err
			}
			gf = g
		case fVarModelName:
			modelName = ident.Ident(payload)
		case fVarRef:
			var ref Ref
			if err := eachField(payload, func(num protowire.Number, typ protowire.Type, payload []byte) error {
				switch num {
				case fRefSrc:
					ref.Src = ident.Ident(payload)
				case fRefDst:
					ref.Dst = ident.Ident(payload)
				}
				return nil
			}); err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unmarshalFailure != nil {
		return nil, unmarshalFailure
	}

	switch kind {
	case kindStock:
		return &Stock{Common: common, Initial: initial, Inflows: inflows, Outflows: outflows, NonNegative: nonNeg}, nil
	case kindFlow:
		return &Flow{Common: common, Equation: eqn, GF: gf, NonNegative: nonNeg}, nil
	case kindAux:
		return &Aux{Common: common, Equation: eqn, GF: gf}, nil
	case kindMod:
		return &Module{Common: common, ModelName: modelName, References: refs}, nil
	}
	return nil, fmt.Errorf("corrupt project data: unknown variable kind %d", kind)
}

func unmarshalEquation(data []byte) (Equation, error) {
	var (
		kind  uint64
		text  string
		dims  []string
		elems []Element
	)
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fEqnKind:
			kind = fieldVarint(payload)
		case fEqnText:
			text = string(payload)
		case fEqnDim:
			dims = append(dims, string(payload))
		case fEqnElement:
			var el Element
			if err := eachField(payload, func(num protowire.Number, typ protowire.Type, payload []byte) error {
				switch num {
				case fElemSubscript:
					el.Subscript = append(el.Subscript, string(payload))
				case fElemText:
					el.Equation = string(payload)
				}
				return nil
			}); err != nil {
				return err
			}
			elems = append(elems, el)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch kind {
	case eqnScalar:
		return Scalar{Equation: text}, nil
	case eqnA2A:
		return ApplyToAll{Dimensions: dims, Equation: text}, nil
	case eqnArrayed:
		return Arrayed{Dimensions: dims, Elements: elems}, nil
	}
	return nil, fmt.Errorf("corrupt project data: unknown equation kind %d", kind)
}

func unmarshalGF(data []byte) (*GraphicalFunction, error) {
	gf := &GraphicalFunction{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, payload []byte) error {
		switch num {
		case fGFKind:
			gf.Kind = GFKind(fieldVarint(payload))
		case fGFY:
			gf.YPoints = consumeDoubles(payload)
		case fGFX:
			gf.XPoints = consumeDoubles(payload)
		case fGFXMin:
			gf.XScale[0] = fieldDouble(payload)
		case fGFXMax:
			gf.XScale[1] = fieldDouble(payload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gf, nil
}

func consumeDoubles(data []byte) []float64 {
	var out []float64
	for len(data) >= 8 {
		v, n := protowire.ConsumeFixed64(data)
		out = append(out, math.Float64frombits(v))
		data = data[n:]
	}
	return out
}
