package project

import (
	"encoding/json"
	"fmt"

	"github.com/simlin-project/simlin/internal/ident"
)

// The JSON form is a convenience mirror of the binary format, matching the
// interchange shape: models hold stocks/flows/auxiliaries/modules arrays.

type jsonProject struct {
	Name       string          `json:"name"`
	SimSpecs   jsonSimSpecs    `json:"simSpecs"`
	Dimensions []jsonDimension `json:"dimensions,omitempty"`
	Models     []jsonModel     `json:"models"`
}

type jsonSimSpecs struct {
	Start     float64 `json:"start"`
	Stop      float64 `json:"stop"`
	DT        float64 `json:"dt"`
	SaveStep  float64 `json:"saveStep,omitempty"`
	Method    string  `json:"method"`
	TimeUnits string  `json:"timeUnits,omitempty"`
}

type jsonDimension struct {
	Name     string   `json:"name"`
	Size     int      `json:"size,omitempty"`
	Elements []string `json:"elements,omitempty"`
}

type jsonModel struct {
	Name        string       `json:"name"`
	Stocks      []jsonVar    `json:"stocks,omitempty"`
	Flows       []jsonVar    `json:"flows,omitempty"`
	Auxiliaries []jsonVar    `json:"auxiliaries,omitempty"`
	Modules     []jsonModule `json:"modules,omitempty"`
}

type jsonVar struct {
	Name              string        `json:"name"`
	Equation          *jsonEquation `json:"equation,omitempty"`
	InitialEquation   *jsonEquation `json:"initialEquation,omitempty"`
	Units             string        `json:"units,omitempty"`
	Documentation     string        `json:"documentation,omitempty"`
	GraphicalFunction *jsonGF       `json:"graphicalFunction,omitempty"`
	NonNegative       bool          `json:"nonNegative,omitempty"`
	Inflows           []string      `json:"inflows,omitempty"`
	Outflows          []string      `json:"outflows,omitempty"`
}

type jsonEquation struct {
	Text       string        `json:"text,omitempty"`
	Dimensions []string      `json:"dimensions,omitempty"`
	Elements   []jsonElement `json:"elements,omitempty"`
}

type jsonElement struct {
	Subscript []string `json:"subscript"`
	Equation  string   `json:"equation"`
}

type jsonGF struct {
	Kind    string    `json:"kind"`
	YPoints []float64 `json:"yPoints"`
	XPoints []float64 `json:"xPoints,omitempty"`
	XScale  []float64 `json:"xScale,omitempty"`
}

type jsonModule struct {
	Name          string    `json:"name"`
	ModelName     string    `json:"modelName"`
	References    []jsonRef `json:"references,omitempty"`
	Units         string    `json:"units,omitempty"`
	Documentation string    `json:"documentation,omitempty"`
}

type jsonRef struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// ToJSON renders the project as indented JSON.
func ToJSON(p *Project) ([]byte, error) {
	jp := jsonProject{
		Name: p.Name,
		SimSpecs: jsonSimSpecs{
			Start: p.SimSpecs.Start, Stop: p.SimSpecs.Stop, DT: p.SimSpecs.DT,
			SaveStep: p.SimSpecs.SaveStep, Method: p.SimSpecs.Method.String(),
			TimeUnits: p.SimSpecs.TimeUnits,
		},
	}
	for _, d := range p.Dimensions {
		jp.Dimensions = append(jp.Dimensions, jsonDimension(d))
	}
	for _, m := range p.Models {
		jm := jsonModel{Name: string(m.Name)}
		for _, v := range m.Variables {
			switch x := v.(type) {
			case *Stock:
				jm.Stocks = append(jm.Stocks, jsonVar{
					Name:            string(x.Ident),
					InitialEquation: equationToJSON(x.Initial),
					Units:           x.UnitsString,
					Documentation:   x.Documentation,
					NonNegative:     x.NonNegative,
					Inflows:         identsToStrings(x.Inflows),
					Outflows:        identsToStrings(x.Outflows),
				})
			case *Flow:
				jm.Flows = append(jm.Flows, jsonVar{
					Name:              string(x.Ident),
					Equation:          equationToJSON(x.Equation),
					Units:             x.UnitsString,
					Documentation:     x.Documentation,
					GraphicalFunction: gfToJSON(x.GF),
					NonNegative:       x.NonNegative,
				})
			case *Aux:
				jm.Auxiliaries = append(jm.Auxiliaries, jsonVar{
					Name:              string(x.Ident),
					Equation:          equationToJSON(x.Equation),
					Units:             x.UnitsString,
					Documentation:     x.Documentation,
					GraphicalFunction: gfToJSON(x.GF),
				})
			case *Module:
				var refs []jsonRef
				for _, r := range x.References {
					refs = append(refs, jsonRef{Src: string(r.Src), Dst: string(r.Dst)})
				}
				jm.Modules = append(jm.Modules, jsonModule{
					Name:          string(x.Ident),
					ModelName:     string(x.ModelName),
					References:    refs,
					Units:         x.UnitsString,
					Documentation: x.Documentation,
				})
			}
		}
		jp.Models = append(jp.Models, jm)
	}
	return json.MarshalIndent(jp, "", "  ")
}

// FromJSON parses the JSON mirror form.
func FromJSON(data []byte) (*Project, error) {
	var jp jsonProject
	if err := json.Unmarshal(data, &jp); err != nil {
		return nil, err
	}
	p := &Project{
		Name: jp.Name,
		SimSpecs: SimSpecs{
			Start: jp.SimSpecs.Start, Stop: jp.SimSpecs.Stop, DT: jp.SimSpecs.DT,
			SaveStep: jp.SimSpecs.SaveStep, TimeUnits: jp.SimSpecs.TimeUnits,
		},
	}
	switch jp.SimSpecs.Method {
	case "", "euler":
		p.SimSpecs.Method = Euler
	case "rk4":
		p.SimSpecs.Method = RK4
	default:
		return nil, fmt.Errorf("unknown method %q", jp.SimSpecs.Method)
	}
	for _, d := range jp.Dimensions {
		p.Dimensions = append(p.Dimensions, Dimension(d))
	}
	for _, jm := range jp.Models {
		m := &Model{Name: ident.Canonicalize(jm.Name)}
		for _, jv := range jm.Stocks {
			m.Variables = append(m.Variables, &Stock{
				Common:      commonFromJSON(jv),
				Initial:     equationFromJSON(jv.InitialEquation),
				Inflows:     stringsToIdents(jv.Inflows),
				Outflows:    stringsToIdents(jv.Outflows),
				NonNegative: jv.NonNegative,
			})
		}
		for _, jv := range jm.Flows {
			gf, err := gfFromJSON(jv.GraphicalFunction)
			if err != nil {
				return nil, err
			}
			m.Variables = append(m.Variables, &Flow{
				Common:      commonFromJSON(jv),
				Equation:    equationFromJSON(jv.Equation),
				GF:          gf,
				NonNegative: jv.NonNegative,
			})
		}
		for _, jv := range jm.Auxiliaries {
			gf, err := gfFromJSON(jv.GraphicalFunction)
			if err != nil {
				return nil, err
			}
			m.Variables = append(m.Variables, &Aux{
				Common:   commonFromJSON(jv),
				Equation: equationFromJSON(jv.Equation),
				GF:       gf,
			})
		}
		for _, jmod := range jm.Modules {
			mod := &Module{
				Common: Common{
					Ident:         ident.Canonicalize(jmod.Name),
					UnitsString:   jmod.Units,
					Documentation: jmod.Documentation,
				},
				ModelName: ident.Canonicalize(jmod.ModelName),
			}
			for _, r := range jmod.References {
				mod.References = append(mod.References, Ref{
					Src: ident.Canonicalize(r.Src),
					Dst: ident.Canonicalize(r.Dst),
				})
			}
			m.Variables = append(m.Variables, mod)
		}
		p.Models = append(p.Models, m)
	}
	return p, nil
}

func commonFromJSON(jv jsonVar) Common {
	return Common{
		Ident:         ident.Canonicalize(jv.Name),
		UnitsString:   jv.Units,
		Documentation: jv.Documentation,
	}
}

func identsToStrings(ids []ident.Ident) []string {
	var out []string
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

func stringsToIdents(ss []string) []ident.Ident {
	var out []ident.Ident
	for _, s := range ss {
		out = append(out, ident.Canonicalize(s))
	}
	return out
}

func equationToJSON(e Equation) *jsonEquation {
	switch x := e.(type) {
	case Scalar:
		if x.Equation == "" {
			return nil
		}
		return &jsonEquation{Text: x.Equation}
	case ApplyToAll:
		return &jsonEquation{Text: x.Equation, Dimensions: x.Dimensions}
	case Arrayed:
		je := &jsonEquation{Dimensions: x.Dimensions}
		for _, el := range x.Elements {
			je.Elements = append(je.Elements, jsonElement(el))
		}
		return je
	}
	return nil
}

func equationFromJSON(je *jsonEquation) Equation {
	if je == nil {
		return Scalar{}
	}
	switch {
	case len(je.Elements) > 0:
		eq := Arrayed{Dimensions: je.Dimensions}
		for _, el := range je.Elements {
			eq.Elements = append(eq.Elements, Element(el))
		}
		return eq
	case len(je.Dimensions) > 0:
		return ApplyToAll{Dimensions: je.Dimensions, Equation: je.Text}
	default:
		return Scalar{Equation: je.Text}
	}
}

func gfToJSON(gf *GraphicalFunction) *jsonGF {
	if gf == nil {
		return nil
	}
	out := &jsonGF{Kind: gf.Kind.String(), YPoints: gf.YPoints, XPoints: gf.XPoints}
	if gf.XPoints == nil {
		out.XScale = []float64{gf.XScale[0], gf.XScale[1]}
	}
	return out
}

func gfFromJSON(jg *jsonGF) (*GraphicalFunction, error) {
	if jg == nil {
		return nil, nil
	}
	gf := &GraphicalFunction{YPoints: jg.YPoints, XPoints: jg.XPoints}
	switch jg.Kind {
	case "", "continuous":
		gf.Kind = Continuous
	case "extrapolate":
		gf.Kind = Extrapolate
	case "discrete":
		gf.Kind = Discrete
	default:
		return nil, fmt.Errorf("unknown graphical function kind %q", jg.Kind)
	}
	if len(jg.XScale) == 2 {
		gf.XScale = [2]float64{jg.XScale[0], jg.XScale[1]}
	}
	return gf, nil
}
