package units

import (
	"math"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// Env supplies the declared unit of every variable visible to an equation,
// plus the project's time unit for the time builtins.
type Env struct {
	Vars map[ident.Ident]Unit
	Time Unit
}

// Check infers the unit of expr and reports consistency errors. The
// returned diagnostics distinguish malformed unit expressions (UNI002,
// raised at parse time) from inconsistent ones (UNI001, raised here).
func Check(expr ast.Expr, env *Env) (Unit, errors.List) {
	c := &checker{env: env}
	u := c.check(expr)
	return u, c.errs
}

type checker struct {
	env  *Env
	errs errors.List
}

func (c *checker) errorf(loc ast.Loc, format string, args ...interface{}) {
	c.errs = append(c.errs, errors.NewAt(errors.UNI001,
		errors.Span{Start: loc.Start, End: loc.End}, format, args...))
}

func (c *checker) check(expr ast.Expr) Unit {
	switch e := expr.(type) {
	case *ast.Const:
		// constants are unconstrained; they adopt the unit of whatever
		// they combine with
		return nil
	case *ast.Var:
		return c.env.Vars[e.Name]
	case *ast.Subscript:
		return c.env.Vars[e.Base]
	case *ast.Transpose:
		return c.check(e.X)
	case *ast.Op1:
		return c.check(e.X)
	case *ast.Op2:
		return c.checkOp2(e)
	case *ast.If:
		c.check(e.Cond)
		t := c.check(e.T)
		f := c.check(e.F)
		if !t.Equal(f) {
			c.errorf(e.L, "conditional arms have different units: %s vs %s", t, f)
		}
		if t != nil {
			return t
		}
		return f
	case *ast.App:
		return c.checkApp(e)
	}
	return nil
}

func (c *checker) checkOp2(e *ast.Op2) Unit {
	x := c.check(e.X)
	y := c.check(e.Y)
	switch e.Op {
	case ast.Add, ast.Sub:
		if !x.Equal(y) {
			c.errorf(e.L, "%s requires matching units: %s vs %s", e.Op, x, y)
		}
		if x != nil {
			return x
		}
		return y
	case ast.Mul:
		return x.Mul(y)
	case ast.Div:
		return x.Div(y)
	case ast.Mod:
		if !x.Equal(y) {
			c.errorf(e.L, "mod requires matching units: %s vs %s", x, y)
		}
		return x
	case ast.Exp:
		if !y.IsDimensionless() {
			c.errorf(e.L, "exponent must be dimensionless, has %s", y)
		}
		if x.IsDimensionless() || x == nil {
			return x
		}
		if k, ok := e.Y.(*ast.Const); ok && k.Value == math.Trunc(k.Value) {
			return x.Pow(int(k.Value))
		}
		c.errorf(e.L, "cannot raise %s to a non-constant power", x)
		return nil
	case ast.Eq, ast.Neq, ast.Lt, ast.Lte, ast.Gt, ast.Gte:
		if !x.Equal(y) {
			c.errorf(e.L, "comparison requires matching units: %s vs %s", x, y)
		}
		return Dimensionless()
	case ast.And, ast.Or:
		return Dimensionless()
	}
	return nil
}

// unitPreserving builtins return the unit of their first argument.
var unitPreserving = map[ident.Ident]bool{
	"abs": true, "min": true, "max": true, "int": true,
	"smooth": true, "smth1": true, "smth3": true,
	"delay": true, "delay1": true, "delay3": true,
	"init": true, "previous": true,
	"sum": true, "mean": true, "stddev": true, "rank": true,
}

func (c *checker) checkApp(e *ast.App) Unit {
	args := make([]Unit, len(e.Args))
	for i, arg := range e.Args {
		args[i] = c.check(arg)
	}
	switch {
	case unitPreserving[e.Name]:
		if len(args) > 0 {
			return args[0]
		}
		return nil
	case e.Name == "time" || e.Name == "starttime" || e.Name == "stoptime" ||
		e.Name == "dt" || e.Name == "timestep":
		return c.env.Time
	default:
		return Dimensionless()
	}
}
