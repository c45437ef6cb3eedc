package codegen

import (
	"math"

	"github.com/born-ml/adgen/internal/scalar"
	"github.com/born-ml/adgen/internal/tape"
)

// Go renders Go using the math package. float32 values go through float64
// for math calls since the math package only has float64 functions.
//
// Declarations carry a blank assignment so unused temporaries compile.
var Go Dialect = goDialect{}

type goDialect struct{}

func (goDialect) Name() string { return "go" }

func (goDialect) TypeName(kind scalar.Kind) string {
	if !kind.Valid() {
		panic("codegen: go: unsupported kind " + kind.String())
	}
	return kind.String()
}

func (d goDialect) Declare(kind scalar.Kind, name string) string {
	return "var " + name + " " + d.TypeName(kind) + "; _ = " + name
}

func (goDialect) Seed(adjoint, expr string) string {
	return adjoint + " += " + expr
}

// Go keywords, predeclared identifiers, the blank identifier and the math
// package the templates call.
var goReserved = wordSet(`
break case chan const continue default defer else fallthrough for func go goto
if import interface map package range return select struct switch type var
any bool byte comparable complex64 complex128 error float32 float64 int int8
int16 int32 int64 rune string uint uint8 uint16 uint32 uint64 uintptr
true false iota nil
append cap clear close complex copy delete imag len make max min new panic
print println real recover
_ math`)

func (goDialect) Reserved(name string) bool { return goReserved[name] }

func (d goDialect) literal(kind scalar.Kind, v float64) string {
	switch {
	case kind == scalar.Bool:
		if v != 0 {
			return "true"
		}
		return "false"
	case !kind.IsFloat():
		return formatInt(kind, v)
	case math.IsNaN(v):
		return d.TypeName(kind) + "(math.NaN())"
	case math.IsInf(v, 1):
		return d.TypeName(kind) + "(math.Inf(1))"
	case math.IsInf(v, -1):
		return d.TypeName(kind) + "(math.Inf(-1))"
	default:
		return formatFloat(kind, v)
	}
}

// call applies a math package function to arg at the given kind.
func (goDialect) call(kind scalar.Kind, fn, arg string) string {
	if kind == scalar.Float64 {
		return "math." + fn + "(" + arg + ")"
	}
	return kind.String() + "(math." + fn + "(float64(" + arg + ")))"
}

func (d goDialect) convert(op tape.Operation) string {
	switch {
	case op.Source == scalar.Bool && op.Kind != scalar.Bool:
		return "if $0 { $v = 1 } else { $v = 0 }"
	case op.Kind == scalar.Bool && op.Source != scalar.Bool:
		return "$v = $0 != 0"
	default:
		return "$v = " + d.TypeName(op.Kind) + "($0)"
	}
}

func (d goDialect) Templates(op tape.Operation) (string, string) {
	switch op.Op {
	case tape.Symbol:
		return "$v = " + op.Symbol, ""
	case tape.Literal:
		return "$v = " + d.literal(op.Kind, op.Literal), ""
	case tape.Convert:
		if op.Source.IsFloat() {
			return d.convert(op), "d$0 += " + d.TypeName(op.Source) + "(d$v)"
		}
		return d.convert(op), ""
	case tape.Add:
		return "$v = $0 + $1", "d$0 += d$v; d$1 += d$v"
	case tape.Sub:
		return "$v = $0 - $1", "d$0 += d$v; d$1 -= d$v"
	case tape.Mul:
		return "$v = $0 * $1", "d$0 += d$v * $1; d$1 += d$v * $0"
	case tape.Div:
		return "$v = $0 / $1", "d$0 += d$v / $1; d$1 -= d$v * $0 / ($1 * $1)"
	case tape.Neg:
		return "$v = -$0", "d$0 += -d$v"
	case tape.Select:
		return "if $0 { $v = $1 } else { $v = $2 }", "if $0 { d$1 += d$v } else { d$2 += d$v }"
	case tape.Sin:
		return "$v = " + d.call(op.Kind, "Sin", "$0"), "d$0 += d$v * " + d.call(op.Kind, "Cos", "$0")
	case tape.Cos:
		return "$v = " + d.call(op.Kind, "Cos", "$0"), "d$0 -= d$v * " + d.call(op.Kind, "Sin", "$0")
	case tape.Log:
		return "$v = " + d.call(op.Kind, "Log", "$0"), "d$0 += d$v / $0"
	case tape.Exp:
		return "$v = " + d.call(op.Kind, "Exp", "$0"), "d$0 += d$v * $v"
	case tape.Sqrt:
		return "$v = " + d.call(op.Kind, "Sqrt", "$0"), "d$0 += d$v * 0.5 / $v"
	case tape.Eq, tape.Ne, tape.Le, tape.Ge, tape.Lt, tape.Gt:
		return "$v = $0 " + compareSymbol(op.Op) + " $1", ""
	case tape.Custom:
		return op.Forward, op.Backward
	}
	panic("codegen: go: no template for " + op.Op.String())
}
