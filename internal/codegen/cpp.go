package codegen

import (
	"math"

	"github.com/born-ml/adgen/internal/scalar"
	"github.com/born-ml/adgen/internal/tape"
)

// CPP renders C++ using <cmath> and C-style casts.
var CPP Dialect = cppDialect{}

type cppDialect struct{}

func (cppDialect) Name() string { return "cpp" }

func (cppDialect) TypeName(kind scalar.Kind) string {
	switch kind {
	case scalar.Void:
		return "void"
	case scalar.Bool:
		return "bool"
	case scalar.Int8:
		return "signed char"
	case scalar.Int32:
		return "int"
	case scalar.UInt32:
		return "unsigned int"
	case scalar.Float32:
		return "float"
	case scalar.Float64:
		return "double"
	default:
		panic("codegen: cpp: unsupported kind " + kind.String())
	}
}

func (d cppDialect) Declare(kind scalar.Kind, name string) string {
	return d.TypeName(kind) + " " + name + " = 0;"
}

func (cppDialect) Seed(adjoint, expr string) string {
	return adjoint + " += " + expr + ";"
}

// C++20 keywords and alternative tokens, plus the names literals expand to.
var cppReserved = wordSet(`
alignas alignof and and_eq asm auto bitand bitor bool break case catch char
char8_t char16_t char32_t class compl concept const consteval constexpr
constinit const_cast continue co_await co_return co_yield decltype default
delete do double dynamic_cast else enum explicit export extern false float for
friend goto if inline int long mutable namespace new noexcept not not_eq
nullptr operator or or_eq private protected public register reinterpret_cast
requires return short signed sizeof static static_assert static_cast struct
switch template this thread_local throw true try typedef typeid typename union
unsigned using virtual void volatile wchar_t while xor xor_eq
std NAN INFINITY`)

func (cppDialect) Reserved(name string) bool { return cppReserved[name] }

func (d cppDialect) literal(kind scalar.Kind, v float64) string {
	switch {
	case kind == scalar.Bool:
		if v != 0 {
			return "true"
		}
		return "false"
	case !kind.IsFloat():
		return formatInt(kind, v)
	case math.IsNaN(v):
		return "NAN"
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "-INFINITY"
	default:
		return formatFloat(kind, v)
	}
}

func (d cppDialect) Templates(op tape.Operation) (string, string) {
	switch op.Op {
	case tape.Symbol:
		return "$v = " + op.Symbol + ";", ""
	case tape.Literal:
		return "$v = " + d.literal(op.Kind, op.Literal) + ";", ""
	case tape.Convert:
		forward := "$v = (" + d.TypeName(op.Kind) + ")($0);"
		if op.Source.IsFloat() {
			return forward, "d$0 += d$v;"
		}
		return forward, ""
	case tape.Add:
		return "$v = $0 + $1;", "d$0 += d$v; d$1 += d$v;"
	case tape.Sub:
		return "$v = $0 - $1;", "d$0 += d$v; d$1 -= d$v;"
	case tape.Mul:
		return "$v = $0 * $1;", "d$0 += d$v * $1; d$1 += d$v * $0;"
	case tape.Div:
		return "$v = $0 / $1;", "d$0 += d$v / $1; d$1 -= d$v * $0 / ($1 * $1);"
	case tape.Neg:
		return "$v = -$0;", "d$0 += -d$v;"
	case tape.Select:
		return "$v = $0 ? $1 : $2;", "if ($0) { d$1 += d$v; } else { d$2 += d$v; }"
	case tape.Sin:
		return "$v = std::sin($0);", "d$0 += d$v * std::cos($0);"
	case tape.Cos:
		return "$v = std::cos($0);", "d$0 -= d$v * std::sin($0);"
	case tape.Log:
		return "$v = std::log($0);", "d$0 += d$v / $0;"
	case tape.Exp:
		return "$v = std::exp($0);", "d$0 += d$v * $v;"
	case tape.Sqrt:
		return "$v = std::sqrt($0);", "d$0 += d$v * 0.5 / $v;"
	case tape.Eq, tape.Ne, tape.Le, tape.Ge, tape.Lt, tape.Gt:
		return "$v = $0 " + compareSymbol(op.Op) + " $1;", ""
	case tape.Custom:
		return op.Forward, op.Backward
	}
	panic("codegen: cpp: no template for " + op.Op.String())
}
