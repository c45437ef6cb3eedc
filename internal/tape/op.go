package tape

import "fmt"

// Op identifies the instruction an Operation performs.
//
// Catalog and reverse-mode rules (v = result, a/b = operands):
//   - Symbol, Literal: leaves, no gradient
//   - Convert: da += dv, only from a floating-point source
//   - Add: da += dv, db += dv
//   - Sub: da += dv, db -= dv
//   - Mul: da += dv*b, db += dv*a
//   - Div: da += dv/b, db -= dv*a/(b*b)
//   - Neg: da -= dv
//   - Select(c, a, b): da += dv if c, else db += dv
//   - Sin: da += dv*cos(a)
//   - Cos: da -= dv*sin(a)
//   - Log: da += dv/a
//   - Exp: da += dv*v
//   - Sqrt: da += dv*0.5/v
//   - Eq, Ne, Le, Ge, Lt, Gt: boolean result, no gradient
//   - Custom: raw forward/backward templates supplied by the caller
type Op uint8

// Instruction catalog.
const (
	Symbol Op = iota
	Literal
	Convert
	Add
	Sub
	Mul
	Div
	Neg
	Select
	Sin
	Cos
	Log
	Exp
	Sqrt
	Eq
	Ne
	Le
	Ge
	Lt
	Gt
	Custom
)

var opNames = [...]string{
	Symbol:  "symbol",
	Literal: "literal",
	Convert: "convert",
	Add:     "add",
	Sub:     "sub",
	Mul:     "mul",
	Div:     "div",
	Neg:     "neg",
	Select:  "select",
	Sin:     "sin",
	Cos:     "cos",
	Log:     "log",
	Exp:     "exp",
	Sqrt:    "sqrt",
	Eq:      "eq",
	Ne:      "ne",
	Le:      "le",
	Ge:      "ge",
	Lt:      "lt",
	Gt:      "gt",
	Custom:  "custom",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Arity returns the number of dependencies the op takes, or -1 when it
// varies (Custom).
func (o Op) Arity() int {
	switch o {
	case Symbol, Literal:
		return 0
	case Convert, Neg, Sin, Cos, Log, Exp, Sqrt:
		return 1
	case Add, Sub, Mul, Div, Eq, Ne, Le, Ge, Lt, Gt:
		return 2
	case Select:
		return 3
	default:
		return -1
	}
}

// IsArithmetic reports whether the op computes a number from numbers.
func (o Op) IsArithmetic() bool {
	switch o {
	case Add, Sub, Mul, Div, Neg, Sin, Cos, Log, Exp, Sqrt:
		return true
	default:
		return false
	}
}

// IsOrdering reports whether the op is one of < <= > >=.
func (o Op) IsOrdering() bool {
	return o >= Le && o <= Gt
}

// IsComparison reports whether the op yields a boolean from two operands.
func (o Op) IsComparison() bool {
	return o >= Eq && o <= Gt
}
