package autodiff

import (
	"github.com/born-ml/adgen/internal/scalar"
	"github.com/born-ml/adgen/internal/tape"
)

// Select returns a if cond holds, b otherwise. Only the chosen branch
// receives the gradient; cond receives none.
func Select[T scalar.Scalar](cond Var[bool], a, b Var[T]) Var[T] {
	return wrap[T](a.tr, a.tr.emit(tape.Operation{Kind: scalar.Of[T](), Op: tape.Select}, cond, a, b))
}

// Sin returns sin(x). d/dx = cos(x).
func Sin[T scalar.Float](x Var[T]) Var[T] { return x.unary(tape.Sin) }

// Cos returns cos(x). d/dx = -sin(x).
func Cos[T scalar.Float](x Var[T]) Var[T] { return x.unary(tape.Cos) }

// Log returns the natural logarithm of x. d/dx = 1/x.
func Log[T scalar.Float](x Var[T]) Var[T] { return x.unary(tape.Log) }

// Exp returns e**x. d/dx = e**x, read back from the result.
func Exp[T scalar.Float](x Var[T]) Var[T] { return x.unary(tape.Exp) }

// Sqrt returns the square root of x. d/dx = 0.5/sqrt(x), read back from the
// result.
func Sqrt[T scalar.Float](x Var[T]) Var[T] { return x.unary(tape.Sqrt) }
