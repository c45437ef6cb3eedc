// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff generates reverse-mode derivative code for scalar
// computations.
//
// Operations on symbolic handles are recorded on a Trace. Stopping the
// trace emits code recomputing every value, and Backward emits code
// accumulating the adjoint of every value from a seeded output gradient.
// Nothing is evaluated numerically.
//
// Example:
//
//	import "github.com/born-ml/adgen/autodiff"
//
//	func main() {
//	    tr := autodiff.NewTrace(autodiff.WithDialect(autodiff.Go))
//	    tr.Start()
//	    x := autodiff.Symbol[float64](tr, "x")
//	    y := autodiff.Symbol[float64](tr, "y")
//	    z := autodiff.Sin(x.Mul(y))
//	    _ = tr.Stop()
//	    _ = tr.SetGradient(z, "1")
//	    _ = tr.Backward()
//
//	    fmt.Print(tr.Code())          // declarations, forward and backward code
//	    fmt.Println(x.Gradient())     // identifier holding dz/dx
//	}
package autodiff

import (
	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/codegen"
	"github.com/born-ml/adgen/internal/scalar"
)

// Scalar is the set of Go types a Var may carry.
type Scalar = scalar.Scalar

// Float is the set of differentiable Go types.
type Float = scalar.Float

// Kind identifies the scalar type of a recorded value.
type Kind = scalar.Kind

// Trace records one computation and holds its generated code.
type Trace = autodiff.Trace

// Var is a symbolic scalar recorded on a Trace.
type Var[T Scalar] = autodiff.Var[T]

// Handle is any symbolic value recorded on a trace.
type Handle = autodiff.Handle

// Option configures a Trace.
type Option = autodiff.Option

// Dialect renders recorded operations in a target language.
type Dialect = codegen.Dialect

// Built-in dialects.
var (
	CPP Dialect = codegen.CPP
	Go  Dialect = codegen.Go
)

// Lifecycle errors returned by Trace methods.
var (
	ErrNotRecording  = autodiff.ErrNotRecording
	ErrNotStopped    = autodiff.ErrNotStopped
	ErrBackwardDone  = autodiff.ErrBackwardDone
	ErrForeignHandle = autodiff.ErrForeignHandle
)

// NewTrace creates an idle trace. The default dialect is CPP.
func NewTrace(opts ...Option) *Trace {
	return autodiff.NewTrace(opts...)
}

// WithDialect selects the target language.
var WithDialect = autodiff.WithDialect

// WithLogger sets the logger used for lifecycle events.
var WithLogger = autodiff.WithLogger

// LookupDialect returns the built-in dialect registered under name
// ("cpp", "c++" or "go").
func LookupDialect(name string) (Dialect, error) {
	return codegen.Lookup(name)
}

// Symbol records a named input.
func Symbol[T Scalar](tr *Trace, name string) Var[T] {
	return autodiff.Symbol[T](tr, name)
}

// Const records a literal.
func Const[T Scalar](tr *Trace, v T) Var[T] {
	return autodiff.Const(tr, v)
}

// Zero records the literal zero.
func Zero[T Scalar](tr *Trace) Var[T] {
	return autodiff.Zero[T](tr)
}

// Convert records a conversion to To. Gradients flow back only between
// float types.
func Convert[To, From Scalar](v Var[From]) Var[To] {
	return autodiff.Convert[To](v)
}

// Custom records an operation given by raw forward and backward templates.
// Templates refer to the result as $v, to dependencies as $0..$3 and to
// adjoints as d$v and d$0..d$3.
func Custom[T Scalar](tr *Trace, forward, backward string, deps ...Handle) Var[T] {
	return autodiff.Custom[T](tr, forward, backward, deps...)
}

// ScalarAdd records c + v.
func ScalarAdd[T Scalar](c T, v Var[T]) Var[T] { return autodiff.ScalarAdd(c, v) }

// ScalarSub records c - v.
func ScalarSub[T Scalar](c T, v Var[T]) Var[T] { return autodiff.ScalarSub(c, v) }

// ScalarMul records c * v.
func ScalarMul[T Scalar](c T, v Var[T]) Var[T] { return autodiff.ScalarMul(c, v) }

// ScalarDiv records c / v.
func ScalarDiv[T Scalar](c T, v Var[T]) Var[T] { return autodiff.ScalarDiv(c, v) }

// Select records cond ? a : b.
func Select[T Scalar](cond Var[bool], a, b Var[T]) Var[T] {
	return autodiff.Select(cond, a, b)
}

// Sin records sin(x).
func Sin[T Float](x Var[T]) Var[T] { return autodiff.Sin(x) }

// Cos records cos(x).
func Cos[T Float](x Var[T]) Var[T] { return autodiff.Cos(x) }

// Log records the natural logarithm of x.
func Log[T Float](x Var[T]) Var[T] { return autodiff.Log(x) }

// Exp records e**x.
func Exp[T Float](x Var[T]) Var[T] { return autodiff.Exp(x) }

// Sqrt records the square root of x.
func Sqrt[T Float](x Var[T]) Var[T] { return autodiff.Sqrt(x) }
