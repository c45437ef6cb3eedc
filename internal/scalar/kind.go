// Package scalar defines the closed set of scalar kinds a trace can record.
package scalar

import (
	"fmt"
	"math"
	"reflect"
)

// Scalar is a constraint for the Go types a symbolic handle can stand for.
type Scalar interface {
	~bool | ~int8 | ~int32 | ~uint32 | ~float32 | ~float64
}

// Float is the subset of Scalar that carries gradients.
type Float interface {
	~float32 | ~float64
}

// Kind is the runtime type of a recorded value.
type Kind int

// Supported kinds.
const (
	Void Kind = iota
	Bool
	Int8
	Int32
	UInt32
	Float32
	Float64
)

// Size returns the byte size of the kind.
// Void and unknown kinds have no size; asking for one is a programming error.
func (k Kind) Size() int {
	switch k {
	case Bool, Int8:
		return 1
	case Int32, UInt32, Float32:
		return 4
	case Float64:
		return 8
	default:
		panic(fmt.Sprintf("scalar: kind %s has no size", k))
	}
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int32:
		return "int32"
	case UInt32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the concrete value kinds (not Void).
func (k Kind) Valid() bool {
	return k > Void && k <= Float64
}

// IsFloat reports whether k is a floating-point kind.
func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// IsInt reports whether k is an integer kind. Bool counts as one.
func (k Kind) IsInt() bool {
	return k.Valid() && !k.IsFloat()
}

// Differentiable reports whether values of this kind carry an adjoint
// that the backward pass accumulates into.
func (k Kind) Differentiable() bool {
	return k.IsFloat()
}

// Of returns the Kind for the Go type T. Named types map to the kind of
// their underlying type.
func Of[T Scalar]() Kind {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int32:
		return Int32
	case reflect.Uint32:
		return UInt32
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	default:
		panic("scalar: unsupported type")
	}
}

// Bits returns the literal value carried on the tape for v. Booleans map
// to 0 and 1; every other supported kind fits exactly in a float64.
func Bits[T Scalar](v T) float64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Int8, reflect.Int32:
		return float64(rv.Int())
	case reflect.Uint32:
		return float64(rv.Uint())
	default:
		return rv.Float()
	}
}

// IsFinite reports whether a literal can be written as a plain number.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
