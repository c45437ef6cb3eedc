package scalar

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type meters float64

func TestKind_Size(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Bool, 1},
		{Int8, 1},
		{Int32, 4},
		{UInt32, 4},
		{Float32, 4},
		{Float64, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Size(), tt.kind.String())
	}
}

func TestKind_SizeUnsupportedPanics(t *testing.T) {
	assert.Panics(t, func() { _ = Void.Size() })
	assert.Panics(t, func() { _ = Kind(42).Size() })
}

func TestKind_Predicates(t *testing.T) {
	assert.True(t, Float32.IsFloat())
	assert.True(t, Float64.Differentiable())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Bool.IsInt())
	assert.True(t, UInt32.IsInt())
	assert.False(t, Void.IsInt())
	assert.False(t, Void.Valid())
	assert.False(t, Bool.Differentiable())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}

func TestOf(t *testing.T) {
	assert.Equal(t, Bool, Of[bool]())
	assert.Equal(t, Int8, Of[int8]())
	assert.Equal(t, Int32, Of[int32]())
	assert.Equal(t, UInt32, Of[uint32]())
	assert.Equal(t, Float32, Of[float32]())
	assert.Equal(t, Float64, Of[float64]())
	assert.Equal(t, Float64, Of[meters]())
}

func TestBits(t *testing.T) {
	assert.Equal(t, 1.0, Bits(true))
	assert.Equal(t, 0.0, Bits(false))
	assert.Equal(t, -7.0, Bits(int8(-7)))
	assert.Equal(t, 4294967295.0, Bits(uint32(math.MaxUint32)))
	assert.Equal(t, 0.5, Bits(float32(0.5)))
	assert.Equal(t, 2.5, Bits(meters(2.5)))
	assert.False(t, IsFinite(math.Inf(-1)))
	assert.True(t, IsFinite(3))
}
