package codegen

import (
	"strings"

	"github.com/born-ml/adgen/internal/placeholder"
	"github.com/born-ml/adgen/internal/tape"
)

// Emitter accumulates the generated text for one trace.
//
// Usage:
//
//	e := NewEmitter(CPP)
//	e.EmitForward(t)
//	e.Seed(out, "1")
//	e.EmitBackward(t)
//	code := e.Code()
type Emitter struct {
	dialect  Dialect
	decls    strings.Builder
	forward  strings.Builder
	backward strings.Builder
}

// NewEmitter creates an emitter for the given dialect. A nil dialect
// selects CPP.
func NewEmitter(d Dialect) *Emitter {
	if d == nil {
		d = CPP
	}
	return &Emitter{dialect: d}
}

// Dialect returns the target dialect.
func (e *Emitter) Dialect() Dialect {
	return e.dialect
}

// Reset clears all three buffers.
func (e *Emitter) Reset() {
	e.decls.Reset()
	e.forward.Reset()
	e.backward.Reset()
}

// EmitForward declares a value and an adjoint for every operation, then
// appends each operation's forward statement in recording order. Adjoints
// are declared for every kind so the generated code stays well formed.
func (e *Emitter) EmitForward(t *tape.Tape) {
	for op := range t.All() {
		e.line(&e.decls, e.dialect.Declare(op.Kind, ValueName(op.ID)))
		e.line(&e.decls, e.dialect.Declare(op.Kind, AdjointName(op.ID)))
	}
	for op := range t.All() {
		forward, _ := e.dialect.Templates(op)
		e.line(&e.forward, expand(forward, op))
	}
}

// Seed appends a statement adding expr to the adjoint of id. expr is raw
// target-language text.
func (e *Emitter) Seed(id tape.ID, expr string) {
	e.line(&e.backward, e.dialect.Seed(AdjointName(id), expr))
}

// EmitBackward appends each operation's backward statement in strictly
// decreasing id order, so every use of a value has contributed to its
// adjoint before the value's own rule reads it. Operations whose result is
// not floating point are skipped whatever their template says.
func (e *Emitter) EmitBackward(t *tape.Tape) {
	for op := range t.Reverse() {
		if !op.Differentiable() {
			continue
		}
		_, backward := e.dialect.Templates(op)
		e.line(&e.backward, expand(backward, op))
	}
}

// Declarations returns the declaration block.
func (e *Emitter) Declarations() string {
	return e.decls.String()
}

// Forward returns the forward statements.
func (e *Emitter) Forward() string {
	return e.forward.String()
}

// Backward returns the seed and backward statements.
func (e *Emitter) Backward() string {
	return e.backward.String()
}

// Code returns declarations, forward and backward text, in that order.
func (e *Emitter) Code() string {
	return e.decls.String() + e.forward.String() + e.backward.String()
}

func (e *Emitter) line(b *strings.Builder, stmt string) {
	if stmt == "" {
		return
	}
	b.WriteString(stmt)
	b.WriteByte('\n')
}

func expand(template string, op tape.Operation) string {
	deps := op.Deps()
	names := make([]string, len(deps))
	for i, dep := range deps {
		names[i] = ValueName(dep)
	}
	return placeholder.Expand(template, ValueName(op.ID), names...)
}
