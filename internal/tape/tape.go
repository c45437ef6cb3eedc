// Package tape records the operations performed during one trace.
//
// The tape is append-only and kept in topological order by construction:
// an operation may only depend on operations that were appended before it.
// Walking it forwards replays the computation; walking it backwards visits
// every use of a value before the value itself.
package tape

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/born-ml/adgen/internal/scalar"
)

// MaxDeps is the largest number of dependencies one operation can have.
const MaxDeps = 4

// ID is the position of an operation on its tape.
type ID int32

// None marks an unused dependency slot.
const None ID = -1

// Errors returned by Append.
var (
	ErrTooManyDeps       = errors.New("too many dependencies")
	ErrUnknownDependency = errors.New("dependency not recorded")
	ErrUnsupportedKind   = errors.New("unsupported scalar kind")
	ErrArityMismatch     = errors.New("dependency count does not match op")
)

// Operation is one recorded computation step.
type Operation struct {
	ID   ID          // position on the tape
	Kind scalar.Kind // kind of the result
	Op   Op

	Source  scalar.Kind // Convert: kind of the operand
	Symbol  string      // Symbol: external name
	Literal float64     // Literal: value, bools as 0/1

	Forward  string // Custom: forward template
	Backward string // Custom: backward template, empty for no gradient

	deps    [MaxDeps]ID
	numDeps uint8
}

// Deps returns the dependency ids in positional order.
func (o Operation) Deps() []ID {
	return append([]ID(nil), o.deps[:o.numDeps]...)
}

// Dep returns dependency i, or None.
func (o Operation) Dep(i int) ID {
	if i < 0 || i >= int(o.numDeps) {
		return None
	}
	return o.deps[i]
}

// NumDeps returns the number of dependencies.
func (o Operation) NumDeps() int {
	return int(o.numDeps)
}

// Differentiable reports whether the backward pass considers this operation.
func (o Operation) Differentiable() bool {
	return o.Kind.Differentiable()
}

// Tape is the ordered record of all operations since the last Clear.
type Tape struct {
	operations []Operation
}

// New creates an empty tape.
func New() *Tape {
	return &Tape{
		operations: make([]Operation, 0, 64),
	}
}

// Clear removes all recorded operations.
func (t *Tape) Clear() {
	t.operations = t.operations[:0]
}

// Len returns the number of recorded operations.
func (t *Tape) Len() int {
	return len(t.operations)
}

// At returns the operation with the given id.
func (t *Tape) At(id ID) Operation {
	return t.operations[id]
}

// Append validates op's dependencies, assigns it the next id and records it.
// The ID, deps and numDeps fields of op are overwritten.
func (t *Tape) Append(op Operation, deps ...ID) (ID, error) {
	next := ID(len(t.operations))
	if !op.Kind.Valid() {
		return None, errors.Wrapf(ErrUnsupportedKind, "operation %d (%s): %s", next, op.Op, op.Kind)
	}
	if op.Kind == scalar.Bool && op.Op.IsArithmetic() {
		return None, errors.Wrapf(ErrUnsupportedKind, "operation %d (%s): arithmetic on bool", next, op.Op)
	}
	if len(deps) > MaxDeps {
		return None, errors.Wrapf(ErrTooManyDeps, "operation %d (%s): %d > %d", next, op.Op, len(deps), MaxDeps)
	}
	if arity := op.Op.Arity(); arity >= 0 && arity != len(deps) {
		return None, errors.Wrapf(ErrArityMismatch, "operation %d (%s): want %d, got %d", next, op.Op, arity, len(deps))
	}
	op.deps = [MaxDeps]ID{None, None, None, None}
	for i, dep := range deps {
		if dep < 0 || dep >= next {
			return None, errors.Wrapf(ErrUnknownDependency, "operation %d (%s): dependency %d is %d", next, op.Op, i, dep)
		}
		if op.Op.IsOrdering() && t.operations[dep].Kind == scalar.Bool {
			return None, errors.Wrapf(ErrUnsupportedKind, "operation %d (%s): ordering on bool", next, op.Op)
		}
		op.deps[i] = dep
	}
	op.numDeps = uint8(len(deps))
	op.ID = next
	t.operations = append(t.operations, op)
	return next, nil
}

// AppendTemplate records a Custom operation from raw templates. An empty
// backward template means the operation contributes no gradient.
func (t *Tape) AppendTemplate(kind scalar.Kind, forward, backward string, deps ...ID) (ID, error) {
	return t.Append(Operation{
		Kind:     kind,
		Op:       Custom,
		Forward:  forward,
		Backward: backward,
	}, deps...)
}

// All yields the operations in recording order.
func (t *Tape) All() iter.Seq[Operation] {
	return func(yield func(Operation) bool) {
		for _, op := range t.operations {
			if !yield(op) {
				return
			}
		}
	}
}

// Reverse yields the operations in strictly decreasing id order.
func (t *Tape) Reverse() iter.Seq[Operation] {
	return func(yield func(Operation) bool) {
		for i := len(t.operations) - 1; i >= 0; i-- {
			if !yield(t.operations[i]) {
				return
			}
		}
	}
}
