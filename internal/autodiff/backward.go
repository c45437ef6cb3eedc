package autodiff

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/born-ml/adgen/internal/codegen"
)

// SetGradient seeds h's adjoint with expr, raw text in the target language
// (an external symbol such as "dz", or a literal such as "1").
//
// Seeds add to the adjoint, which starts at zero, so several outputs can be
// seeded before one backward pass and seeding the same handle twice sums
// both expressions.
//
// Must be called after Stop and before Backward.
func (tr *Trace) SetGradient(h Handle, expr string) error {
	switch tr.state {
	case stopped:
	case differentiated:
		return errors.Wrap(ErrBackwardDone, "set gradient")
	default:
		return errors.Wrapf(ErrNotStopped, "set gradient: trace is %s", tr.state)
	}
	if h.Trace() != tr {
		return errors.Wrap(ErrForeignHandle, "set gradient")
	}
	tr.emitter.Seed(h.ID(), expr)
	tr.logger.Debug("gradient seeded", zap.Int32("id", int32(h.ID())), zap.String("expr", expr))
	return nil
}

// Backward emits the reverse sweep over the whole tape. It runs once per
// trace, after Stop.
func (tr *Trace) Backward() error {
	switch tr.state {
	case stopped:
	case differentiated:
		return errors.Wrap(ErrBackwardDone, "backward")
	default:
		return errors.Wrapf(ErrNotStopped, "backward: trace is %s", tr.state)
	}
	tr.emitter.EmitBackward(tr.tape)
	tr.state = differentiated
	tr.logger.Debug("backward emitted", zap.Int("ops", tr.tape.Len()))
	return nil
}

// Gradient returns the generated identifier of h's adjoint, for splicing
// into hand-written code around Code().
func (tr *Trace) Gradient(h Handle) string {
	return codegen.AdjointName(h.ID())
}

// Value returns the generated identifier of h's value.
func (tr *Trace) Value(h Handle) string {
	return codegen.ValueName(h.ID())
}
