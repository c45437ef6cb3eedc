package autodiff

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/born-ml/adgen/internal/codegen"
	"github.com/born-ml/adgen/internal/tape"
)

// Lifecycle errors.
var (
	ErrNotRecording  = errors.New("trace is not recording")
	ErrNotStopped    = errors.New("trace has not been stopped")
	ErrBackwardDone  = errors.New("backward pass already emitted")
	ErrForeignHandle = errors.New("handle belongs to another trace")
)

type state int

const (
	idle state = iota
	recording
	stopped
	differentiated
)

func (s state) String() string {
	switch s {
	case idle:
		return "idle"
	case recording:
		return "recording"
	case stopped:
		return "stopped"
	default:
		return "differentiated"
	}
}

// Trace owns the tape and the generated text for one traced computation.
// Handles borrow it; a trace lives from Start until its code is read.
//
// A Trace is not safe for concurrent use. Independent traces are.
type Trace struct {
	id      uuid.UUID
	tape    *tape.Tape
	emitter *codegen.Emitter
	state   state
	logger  *zap.Logger
}

// Option configures a Trace.
type Option func(*Trace)

// WithDialect selects the target language. The default is codegen.CPP.
func WithDialect(d codegen.Dialect) Option {
	return func(tr *Trace) {
		tr.emitter = codegen.NewEmitter(d)
	}
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(tr *Trace) {
		if l != nil {
			tr.logger = l
		}
	}
}

// NewTrace creates an idle trace. Call Start before building handles.
func NewTrace(opts ...Option) *Trace {
	tr := &Trace{
		id:      uuid.New(),
		tape:    tape.New(),
		emitter: codegen.NewEmitter(codegen.CPP),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(tr)
	}
	tr.logger = tr.logger.With(zap.String("trace", tr.id.String()))
	return tr
}

// ID returns the trace's unique id.
func (tr *Trace) ID() uuid.UUID {
	return tr.id
}

// Tape returns the recorded tape for inspection.
func (tr *Trace) Tape() *tape.Tape {
	return tr.tape
}

// Dialect returns the target language.
func (tr *Trace) Dialect() codegen.Dialect {
	return tr.emitter.Dialect()
}

// IsRecording reports whether handles may currently be built.
func (tr *Trace) IsRecording() bool {
	return tr.state == recording
}

// Start clears the tape and all generated text and begins recording.
// It may be called in any state to begin a fresh trace.
func (tr *Trace) Start() {
	tr.tape.Clear()
	tr.emitter.Reset()
	tr.state = recording
	tr.logger.Debug("trace started", zap.String("dialect", tr.emitter.Dialect().Name()))
}

// Stop ends recording and emits declarations and forward statements.
func (tr *Trace) Stop() error {
	if tr.state != recording {
		return errors.Wrapf(ErrNotRecording, "stop: trace is %s", tr.state)
	}
	tr.emitter.EmitForward(tr.tape)
	tr.state = stopped
	tr.logger.Debug("trace stopped", zap.Int("ops", tr.tape.Len()))
	return nil
}

// Declarations returns the generated declarations.
func (tr *Trace) Declarations() string {
	return tr.emitter.Declarations()
}

// ForwardCode returns the generated forward statements.
func (tr *Trace) ForwardCode() string {
	return tr.emitter.Forward()
}

// BackwardCode returns the seed and backward statements.
func (tr *Trace) BackwardCode() string {
	return tr.emitter.Backward()
}

// Code returns declarations, forward and backward statements concatenated,
// meant to be placed inside a caller-supplied function body.
func (tr *Trace) Code() string {
	return tr.emitter.Code()
}

// emit is the single entry point through which handles reach the tape.
// Misuse is a programming error and panics.
func (tr *Trace) emit(op tape.Operation, deps ...Handle) tape.ID {
	if tr == nil {
		panic(errors.Wrapf(ErrNotRecording, "%s: nil trace", op.Op))
	}
	if tr.state != recording {
		panic(errors.Wrapf(ErrNotRecording, "%s: trace is %s", op.Op, tr.state))
	}
	ids := make([]tape.ID, len(deps))
	for i, dep := range deps {
		if dep.Trace() != tr {
			panic(errors.Wrapf(ErrForeignHandle, "%s: operand %d", op.Op, i))
		}
		ids[i] = dep.ID()
	}
	id, err := tr.tape.Append(op, ids...)
	if err != nil {
		panic(err)
	}
	return id
}
