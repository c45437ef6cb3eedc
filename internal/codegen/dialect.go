// Package codegen renders a recorded tape as program text.
//
// Rendering is split in two: a Dialect maps each structured instruction to a
// forward and a backward template in some target language, and the Emitter
// walks the tape, expands the templates with generated variable names and
// collects the statements into three buffers (declarations, forward pass,
// backward pass).
//
// Templates reach a value's adjoint by prefixing its placeholder with "d",
// so "d$0" expands to "dv3" when dependency 0 is v3.
package codegen

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/adgen/internal/scalar"
	"github.com/born-ml/adgen/internal/tape"
)

// ErrUnknownDialect is returned by Lookup for an unregistered name.
var ErrUnknownDialect = errors.New("unknown dialect")

// Dialect renders instructions for one target language.
type Dialect interface {
	// Name returns the identifier used by Lookup.
	Name() string

	// TypeName returns the target spelling of kind. It panics for kinds the
	// target cannot declare.
	TypeName(kind scalar.Kind) string

	// Declare returns a zero-initialised declaration of name.
	Declare(kind scalar.Kind, name string) string

	// Templates returns the forward and backward templates for op.
	// An empty backward template means no gradient contribution.
	Templates(op tape.Operation) (forward, backward string)

	// Seed returns the statement that seeds adjoint with expr.
	Seed(adjoint, expr string) string

	// Reserved reports whether name cannot be used as a symbol or
	// parameter name in generated code: keywords, and identifiers the
	// templates themselves refer to.
	Reserved(name string) bool
}

// ValueName returns the generated identifier of an operation's value.
func ValueName(id tape.ID) string {
	return "v" + strconv.Itoa(int(id))
}

// AdjointName returns the generated identifier of an operation's adjoint.
func AdjointName(id tape.ID) string {
	return "d" + ValueName(id)
}

// IsGeneratedName reports whether name has the shape of a generated
// identifier and would collide with one.
func IsGeneratedName(name string) bool {
	rest := strings.TrimPrefix(name, "d")
	rest, ok := strings.CutPrefix(rest, "v")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func wordSet(words string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(words) {
		set[w] = true
	}
	return set
}

var dialects = map[string]Dialect{
	"cpp": CPP,
	"c++": CPP,
	"go":  Go,
}

// Lookup returns the built-in dialect registered under name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDialect, "%q (have %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names returns the registered dialect names, sorted.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func compareSymbol(op tape.Op) string {
	switch op {
	case tape.Eq:
		return "=="
	case tape.Ne:
		return "!="
	case tape.Le:
		return "<="
	case tape.Ge:
		return ">="
	case tape.Lt:
		return "<"
	case tape.Gt:
		return ">"
	}
	panic("codegen: not a comparison: " + op.String())
}

func formatInt(kind scalar.Kind, v float64) string {
	if kind == scalar.UInt32 {
		return strconv.FormatUint(uint64(v), 10)
	}
	return strconv.FormatInt(int64(v), 10)
}

func formatFloat(kind scalar.Kind, v float64) string {
	bits := 64
	if kind == scalar.Float32 {
		bits = 32
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}
