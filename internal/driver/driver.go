// Package driver turns a configuration into generated gradient source.
//
// Every configured function is traced on its own autodiff.Trace, so
// functions are traced concurrently.
package driver

import (
	"bytes"
	"context"
	"go/format"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/codegen"
	"github.com/born-ml/adgen/internal/config"
	"github.com/born-ml/adgen/internal/expr"
	"github.com/born-ml/adgen/internal/gradcheck"
	"github.com/born-ml/adgen/internal/scalar"
)

// Generator renders the functions of one configuration.
type Generator struct {
	cfg     *config.Config
	dialect codegen.Dialect
	kind    scalar.Kind
	logger  *zap.Logger
}

// New validates cfg and creates a generator. A nil logger disables logging.
func New(cfg *config.Config, logger *zap.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := codegen.Lookup(cfg.Target)
	if err != nil {
		return nil, err
	}
	kind := scalar.Float32
	if cfg.Precision == "float64" {
		kind = scalar.Float64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, dialect: d, kind: kind, logger: logger}, nil
}

// Config returns the validated configuration.
func (g *Generator) Config() *config.Config {
	return g.cfg
}

// Trace records and differentiates one function.
func (g *Generator) Trace(fn config.Function) (*Traced, error) {
	if g.kind == scalar.Float64 {
		return traceAs[float64](fn, g.dialect, g.logger)
	}
	return traceAs[float32](fn, g.dialect, g.logger)
}

func traceAs[T scalar.Float](fn config.Function, d codegen.Dialect, logger *zap.Logger) (*Traced, error) {
	tr := autodiff.NewTrace(autodiff.WithDialect(d), autodiff.WithLogger(logger.With(zap.String("func", fn.Name))))
	tr.Start()

	handles := make([]autodiff.Var[T], len(fn.Inputs))
	inputs := make(map[string]autodiff.Var[T], len(fn.Inputs))
	for i, name := range fn.Inputs {
		handles[i] = autodiff.Symbol[T](tr, name)
		inputs[name] = handles[i]
	}
	out, err := expr.Build(tr, fn.Expr, inputs)
	if err != nil {
		return nil, errors.Wrapf(err, "function %s", fn.Name)
	}
	if err := tr.Stop(); err != nil {
		return nil, err
	}
	if err := tr.SetGradient(out, fn.Seed); err != nil {
		return nil, err
	}
	if err := tr.Backward(); err != nil {
		return nil, err
	}

	t := &Traced{
		Function: fn,
		Body:     tr.Code(),
		Output:   tr.Value(out),
		Grads:    make([]string, len(handles)),
		Ops:      tr.Tape().Len(),
	}
	for i, h := range handles {
		t.Grads[i] = h.Gradient()
	}
	return t, nil
}

// GenerateAll traces every configured function concurrently. Results are
// in configuration order.
func (g *Generator) GenerateAll(ctx context.Context) ([]*Traced, error) {
	results := make([]*Traced, len(g.cfg.Functions))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, fn := range g.cfg.Functions {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := g.Trace(fn)
			if err != nil {
				return err
			}
			g.logger.Debug("function traced", zap.String("func", fn.Name), zap.Int("ops", t.Ops))
			results[i] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Source renders traced functions into one source file.
func (g *Generator) Source(traced []*Traced) (string, error) {
	var body strings.Builder
	for i, t := range traced {
		if i > 0 {
			body.WriteByte('\n')
		}
		body.WriteString(Render(t, g.dialect, g.kind))
	}

	var b strings.Builder
	b.WriteString(generatedHeader)
	b.WriteByte('\n')
	if g.dialect.Name() != codegen.Go.Name() {
		b.WriteString("#include <cmath>\n\n")
		b.WriteString(body.String())
		return b.String(), nil
	}

	b.WriteString("package " + g.cfg.Package + "\n\n")
	if strings.Contains(body.String(), "math.") {
		b.WriteString("import \"math\"\n\n")
	}
	b.WriteString(body.String())
	src, err := format.Source([]byte(b.String()))
	if err != nil {
		return "", errors.Wrap(err, "formatting generated Go")
	}
	return string(src), nil
}

// Generate traces all functions and returns the rendered file.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	traced, err := g.GenerateAll(ctx)
	if err != nil {
		return "", err
	}
	return g.Source(traced)
}

// Run generates the file and writes it to the configured output, or to
// stdout when none is set.
func (g *Generator) Run(ctx context.Context, stdout io.Writer) error {
	src, err := g.Generate(ctx)
	if err != nil {
		return err
	}
	if g.cfg.Output == "" {
		_, err := io.WriteString(stdout, src)
		return err
	}
	if dir := filepath.Dir(g.cfg.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "creating output directory")
		}
	}
	// Skip the write when nothing changed so watchers on the output stay quiet.
	if old, err := os.ReadFile(g.cfg.Output); err == nil && bytes.Equal(old, []byte(src)) {
		g.logger.Debug("output unchanged", zap.String("path", g.cfg.Output))
		return nil
	}
	if err := os.WriteFile(g.cfg.Output, []byte(src), 0o644); err != nil {
		return errors.Wrap(err, "writing output")
	}
	g.logger.Info("wrote gradients", zap.String("path", g.cfg.Output), zap.Int("functions", len(g.cfg.Functions)))
	return nil
}

// CheckAll runs the numeric gradient check for every function at each of
// its check points. Checks always run in float64. Reports are in
// configuration order; the first failure is returned with all reports.
func (g *Generator) CheckAll(ctx context.Context) ([]*gradcheck.Report, error) {
	type job struct {
		fn    config.Function
		point []float64
	}
	var jobs []job
	for _, fn := range g.cfg.Functions {
		for _, p := range fn.CheckPoints() {
			jobs = append(jobs, job{fn, p})
		}
	}

	opts := gradcheck.Options{
		Step:      g.cfg.Check.Step,
		Tolerance: g.cfg.Check.Tolerance,
		Logger:    g.logger,
	}
	reports := make([]*gradcheck.Report, len(jobs))
	errs := make([]error, len(jobs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i], errs[i] = gradcheck.Check(checkFunc(j.fn), j.point, opts)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func checkFunc(fn config.Function) gradcheck.Func {
	return gradcheck.Func{
		Name:   fn.Name,
		Inputs: fn.Inputs,
		Build: func(tr *autodiff.Trace, in []autodiff.Var[float64]) autodiff.Var[float64] {
			inputs := make(map[string]autodiff.Var[float64], len(in))
			for i, name := range fn.Inputs {
				inputs[name] = in[i]
			}
			out, err := expr.Build(tr, fn.Expr, inputs)
			if err != nil {
				panic(err)
			}
			return out
		},
	}
}
