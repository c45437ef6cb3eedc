// Package config loads the adgen driver configuration.
package config

import (
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/adgen/internal/codegen"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds the functions to differentiate and how to render them.
type Config struct {
	// Target language: cpp or go.
	Target string `yaml:"target"`

	// Precision of generated values: float32 or float64.
	Precision string `yaml:"precision"`

	// Package clause for the go target.
	Package string `yaml:"package"`

	// Output file; empty writes to stdout.
	Output string `yaml:"output,omitempty"`

	Functions []Function `yaml:"functions"`

	Check CheckConfig `yaml:"check"`
}

// Function is one scalar function to differentiate.
type Function struct {
	Name   string      `yaml:"name"`
	Inputs []string    `yaml:"inputs"`
	Expr   string      `yaml:"expr"`
	Seed   string      `yaml:"seed"`             // adjoint parameter name, default "d" + Name
	Points [][]float64 `yaml:"points,omitempty"` // gradient check points
}

// CheckConfig configures the numeric gradient check.
type CheckConfig struct {
	Step      float64 `yaml:"step"`
	Tolerance float64 `yaml:"tolerance"`
}

// DefaultConfig returns the defaults: a C++ float32 Rosenbrock gradient.
func DefaultConfig() *Config {
	return &Config{
		Target:    "cpp",
		Precision: "float32",
		Package:   "gradients",
		Functions: []Function{
			{
				Name:   "F",
				Inputs: []string{"x", "y"},
				Expr:   "(1-x)*(1-x) + 100*(y-x*x)*(y-x*x)",
				Seed:   "dz",
			},
		},
		Check: CheckConfig{
			Step:      1e-6,
			Tolerance: 1e-4,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Functions listed in the file replace the default ones.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults.
	case err != nil:
		return nil, errors.Wrap(err, "failed to read config")
	default:
		cfg.Functions = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create config directory")
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}
	return nil
}

// applyEnvOverrides applies ADGEN_* environment overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADGEN_TARGET"); v != "" {
		c.Target = v
	}
	if v := os.Getenv("ADGEN_PRECISION"); v != "" {
		c.Precision = v
	}
	if v := os.Getenv("ADGEN_OUTPUT"); v != "" {
		c.Output = v
	}
}

// Validate checks the configuration and fills per-function defaults.
func (c *Config) Validate() error {
	d, err := codegen.Lookup(c.Target)
	if err != nil {
		return errors.Wrapf(ErrInvalid, "target: %v", err)
	}
	switch c.Precision {
	case "float32", "float64":
	default:
		return errors.Wrapf(ErrInvalid, "precision %q: want float32 or float64", c.Precision)
	}
	if c.Check.Step < 0 || c.Check.Tolerance < 0 {
		return errors.Wrap(ErrInvalid, "check step and tolerance must not be negative")
	}
	if len(c.Functions) == 0 {
		return errors.Wrap(ErrInvalid, "no functions")
	}

	names := make(map[string]bool, len(c.Functions))
	for i := range c.Functions {
		fn := &c.Functions[i]
		if fn.Seed == "" {
			fn.Seed = "d" + fn.Name
		}
		if err := fn.validate(d); err != nil {
			return err
		}
		if names[fn.Name] {
			return errors.Wrapf(ErrInvalid, "duplicate function %q", fn.Name)
		}
		names[fn.Name] = true
	}
	return nil
}

func (fn *Function) validate(d codegen.Dialect) error {
	if !token.IsIdentifier(fn.Name) {
		return errors.Wrapf(ErrInvalid, "function name %q is not an identifier", fn.Name)
	}
	if strings.TrimSpace(fn.Expr) == "" {
		return errors.Wrapf(ErrInvalid, "function %s: empty expr", fn.Name)
	}
	if len(fn.Inputs) == 0 {
		return errors.Wrapf(ErrInvalid, "function %s: no inputs", fn.Name)
	}

	// The rendered signature declares the inputs, the seed and one
	// gradient output per input ("d" + input).
	used := map[string]string{fn.Seed: "seed"}
	check := func(name, role string) error {
		switch {
		case !token.IsIdentifier(name):
			return errors.Wrapf(ErrInvalid, "function %s: %s %q is not an identifier", fn.Name, role, name)
		case codegen.IsGeneratedName(name):
			return errors.Wrapf(ErrInvalid, "function %s: %s %q collides with generated names", fn.Name, role, name)
		case d.Reserved(name):
			return errors.Wrapf(ErrInvalid, "function %s: %s %q is reserved in %s", fn.Name, role, name, d.Name())
		}
		return nil
	}
	if err := check(fn.Seed, "seed"); err != nil {
		return err
	}
	for _, in := range fn.Inputs {
		if err := check(in, "input"); err != nil {
			return err
		}
		if err := check("d"+in, "gradient"); err != nil {
			return err
		}
		for _, name := range []string{in, "d" + in} {
			if other, ok := used[name]; ok {
				return errors.Wrapf(ErrInvalid, "function %s: %q used as both input and %s", fn.Name, name, other)
			}
			used[name] = "input " + in
		}
	}
	for _, p := range fn.Points {
		if len(p) != len(fn.Inputs) {
			return errors.Wrapf(ErrInvalid, "function %s: check point %v has %d values, want %d", fn.Name, p, len(p), len(fn.Inputs))
		}
	}
	return nil
}

// CheckPoints returns the configured gradient check points, or one point
// with every input at 0.5.
func (fn *Function) CheckPoints() [][]float64 {
	if len(fn.Points) > 0 {
		return fn.Points
	}
	p := make([]float64, len(fn.Inputs))
	for i := range p {
		p[i] = 0.5
	}
	return [][]float64{p}
}
