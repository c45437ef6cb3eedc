package driver

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/born-ml/adgen/internal/codegen"
	"github.com/born-ml/adgen/internal/config"
	"github.com/born-ml/adgen/internal/scalar"
)

const generatedHeader = "// Code generated by adgen. DO NOT EDIT.\n"

// Traced is one function's generated body together with the identifiers
// the wrapper needs.
type Traced struct {
	Function config.Function
	Body     string   // declarations, forward and backward statements
	Output   string   // value identifier of the function result
	Grads    []string // adjoint identifier per input
	Ops      int      // tape length
}

// Render wraps a traced body into a complete function of the target
// language. Each input x gets an output parameter dx receiving its
// gradient, scaled by the seed parameter.
func Render(t *Traced, d codegen.Dialect, kind scalar.Kind) string {
	switch d.Name() {
	case codegen.Go.Name():
		return renderGo(t, d, kind)
	default:
		return renderCPP(t, d, kind)
	}
}

func renderCPP(t *Traced, d codegen.Dialect, kind scalar.Kind) string {
	typ := d.TypeName(kind)
	fn := t.Function

	params := make([]string, 0, 2*len(fn.Inputs)+1)
	for _, in := range fn.Inputs {
		params = append(params, typ+" "+in)
	}
	params = append(params, typ+" "+fn.Seed)
	for _, in := range fn.Inputs {
		params = append(params, typ+"& d"+in)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "void grad_%s(%s) {\n", fn.Name, strings.Join(params, ", "))
	writeIndented(&b, t.Body, "    ")
	for i, in := range fn.Inputs {
		fmt.Fprintf(&b, "    d%s = %s;\n", in, t.Grads[i])
	}
	b.WriteString("}\n")
	return b.String()
}

func renderGo(t *Traced, d codegen.Dialect, kind scalar.Kind) string {
	typ := d.TypeName(kind)
	fn := t.Function

	outs := make([]string, len(fn.Inputs))
	for i, in := range fn.Inputs {
		outs[i] = "d" + in
	}
	name := "Grad" + exported(fn.Name)

	var b strings.Builder
	expr := strings.Join(strings.Fields(fn.Expr), " ")
	fmt.Fprintf(&b, "// %s returns the gradient of %s = %s, scaled by %s.\n", name, fn.Name, expr, fn.Seed)
	fmt.Fprintf(&b, "func %s(%s, %s %s) (%s %s) {\n",
		name, strings.Join(fn.Inputs, ", "), fn.Seed, typ, strings.Join(outs, ", "), typ)
	writeIndented(&b, t.Body, "\t")
	for i, out := range outs {
		fmt.Fprintf(&b, "\t%s = %s\n", out, t.Grads[i])
	}
	b.WriteString("\treturn\n}\n")
	return b.String()
}

func writeIndented(b *strings.Builder, body, indent string) {
	for line := range strings.Lines(body) {
		b.WriteString(indent)
		b.WriteString(line)
	}
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}
