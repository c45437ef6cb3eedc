// Package expr traces a scalar expression written in Go syntax.
//
// Supported forms:
//   - numeric literals and input identifiers
//   - parentheses, unary - and +
//   - binary + - * / and comparisons == != <= >= < >
//   - calls sin, cos, log, exp, sqrt (one argument) and select(cond, a, b)
//
// Comparisons yield booleans, which are only accepted as the condition of
// select.
package expr

import (
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/adgen/internal/autodiff"
	"github.com/born-ml/adgen/internal/scalar"
)

// ErrSyntax wraps every error returned by Build.
var ErrSyntax = errors.New("expression error")

// value is either numeric or boolean.
type value[T scalar.Float] struct {
	num    autodiff.Var[T]
	cond   autodiff.Var[bool]
	isBool bool
}

type builder[T scalar.Float] struct {
	tr      *autodiff.Trace
	inputs  map[string]autodiff.Var[T]
	selects map[token.Pos]bool // positions of the select builtin
}

// selectIdent replaces the select keyword so the source parses. It has the
// same length, so columns are unchanged.
const selectIdent = "selec_"

// rewriteSelect replaces every select keyword in src with selectIdent and
// returns the positions it replaced, as ParseExpr numbers them.
func rewriteSelect(src string) (string, map[token.Pos]bool) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))
	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)

	buf := []byte(src)
	selects := make(map[token.Pos]bool)
	for {
		pos, tok, _ := s.Scan()
		if tok == token.EOF {
			break
		}
		if tok == token.SELECT {
			off := file.Offset(pos)
			copy(buf[off:], selectIdent)
			selects[token.Pos(off+1)] = true
		}
	}
	return string(buf), selects
}

// Build parses src and records it on tr, which must be recording. inputs
// maps identifiers to the handles they stand for.
func Build[T scalar.Float](tr *autodiff.Trace, src string, inputs map[string]autodiff.Var[T]) (autodiff.Var[T], error) {
	src, selects := rewriteSelect(src)
	node, err := parser.ParseExpr(src)
	if err != nil {
		return autodiff.Var[T]{}, errors.Wrapf(ErrSyntax, "%v", err)
	}
	b := &builder[T]{tr: tr, inputs: inputs, selects: selects}
	v, err := b.build(node)
	if err != nil {
		return autodiff.Var[T]{}, err
	}
	if v.isBool {
		return autodiff.Var[T]{}, errors.Wrap(ErrSyntax, "expression is boolean, want a number")
	}
	return v.num, nil
}

func fail(pos token.Pos, format string, args ...any) error {
	// ParseExpr positions are 1-based offsets into src.
	return errors.Wrapf(ErrSyntax, "col %d: "+format, append([]any{int(pos)}, args...)...)
}

func (b *builder[T]) number(node ast.Expr) (autodiff.Var[T], error) {
	v, err := b.build(node)
	if err != nil {
		return autodiff.Var[T]{}, err
	}
	if v.isBool {
		return autodiff.Var[T]{}, fail(node.Pos(), "boolean used as a number")
	}
	return v.num, nil
}

func (b *builder[T]) build(node ast.Expr) (value[T], error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return b.build(n.X)
	case *ast.BasicLit:
		return b.literal(n)
	case *ast.Ident:
		if b.selects[n.Pos()] {
			return value[T]{}, fail(n.Pos(), "select must be called")
		}
		v, ok := b.inputs[n.Name]
		if !ok {
			return value[T]{}, fail(n.Pos(), "unknown identifier %q", n.Name)
		}
		return value[T]{num: v}, nil
	case *ast.UnaryExpr:
		x, err := b.number(n.X)
		if err != nil {
			return value[T]{}, err
		}
		switch n.Op {
		case token.SUB:
			return value[T]{num: x.Neg()}, nil
		case token.ADD:
			return value[T]{num: x}, nil
		}
		return value[T]{}, fail(n.OpPos, "unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		return b.binary(n)
	case *ast.CallExpr:
		return b.call(n)
	}
	return value[T]{}, fail(node.Pos(), "unsupported expression %T", node)
}

func (b *builder[T]) literal(n *ast.BasicLit) (value[T], error) {
	if n.Kind != token.INT && n.Kind != token.FLOAT {
		return value[T]{}, fail(n.Pos(), "unsupported literal %s", n.Value)
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return value[T]{}, fail(n.Pos(), "bad number %s", n.Value)
	}
	return value[T]{num: autodiff.Const(b.tr, T(f))}, nil
}

func (b *builder[T]) binary(n *ast.BinaryExpr) (value[T], error) {
	x, err := b.number(n.X)
	if err != nil {
		return value[T]{}, err
	}
	y, err := b.number(n.Y)
	if err != nil {
		return value[T]{}, err
	}
	switch n.Op {
	case token.ADD:
		return value[T]{num: x.Add(y)}, nil
	case token.SUB:
		return value[T]{num: x.Sub(y)}, nil
	case token.MUL:
		return value[T]{num: x.Mul(y)}, nil
	case token.QUO:
		return value[T]{num: x.Div(y)}, nil
	case token.EQL:
		return value[T]{cond: x.Eq(y), isBool: true}, nil
	case token.NEQ:
		return value[T]{cond: x.Ne(y), isBool: true}, nil
	case token.LEQ:
		return value[T]{cond: x.Le(y), isBool: true}, nil
	case token.GEQ:
		return value[T]{cond: x.Ge(y), isBool: true}, nil
	case token.LSS:
		return value[T]{cond: x.Lt(y), isBool: true}, nil
	case token.GTR:
		return value[T]{cond: x.Gt(y), isBool: true}, nil
	}
	return value[T]{}, fail(n.OpPos, "unsupported operator %s", n.Op)
}

func (b *builder[T]) call(n *ast.CallExpr) (value[T], error) {
	fn, ok := n.Fun.(*ast.Ident)
	if !ok {
		return value[T]{}, fail(n.Pos(), "unsupported call")
	}
	if b.selects[fn.Pos()] {
		if len(n.Args) != 3 {
			return value[T]{}, fail(n.Pos(), "select takes 3 arguments, got %d", len(n.Args))
		}
		cond, err := b.build(n.Args[0])
		if err != nil {
			return value[T]{}, err
		}
		if !cond.isBool {
			return value[T]{}, fail(n.Args[0].Pos(), "select condition must be a comparison")
		}
		x, err := b.number(n.Args[1])
		if err != nil {
			return value[T]{}, err
		}
		y, err := b.number(n.Args[2])
		if err != nil {
			return value[T]{}, err
		}
		return value[T]{num: autodiff.Select(cond.cond, x, y)}, nil
	}

	var apply func(autodiff.Var[T]) autodiff.Var[T]
	switch fn.Name {
	case "sin":
		apply = autodiff.Sin[T]
	case "cos":
		apply = autodiff.Cos[T]
	case "log":
		apply = autodiff.Log[T]
	case "exp":
		apply = autodiff.Exp[T]
	case "sqrt":
		apply = autodiff.Sqrt[T]
	default:
		return value[T]{}, fail(fn.Pos(), "unknown function %q", fn.Name)
	}
	if len(n.Args) != 1 {
		return value[T]{}, fail(n.Pos(), "%s takes 1 argument, got %d", fn.Name, len(n.Args))
	}
	x, err := b.number(n.Args[0])
	if err != nil {
		return value[T]{}, err
	}
	return value[T]{num: apply(x)}, nil
}
