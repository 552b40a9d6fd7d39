// Package matcher compiles matcher expressions into reusable programs and
// evaluates them against concrete request/policy bindings. Expressions are
// parsed once into an expression tree (govaluate, the same evaluator the
// upstream engine family uses) and shared read-only across concurrent
// evaluations; a model change rebuilds programs instead of mutating them.
package matcher

import (
	"regexp"
	"strings"

	"github.com/casbin/govaluate"

	"github.com/asakaida/authrus/internal/core/domain"
)

// fieldRef rewrites dotted field references ("r.sub", "p2.obj") into the
// flattened variable names the binding environment uses ("r_sub", "p2_obj").
var fieldRef = regexp.MustCompile(`\b((?:r|p|g)[0-9]*)\.`)

// Flatten converts an expression's dotted field references to flattened
// variable names. Quoted string literals are left untouched so a literal
// like 'p.x' survives the rewrite.
func Flatten(expr string) string {
	var b strings.Builder
	var quote byte
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote == 0 && (c == '\'' || c == '"'):
			b.WriteString(fieldRef.ReplaceAllString(expr[start:i], "${1}_"))
			quote = c
			start = i
		case quote == c:
			b.WriteString(expr[start : i+1])
			quote = 0
			start = i + 1
		}
	}
	if quote == 0 {
		b.WriteString(fieldRef.ReplaceAllString(expr[start:], "${1}_"))
	} else {
		b.WriteString(expr[start:])
	}
	return b.String()
}

// Program is a compiled matcher expression bound to a fixed set of variable
// names and predicate functions. It is immutable and safe for concurrent
// Eval calls.
type Program struct {
	text string
	expr *govaluate.EvaluableExpression
}

// Compile parses an expression and verifies that every variable it
// references is a declared request/policy field. Unknown fields and syntax
// errors fail here, at load time, never at evaluation time.
func Compile(text string, knownVars map[string]struct{}, functions map[string]govaluate.ExpressionFunction) (*Program, error) {
	if text == "" {
		return nil, &domain.CompileError{Expr: text, Reason: "empty expression"}
	}
	flat := Flatten(text)
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(flat, functions)
	if err != nil {
		return nil, &domain.CompileError{Expr: text, Reason: "syntax error", Err: err}
	}
	for _, v := range expr.Vars() {
		if _, ok := knownVars[v]; !ok {
			return nil, &domain.CompileError{Expr: text, Reason: "unknown field " + v}
		}
	}
	return &Program{text: text, expr: expr}, nil
}

// Text returns the original expression text.
func (p *Program) Text() string { return p.text }

// Eval runs the program against one set of bindings and returns the boolean
// outcome. Any runtime failure (type mismatch, predicate error, malformed
// literal inside a predicate call) comes back as an EvalError; the caller
// decides whether that fails the rule or the whole call.
func (p *Program) Eval(bindings map[string]interface{}) (bool, error) {
	out, err := p.expr.Evaluate(bindings)
	if err != nil {
		return false, &domain.EvalError{Reason: err.Error(), Err: err}
	}
	b, ok := out.(bool)
	if !ok {
		return false, &domain.EvalError{Reason: "matcher did not evaluate to a boolean"}
	}
	return b, nil
}
