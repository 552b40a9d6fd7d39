package matcher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/authrus/internal/core/domain"
)

func knownVars(names ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "r_sub == p_sub", Flatten("r.sub == p.sub"))
	assert.Equal(t, "g(r_sub, p_sub, r_dom)", Flatten("g(r.sub, p.sub, r.dom)"))
	assert.Equal(t, "p2_obj == r_obj", Flatten("p2.obj == r.obj"))
	// non-section identifiers keep their dots
	assert.Equal(t, "x.y == r_sub", Flatten("x.y == r.sub"))
	// quoted literals are left untouched
	assert.Equal(t, "r_sub == 'p.x'", Flatten("r.sub == 'p.x'"))
	assert.Equal(t, `r_obj == "r.obj" && p_act == 'g.x'`, Flatten(`r.obj == "r.obj" && p.act == 'g.x'`))
}

func TestEvalWithSectionLikeLiteral(t *testing.T) {
	prog, err := Compile("r.sub == 'p.admin'", knownVars("r_sub"), Builtins())
	require.NoError(t, err)
	ok, err := prog.Eval(map[string]interface{}{"r_sub": "p.admin"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompileAndEval(t *testing.T) {
	prog, err := Compile(
		"r.sub == p.sub && keyMatch(r.obj, p.obj)",
		knownVars("r_sub", "r_obj", "p_sub", "p_obj"),
		Builtins(),
	)
	require.NoError(t, err)
	assert.Equal(t, "r.sub == p.sub && keyMatch(r.obj, p.obj)", prog.Text())

	ok, err := prog.Eval(map[string]interface{}{
		"r_sub": "alice", "r_obj": "/api/users",
		"p_sub": "alice", "p_obj": "/api/*",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = prog.Eval(map[string]interface{}{
		"r_sub": "bob", "r_obj": "/api/users",
		"p_sub": "alice", "p_obj": "/api/*",
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileEmptyExpression(t *testing.T) {
	_, err := Compile("", knownVars(), Builtins())
	var ce *domain.CompileError
	require.True(t, errors.As(err, &ce))
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile("r.sub ==", knownVars("r_sub"), Builtins())
	var ce *domain.CompileError
	require.True(t, errors.As(err, &ce))
}

func TestCompileUnknownField(t *testing.T) {
	_, err := Compile("r.sub == p.missing", knownVars("r_sub"), Builtins())
	var ce *domain.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "p_missing")
}

func TestCompileUnknownFunction(t *testing.T) {
	_, err := Compile("noSuchFn(r.sub, p.sub)", knownVars("r_sub", "p_sub"), Builtins())
	var ce *domain.CompileError
	require.True(t, errors.As(err, &ce))
}

func TestEvalErrors(t *testing.T) {
	// malformed IP literal fails the evaluation, typed as EvalError
	prog, err := Compile("ipMatch(r.ip, p.ip)", knownVars("r_ip", "p_ip"), Builtins())
	require.NoError(t, err)
	_, err = prog.Eval(map[string]interface{}{"r_ip": "not-an-ip", "p_ip": "10.0.0.0/8"})
	var ee *domain.EvalError
	require.True(t, errors.As(err, &ee))

	// non-boolean result is a type mismatch
	prog, err = Compile("r.sub", knownVars("r_sub"), Builtins())
	require.NoError(t, err)
	_, err = prog.Eval(map[string]interface{}{"r_sub": "alice"})
	require.True(t, errors.As(err, &ee))
}

func TestEvalIsPure(t *testing.T) {
	prog, err := Compile("r.sub == p.sub", knownVars("r_sub", "p_sub"), Builtins())
	require.NoError(t, err)
	bindings := map[string]interface{}{"r_sub": "alice", "p_sub": "alice"}
	for i := 0; i < 3; i++ {
		ok, err := prog.Eval(bindings)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
