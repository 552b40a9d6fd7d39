package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/asakaida/authrus/internal/core/ports/driven"
)

func setupAdapter(t *testing.T) *PolicyAdapterImpl {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	a, err := NewPolicyAdapter(db)
	require.NoError(t, err)
	return a
}

func TestLoadEmpty(t *testing.T) {
	a := setupAdapter(t)
	rules, err := a.LoadPolicy()
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSaveAndLoad(t *testing.T) {
	a := setupAdapter(t)
	in := []driven.PolicyRule{
		{Key: "p", Rule: []string{"alice", "data1", "read"}},
		{Key: "p", Rule: []string{"bob", "data2", "write"}},
		{Key: "g", Rule: []string{"alice", "admin"}},
	}
	require.NoError(t, a.SavePolicy(in))

	out, err := a.LoadPolicy()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// SavePolicy replaces, not appends
	require.NoError(t, a.SavePolicy(in[:1]))
	out, err = a.LoadPolicy()
	require.NoError(t, err)
	assert.Equal(t, in[:1], out)
}

func TestIncrementalAddRemove(t *testing.T) {
	a := setupAdapter(t)
	require.NoError(t, a.AddPolicy("p", []string{"alice", "data1", "read"}))
	// adding the same rule twice stays a single row
	require.NoError(t, a.AddPolicy("p", []string{"alice", "data1", "read"}))

	out, err := a.LoadPolicy()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, driven.PolicyRule{Key: "p", Rule: []string{"alice", "data1", "read"}}, out[0])

	require.NoError(t, a.RemovePolicy("p", []string{"alice", "data1", "read"}))
	out, err = a.LoadPolicy()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmptyFieldsMatchExactly(t *testing.T) {
	a := setupAdapter(t)
	require.NoError(t, a.AddPolicy("p", []string{"alice", "", "read"}))
	require.NoError(t, a.AddPolicy("p", []string{"alice", "data1", "read"}))

	// the empty middle field must not act as a wildcard
	out, err := a.LoadPolicy()
	require.NoError(t, err)
	require.Len(t, out, 2)

	require.NoError(t, a.RemovePolicy("p", []string{"alice", "", "read"}))
	out, err = a.LoadPolicy()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"alice", "data1", "read"}, out[0].Rule)
}

func TestRuleArityLimit(t *testing.T) {
	a := setupAdapter(t)
	err := a.AddPolicy("p", []string{"1", "2", "3", "4", "5", "6", "7"})
	assert.Error(t, err)
}

func TestRecordRoundTrip(t *testing.T) {
	rec, err := toRecord("p2", []string{"alice", "tenant1", "data1", "read", "allow"})
	require.NoError(t, err)
	got := fromRecord(rec)
	assert.Equal(t, driven.PolicyRule{Key: "p2", Rule: []string{"alice", "tenant1", "data1", "read", "allow"}}, got)

	// trailing empty fields are trimmed on load; the enforcer pads rows
	// back to their shape's arity
	rec, err = toRecord("p", []string{"alice", "data1", "read", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "data1", "read"}, fromRecord(rec).Rule)
}
