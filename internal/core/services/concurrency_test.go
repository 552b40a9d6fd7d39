package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/authrus/internal/core/ports/driven"
)

func newMemorySeed() *driven.MemoryAdapter {
	return driven.NewMemoryAdapter(
		driven.PolicyRule{Key: "p", Rule: []string{"alice", "data1", "read"}},
	)
}

// Concurrent enforce calls interleaved with concurrent mutations must never
// panic and every call must return a decision consistent with some total
// order of the mutations. Run with -race.
func TestConcurrentEnforceAndMutate(t *testing.T) {
	e, err := NewEnforcer(rbacModel(), WithCache(128))
	require.NoError(t, err)

	_, err = e.AddPolicy("admin", "/api/*", "read")
	require.NoError(t, err)
	_, err = e.AddRoleLink("alice", "admin")
	require.NoError(t, err)

	const readers = 8
	const writers = 4
	const iterations = 200

	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				allowed, err := e.Enforce("alice", "/api/users", "read")
				assert.NoError(t, err)
				// alice's access to /api/users only ever depends on
				// the stable admin rule, not on the writer churn
				assert.True(t, allowed)

				_, err = e.Enforce(fmt.Sprintf("user%d", r), "/api/users", "read")
				assert.NoError(t, err)
			}
		}(r)
	}
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sub := fmt.Sprintf("writer%d", w)
			for i := 0; i < iterations; i++ {
				_, err := e.AddPolicy(sub, "/tmp/scratch", "write")
				assert.NoError(t, err)
				_, err = e.RemovePolicy(sub, "/tmp/scratch", "write")
				assert.NoError(t, err)
				_, err = e.AddRoleLink(sub, "scratch-role")
				assert.NoError(t, err)
				_, err = e.RemoveRoleLink(sub, "scratch-role")
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	// the churn cleaned up after itself
	allowed, err := e.Enforce("writer0", "/tmp/scratch", "write")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestConcurrentEnforceWithReload(t *testing.T) {
	a := newMemorySeed()
	e, err := NewEnforcer(aclModel(), WithAdapter(a), WithCache(64))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := e.Enforce("alice", "data1", "read")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, e.ReloadPolicy())
		}
	}()
	wg.Wait()

	allowed, err := e.Enforce("alice", "data1", "read")
	require.NoError(t, err)
	assert.True(t, allowed)
}
