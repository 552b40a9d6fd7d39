package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/authrus/internal/core/domain"
	"github.com/asakaida/authrus/internal/core/ports/driven"
	"github.com/asakaida/authrus/internal/core/services"
)

func aclModel() domain.Model {
	m := domain.NewModel()
	m.AddDef(domain.SectionRequest, "r", "sub, obj, act")
	m.AddDef(domain.SectionPolicy, "p", "sub, obj, act")
	m.AddDef(domain.SectionEffect, "e", "some(where (p.eft == allow))")
	m.AddDef(domain.SectionMatcher, "m", "r.sub == p.sub && r.obj == p.obj && r.act == p.act")
	return m
}

func TestHubSkipsPublisher(t *testing.T) {
	hub := NewHub()
	w1 := hub.NewWatcher()
	w2 := hub.NewWatcher()

	var w1Notified, w2Notified int
	require.NoError(t, w1.SetUpdateCallback(func() { w1Notified++ }))
	require.NoError(t, w2.SetUpdateCallback(func() { w2Notified++ }))

	require.NoError(t, w1.Update())
	assert.Equal(t, 0, w1Notified, "publisher already holds the change")
	assert.Equal(t, 1, w2Notified)

	require.NoError(t, w2.Close())
	require.NoError(t, w1.Update())
	assert.Equal(t, 1, w2Notified, "closed watcher receives nothing")
}

// Two enforcers over the same adapter: a mutation on one propagates to the
// other through the hub.
func TestWatcherPropagatesMutations(t *testing.T) {
	shared := driven.NewMemoryAdapter()
	hub := NewHub()

	e1, err := services.NewEnforcer(aclModel(), services.WithAdapter(shared), services.WithAutoSave())
	require.NoError(t, err)
	e2, err := services.NewEnforcer(aclModel(), services.WithAdapter(shared))
	require.NoError(t, err)

	require.NoError(t, e1.SetWatcher(hub.NewWatcher()))
	require.NoError(t, e2.SetWatcher(hub.NewWatcher()))

	_, err = e1.AddPolicy("alice", "data1", "read")
	require.NoError(t, err)

	// the notification fans out asynchronously
	deadline := time.After(2 * time.Second)
	for {
		if allowed, err := e2.Enforce("alice", "data1", "read"); err == nil && allowed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second enforcer never observed the remote mutation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
