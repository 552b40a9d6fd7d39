package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleLinks(t *testing.T) {
	rm := NewDefaultRoleManager(3)
	rm.AddLink("u1", "g1")
	rm.AddLink("u2", "g1")
	rm.AddLink("u3", "g2")
	rm.AddLink("u4", "g2")
	rm.AddLink("u4", "g3")
	rm.AddLink("g1", "g3")

	assert.True(t, rm.HasLink("u1", "g1"))
	assert.False(t, rm.HasLink("u1", "g2"))
	assert.True(t, rm.HasLink("u1", "g3"))
	assert.True(t, rm.HasLink("u2", "g1"))
	assert.True(t, rm.HasLink("u2", "g3"))
	assert.False(t, rm.HasLink("u3", "g1"))
	assert.True(t, rm.HasLink("u3", "g2"))
	assert.False(t, rm.HasLink("u3", "g3"))
	assert.True(t, rm.HasLink("u4", "g2"))
	assert.True(t, rm.HasLink("u4", "g3"))

	assert.Equal(t, []string{"g1"}, rm.GetRoles("u1"))
	assert.Equal(t, []string{"g2", "g3"}, rm.GetRoles("u4"))
	assert.Equal(t, []string{"g3"}, rm.GetRoles("g1"))
	assert.Nil(t, rm.GetRoles("g3"))

	rm.DeleteLink("g1", "g3")
	rm.DeleteLink("u4", "g2")
	assert.False(t, rm.HasLink("u1", "g3"))
	assert.False(t, rm.HasLink("u4", "g2"))
	assert.True(t, rm.HasLink("u4", "g3"))
	assert.Equal(t, []string{"g3"}, rm.GetRoles("u4"))
}

func TestTransitivityDepthBound(t *testing.T) {
	shallow := NewDefaultRoleManager(1)
	deep := NewDefaultRoleManager(2)
	for _, rm := range []*DefaultRoleManager{shallow, deep} {
		rm.AddLink("alice", "admin")
		rm.AddLink("admin", "root")
	}

	assert.True(t, deep.HasLink("alice", "root"))
	assert.False(t, shallow.HasLink("alice", "root"))
	assert.True(t, shallow.HasLink("alice", "admin"))
}

func TestSelfLink(t *testing.T) {
	rm := NewDefaultRoleManager(DefaultMaxDepth)
	assert.True(t, rm.HasLink("alice", "alice"))
	assert.True(t, rm.HasLink("alice", "alice", "any-domain"))
}

func TestCycleSafety(t *testing.T) {
	rm := NewDefaultRoleManager(DefaultMaxDepth)
	rm.AddLink("a", "b")
	rm.AddLink("b", "a")

	assert.True(t, rm.HasLink("a", "b"))
	assert.True(t, rm.HasLink("b", "a"))
	assert.False(t, rm.HasLink("a", "c"))
}

func TestIdempotentMutations(t *testing.T) {
	rm := NewDefaultRoleManager(DefaultMaxDepth)
	rm.AddLink("u1", "g1")
	rm.AddLink("u1", "g1")
	assert.Equal(t, []string{"g1"}, rm.GetRoles("u1"))

	// deleting a non-existent link is a no-op
	rm.DeleteLink("u1", "g2")
	rm.DeleteLink("nobody", "g1")
	assert.True(t, rm.HasLink("u1", "g1"))
}

func TestDomainRoles(t *testing.T) {
	rm := NewDefaultRoleManager(3)
	rm.AddLink("u1", "g1", "domain1")
	rm.AddLink("u2", "g1", "domain1")
	rm.AddLink("u3", "admin", "domain2")
	rm.AddLink("u4", "admin", "domain2")
	rm.AddLink("u4", "admin", "domain1")
	rm.AddLink("g1", "admin", "domain1")

	assert.True(t, rm.HasLink("u1", "g1", "domain1"))
	assert.False(t, rm.HasLink("u1", "g1", "domain2"))
	assert.True(t, rm.HasLink("u1", "admin", "domain1"))
	assert.False(t, rm.HasLink("u1", "admin", "domain2"))
	assert.True(t, rm.HasLink("u3", "admin", "domain2"))
	assert.False(t, rm.HasLink("u3", "admin", "domain1"))
	assert.True(t, rm.HasLink("u4", "admin", "domain1"))
	assert.True(t, rm.HasLink("u4", "admin", "domain2"))

	rm.DeleteLink("g1", "admin", "domain1")
	rm.DeleteLink("u4", "admin", "domain2")
	assert.False(t, rm.HasLink("u1", "admin", "domain1"))
	assert.True(t, rm.HasLink("u4", "admin", "domain1"))
	assert.False(t, rm.HasLink("u4", "admin", "domain2"))
}

func TestDomainPatterns(t *testing.T) {
	rm := NewDefaultRoleManager(DefaultMaxDepth)
	rm.EnableDomainPatterns()
	rm.AddLink("alice", "admin", "tenant:*")
	rm.AddLink("bob", "viewer", "tenant:acme")

	assert.True(t, rm.HasLink("alice", "admin", "tenant:acme"))
	assert.True(t, rm.HasLink("alice", "admin", "tenant:globex"))
	assert.False(t, rm.HasLink("alice", "admin", "staging:acme"))
	assert.True(t, rm.HasLink("bob", "viewer", "tenant:acme"))
	assert.False(t, rm.HasLink("bob", "viewer", "tenant:globex"))

	assert.Equal(t, []string{"admin"}, rm.GetRoles("alice", "tenant:acme"))
	assert.Equal(t, []string{"alice"}, rm.GetUsers("admin", "tenant:acme"))
}

func TestGetUsers(t *testing.T) {
	rm := NewDefaultRoleManager(3)
	rm.AddLink("u1", "g1", "domain1")
	rm.AddLink("u2", "g1", "domain1")
	rm.AddLink("u3", "g2", "domain2")
	rm.AddLink("u5", "g3")

	assert.Equal(t, []string{"u1", "u2"}, rm.GetUsers("g1", "domain1"))
	assert.Equal(t, []string{"u3"}, rm.GetUsers("g2", "domain2"))
	assert.Equal(t, []string{"u5"}, rm.GetUsers("g3"))
	assert.Nil(t, rm.GetUsers("g1", "domain2"))
}

func TestClear(t *testing.T) {
	rm := NewDefaultRoleManager(3)
	rm.AddLink("u1", "g1")
	rm.AddLink("g1", "g2")
	rm.Clear()

	assert.False(t, rm.HasLink("u1", "g1"))
	assert.False(t, rm.HasLink("u1", "g2"))
	assert.Nil(t, rm.GetRoles("u1"))
}
