// Package rbac implements the role-relation graph behind "g" declarations:
// directed has-role edges, optionally partitioned by domain, with bounded
// transitive queries.
package rbac

import (
	"sort"
	"strings"
	"sync"

	"github.com/asakaida/authrus/internal/core/matcher"
)

// DefaultMaxDepth is the default bound on transitive has-role traversal.
// Ten hops covers any realistic hierarchy while keeping cyclic or
// pathological graphs from consuming unbounded work.
const DefaultMaxDepth = 10

// RoleManager is the contract the enforcer and the matcher's g-functions
// program against.
type RoleManager interface {
	// AddLink records "name1 has role name2". Adding an existing link is
	// a no-op.
	AddLink(name1, name2 string, domain ...string)
	// DeleteLink removes a link. Deleting an absent link is a no-op.
	DeleteLink(name1, name2 string, domain ...string)
	// HasLink reports whether name2 is reachable from name1 within the
	// manager's depth bound. name1 == name2 is always true.
	HasLink(name1, name2 string, domain ...string) bool
	// GetRoles returns the roles name1 holds directly.
	GetRoles(name string, domain ...string) []string
	// GetUsers returns the subjects holding name directly.
	GetUsers(name string, domain ...string) []string
	// Clear drops every link.
	Clear()
}

// DefaultRoleManager keeps one adjacency map per domain. All methods are
// safe for concurrent use.
type DefaultRoleManager struct {
	mu             sync.RWMutex
	domains        map[string]map[string]map[string]struct{} // domain -> subject -> role set
	maxDepth       int
	domainPatterns bool
}

// NewDefaultRoleManager returns a role manager bounded to maxDepth hops per
// HasLink query. Pass DefaultMaxDepth unless the model needs deeper
// hierarchies.
func NewDefaultRoleManager(maxDepth int) *DefaultRoleManager {
	return &DefaultRoleManager{
		domains:  map[string]map[string]map[string]struct{}{},
		maxDepth: maxDepth,
	}
}

// EnableDomainPatterns makes domain names registered with glob
// metacharacters ("tenant:*") match concrete query domains. Matching uses
// the same glob primitive as the matcher's globMatch builtin.
func (rm *DefaultRoleManager) EnableDomainPatterns() {
	rm.mu.Lock()
	rm.domainPatterns = true
	rm.mu.Unlock()
}

func oneDomain(domain []string) string {
	if len(domain) == 0 {
		return ""
	}
	return domain[0]
}

// matchingDomains returns the registered domains a query domain resolves
// to: the exact domain always, plus any pattern domains that glob-match it.
// Callers hold at least a read lock.
func (rm *DefaultRoleManager) matchingDomains(query string) []string {
	if !rm.domainPatterns {
		if _, ok := rm.domains[query]; ok {
			return []string{query}
		}
		return nil
	}
	var out []string
	for d := range rm.domains {
		if d == query {
			out = append(out, d)
			continue
		}
		if strings.ContainsAny(d, "*?[") {
			if ok, err := matcher.GlobMatch(query, d); err == nil && ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func (rm *DefaultRoleManager) AddLink(name1, name2 string, domain ...string) {
	d := oneDomain(domain)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	graph, ok := rm.domains[d]
	if !ok {
		graph = map[string]map[string]struct{}{}
		rm.domains[d] = graph
	}
	roles, ok := graph[name1]
	if !ok {
		roles = map[string]struct{}{}
		graph[name1] = roles
	}
	roles[name2] = struct{}{}
}

func (rm *DefaultRoleManager) DeleteLink(name1, name2 string, domain ...string) {
	d := oneDomain(domain)
	rm.mu.Lock()
	defer rm.mu.Unlock()
	graph, ok := rm.domains[d]
	if !ok {
		return
	}
	if roles, ok := graph[name1]; ok {
		delete(roles, name2)
		if len(roles) == 0 {
			delete(graph, name1)
		}
	}
}

func (rm *DefaultRoleManager) HasLink(name1, name2 string, domain ...string) bool {
	if name1 == name2 {
		return true
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	graphs := rm.matchingDomains(oneDomain(domain))
	if len(graphs) == 0 {
		return false
	}

	// Breadth-first walk over the union of the matching domain graphs.
	// The visited set keeps cycles from looping; the depth bound keeps
	// even acyclic pathological graphs cheap.
	frontier := []string{name1}
	visited := map[string]struct{}{name1: {}}
	for depth := 0; depth < rm.maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			for _, d := range graphs {
				for role := range rm.domains[d][name] {
					if role == name2 {
						return true
					}
					if _, seen := visited[role]; !seen {
						visited[role] = struct{}{}
						next = append(next, role)
					}
				}
			}
		}
		frontier = next
	}
	return false
}

func (rm *DefaultRoleManager) GetRoles(name string, domain ...string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	set := map[string]struct{}{}
	for _, d := range rm.matchingDomains(oneDomain(domain)) {
		for role := range rm.domains[d][name] {
			set[role] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func (rm *DefaultRoleManager) GetUsers(name string, domain ...string) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	set := map[string]struct{}{}
	for _, d := range rm.matchingDomains(oneDomain(domain)) {
		for subject, roles := range rm.domains[d] {
			if _, ok := roles[name]; ok {
				set[subject] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

func (rm *DefaultRoleManager) Clear() {
	rm.mu.Lock()
	rm.domains = map[string]map[string]map[string]struct{}{}
	rm.mu.Unlock()
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
