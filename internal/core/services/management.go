package services

import (
	"fmt"

	"github.com/asakaida/authrus/internal/core/domain"
	"github.com/asakaida/authrus/internal/core/policy"
	"github.com/asakaida/authrus/internal/core/ports/driven"
	"github.com/asakaida/authrus/internal/core/rbac"
)

// Mutation and introspection API. Every mutation acquires the write lock,
// applies its change, invalidates the decision cache and only then releases
// the lock, so a returned mutation is observed by every subsequent Enforce.

func (e *Enforcer) validatePolicyArity(key string, rule []string) error {
	tokens := e.model.Tokens(domain.SectionPolicy, key)
	if tokens == nil {
		return &domain.EnforceError{Reason: "no policy shape " + key}
	}
	if len(rule) != len(tokens) {
		return &domain.EnforceError{
			Reason: fmt.Sprintf("rule has %d fields, shape %s expects %d", len(rule), key, len(tokens)),
		}
	}
	return nil
}

// AddPolicy adds a rule to the primary policy shape "p". It returns false
// when an identical rule already exists.
func (e *Enforcer) AddPolicy(rule ...string) (bool, error) {
	return e.AddNamedPolicy("p", rule)
}

// AddNamedPolicy adds a rule to a named policy shape.
func (e *Enforcer) AddNamedPolicy(key string, rule []string) (bool, error) {
	if err := e.validatePolicyArity(key, rule); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Has(key, rule) {
		return false, nil
	}
	if err := e.mirrorAdd(key, rule); err != nil {
		return false, err
	}
	e.store.Add(key, rule)
	e.invalidateCache()
	e.notifyWatcher()
	return true, nil
}

// RemovePolicy removes a rule from the primary policy shape "p". It returns
// false when the rule is absent.
func (e *Enforcer) RemovePolicy(rule ...string) (bool, error) {
	return e.RemoveNamedPolicy("p", rule)
}

// RemoveNamedPolicy removes a rule from a named policy shape.
func (e *Enforcer) RemoveNamedPolicy(key string, rule []string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Has(key, rule) {
		return false, nil
	}
	if err := e.mirrorRemove(key, rule); err != nil {
		return false, err
	}
	e.store.Remove(key, rule)
	e.invalidateCache()
	e.notifyWatcher()
	return true, nil
}

// UpdateNamedPolicy replaces oldRule with newRule in place, keeping its
// position in store order.
func (e *Enforcer) UpdateNamedPolicy(key string, oldRule, newRule []string) (bool, error) {
	if err := e.validatePolicyArity(key, newRule); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Has(key, oldRule) || e.store.Has(key, newRule) {
		return false, nil
	}
	if err := e.mirrorRemove(key, oldRule); err != nil {
		return false, err
	}
	if err := e.mirrorAdd(key, newRule); err != nil {
		return false, err
	}
	e.store.Update(key, oldRule, newRule)
	e.invalidateCache()
	e.notifyWatcher()
	return true, nil
}

// HasPolicy reports whether an identical rule exists in shape "p".
func (e *Enforcer) HasPolicy(rule ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Has("p", rule)
}

// GetPolicy returns the rules of a policy shape in store order. Role shapes
// ("g", ...) are included since their links are mirrored into the store for
// persistence.
func (e *Enforcer) GetPolicy(key string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.GetAll(key)
}

// GetFilteredPolicy returns the rules of a shape whose field at fieldIndex
// equals value. An empty value is a wildcard.
func (e *Enforcer) GetFilteredPolicy(key string, fieldIndex int, value string) [][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Filter(key, fieldIndex, value)
}

func (e *Enforcer) roleRule(user, role string, dom []string) []string {
	rule := []string{user, role}
	return append(rule, dom...)
}

func (e *Enforcer) validateRoleLink(key string, user, role string, dom []string) error {
	arity := e.model.RoleArity(key)
	if arity == 0 {
		return &domain.EnforceError{Reason: "no role declaration " + key}
	}
	if len(dom) > 0 && arity != 3 {
		return &domain.EnforceError{Reason: "role declaration " + key + " is not domain-aware"}
	}
	if len(dom) > 1 {
		return &domain.EnforceError{Reason: "at most one domain per role link"}
	}
	return nil
}

// AddRoleLink records "user has role" under declaration "g". Adding an
// existing link returns false.
func (e *Enforcer) AddRoleLink(user, role string, dom ...string) (bool, error) {
	return e.AddNamedRoleLink("g", user, role, dom...)
}

// AddNamedRoleLink records a link under a named role declaration.
func (e *Enforcer) AddNamedRoleLink(key, user, role string, dom ...string) (bool, error) {
	if err := e.validateRoleLink(key, user, role, dom); err != nil {
		return false, err
	}
	rule := e.roleRule(user, role, dom)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store.Has(key, rule) {
		return false, nil
	}
	if err := e.mirrorAdd(key, rule); err != nil {
		return false, err
	}
	e.store.Add(key, rule)
	e.rms[key].AddLink(user, role, dom...)
	e.invalidateCache()
	e.notifyWatcher()
	return true, nil
}

// RemoveRoleLink removes a link under declaration "g". Removing an absent
// link returns false.
func (e *Enforcer) RemoveRoleLink(user, role string, dom ...string) (bool, error) {
	return e.RemoveNamedRoleLink("g", user, role, dom...)
}

// RemoveNamedRoleLink removes a link under a named role declaration.
func (e *Enforcer) RemoveNamedRoleLink(key, user, role string, dom ...string) (bool, error) {
	if err := e.validateRoleLink(key, user, role, dom); err != nil {
		return false, err
	}
	rule := e.roleRule(user, role, dom)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Has(key, rule) {
		return false, nil
	}
	if err := e.mirrorRemove(key, rule); err != nil {
		return false, err
	}
	e.store.Remove(key, rule)
	e.rms[key].DeleteLink(user, role, dom...)
	e.invalidateCache()
	e.notifyWatcher()
	return true, nil
}

// GetRolesForUser returns the roles the user holds directly under "g".
func (e *Enforcer) GetRolesForUser(user string, dom ...string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm, ok := e.rms["g"]
	if !ok {
		return nil
	}
	return rm.GetRoles(user, dom...)
}

// GetUsersForRole returns the subjects holding the role directly under "g".
func (e *Enforcer) GetUsersForRole(role string, dom ...string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm, ok := e.rms["g"]
	if !ok {
		return nil
	}
	return rm.GetUsers(role, dom...)
}

// HasRoleLink reports whether role is transitively reachable from user
// under "g", within the configured depth bound.
func (e *Enforcer) HasRoleLink(user, role string, dom ...string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm, ok := e.rms["g"]
	if !ok {
		return false
	}
	return rm.HasLink(user, role, dom...)
}

// ReloadPolicy discards the in-memory rule set and reloads it from the
// adapter. The new rule set is staged in isolation and swapped in only on
// success; an adapter failure leaves prior state untouched. Adapter I/O
// happens outside the lock, so in-flight Enforce calls keep reading the
// old snapshot until the swap.
func (e *Enforcer) ReloadPolicy() error {
	if e.adapter == nil {
		return &domain.AdapterError{Op: "load", Err: domain.ErrServiceUnavailable}
	}
	staged := policy.NewStore()
	stagedRMs := e.buildRoleManagers()
	if err := e.loadPolicyLocked(staged, stagedRMs); err != nil {
		return err
	}
	e.mu.Lock()
	e.store = staged
	e.rms = stagedRMs
	e.invalidateCache()
	e.mu.Unlock()
	return nil
}

// SavePolicy writes the whole in-memory rule set through the adapter.
func (e *Enforcer) SavePolicy() error {
	if e.adapter == nil {
		return &domain.AdapterError{Op: "save", Err: domain.ErrServiceUnavailable}
	}
	e.mu.RLock()
	var rules []driven.PolicyRule
	for key := range e.model[domain.SectionPolicy] {
		for _, rule := range e.store.GetAll(key) {
			rules = append(rules, driven.PolicyRule{Key: key, Rule: rule})
		}
	}
	for key := range e.model[domain.SectionRole] {
		for _, rule := range e.store.GetAll(key) {
			rules = append(rules, driven.PolicyRule{Key: key, Rule: rule})
		}
	}
	e.mu.RUnlock()
	if err := e.adapter.SavePolicy(rules); err != nil {
		return &domain.AdapterError{Op: "save", Err: err}
	}
	return nil
}

// SetWatcher registers a watcher. Local mutations notify it; remote
// notifications trigger a policy reload on this enforcer.
func (e *Enforcer) SetWatcher(w driven.Watcher) error {
	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()
	return w.SetUpdateCallback(func() {
		if err := e.ReloadPolicy(); err != nil {
			e.logger.Error("policy reload after watcher notification failed", "error", err)
		}
	})
}

// mirrorAdd writes a single-rule addition through the adapter before the
// in-memory change commits, so a persistence failure leaves memory
// untouched.
func (e *Enforcer) mirrorAdd(key string, rule []string) error {
	if !e.autoSave || e.adapter == nil {
		return nil
	}
	ba, ok := e.adapter.(driven.BatchPolicyAdapter)
	if !ok {
		return nil
	}
	if err := ba.AddPolicy(key, rule); err != nil {
		return &domain.AdapterError{Op: "add", Err: err}
	}
	return nil
}

func (e *Enforcer) mirrorRemove(key string, rule []string) error {
	if !e.autoSave || e.adapter == nil {
		return nil
	}
	ba, ok := e.adapter.(driven.BatchPolicyAdapter)
	if !ok {
		return nil
	}
	if err := ba.RemovePolicy(key, rule); err != nil {
		return &domain.AdapterError{Op: "remove", Err: err}
	}
	return nil
}

// notifyWatcher is called with the write lock held; the notification
// itself runs asynchronously so slow transports never extend the critical
// section.
func (e *Enforcer) notifyWatcher() {
	if e.watcher == nil {
		return
	}
	w := e.watcher
	go func() {
		if err := w.Update(); err != nil {
			e.logger.Error("watcher update failed", "error", err)
		}
	}()
}

// RoleManager exposes a role manager for embedding scenarios that need
// direct graph queries.
func (e *Enforcer) RoleManager(key string) (rbac.RoleManager, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rm, ok := e.rms[key]
	return rm, ok
}
