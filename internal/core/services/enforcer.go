// Package services contains the enforcement engine: the Enforcer
// orchestrates the model, policy store, role managers, compiled matchers,
// effector and decision cache behind one concurrency discipline.
package services

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/casbin/govaluate"

	"github.com/asakaida/authrus/internal/core/cache"
	"github.com/asakaida/authrus/internal/core/domain"
	"github.com/asakaida/authrus/internal/core/effect"
	"github.com/asakaida/authrus/internal/core/matcher"
	"github.com/asakaida/authrus/internal/core/policy"
	"github.com/asakaida/authrus/internal/core/ports/driven"
	"github.com/asakaida/authrus/internal/core/rbac"
)

// Enforcer is the aggregate root: it exclusively owns one model, one policy
// store, the role managers, the compiled matchers, the effector and an
// optional decision cache. Enforce calls proceed in parallel under a read
// lock; every mutation takes the write lock, applies its change and
// invalidates the cache before releasing.
type Enforcer struct {
	mu       sync.RWMutex
	model    domain.Model
	store    *policy.Store
	rms      map[string]rbac.RoleManager
	programs map[string]*matcher.Program
	effector effect.Effector
	fns      map[string]govaluate.ExpressionFunction

	adapter  driven.PolicyAdapter
	watcher  driven.Watcher
	autoSave bool

	cache    cache.DecisionCache
	cacheOn  atomic.Bool
	maxDepth int
	logger   *slog.Logger

	evalCount atomic.Uint64
}

// Option configures an Enforcer at construction time.
type Option func(*Enforcer)

// WithAdapter attaches a persistence adapter; the initial policy is loaded
// from it during construction.
func WithAdapter(a driven.PolicyAdapter) Option {
	return func(e *Enforcer) { e.adapter = a }
}

// WithAutoSave mirrors single-rule mutations to the adapter when it
// supports incremental writes.
func WithAutoSave() Option {
	return func(e *Enforcer) { e.autoSave = true }
}

// WithCache enables the decision cache. A positive capacity bounds it with
// LRU eviction; zero makes it unbounded.
func WithCache(capacity int) Option {
	return func(e *Enforcer) {
		e.cache = cache.New(capacity)
		e.cacheOn.Store(true)
	}
}

// WithFunction registers a caller-supplied predicate usable from matcher
// expressions.
func WithFunction(name string, fn govaluate.ExpressionFunction) Option {
	return func(e *Enforcer) { e.fns[name] = fn }
}

// WithMaxRoleDepth overrides the role-hierarchy traversal bound shared by
// every role manager this enforcer builds.
func WithMaxRoleDepth(depth int) Option {
	return func(e *Enforcer) { e.maxDepth = depth }
}

// WithLogger sets the logger used for per-rule evaluation errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) { e.logger = l }
}

// NewEnforcer builds an enforcer from a validated model. Model problems,
// unknown effect expressions and matcher compile errors all fail here; no
// partial enforcer is ever returned.
func NewEnforcer(m domain.Model, opts ...Option) (*Enforcer, error) {
	e := &Enforcer{
		model:    m,
		store:    policy.NewStore(),
		fns:      matcher.Builtins(),
		maxDepth: rbac.DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	eAst, _ := m.Assertion(domain.SectionEffect, "e")
	eff, err := effect.NewDefaultEffector(eAst.Value)
	if err != nil {
		return nil, err
	}
	e.effector = eff

	e.rms = e.buildRoleManagers()
	for key := range e.rms {
		e.fns[key] = e.roleFunction(key)
	}

	if err := e.compilePrograms(); err != nil {
		return nil, err
	}

	if e.adapter != nil {
		if err := e.loadPolicyLocked(e.store, e.rms); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// buildRoleManagers creates one role manager per g declaration. A
// three-argument declaration is domain-aware and gets glob-pattern domain
// matching.
func (e *Enforcer) buildRoleManagers() map[string]rbac.RoleManager {
	rms := map[string]rbac.RoleManager{}
	for key := range e.model[domain.SectionRole] {
		rm := rbac.NewDefaultRoleManager(e.maxDepth)
		if e.model.RoleArity(key) == 3 {
			rm.EnableDomainPatterns()
		}
		rms[key] = rm
	}
	return rms
}

// roleFunction exposes a role manager to matcher expressions as the
// predicate g(subject, role[, domain]). The closure resolves the manager
// through the enforcer so a reload can swap managers without recompiling.
func (e *Enforcer) roleFunction(key string) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 && len(args) != 3 {
			return nil, fmt.Errorf("%s: expected 2 or 3 arguments, got %d", key, len(args))
		}
		strs := make([]string, len(args))
		for i, a := range args {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("%s: arguments must be strings", key)
			}
			strs[i] = s
		}
		rm, ok := e.rms[key]
		if !ok {
			return nil, fmt.Errorf("%s: no such role declaration", key)
		}
		if len(strs) == 3 {
			return rm.HasLink(strs[0], strs[1], strs[2]), nil
		}
		return rm.HasLink(strs[0], strs[1]), nil
	}
}

// policyKeyFor pairs a matcher with its policy shape by suffix: "m" binds
// "p", "m2" binds "p2". A matcher without a same-suffix shape falls back to
// "p".
func (e *Enforcer) policyKeyFor(matcherKey string) string {
	suffix := strings.TrimPrefix(matcherKey, "m")
	if _, ok := e.model.Assertion(domain.SectionPolicy, "p"+suffix); ok {
		return "p" + suffix
	}
	return "p"
}

// compilePrograms rebuilds every matcher program from the model. Programs
// are replaced whole, never mutated, so in-flight evaluations keep the
// snapshot they started with.
func (e *Enforcer) compilePrograms() error {
	programs := map[string]*matcher.Program{}
	for key, ast := range e.model[domain.SectionMatcher] {
		known := map[string]struct{}{}
		for _, tok := range e.model.Tokens(domain.SectionRequest, "r") {
			known[tok] = struct{}{}
		}
		pKey := e.policyKeyFor(key)
		for _, tok := range e.model.Tokens(domain.SectionPolicy, pKey) {
			known[tok] = struct{}{}
		}
		known[pKey+"_eft"] = struct{}{}
		prog, err := matcher.Compile(ast.Value, known, e.fns)
		if err != nil {
			return err
		}
		programs[key] = prog
	}
	e.programs = programs
	return nil
}

// loadPolicyLocked fills a store and role-manager set from the adapter.
// The destinations may be staging structures; nothing else is touched.
// Storage backends may trim trailing empty fields, so rows shorter than
// their shape are padded back to the declared arity; an empty final eft
// field must survive a round trip.
func (e *Enforcer) loadPolicyLocked(store *policy.Store, rms map[string]rbac.RoleManager) error {
	rules, err := e.adapter.LoadPolicy()
	if err != nil {
		return &domain.AdapterError{Op: "load", Err: err}
	}
	for _, r := range rules {
		rule := r.Rule
		if tokens := e.model.Tokens(domain.SectionPolicy, r.Key); len(rule) < len(tokens) {
			padded := make([]string, len(tokens))
			copy(padded, rule)
			rule = padded
		}
		store.Add(r.Key, rule)
		if rm, ok := rms[r.Key]; ok && len(rule) >= 2 {
			rm.AddLink(rule[0], rule[1], rule[2:]...)
		}
	}
	return nil
}

// Enforce decides whether a request is permitted, using the primary
// matcher "m".
func (e *Enforcer) Enforce(values ...string) (bool, error) {
	return e.EnforceWithMatcher("m", values...)
}

// EnforceWithMatcher decides a request using a named matcher and its paired
// policy shape. Arity mismatches and missing matchers surface as an
// EnforceError, never as a silent false.
func (e *Enforcer) EnforceWithMatcher(matcherKey string, values ...string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rTokens := e.model.Tokens(domain.SectionRequest, "r")
	if len(values) != len(rTokens) {
		return false, &domain.EnforceError{
			Reason: fmt.Sprintf("request has %d values, model expects %d", len(values), len(rTokens)),
		}
	}
	prog, ok := e.programs[matcherKey]
	if !ok {
		return false, &domain.EnforceError{Reason: "no matcher " + matcherKey}
	}

	useCache := e.cacheOn.Load() && matcherKey == "m"
	var key string
	if useCache {
		key = cache.Key(values)
		if decision, hit := e.cache.Get(key); hit {
			return decision, nil
		}
	}

	pKey := e.policyKeyFor(matcherKey)
	pTokens := e.model.Tokens(domain.SectionPolicy, pKey)
	eftIndex := -1
	for i, tok := range pTokens {
		if tok == pKey+"_eft" {
			eftIndex = i
		}
	}

	params := make(map[string]interface{}, len(rTokens)+len(pTokens)+1)
	for i, tok := range rTokens {
		params[tok] = values[i]
	}

	rows := e.store.GetAll(pKey)
	stream := e.effector.NewStream()

	if len(rows) == 0 {
		// No rules: evaluate once with empty policy values so
		// request-only matchers still decide.
		for _, tok := range pTokens {
			params[tok] = ""
		}
		params[pKey+"_eft"] = ""
		e.evalCount.Add(1)
		matched, err := prog.Eval(params)
		if err != nil {
			e.logger.Error("matcher evaluation failed", "matcher", matcherKey, "error", err)
		} else if matched {
			stream.Push(effect.Allow)
		}
	} else {
		for _, row := range rows {
			eft, ok := e.evalRow(prog, matcherKey, params, pKey, pTokens, eftIndex, row)
			if !ok {
				continue
			}
			if stream.Push(eft) {
				break
			}
		}
	}

	decision := stream.Result()
	if useCache {
		e.cache.Put(key, decision)
	}
	return decision, nil
}

// evalRow evaluates one policy row and maps it to its effect contribution.
// A failed evaluation is logged and reported as not usable; the caller
// skips the row and enforcement continues.
func (e *Enforcer) evalRow(prog *matcher.Program, matcherKey string, params map[string]interface{}, pKey string, pTokens []string, eftIndex int, row []string) (effect.Effect, bool) {
	if len(row) != len(pTokens) {
		e.logger.Error("policy row arity mismatch",
			"matcher", matcherKey, "shape", pKey, "row", row, "want", len(pTokens))
		return effect.Indeterminate, false
	}
	for i, tok := range pTokens {
		params[tok] = row[i]
	}
	if eftIndex == -1 {
		params[pKey+"_eft"] = ""
	}

	e.evalCount.Add(1)
	matched, err := prog.Eval(params)
	if err != nil {
		e.logger.Error("matcher evaluation failed",
			"matcher", matcherKey, "row", row, "error", err)
		return effect.Indeterminate, false
	}
	if !matched {
		return effect.Indeterminate, true
	}

	eftValue := ""
	if eftIndex >= 0 {
		eftValue = row[eftIndex]
	}
	switch eftValue {
	case "", "allow":
		return effect.Allow, true
	case "deny":
		return effect.Deny, true
	default:
		e.logger.Error("unknown policy effect value",
			"matcher", matcherKey, "row", row, "eft", eftValue)
		return effect.Indeterminate, false
	}
}

// EvaluationCount reports how many single-rule matcher evaluations have run
// over the enforcer's lifetime. Cache hits do not evaluate rules, which
// makes cache behavior observable in tests.
func (e *Enforcer) EvaluationCount() uint64 {
	return e.evalCount.Load()
}

// AddFunction registers a predicate after construction and recompiles the
// matchers against the extended registry. A compile failure leaves the
// previous programs in place.
func (e *Enforcer) AddFunction(name string, fn govaluate.ExpressionFunction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, existed := e.fns[name]
	e.fns[name] = fn
	if err := e.compilePrograms(); err != nil {
		if existed {
			e.fns[name] = prev
		} else {
			delete(e.fns, name)
		}
		return err
	}
	e.invalidateCache()
	return nil
}

// EnableAutoSave switches single-rule adapter mirroring on or off.
func (e *Enforcer) EnableAutoSave(on bool) {
	e.mu.Lock()
	e.autoSave = on
	e.mu.Unlock()
}

// EnableCache switches decision caching on or off at runtime. Turning it on
// for the first time creates an unbounded cache; prefer WithCache to bound
// it.
func (e *Enforcer) EnableCache(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if on && e.cache == nil {
		e.cache = cache.New(0)
	}
	if !on && e.cache != nil {
		e.cache.InvalidateAll()
	}
	e.cacheOn.Store(on)
}

// invalidateCache is called by every mutation while the write lock is held,
// so no stale decision is visible once the mutation returns.
func (e *Enforcer) invalidateCache() {
	if e.cache != nil {
		e.cache.InvalidateAll()
	}
}
