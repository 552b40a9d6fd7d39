package domain

import (
	"strings"
)

// Section names of an access-control model.
const (
	SectionRequest = "r"
	SectionPolicy  = "p"
	SectionRole    = "g"
	SectionEffect  = "e"
	SectionMatcher = "m"
)

// Assertion is one definition inside a model section: a request or policy
// shape, a role-relation declaration, an effect expression, or a matcher
// expression.
type Assertion struct {
	Key    string   // "r", "p", "p2", "g", "e", "m", ...
	Value  string   // raw definition text
	Tokens []string // flattened field names ("r_sub", "p_obj"), shapes only
}

// Model is the structured representation of an access-control model, keyed
// by section name and then by assertion key. It is immutable once built;
// reloading a model means building a fresh one and swapping it in whole.
type Model map[string]map[string]*Assertion

// NewModel returns an empty model. Definitions are added with AddDef and the
// result is checked with Validate before any enforcer is built on top of it.
func NewModel() Model {
	return Model{}
}

// AddDef registers one assertion. For request and policy shapes the
// definition is an ordered comma-separated field list ("sub, obj, act");
// field order is significant and fixed here. Returns false when the
// definition is empty.
func (m Model) AddDef(sec, key, value string) bool {
	if value == "" {
		return false
	}
	ast := &Assertion{Key: key, Value: value}
	if sec == SectionRequest || sec == SectionPolicy {
		for _, tok := range strings.Split(value, ",") {
			ast.Tokens = append(ast.Tokens, key+"_"+strings.TrimSpace(tok))
		}
	}
	if _, ok := m[sec]; !ok {
		m[sec] = map[string]*Assertion{}
	}
	m[sec][key] = ast
	return true
}

// Assertion looks up a single definition.
func (m Model) Assertion(sec, key string) (*Assertion, bool) {
	amap, ok := m[sec]
	if !ok {
		return nil, false
	}
	ast, ok := amap[key]
	return ast, ok
}

// Tokens returns the flattened field names of a request or policy shape, or
// nil when the shape does not exist.
func (m Model) Tokens(sec, key string) []string {
	if ast, ok := m.Assertion(sec, key); ok {
		return ast.Tokens
	}
	return nil
}

// RoleArity returns the declared argument count of a role-relation
// declaration ("_, _" is 2, "_, _, _" is domain-aware 3).
func (m Model) RoleArity(key string) int {
	ast, ok := m.Assertion(SectionRole, key)
	if !ok {
		return 0
	}
	return len(strings.Split(ast.Value, ","))
}

// Validate checks that the model is structurally complete: the request
// shape, at least one policy shape, the effect expression, and the matcher
// must all be present and non-empty, and role declarations must have arity
// two or three. Field references inside matcher expressions are resolved
// later, when the matcher is compiled against the declared shapes; both
// checks run during enforcer construction so a bad model fails fast.
func (m Model) Validate() error {
	required := []struct {
		sec, key, what string
	}{
		{SectionRequest, "r", "request definition"},
		{SectionPolicy, "p", "policy definition"},
		{SectionEffect, "e", "policy effect"},
		{SectionMatcher, "m", "matcher"},
	}
	for _, req := range required {
		ast, ok := m.Assertion(req.sec, req.key)
		if !ok || ast.Value == "" {
			return &ModelError{Section: req.sec, Reason: "missing " + req.what}
		}
	}
	for key, ast := range m[SectionRole] {
		arity := len(strings.Split(ast.Value, ","))
		if arity != 2 && arity != 3 {
			return &ModelError{
				Section: SectionRole,
				Reason:  "role declaration " + key + " must have two or three arguments",
			}
		}
	}
	// Every policy shape needs a same-numbered matcher to be usable, but
	// only the primary matcher "m" is mandatory; extra shapes without a
	// matcher are legal and simply never match.
	return nil
}

// EnforceRequest represents an authorization enforcement request.
type EnforceRequest struct {
	Values []string `json:"values"`
}

// EnforceResponse represents the response for an enforcement request.
type EnforceResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
}

// PolicyRequest represents a policy management request.
type PolicyRequest struct {
	Key  string   `json:"key,omitempty"` // policy shape key, default "p"
	Rule []string `json:"rule"`
}

// RoleRequest represents a role-link management request.
type RoleRequest struct {
	User   string `json:"user"`
	Role   string `json:"role"`
	Domain string `json:"domain,omitempty"`
}
