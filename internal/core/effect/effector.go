// Package effect folds per-rule matcher outcomes into one decision
// according to the model's policy-effect expression.
package effect

import (
	"github.com/asakaida/authrus/internal/core/domain"
)

// Effect is the contribution of a single policy rule to the decision.
type Effect int

const (
	// Indeterminate means the rule did not match.
	Indeterminate Effect = iota
	// Allow means the rule matched and grants access.
	Allow
	// Deny means the rule matched and denies access.
	Deny
)

// The supported policy-effect expressions. Anything else fails effector
// construction, not evaluation.
const (
	AllowOverride = "some(where (p.eft == allow))"
	DenyOverride  = "!some(where (p.eft == deny))"
	AllowAndDeny  = "some(where (p.eft == allow)) && !some(where (p.eft == deny))"
	Priority      = "priority(p.eft) || deny"
)

// Stream consumes one effect per evaluated policy row. Push reports
// whether the outcome is already decided, at which point the enforcer must
// stop evaluating further rows.
type Stream interface {
	Push(eft Effect) (done bool)
	Result() bool
}

// Effector builds one Stream per enforcement call.
type Effector interface {
	NewStream() Stream
}

type kind int

const (
	kindAllowOverride kind = iota
	kindDenyOverride
	kindAllowAndDeny
	kindPriority
)

// DefaultEffector implements the four standard combination semantics.
type DefaultEffector struct {
	kind kind
}

// NewDefaultEffector selects the combination semantics for an effect
// expression. Unknown expressions are a CompileError.
func NewDefaultEffector(expr string) (*DefaultEffector, error) {
	switch expr {
	case AllowOverride:
		return &DefaultEffector{kind: kindAllowOverride}, nil
	case DenyOverride:
		return &DefaultEffector{kind: kindDenyOverride}, nil
	case AllowAndDeny:
		return &DefaultEffector{kind: kindAllowAndDeny}, nil
	case Priority:
		return &DefaultEffector{kind: kindPriority}, nil
	}
	return nil, &domain.CompileError{Expr: expr, Reason: "unsupported effect expression"}
}

func (e *DefaultEffector) NewStream() Stream {
	switch e.kind {
	case kindDenyOverride:
		// Allowed unless some rule denies.
		return &stream{kind: e.kind, result: true}
	default:
		return &stream{kind: e.kind}
	}
}

type stream struct {
	kind   kind
	result bool
	done   bool
}

func (s *stream) Push(eft Effect) bool {
	if s.done {
		return true
	}
	switch s.kind {
	case kindAllowOverride:
		if eft == Allow {
			s.result = true
			s.done = true
		}
	case kindDenyOverride:
		if eft == Deny {
			s.result = false
			s.done = true
		}
	case kindAllowAndDeny:
		switch eft {
		case Deny:
			s.result = false
			s.done = true
		case Allow:
			s.result = true
		}
	case kindPriority:
		// First matching rule in store order wins.
		switch eft {
		case Allow:
			s.result = true
			s.done = true
		case Deny:
			s.result = false
			s.done = true
		}
	}
	return s.done
}

func (s *stream) Result() bool { return s.result }
