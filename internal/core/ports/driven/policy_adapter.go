package driven

// PolicyRule is one persisted policy row together with its shape key
// ("p", "p2", "g", ...).
type PolicyRule struct {
	Key  string
	Rule []string
}

// PolicyAdapter defines the persistence interface for policy rules. The
// engine never interprets storage formats; it only exchanges sequences of
// string tuples with the adapter.
type PolicyAdapter interface {
	// LoadPolicy returns every persisted rule.
	LoadPolicy() ([]PolicyRule, error)
	// SavePolicy replaces the persisted rule set.
	SavePolicy(rules []PolicyRule) error
}

// BatchPolicyAdapter is an adapter that can mirror single-rule mutations,
// keeping persistence consistent with memory without full rewrites.
type BatchPolicyAdapter interface {
	PolicyAdapter
	AddPolicy(key string, rule []string) error
	RemovePolicy(key string, rule []string) error
}

// Watcher propagates policy changes across processes. The engine calls
// Update after every successful local mutation; the watcher calls the
// registered callback when a remote change arrives, typically to trigger a
// policy reload.
type Watcher interface {
	SetUpdateCallback(fn func()) error
	Update() error
	Close() error
}
