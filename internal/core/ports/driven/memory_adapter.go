package driven

import "sync"

// MemoryAdapter is a PolicyAdapter that keeps rules in process memory. It
// backs tests and embeddings that do not want persistence.
type MemoryAdapter struct {
	mu    sync.Mutex
	rules []PolicyRule
}

// NewMemoryAdapter returns an adapter seeded with the given rules.
func NewMemoryAdapter(rules ...PolicyRule) *MemoryAdapter {
	return &MemoryAdapter{rules: rules}
}

func (a *MemoryAdapter) LoadPolicy() ([]PolicyRule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]PolicyRule, len(a.rules))
	copy(out, a.rules)
	return out, nil
}

func (a *MemoryAdapter) SavePolicy(rules []PolicyRule) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = make([]PolicyRule, len(rules))
	copy(a.rules, rules)
	return nil
}

func (a *MemoryAdapter) AddPolicy(key string, rule []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rules = append(a.rules, PolicyRule{Key: key, Rule: rule})
	return nil
}

func (a *MemoryAdapter) RemovePolicy(key string, rule []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.rules {
		if r.Key != key || len(r.Rule) != len(rule) {
			continue
		}
		same := true
		for j := range rule {
			if r.Rule[j] != rule[j] {
				same = false
				break
			}
		}
		if same {
			a.rules = append(a.rules[:i], a.rules[i+1:]...)
			return nil
		}
	}
	return nil
}
