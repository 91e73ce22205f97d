package config

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/kenneth/fieldcipher/internal/classification"
)

// PolicyMatcher resolves field paths to classifications using the
// configured glob policies. First matching policy wins; paths that match no
// policy fall back to the engine default. Safe for concurrent use.
type PolicyMatcher struct {
	mu       sync.RWMutex
	policies []compiledPolicy
}

type compiledPolicy struct {
	pattern        glob.Glob
	classification classification.Classification
}

// NewPolicyMatcher compiles the configured field policies. Patterns use '.'
// as the separator so "user.*.email" matches one path segment per star.
func NewPolicyMatcher(policies []FieldPolicy) (*PolicyMatcher, error) {
	pm := &PolicyMatcher{}
	if err := pm.Reload(policies); err != nil {
		return nil, err
	}
	return pm, nil
}

// Reload replaces the policy set, used by the config reloader.
func (pm *PolicyMatcher) Reload(policies []FieldPolicy) error {
	compiled := make([]compiledPolicy, 0, len(policies))
	for i, p := range policies {
		g, err := glob.Compile(p.Pattern, '.')
		if err != nil {
			return fmt.Errorf("policies[%d]: invalid pattern %q: %w", i, p.Pattern, err)
		}
		c := classification.Classification(p.Classification)
		if !c.Valid() {
			return fmt.Errorf("policies[%d]: %w: %q", i, classification.ErrUnknownClassification, p.Classification)
		}
		compiled = append(compiled, compiledPolicy{pattern: g, classification: c})
	}
	pm.mu.Lock()
	pm.policies = compiled
	pm.mu.Unlock()
	return nil
}

// ClassificationFor returns the classification for a field path and whether
// any policy matched.
func (pm *PolicyMatcher) ClassificationFor(path string) (classification.Classification, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for _, p := range pm.policies {
		if p.pattern.Match(path) {
			return p.classification, true
		}
	}
	return "", false
}
