package policy

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry resolves policy version tags to frozen rulesets. It is safe
// for concurrent use; rulesets are immutable once registered.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]Rules
}

// NewRegistry creates a registry pre-loaded with the built-in versions.
func NewRegistry() *Registry {
	return &Registry{versions: Builtin()}
}

// Resolve returns the ruleset for a version tag. An empty tag resolves
// to DefaultVersion. Unknown tags are an error rather than a silent
// fallback: running a session under the wrong ruleset would make its
// results incomparable.
func (r *Registry) Resolve(version string) (Rules, error) {
	if version == "" {
		version = DefaultVersion
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.versions[version]
	if !ok {
		return Rules{}, fmt.Errorf("unknown policy version %q", version)
	}
	return rules, nil
}

// Register adds or replaces a ruleset under its version tag.
func (r *Registry) Register(rules Rules) error {
	if rules.Version == "" {
		return fmt.Errorf("policy rules must carry a version tag")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[rules.Version] = rules
	return nil
}

// Versions lists registered version tags in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.versions))
	for v := range r.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// pack is the YAML policy pack file format: a list of rulesets, each
// based on a built-in version with selective overrides applied by the
// YAML decoder.
type pack struct {
	Policies []packEntry `yaml:"policies"`
}

type packEntry struct {
	Base  string    `yaml:"base"`
	Rules yaml.Node `yaml:"rules"`
}

// LoadPack reads a YAML policy pack and registers its rulesets. Each
// entry starts from its named base version (or the default) so a pack
// only states the knobs it changes.
func (r *Registry) LoadPack(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy pack: %w", err)
	}
	var p pack
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("parse policy pack: %w", err)
	}
	for i, entry := range p.Policies {
		base, err := r.Resolve(entry.Base)
		if err != nil {
			return fmt.Errorf("policy pack entry %d: %w", i, err)
		}
		rules := base
		if err := entry.Rules.Decode(&rules); err != nil {
			return fmt.Errorf("policy pack entry %d: %w", i, err)
		}
		if rules.Version == base.Version && entry.Base != "" {
			return fmt.Errorf("policy pack entry %d must declare a new version tag", i)
		}
		if err := r.Register(rules); err != nil {
			return fmt.Errorf("policy pack entry %d: %w", i, err)
		}
	}
	return nil
}
