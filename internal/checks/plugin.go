package checks

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/pygate/pygate/internal/analyzer"
	"github.com/pygate/pygate/internal/config"
	"github.com/pygate/pygate/internal/rules"
)

// PluginFunc is the contract for custom checks. A plugin receives the
// analyzed source and returns violations; an empty slice means the rule
// passed.
type PluginFunc func(a *analyzer.Source) []analyzer.Finding

// DefaultPluginFunction is the symbol looked up in a shared-object plugin
// when the rule does not name one.
const DefaultPluginFunction = "Check"

// Registry holds named custom checks. Builtins register themselves at init
// time; shared-object plugins are cached here after their first load so a
// multi-file scan opens each .so once.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]PluginFunc
}

// NewRegistry returns a registry pre-populated with the builtin checks.
func NewRegistry() *Registry {
	r := &Registry{funcs: map[string]PluginFunc{}}
	for name, fn := range builtins {
		r.funcs[name] = fn
	}
	return r
}

// Register adds or replaces a named check.
func (r *Registry) Register(name string, fn PluginFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the check registered under name.
func (r *Registry) Lookup(name string) (PluginFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// checkCustom runs a custom check named by the rule. The reference resolves
// to a registered builtin first, then to a shared object in the store's
// trusted plugin directory. Any failure yields a synthetic violation rather
// than a silent pass: a rule that asks for a custom check and cannot get it
// must block.
func (r *Runner) checkCustom(a *analyzer.Source, cfg *rules.CheckConfig, params map[string]any) []analyzer.Finding {
	if cfg.Plugin == "" {
		return nil
	}

	fn, err := r.resolvePlugin(cfg)
	if err != nil {
		r.log.Errorw("plugin load failed", "plugin", cfg.Plugin, "error", err)
		return pluginFailure(err)
	}

	var findings []analyzer.Finding
	panicked := true
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Errorw("plugin panicked", "plugin", cfg.Plugin, "panic", rec)
			}
		}()
		findings = fn(a)
		panicked = false
	}()
	if panicked {
		return pluginFailure(fmt.Errorf("plugin %s panicked", cfg.Plugin))
	}
	return findings
}

// resolvePlugin finds the check function for a custom rule, loading and
// caching a shared object when the reference is not already registered.
func (r *Runner) resolvePlugin(cfg *rules.CheckConfig) (PluginFunc, error) {
	name := pluginKey(cfg.Plugin)
	if fn, ok := r.registry.Lookup(name); ok {
		return fn, nil
	}

	if !strings.HasSuffix(cfg.Plugin, ".so") {
		return nil, fmt.Errorf("unknown custom check %q", cfg.Plugin)
	}
	if r.store == nil {
		return nil, fmt.Errorf("no plugin directory configured for %q", cfg.Plugin)
	}

	path := cfg.Plugin
	if !filepath.IsAbs(path) {
		path = r.store.PluginPath(path)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open plugin %s: %w", path, err)
	}

	symbol := cfg.Function
	if symbol == "" {
		symbol = DefaultPluginFunction
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}
	fn, ok := sym.(func(*analyzer.Source) []analyzer.Finding)
	if !ok {
		return nil, fmt.Errorf("plugin %s: symbol %s has wrong type", path, symbol)
	}

	r.registry.Register(name, fn)
	return fn, nil
}

// pluginKey normalizes a plugin reference to its registry name, so
// "plugins/import_ordering.so" and "import_ordering" hit the same entry.
func pluginKey(ref string) string {
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, ".so")
}

func pluginFailure(err error) []analyzer.Finding {
	return []analyzer.Finding{{
		Line:   config.Get().ErrorLine,
		Source: "plugin error: " + err.Error(),
	}}
}
