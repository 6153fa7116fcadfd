package docdex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures a Registry.
type Option func(*registryConfig)

type registryConfig struct {
	client     Client
	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithClient sets the engine client used by every kind of the registry.
func WithClient(c Client) Option {
	return func(cfg *registryConfig) { cfg.client = c }
}

// WithLogger sets the logger for operation diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *registryConfig) { cfg.logger = l }
}

// WithMetrics registers operation metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *registryConfig) { cfg.metricsReg = reg }
}

// Registry maps "{index}.{type}" to the kinds registered under it, keyed by
// kind name. Kinds are never removed.
type Registry struct {
	mu        sync.RWMutex
	byAddress map[string]map[string]*Kind
	cfg       registryConfig
	obs       *observer
}

var std = &Registry{
	byAddress: map[string]map[string]*Kind{},
	cfg:       registryConfig{logger: zap.NewNop()},
	obs:       &observer{logger: zap.NewNop()},
}

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return std }

// Define registers a kind in the process-wide registry.
func Define(name, index, docType string, decls ...Declaration) (*Kind, error) {
	return std.Define(name, index, docType, decls...)
}

// MustDefine registers a kind in the process-wide registry and panics on error.
func MustDefine(name, index, docType string, decls ...Declaration) *Kind {
	return std.MustDefine(name, index, docType, decls...)
}

// NewRegistry creates an isolated registry.
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		byAddress: map[string]map[string]*Kind{},
		cfg:       registryConfig{logger: zap.NewNop()},
		obs:       &observer{logger: zap.NewNop()},
	}
	if err := r.Configure(opts...); err != nil {
		return nil, err
	}
	return r, nil
}

// Configure applies options to an existing registry, typically DefaultRegistry().
func (r *Registry) Configure(opts ...Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg := r.cfg
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	obs := &observer{logger: cfg.logger}
	if cfg.metricsReg != nil {
		m, err := newOpMetrics(cfg.metricsReg)
		if err != nil {
			return err
		}
		obs.metrics = m
	} else if r.obs != nil {
		obs.metrics = r.obs.metrics
	}
	r.cfg = cfg
	r.obs = obs
	return nil
}

// Client returns the configured engine client, or nil.
func (r *Registry) Client() Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.client
}

func (r *Registry) logger() *zap.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.logger
}

func (r *Registry) observer() *observer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.obs
}

// Define builds a kind from its declarations and registers it.
func (r *Registry) Define(name, index, docType string, decls ...Declaration) (*Kind, error) {
	if name == "" {
		return nil, fmt.Errorf("docdex: kind name is required")
	}
	if index == "" || docType == "" {
		return nil, fmt.Errorf("docdex: kind %s: %w", name, ErrMissingAddress)
	}

	k := &Kind{
		name:      name,
		index:     index,
		docType:   docType,
		reg:       r,
		byName:    map[string]*Property{},
		byField:   map[string]*Property{},
		relations: map[string]*Relation{},
		lists:     map[string]*ListRelation{},
		claimed:   map[string]bool{},
	}
	for _, d := range decls {
		if err := d.declare(k); err != nil {
			return nil, fmt.Errorf("docdex: kind %s: %w", name, err)
		}
	}
	if err := k.validateRelations(); err != nil {
		return nil, fmt.Errorf("docdex: kind %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := addressKey(index, docType)
	byName := r.byAddress[key]
	if byName == nil {
		byName = map[string]*Kind{}
		r.byAddress[key] = byName
	}
	if _, dup := byName[name]; dup {
		return nil, fmt.Errorf("docdex: %s under %s: %w", name, key, ErrDuplicateKind)
	}
	byName[name] = k
	return k, nil
}

// MustDefine is like Define but panics on error.
func (r *Registry) MustDefine(name, index, docType string, decls ...Declaration) *Kind {
	k, err := r.Define(name, index, docType, decls...)
	if err != nil {
		panic(err)
	}
	return k
}

// Lookup resolves a kind reference. ref is either "index.type.Name" or a
// bare name that must be unique across the registry.
func (r *Registry) Lookup(ref string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := strings.LastIndex(ref, "."); i > 0 {
		if k := r.byAddress[ref[:i]][ref[i+1:]]; k != nil {
			return k, nil
		}
		return nil, fmt.Errorf("docdex: %q: %w", ref, ErrUnknownKind)
	}

	var found *Kind
	for _, byName := range r.byAddress {
		if k, ok := byName[ref]; ok {
			if found != nil {
				return nil, fmt.Errorf("docdex: %q is ambiguous, qualify it as index.type.%s: %w",
					ref, ref, ErrUnknownKind)
			}
			found = k
		}
	}
	if found == nil {
		return nil, fmt.Errorf("docdex: %q: %w", ref, ErrUnknownKind)
	}
	return found, nil
}

// Kinds returns the kinds registered under index/type, sorted by name.
func (r *Registry) Kinds(index, docType string) []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.byAddress[addressKey(index, docType)]
	out := make([]*Kind, 0, len(byName))
	for _, k := range byName {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// IndexedFields merges the searchable fields of every kind under
// index/type. The first kind, by name, decides the type of a shared field.
func (r *Registry) IndexedFields(index, docType string) []IndexedField {
	var out []IndexedField
	seen := map[string]bool{}
	for _, k := range r.Kinds(index, docType) {
		for _, f := range k.IndexedFields() {
			if !seen[f.Name] {
				seen[f.Name] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// EnsureIndexes creates the search schema of every registered index/type
// when the client needs one.
func (r *Registry) EnsureIndexes(ctx context.Context) error {
	ens, ok := r.Client().(IndexEnsurer)
	if !ok {
		return nil
	}

	r.mu.RLock()
	addrs := make([][2]string, 0, len(r.byAddress))
	for _, byName := range r.byAddress {
		for _, k := range byName {
			addrs = append(addrs, [2]string{k.index, k.docType})
			break
		}
	}
	r.mu.RUnlock()
	sort.Slice(addrs, func(i, j int) bool {
		return addressKey(addrs[i][0], addrs[i][1]) < addressKey(addrs[j][0], addrs[j][1])
	})

	for _, a := range addrs {
		if err := ens.EnsureIndex(ctx, a[0], a[1], r.IndexedFields(a[0], a[1])); err != nil {
			return fmt.Errorf("docdex: ensure index %s: %w", addressKey(a[0], a[1]), err)
		}
	}
	return nil
}

// variant picks the kind registered as name under index/type.
func (r *Registry) variant(index, docType, name string) *Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byAddress[addressKey(index, docType)][name]
}

func addressKey(index, docType string) string {
	return index + "." + docType
}
