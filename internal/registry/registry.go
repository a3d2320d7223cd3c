// Package registry implements the provider registry and priority router:
// lazy provider instantiation, priority-ordered model resolution,
// per-alias caching, and the ranked auto-mode listing.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/provider"
	"github.com/zenmcp/server-core/internal/zlog"
)

// priorityOrder is the fixed provider walk order.
var priorityOrder = []capability.ProviderType{
	capability.Google,
	capability.OpenAI,
	capability.XAI,
	capability.Azure,
	capability.DIAL,
	capability.Custom,
	capability.OpenRouter,
}

// Factory lazily constructs one provider instance. Construction happens
// at most once per process lifetime.
type Factory struct {
	Type capability.ProviderType
	New  func() (provider.Provider, error)
}

// Registry is the process-lifetime provider cache and priority router.
type Registry struct {
	logger zlog.Logger

	mu        sync.Mutex
	factories map[capability.ProviderType]Factory
	instances map[capability.ProviderType]provider.Provider
	breakers  map[capability.ProviderType]*circuitBreaker
	initErr   map[capability.ProviderType]error

	aliasMu    sync.RWMutex
	aliasCache map[string]provider.Provider
}

// New builds a Registry from a set of provider factories. Factories for
// provider types with no configured API key should simply be omitted by
// the caller (main.go); an omitted type is treated as "not configured" and
// is skipped in the priority walk.
func New(logger zlog.Logger, factories []Factory) *Registry {
	if logger == nil {
		logger = zlog.Noop{}
	}
	fm := make(map[capability.ProviderType]Factory, len(factories))
	for _, f := range factories {
		fm[f.Type] = f
	}
	return &Registry{
		logger:     logger,
		factories:  fm,
		instances:  map[capability.ProviderType]provider.Provider{},
		breakers:   map[capability.ProviderType]*circuitBreaker{},
		initErr:    map[capability.ProviderType]error{},
		aliasCache: map[string]provider.Provider{},
	}
}

// instance lazily constructs (once) and returns the provider for pt, or
// the error the factory returned on a previous attempt.
func (r *Registry) instance(pt capability.ProviderType) (provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[pt]; ok {
		return p, nil
	}
	if err, ok := r.initErr[pt]; ok {
		return nil, err
	}
	f, ok := r.factories[pt]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", pt)
	}
	p, err := f.New()
	if err != nil {
		r.initErr[pt] = err
		return nil, err
	}
	r.instances[pt] = p
	r.breakers[pt] = newCircuitBreaker(5, 30_000_000_000) // 30s, see circuitbreaker.go
	return p, nil
}

// GetProviderForModel walks providers in priority order; the first whose
// Validate succeeds (which folds in restriction-policy enforcement) and
// whose breaker is closed wins. The decision is cached per lowercased
// alias for the process lifetime.
func (r *Registry) GetProviderForModel(nameOrAlias string) (provider.Provider, error) {
	lname := strings.ToLower(nameOrAlias)

	r.aliasMu.RLock()
	if p, ok := r.aliasCache[lname]; ok {
		r.aliasMu.RUnlock()
		return p, nil
	}
	r.aliasMu.RUnlock()

	var allowedModels []string
	var restrictedErr error
	for _, pt := range priorityOrder {
		p, err := r.instance(pt)
		if err != nil {
			continue // provider not configured
		}
		if cb := r.breakerFor(pt); cb != nil && !cb.allow() {
			r.logger.Warn(context.Background(), "skipping provider: circuit breaker open", zlog.F("provider", string(pt)))
			continue
		}
		if p.Validate(nameOrAlias) {
			r.aliasMu.Lock()
			r.aliasCache[lname] = p
			r.aliasMu.Unlock()
			return p, nil
		}
		if _, capErr := p.Capabilities(nameOrAlias); restrictedErr == nil && agenterrors.Is(capErr, agenterrors.Restricted) {
			restrictedErr = capErr
		}
		for c := range p.ListCapabilities() {
			allowedModels = append(allowedModels, c)
		}
	}
	if restrictedErr != nil {
		return nil, restrictedErr
	}
	return nil, agenterrors.UnknownModelErr(nameOrAlias, allowedModels)
}

func (r *Registry) breakerFor(pt capability.ProviderType) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakers[pt]
}

// Generate resolves a provider for the requested model and calls Generate
// on it, recording the outcome against that provider's circuit breaker.
// Request-shape failures (UNKNOWN_MODEL, RESTRICTED, SCHEMA_INVALID) are
// not provider-health signals and do not trip the breaker, and neither does
// an upstream 429 (UPSTREAM_RATE_LIMITED); everything else (upstream
// HTTP/timeout failures) does.
func (r *Registry) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.ModelResponse, error) {
	p, err := r.GetProviderForModel(req.ModelName)
	if err != nil {
		return nil, err
	}

	resp, err := p.Generate(ctx, req)

	if cb := r.breakerFor(p.ProviderType()); cb != nil {
		if err == nil {
			cb.recordSuccess()
		} else if isHealthSignal(err) {
			cb.recordFailure()
		}
	}
	return resp, err
}

func isHealthSignal(err error) bool {
	for _, k := range []agenterrors.Kind{agenterrors.UnknownModel, agenterrors.Restricted, agenterrors.SchemaInvalid, agenterrors.UpstreamRateLimited} {
		if agenterrors.Is(err, k) {
			return false
		}
	}
	return true
}

// ListForTool returns up to topN capabilities across every configured
// (and unrestricted) provider, sorted by EffectiveRank descending with an
// alphabetic tie-break. category is reserved for per-tool filtering
// (e.g. vision-only) and is unused today.
func (r *Registry) ListForTool(_ string, topN int) []*capability.Capabilities {
	var all []*capability.Capabilities
	for _, pt := range priorityOrder {
		p, err := r.instance(pt)
		if err != nil {
			continue
		}
		for _, c := range p.ListCapabilities() {
			if _, capErr := p.Capabilities(c.ModelName); capErr == nil {
				all = append(all, c)
			}
		}
	}
	return capability.ListForTool(all, topN)
}
