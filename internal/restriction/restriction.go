// Package restriction implements the operator allow-list policy: a
// process-lifetime map of provider type -> allowed set parsed from
// environment variables at startup, consulted by the registry and by
// listmodels/auto-mode selection.
package restriction

import (
	"context"
	"strings"

	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/zlog"
)

// Policy is the restriction singleton. An empty/unset allow-set means
// unrestricted.
type Policy struct {
	logger  zlog.Logger
	allowed map[capability.ProviderType]map[string]struct{}
}

// New builds a Policy from raw env values, one per provider type. An empty
// raw string means unrestricted for that provider. Tokens are trimmed,
// lowercased, and split on commas; unknown tokens are not validated here
// (IsAllowed only ever checks membership) but the caller is expected to log
// warnings for tokens that never match any known model (WarnUnknownTokens).
func New(logger zlog.Logger, raw map[capability.ProviderType]string) *Policy {
	if logger == nil {
		logger = zlog.Noop{}
	}
	p := &Policy{
		logger:  logger,
		allowed: make(map[capability.ProviderType]map[string]struct{}),
	}
	for pt, rawVal := range raw {
		if strings.TrimSpace(rawVal) == "" {
			continue // unrestricted
		}
		set := make(map[string]struct{})
		for _, tok := range strings.Split(rawVal, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				set[tok] = struct{}{}
			}
		}
		p.allowed[pt] = set
	}
	return p
}

// IsAllowed reports true if the resolved model's canonical name or any
// alias matches a configured token, or if the provider has no configured
// allow-list at all.
func (p *Policy) IsAllowed(provider capability.ProviderType, canonicalName string, aliases []string) bool {
	set, restricted := p.allowed[provider]
	if !restricted {
		return true
	}
	if _, ok := set[strings.ToLower(canonicalName)]; ok {
		return true
	}
	for _, a := range aliases {
		if _, ok := set[strings.ToLower(a)]; ok {
			return true
		}
	}
	return false
}

// AllowedTokens returns the configured allow-list tokens for a provider
// (nil if unrestricted), used to build UNKNOWN_MODEL/RESTRICTED suggestion
// lists.
func (p *Policy) AllowedTokens(provider capability.ProviderType) []string {
	set, ok := p.allowed[provider]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	return out
}

// WarnUnknownTokens logs (but does not fail) any configured token that
// does not match a known canonical name or alias for the provider.
func (p *Policy) WarnUnknownTokens(ctx context.Context, provider capability.ProviderType, known capability.Map) {
	set, ok := p.allowed[provider]
	if !ok {
		return
	}
	for tok := range set {
		if _, found := known.Resolve(tok); !found {
			p.logger.Warn(ctx, "restriction policy token matches no known model",
				zlog.F("provider", string(provider)), zlog.F("token", tok))
		}
	}
}

// IsRestricted reports whether a provider has any allow-list configured at all.
func (p *Policy) IsRestricted(provider capability.ProviderType) bool {
	_, ok := p.allowed[provider]
	return ok
}
