package provider

import (
	"strings"

	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/restriction"
)

// Base implements the shared, non-HTTP parts of the Provider contract
// (resolve/capabilities/validate/count_tokens) so concrete providers only
// need to implement Generate. Every concrete provider embeds this.
type Base struct {
	Type       capability.ProviderType
	Caps       capability.Map
	Restrictor *restriction.Policy
}

func (b *Base) ProviderType() capability.ProviderType { return b.Type }

func (b *Base) ListCapabilities() capability.Map { return b.Caps }

// Resolve maps an alias or canonical name to the canonical model name,
// or fails with UNKNOWN_MODEL.
func (b *Base) Resolve(aliasOrCanonical string) (string, error) {
	c, ok := b.Caps.Resolve(aliasOrCanonical)
	if !ok {
		return "", agenterrors.UnknownModelErr(aliasOrCanonical, b.allowedNames())
	}
	return c.ModelName, nil
}

// Capabilities resolves a name and checks the restriction policy after
// resolution. Azure only owns models whose capability carries a
// deployment id; anything else falls through to the next provider in the
// priority walk.
func (b *Base) Capabilities(name string) (*capability.Capabilities, error) {
	c, ok := b.Caps.Resolve(name)
	if !ok {
		return nil, agenterrors.UnknownModelErr(name, b.allowedNames())
	}
	if b.Type == capability.Azure && !ownsDeployment(c) {
		return nil, agenterrors.UnknownModelErr(name, b.allowedNames())
	}
	if b.Restrictor != nil && !b.Restrictor.IsAllowed(b.Type, c.ModelName, c.Aliases) {
		return nil, agenterrors.RestrictedErr(name, b.Restrictor.AllowedTokens(b.Type))
	}
	return c, nil
}

// Validate reports whether Capabilities succeeds for the name.
func (b *Base) Validate(name string) bool {
	_, err := b.Capabilities(name)
	return err == nil
}

// CountTokens uses the default length/4 estimator.
func (b *Base) CountTokens(text string, _ string) int {
	return DefaultCountTokens(text)
}

func (b *Base) allowedNames() []string {
	names := make([]string, 0, len(b.Caps))
	for _, c := range b.Caps {
		if b.Restrictor == nil || b.Restrictor.IsAllowed(b.Type, c.ModelName, c.Aliases) {
			names = append(names, c.ModelName)
		}
	}
	return names
}

// ownsDeployment reports whether a capability carries an Azure deployment
// id; the registry only routes a model to Azure when it does.
func ownsDeployment(c *capability.Capabilities) bool {
	return strings.TrimSpace(c.Deployment) != ""
}
