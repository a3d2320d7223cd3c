package restriction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zenmcp/server-core/internal/capability"
)

func TestIsAllowed_UnrestrictedWhenEmpty(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{})
	assert.True(t, p.IsAllowed(capability.OpenAI, "gpt-5", nil))
}

func TestIsAllowed_MatchesCanonicalCaseInsensitive(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "O4-MINI"})
	assert.True(t, p.IsAllowed(capability.OpenAI, "o4-mini", nil))
	assert.False(t, p.IsAllowed(capability.OpenAI, "gpt-5", nil))
}

func TestIsAllowed_MatchesAlias(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "mini"})
	assert.True(t, p.IsAllowed(capability.OpenAI, "gpt-5-mini", []string{"mini"}))
}

func TestIsAllowed_OtherProviderUnaffected(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "o4-mini"})
	assert.True(t, p.IsAllowed(capability.Google, "gemini-2.5-pro", nil))
}

func TestAllowedTokens_NilWhenUnrestricted(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{})
	assert.Nil(t, p.AllowedTokens(capability.OpenAI))
}

func TestAllowedTokens_ReturnsConfiguredSet(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "o4-mini, mini"})
	assert.ElementsMatch(t, []string{"o4-mini", "mini"}, p.AllowedTokens(capability.OpenAI))
}

func TestIsRestricted(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "o4-mini"})
	assert.True(t, p.IsRestricted(capability.OpenAI))
	assert.False(t, p.IsRestricted(capability.Google))
}

func TestWarnUnknownTokens_DoesNotPanicOnUnknownModel(t *testing.T) {
	p := New(nil, map[capability.ProviderType]string{capability.OpenAI: "nonexistent-model"})
	known := capability.Build([]capability.Capabilities{{ModelName: "gpt-5"}})
	assert.NotPanics(t, func() {
		p.WarnUnknownTokens(context.Background(), capability.OpenAI, known)
	})
}
