package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/provider"
)

// fakeProvider is a minimal provider.Provider stand-in for exercising the
// priority router without any real upstream SDK.
type fakeProvider struct {
	ptype    capability.ProviderType
	caps     capability.Map
	genErr   error
	genResp  *provider.ModelResponse
	genCalls int
}

func newFakeProvider(pt capability.ProviderType, names ...string) *fakeProvider {
	caps := make(capability.Map, len(names))
	for _, n := range names {
		caps[n] = &capability.Capabilities{ModelName: n, Provider: pt, IntelligenceScore: 10}
	}
	return &fakeProvider{ptype: pt, caps: caps}
}

func (f *fakeProvider) ProviderType() capability.ProviderType   { return f.ptype }
func (f *fakeProvider) ListCapabilities() capability.Map        { return f.caps }
func (f *fakeProvider) Resolve(name string) (string, error) {
	if c, ok := f.caps.Resolve(name); ok {
		return c.ModelName, nil
	}
	return "", agenterrors.UnknownModelErr(name, nil)
}
func (f *fakeProvider) Capabilities(name string) (*capability.Capabilities, error) {
	if c, ok := f.caps[name]; ok {
		return c, nil
	}
	return nil, agenterrors.UnknownModelErr(name, nil)
}
func (f *fakeProvider) Validate(name string) bool {
	_, ok := f.caps.Resolve(name)
	return ok
}
func (f *fakeProvider) Generate(ctx context.Context, req provider.GenerateRequest) (*provider.ModelResponse, error) {
	f.genCalls++
	if f.genErr != nil {
		return nil, f.genErr
	}
	if f.genResp != nil {
		return f.genResp, nil
	}
	return &provider.ModelResponse{Content: "ok", ModelName: req.ModelName, Provider: f.ptype}, nil
}
func (f *fakeProvider) CountTokens(text string, model string) int { return len(text) }

func factoryFor(p *fakeProvider) Factory {
	return Factory{Type: p.ptype, New: func() (provider.Provider, error) { return p, nil }}
}

func TestGetProviderForModel_WalksPriorityOrder(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	google := newFakeProvider(capability.Google, "gemini-2.5-pro")

	r := New(nil, []Factory{factoryFor(openai), factoryFor(google)})

	p, err := r.GetProviderForModel("gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, capability.Google, p.ProviderType(), "Google precedes OpenAI in priority order")

	p, err = r.GetProviderForModel("gpt-5")
	require.NoError(t, err)
	assert.Equal(t, capability.OpenAI, p.ProviderType())
}

func TestGetProviderForModel_UnknownReturnsCodedError(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	r := New(nil, []Factory{factoryFor(openai)})

	_, err := r.GetProviderForModel("no-such-model")
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.UnknownModel))
}

func TestGetProviderForModel_CachesByAlias(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	r := New(nil, []Factory{factoryFor(openai)})

	p1, err := r.GetProviderForModel("gpt-5")
	require.NoError(t, err)
	p2, err := r.GetProviderForModel("GPT-5")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestGenerate_SchemaInvalidDoesNotTripBreaker(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	openai.genErr = agenterrors.SchemaInvalidErr("/model", errors.New("bad"))
	r := New(nil, []Factory{factoryFor(openai)})

	for i := 0; i < 10; i++ {
		_, err := r.Generate(context.Background(), provider.GenerateRequest{ModelName: "gpt-5"})
		require.Error(t, err)
	}

	p, err := r.GetProviderForModel("gpt-5")
	require.NoError(t, err)
	assert.Equal(t, capability.OpenAI, p.ProviderType(), "breaker must still allow this provider")
}

func TestGenerate_UpstreamFailuresEventuallyOpenBreaker(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	google := newFakeProvider(capability.Google, "gemini-2.5-pro")
	openai.genErr = agenterrors.UpstreamHTTPErr(503, "boom")
	r := New(nil, []Factory{factoryFor(openai), factoryFor(google)})

	for i := 0; i < 5; i++ {
		_, _ = r.Generate(context.Background(), provider.GenerateRequest{ModelName: "gpt-5"})
	}

	cb := r.breakerFor(capability.OpenAI)
	require.NotNil(t, cb)
	assert.False(t, cb.allow(), "breaker should trip open after repeated upstream failures")
}

func TestListForTool_AggregatesAcrossProvidersSortedByRank(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	openai.caps["gpt-5"].IntelligenceScore = 15
	google := newFakeProvider(capability.Google, "gemini-2.5-pro")
	google.caps["gemini-2.5-pro"].IntelligenceScore = 18

	r := New(nil, []Factory{factoryFor(openai), factoryFor(google)})

	list := r.ListForTool("", 0)
	require.Len(t, list, 2)
	assert.Equal(t, "gemini-2.5-pro", list[0].ModelName)
	assert.Equal(t, "gpt-5", list[1].ModelName)
}

func TestInstance_UnconfiguredProviderSkipped(t *testing.T) {
	openai := newFakeProvider(capability.OpenAI, "gpt-5")
	r := New(nil, []Factory{factoryFor(openai)})

	list := r.ListForTool("", 0)
	require.Len(t, list, 1)
	assert.Equal(t, "gpt-5", list[0].ModelName)
}
