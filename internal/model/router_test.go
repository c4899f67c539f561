package model

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name   string
	reply  string
	err    error
	models []string
}

func (p *stubProvider) Generate(_ context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	p.models = append(p.models, req.Model)
	if p.err != nil {
		return nil, p.err
	}
	return &contract.CompletionResponse{Content: p.reply}, nil
}

func (p *stubProvider) Name() string                 { return p.name }
func (p *stubProvider) Type() string                 { return "stub" }
func (p *stubProvider) Health(context.Context) error { return nil }

func TestRoute_UsesRequestedModel(t *testing.T) {
	primary := &stubProvider{name: "gpt-4o-mini", reply: "ok"}
	r := NewRouterWithProviders(config.ModelsConfig{Default: "gpt-4o-mini"}, primary)

	resp, err := r.Route(context.Background(), "", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, []string{"gpt-4o-mini"}, primary.models)
}

func TestRoute_FallsBackOnProviderError(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("503 service unavailable")}
	fallback := &stubProvider{name: "fallback", reply: "from fallback"}
	r := NewRouterWithProviders(config.ModelsConfig{Fallback: "fallback", MaxFallbackAttempts: 2}, primary, fallback)

	resp, err := r.Route(context.Background(), "primary", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Content)
	assert.Equal(t, "fallback", resp.Model)
	assert.Equal(t, []string{"fallback"}, fallback.models)
}

func TestRoute_UnknownModelUsesFallback(t *testing.T) {
	fallback := &stubProvider{name: "fallback", reply: "ok"}
	r := NewRouterWithProviders(config.ModelsConfig{Fallback: "fallback"}, fallback)

	resp, err := r.Route(context.Background(), "missing", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestRoute_UnknownModelWithoutFallback(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{})

	_, err := r.Route(context.Background(), "missing", contract.CompletionRequest{})
	assert.True(t, apperrors.IsCategory(err, apperrors.ErrNotFound))
}

func TestRoute_KeepsErrorCategory(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("429 too many requests")}
	r := NewRouterWithProviders(config.ModelsConfig{}, primary)

	_, err := r.Route(context.Background(), "primary", contract.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, "transient", apperrors.NewDefaultErrorMapper().Category(err))
}

func TestRoute_CancelledContext(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{}, &stubProvider{name: "m", reply: "ok"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Route(ctx, "m", contract.CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListModelsAndHealth(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{}, &stubProvider{name: "b"}, &stubProvider{name: "a"})
	assert.Equal(t, []string{"a", "b"}, r.ListModels())
	assert.NoError(t, r.Health(context.Background()))

	assert.Error(t, NewRouterWithProviders(config.ModelsConfig{}).Health(context.Background()))
}

func TestCreateProvider_RequiresKeys(t *testing.T) {
	_, err := createProvider(context.Background(), config.ModelRegistry{Name: "gpt", Provider: "openai"})
	assert.True(t, apperrors.IsCategory(err, apperrors.ErrInvalidInput))

	_, err = createProvider(context.Background(), config.ModelRegistry{Name: "x", Provider: "mystery"})
	assert.True(t, apperrors.IsCategory(err, apperrors.ErrInvalidInput))

	p, err := createProvider(context.Background(), config.ModelRegistry{Name: "llama3", Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Type())
	assert.Equal(t, "llama3", p.Name())
}
