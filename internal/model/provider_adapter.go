package model

import (
	"context"
	"time"

	"github.com/harunnryd/autosend/internal/model/contract"
)

// Provider is one registry entry: a model name bound to a client.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Name() string
	Type() string
	Health(ctx context.Context) error
}

type generator interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

// ProviderAdapter gives a provider client a registry name and an optional
// per-request timeout.
type ProviderAdapter struct {
	provider     generator
	name         string
	providerType string
	timeout      time.Duration
}

func NewProviderAdapter(p generator, name, providerType string, timeout time.Duration) *ProviderAdapter {
	return &ProviderAdapter{provider: p, name: name, providerType: providerType, timeout: timeout}
}

func (a *ProviderAdapter) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = a.name
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.provider.Generate(ctx, req)
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}

func (a *ProviderAdapter) Health(ctx context.Context) error {
	return nil
}
