package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/autosend/internal/config"
	apperrors "github.com/harunnryd/autosend/internal/errors"
	"github.com/harunnryd/autosend/internal/logger"
	"github.com/harunnryd/autosend/internal/model/contract"
	anthropicProvider "github.com/harunnryd/autosend/internal/model/providers/anthropic"
	bedrockProvider "github.com/harunnryd/autosend/internal/model/providers/bedrock"
	geminiProvider "github.com/harunnryd/autosend/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/autosend/internal/model/providers/openai"
)

// ModelRouter is what the safety evaluator, reviser and gate complete through.
type ModelRouter interface {
	Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	ListModels() []string
	Health(ctx context.Context) error
}

// DefaultModelRouter implements ModelRouter interface
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewModelRouter creates a router with one provider per registry entry
func NewModelRouter(ctx context.Context, cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(ctx); err != nil {
		return nil, err
	}

	return router, nil
}

// NewRouterWithProviders builds a router over already constructed providers.
func NewRouterWithProviders(cfg config.ModelsConfig, providers ...Provider) *DefaultModelRouter {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		router.providers[p.Name()] = p
	}
	return router
}

// Route routes a completion request to the appropriate provider. An empty
// model name means the configured default.
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	traceID := logger.GetTraceID(ctx)
	if model == "" {
		model = r.cfg.Default
	}

	slog.Debug("Routing completion request", "model", model, "trace_id", traceID)

	provider, resolved, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.executeWithFallback(ctx, resolved, provider, req, traceID)
}

// ListModels returns all registered model names
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return apperrors.NotFound("no model providers registered")
	}

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return apperrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

func (r *DefaultModelRouter) initProviders(ctx context.Context) error {
	for _, entry := range r.cfg.Registry {
		provider, err := createProvider(ctx, entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return apperrors.Internal("no providers initialized")
	}

	return nil
}

// resolveProvider resolves a provider by model name, falling back to the
// configured fallback model when the name is unknown.
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", apperrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, exists := r.providers[model]; exists {
		return provider, model, nil
	}

	slog.Warn("Model not found", "model", model)
	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallbackProvider, ok := r.providers[r.cfg.Fallback]; ok {
			slog.Info("Trying fallback model", "model", model, "fallback", r.cfg.Fallback)
			return fallbackProvider, r.cfg.Fallback, nil
		}
	}

	return nil, "", apperrors.NotFound(fmt.Sprintf("model %s not found", model))
}

func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, traceID string) (*contract.CompletionResponse, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultModelMaxFallbackAttempts
	}

	currentModel := model
	currentProvider := provider
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(ctx.Err(), "request execution cancelled")
		default:
		}

		attemptReq := req
		attemptReq.Model = currentModel

		resp, err := currentProvider.Generate(ctx, attemptReq)
		if err == nil {
			if resp.Model == "" {
				resp.Model = currentModel
			}
			slog.Debug("Request completed", "model", currentModel, "attempt", attempt+1, "trace_id", traceID)
			return resp, nil
		}
		lastErr = err

		slog.Warn("Provider request failed", "model", currentModel, "attempt", attempt+1, "error", err, "trace_id", traceID)

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			break
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			break
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, apperrors.Wrap(lastErr, "provider request failed")
}

// createProvider creates a provider instance based on registry entry
func createProvider(ctx context.Context, entry config.ModelRegistry) (Provider, error) {
	timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultModelRequestTimeout)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for OpenAI provider")
		}

		return NewProviderAdapter(openaiProvider.New(entry.APIKey, baseURL), entry.Name, "openai", timeout), nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return NewProviderAdapter(openaiProvider.New(apiKey, baseURL), entry.Name, "ollama", timeout), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Anthropic provider")
		}

		return NewProviderAdapter(anthropicProvider.New(entry.APIKey, entry.BaseURL), entry.Name, "anthropic", timeout), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(ctx, entry.APIKey)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to create Gemini provider")
		}

		return NewProviderAdapter(provider, entry.Name, "gemini", timeout), nil

	case "bedrock":
		region := entry.Region
		if region == "" {
			region = config.DefaultBedrockRegion
		}

		provider, err := bedrockProvider.New(ctx, region)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to create Bedrock provider")
		}

		return NewProviderAdapter(provider, entry.Name, "bedrock", timeout), nil

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
