package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"macrobench/domain/backtest"
	"macrobench/internal/config"
	"macrobench/internal/errors"
	"macrobench/ports"
)

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com",
	"openrouter": "https://openrouter.ai/api/v1",
}

// Registry resolves forecaster IDs into provider backends. Each forecaster
// gets its handle once at configuration time; the dispatch on the provider
// prefix never happens again per call.
type Registry struct {
	cfg      config.LLMConfig
	client   *http.Client
	limiters map[string]*rate.Limiter
	baseURLs map[string]string
	logger   zerolog.Logger
}

// NewRegistry creates the registry with one shared HTTP client and one rate
// limiter per provider.
func NewRegistry(cfg config.LLMConfig, logger zerolog.Logger) *Registry {
	baseURLs := make(map[string]string, len(defaultBaseURLs))
	for k, v := range defaultBaseURLs {
		baseURLs[k] = v
	}
	return &Registry{
		cfg: cfg,
		// The per-request context deadline is authoritative; the client
		// timeout is a backstop slightly above it.
		client:   &http.Client{Timeout: cfg.InvokeTimeout + 5*time.Second},
		limiters: make(map[string]*rate.Limiter),
		baseURLs: baseURLs,
		logger:   logger.With().Str("component", "llm_registry").Logger(),
	}
}

// SetBaseURL overrides a provider endpoint, mainly for tests and
// self-hosted gateways.
func (r *Registry) SetBaseURL(provider, url string) {
	r.baseURLs[provider] = url
}

// ResolveForecaster builds the retry-wrapped invoker handle for one
// forecaster.
func (r *Registry) ResolveForecaster(id backtest.ForecasterID, credentials map[string]string) (ports.ModelInvoker, error) {
	invoker, err := r.resolve(id, credentials)
	if err != nil {
		return nil, err
	}
	return WithRetry(invoker, r.logger.With().Str("model", id.String()).Logger()), nil
}

// ResolveJudge builds the single-attempt invoker handle for the judge. Judge
// calls are never retried.
func (r *Registry) ResolveJudge(id backtest.ForecasterID, credentials map[string]string) (ports.ModelInvoker, error) {
	return r.resolve(id, credentials)
}

func (r *Registry) resolve(id backtest.ForecasterID, credentials map[string]string) (ports.ModelInvoker, error) {
	provider := id.Provider()
	baseURL, ok := r.baseURLs[provider]
	if !ok {
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported provider %q in %s", provider, id))
	}
	apiKey := credentials[provider]
	if apiKey == "" {
		return nil, errors.AuthError(fmt.Sprintf("no credentials configured for provider %q", provider))
	}

	backend := httpBackend{
		provider: provider,
		model:    id.Model(),
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   r.client,
		limiter:  r.limiter(provider),
		timeout:  r.cfg.InvokeTimeout,
	}
	r.logger.Debug().Str("forecaster", id.String()).Str("provider", provider).Msg("resolved model backend")

	if provider == "anthropic" {
		return &anthropicBackend{httpBackend: backend}, nil
	}
	return &openAIBackend{httpBackend: backend}, nil
}

func (r *Registry) limiter(provider string) *rate.Limiter {
	if l, ok := r.limiters[provider]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)
	r.limiters[provider] = l
	return l
}
