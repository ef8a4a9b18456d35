package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/hireloop/internal/adapter/observability"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
)

// Router tries providers in a fixed order and returns the first success.
// Providers with no API key are never constructed; providers on Redis
// cooldown are skipped for the round.
type Router struct {
	providers []Provider
	cooldown  *CooldownCache
	log       *slog.Logger
	metrics   *observability.Metrics
}

// NewRouter builds the fallback chain from configuration. Order is fixed:
// Gemini, GitHub Models, Groq, OpenRouter.
func NewRouter(cfg config.Config, cooldown *CooldownCache, log *slog.Logger, m *observability.Metrics) *Router {
	client := &http.Client{
		Timeout:   time.Duration(cfg.AITimeoutSecs) * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var providers []Provider
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, "", client))
	}
	if cfg.GithubToken != "" {
		providers = append(providers,
			NewOpenAICompat("github", cfg.GithubToken, cfg.GithubModel, "https://models.github.ai/inference", client))
	}
	if cfg.GroqAPIKey != "" {
		providers = append(providers,
			NewOpenAICompat("groq", cfg.GroqAPIKey, cfg.GroqModel, "https://api.groq.com/openai/v1", client))
	}
	if cfg.OpenRouterAPIKey != "" {
		providers = append(providers,
			NewOpenAICompat("openrouter", cfg.OpenRouterAPIKey, cfg.OpenRouterModel, "https://openrouter.ai/api/v1", client))
	}
	return &Router{providers: providers, cooldown: cooldown, log: log, metrics: m}
}

// NewRouterWith builds a router over explicit providers, used by tests.
func NewRouterWith(providers []Provider, cooldown *CooldownCache, log *slog.Logger, m *observability.Metrics) *Router {
	return &Router{providers: providers, cooldown: cooldown, log: log, metrics: m}
}

// Call walks the provider chain. Any per-provider failure moves to the next;
// only full exhaustion is an error to the caller.
func (r *Router) Call(ctx domain.Context, prompt, system string) (string, error) {
	if len(r.providers) == 0 {
		return "", fmt.Errorf("no providers configured: %w", domain.ErrProviderExhausted)
	}

	var lastErr error
	for _, p := range r.providers {
		if r.cooldown != nil {
			cooling, err := r.cooldown.CoolingDown(ctx, p.Name())
			if err != nil {
				r.log.Warn("cooldown lookup failed", "provider", p.Name(), "error", err)
			} else if cooling {
				r.log.Debug("provider on cooldown, skipping", "provider", p.Name())
				continue
			}
		}

		start := time.Now()
		out, err := p.Complete(ctx, prompt, system)
		if r.metrics != nil {
			r.metrics.AIProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			r.observe(p.Name(), "ok")
			if r.cooldown != nil {
				if cerr := r.cooldown.Clear(ctx, p.Name()); cerr != nil {
					r.log.Warn("cooldown clear failed", "provider", p.Name(), "error", cerr)
				}
			}
			return out, nil
		}

		lastErr = err
		r.observe(p.Name(), "error")
		r.log.Warn("ai provider failed, trying next", "provider", p.Name(), "error", err)

		if errors.Is(err, errRateLimited) && r.cooldown != nil {
			if cerr := r.cooldown.Mark(ctx, p.Name()); cerr != nil {
				r.log.Warn("cooldown mark failed", "provider", p.Name(), "error", cerr)
			}
		}
	}
	return "", fmt.Errorf("%w: %w", domain.ErrProviderExhausted, lastErr)
}

func (r *Router) observe(provider, outcome string) {
	if r.metrics != nil {
		r.metrics.AIProviderCalls.WithLabelValues(provider, outcome).Inc()
	}
}
