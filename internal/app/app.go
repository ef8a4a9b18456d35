// Package app assembles the adapters and usecases into a running system.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hireloop/hireloop/internal/adapter/ai"
	"github.com/hireloop/hireloop/internal/adapter/ai/stub"
	"github.com/hireloop/hireloop/internal/adapter/calendar/gcal"
	"github.com/hireloop/hireloop/internal/adapter/gmail"
	"github.com/hireloop/hireloop/internal/adapter/httpserver"
	"github.com/hireloop/hireloop/internal/adapter/notify/twilio"
	"github.com/hireloop/hireloop/internal/adapter/observability"
	"github.com/hireloop/hireloop/internal/adapter/repo/postgres"
	"github.com/hireloop/hireloop/internal/config"
	"github.com/hireloop/hireloop/internal/domain"
	"github.com/hireloop/hireloop/internal/usecase"
)

// App holds everything a binary needs after wiring.
type App struct {
	Cfg      config.Config
	Rules    config.Rules
	Log      *slog.Logger
	Metrics  *observability.Metrics
	Server   *httpserver.Server
	Cycle    *usecase.Cycle
	Workflow *usecase.Workflow

	pool     *pgxpool.Pool
	rdb      *redis.Client
	shutdown func(context.Context) error
}

// New wires the whole system from configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := observability.NewLogger(cfg.LogLevel, cfg.IsDev())
	slog.SetDefault(log)

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, "hireloop")
	if err != nil {
		return nil, err
	}

	pool, err := postgres.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

	candidates := postgres.NewCandidatesRepo(pool)
	timeline := postgres.NewTimelineRepo(pool)
	retry := postgres.NewRetryRepo(pool)
	processed := postgres.NewProcessedRepo(pool)

	var client domain.AIClient
	if cfg.IsDev() && cfg.GeminiAPIKey == "" && cfg.GroqAPIKey == "" &&
		cfg.GithubToken == "" && cfg.OpenRouterAPIKey == "" {
		log.Warn("no ai providers configured, using stub client")
		client = stub.New()
	} else {
		cooldown := ai.NewCooldownCache(rdb, time.Duration(cfg.CooldownSecs)*time.Second)
		client = ai.NewRouter(cfg, cooldown, log, metrics)
	}
	fetcher := &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	assistant := ai.NewTasks(client, fetcher, log)

	mailer := gmail.New(cfg.GmailToken, cfg.GmailUser, cfg.GmailLabel, "", log)
	wa := twilio.New(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom, "")
	calendar := gcal.New(cfg.CalendarToken, cfg.CalendarID, "")

	notifier := usecase.NewNotifier(wa, retry, log, metrics)
	workflow := usecase.NewWorkflow(candidates, timeline, mailer, notifier,
		assistant, calendar, rules, cfg, log, metrics)
	dupes := usecase.NewDuplicateChecker(candidates, rules, log)
	portal := usecase.NewPortal(candidates, calendar, workflow, notifier, mailer, rules, log)
	inbox := usecase.NewInbox(mailer, candidates, timeline, processed, dupes,
		workflow, assistant, rules, cfg.AdminEmail, mailer, log, metrics)
	exporter := usecase.NewExporter(candidates, mailer, cfg.AdminEmail, log)
	cycle := usecase.NewCycle(inbox, candidates, timeline, retry, notifier,
		workflow, mailer, exporter, rules, log, metrics)

	server := httpserver.New(candidates, timeline, dupes, workflow, portal,
		cycle, cfg.AdminAPIKey, log)

	return &App{
		Cfg: cfg, Rules: rules, Log: log, Metrics: metrics,
		Server: server, Cycle: cycle, Workflow: workflow,
		pool: pool, rdb: rdb, shutdown: shutdownTracing,
	}, nil
}

// Close releases connections and flushes traces.
func (a *App) Close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.Log.Warn("trace shutdown failed", "error", err)
		}
	}
	if err := a.rdb.Close(); err != nil {
		a.Log.Warn("redis close failed", "error", err)
	}
	a.pool.Close()
}
