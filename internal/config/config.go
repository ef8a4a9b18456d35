// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config is the full runtime configuration. Values come from the environment
// with sane development defaults; secrets have no defaults on purpose.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Postgres
	DBHost    string `env:"DB_HOST" envDefault:"localhost"`
	DBPort    int    `env:"DB_PORT" envDefault:"5432"`
	DBUser    string `env:"DB_USER" envDefault:"hireloop"`
	DBPass    string `env:"DB_PASSWORD" envDefault:"hireloop"`
	DBName    string `env:"DB_NAME" envDefault:"hireloop"`
	DBSSLMode string `env:"DB_SSLMODE" envDefault:"disable"`

	// Redis (provider cooldowns)
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// AI providers: a missing key disables that provider.
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GithubToken      string `env:"GITHUB_MODELS_TOKEN"`
	GithubModel      string `env:"GITHUB_MODELS_MODEL" envDefault:"gpt-4o-mini"`
	GroqAPIKey       string `env:"GROQ_API_KEY"`
	GroqModel        string `env:"GROQ_MODEL" envDefault:"llama-3.3-70b-versatile"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel  string `env:"OPENROUTER_MODEL" envDefault:"meta-llama/llama-3.3-70b-instruct:free"`
	AITimeoutSecs    int    `env:"AI_TIMEOUT_SECS" envDefault:"60"`
	CooldownSecs     int    `env:"AI_COOLDOWN_SECS" envDefault:"300"`

	// Gmail / Calendar (OAuth bearer supplied by the deployment)
	GmailToken      string `env:"GMAIL_TOKEN"`
	GmailUser       string `env:"GMAIL_USER" envDefault:"me"`
	GmailLabel      string `env:"GMAIL_PROCESSED_LABEL" envDefault:"hireloop-processed"`
	CalendarToken   string `env:"GCAL_TOKEN"`
	CalendarID      string `env:"GCAL_CALENDAR_ID" envDefault:"primary"`
	InterviewerMail string `env:"INTERVIEWER_EMAIL"`

	// Twilio WhatsApp
	TwilioSID   string `env:"TWILIO_ACCOUNT_SID"`
	TwilioToken string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFrom  string `env:"TWILIO_WHATSAPP_FROM"`

	// Admin
	AdminEmail  string `env:"ADMIN_EMAIL"`
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// Portal
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	// Hiring rules file
	RulesPath string `env:"RULES_PATH" envDefault:"configs/rules.yaml"`

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses configuration from the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config parse: %w", err)
	}
	return c, nil
}

// DSN builds the pgx connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func (c Config) IsDev() bool  { return strings.EqualFold(c.AppEnv, "dev") }
func (c Config) IsProd() bool { return strings.EqualFold(c.AppEnv, "prod") }
func (c Config) IsTest() bool { return strings.EqualFold(c.AppEnv, "test") }
