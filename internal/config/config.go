package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/autosend/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	AutoSend AutoSendConfig `koanf:"autosend"`
	Safety   SafetyConfig   `koanf:"safety"`
	Models   ModelsConfig   `koanf:"models"`
	Prompts  PromptsConfig  `koanf:"prompts"`
	Store    StoreConfig    `koanf:"store"`
	Redis    RedisConfig    `koanf:"redis"`
	Notify   NotifyConfig   `koanf:"notify"`
	Adapters AdaptersConfig `koanf:"adapters"`
	Channels ChannelsConfig `koanf:"channels"`
	Runner   RunnerConfig   `koanf:"runner"`
	Ingress  IngressConfig  `koanf:"ingress"`
	Daemon   DaemonConfig   `koanf:"daemon"`
	Audit    AuditConfig    `koanf:"audit"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

// AutoSendConfig holds the decision pipeline knobs. KillSwitch and the
// environment variable named by KillSwitchEnv are both consulted on every
// decision.
type AutoSendConfig struct {
	KillSwitch          bool    `koanf:"kill_switch"`
	KillSwitchEnv       string  `koanf:"kill_switch_env"`
	DefaultThreshold    float64 `koanf:"default_threshold"`
	PastRunBuffer       string  `koanf:"past_run_buffer"`
	MaxAttempts         int     `koanf:"max_attempts"`
	RevisionEnabled     bool    `koanf:"revision_enabled"`
	EvaluationTimeout   string  `koanf:"evaluation_timeout"`
	RevisionTimeout     string  `koanf:"revision_timeout"`
	GateTimeout         string  `koanf:"gate_timeout"`
	ScheduleTimeout     string  `koanf:"schedule_timeout"`
	ValidationTimeout   string  `koanf:"validation_timeout"`
	DispatchTimeout     string  `koanf:"dispatch_timeout"`
	NotifyTimeout       string  `koanf:"notify_timeout"`
	InboundPreviewChars int     `koanf:"inbound_preview_chars"`
	DraftPreviewChars   int     `koanf:"draft_preview_chars"`
}

type SafetyConfig struct {
	EvaluatorModel string       `koanf:"evaluator_model"`
	ReviserModel   string       `koanf:"reviser_model"`
	GateModel      string       `koanf:"gate_model"`
	OptOutPhrases  []string     `koanf:"opt_out_phrases"`
	Rules          []RuleConfig `koanf:"rules"`
}

// RuleConfig is a CEL expression that hard-blocks automation when it
// evaluates to true.
type RuleConfig struct {
	Name  string `koanf:"name"`
	Block string `koanf:"block"`
	Expr  string `koanf:"expr"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name"`
	Provider       string `koanf:"provider"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Region         string `koanf:"region"`
	RequestTimeout string `koanf:"request_timeout"`
}

type PromptsConfig struct {
	Evaluator EvaluatorPromptConfig `koanf:"evaluator"`
	Reviser   ReviserPromptConfig   `koanf:"reviser"`
	Gate      GatePromptConfig      `koanf:"gate"`
}

type EvaluatorPromptConfig struct {
	System string `koanf:"system"`
	Output string `koanf:"output"`
}

type ReviserPromptConfig struct {
	System      string `koanf:"system"`
	Instruction string `koanf:"instruction"`
}

type GatePromptConfig struct {
	System string `koanf:"system"`
	Output string `koanf:"output"`
}

type StoreConfig struct {
	Driver          string `koanf:"driver"`
	DSN             string `koanf:"dsn"`
	FilePath        string `koanf:"file_path"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
	MigrateOnStart  bool   `koanf:"migrate_on_start"`
	LockTimeout     string `koanf:"lock_timeout"`
	LockRetry       string `koanf:"lock_retry"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type NotifyConfig struct {
	Transport        string `koanf:"transport"`
	Reviewer         string `koanf:"reviewer"`
	DedupeTTL        string `koanf:"dedupe_ttl"`
	DedupePath       string `koanf:"dedupe_path"`
	DashboardBaseURL string `koanf:"dashboard_base_url"`
}

type AdaptersConfig struct {
	Slack    SlackConfig    `koanf:"slack"`
	Telegram TelegramConfig `koanf:"telegram"`
}

type SlackConfig struct {
	BotToken string `koanf:"bot_token"`
	APIURL   string `koanf:"api_url"`
}

type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	APIURL   string `koanf:"api_url"`
}

type ChannelsConfig struct {
	Email  EmailConfig   `koanf:"email"`
	SMS    WebhookConfig `koanf:"sms"`
	Social WebhookConfig `koanf:"social"`
}

type EmailConfig struct {
	Region           string `koanf:"region"`
	AccessKeyID      string `koanf:"access_key_id"`
	SecretAccessKey  string `koanf:"secret_access_key"`
	FromAddress      string `koanf:"from_address"`
	FromName         string `koanf:"from_name"`
	ConfigurationSet string `koanf:"configuration_set"`
}

type WebhookConfig struct {
	URL       string `koanf:"url"`
	AuthToken string `koanf:"auth_token"`
	Timeout   string `koanf:"timeout"`
}

type RunnerConfig struct {
	Enabled              bool   `koanf:"enabled"`
	Schedule             string `koanf:"schedule"`
	BatchSize            int    `koanf:"batch_size"`
	Concurrency          int    `koanf:"concurrency"`
	LeaseDuration        string `koanf:"lease_duration"`
	JobTimeout           string `koanf:"job_timeout"`
	ShutdownTimeout      string `koanf:"shutdown_timeout"`
	InFlightPollInterval string `koanf:"in_flight_poll_interval"`
}

type IngressConfig struct {
	AMQP AMQPConfig `koanf:"amqp"`
}

type AMQPConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	Exchange       string `koanf:"exchange"`
	Queue          string `koanf:"queue"`
	BindingKey     string `koanf:"binding_key"`
	Prefetch       int    `koanf:"prefetch"`
	ReconnectDelay string `koanf:"reconnect_delay"`
}

// AuditConfig controls the JSONL decision trail. RedactPatterns are applied
// to reasons and error messages before they are written.
type AuditConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Path           string   `koanf:"path"`
	RedactPatterns []string `koanf:"redact_patterns"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
}

const (
	DefaultServerPort                 = 8080
	DefaultServerLogLevel             = "info"
	DefaultServerReadTimeout          = "10s"
	DefaultServerWriteTimeout         = "60s"
	DefaultServerIdleTimeout          = "60s"
	DefaultServerShutdownTimeout      = "5s"
	DefaultKillSwitchEnv              = "AUTOSEND_KILL_SWITCH"
	DefaultThreshold                  = 0.9
	DefaultPastRunBuffer              = "30s"
	DefaultMaxAttempts                = 3
	DefaultRevisionEnabled            = true
	DefaultEvaluationTimeout          = "20s"
	DefaultRevisionTimeout            = "45s"
	DefaultGateTimeout                = "15s"
	DefaultScheduleTimeout            = "5s"
	DefaultValidationTimeout          = "5s"
	DefaultDispatchTimeout            = "30s"
	DefaultNotifyTimeout              = "10s"
	DefaultInboundPreviewChars        = 500
	DefaultDraftPreviewChars          = 300
	DefaultModelDefault               = "gpt-4o-mini"
	DefaultModelFallback              = "claude-3-5-haiku-latest"
	DefaultModelMaxFallbackAttempts   = 2
	DefaultOpenAIBaseURL              = "https://api.openai.com/v1"
	DefaultOllamaBaseURL              = "http://localhost:11434/v1"
	DefaultOllamaAPIKey               = "ollama"
	DefaultBedrockRegion              = "us-east-1"
	DefaultModelRequestTimeout        = "60s"
	DefaultEvaluatorSystemPrompt      = "You review outbound sales replies before they are sent automatically on behalf of a human. Judge whether the candidate reply is accurate, on-topic, polite and safe to send without a human looking at it."
	DefaultEvaluatorOutputPrompt      = "Return only a JSON object with:\n- \"confidence\": number between 0 and 1\n- \"safe_to_send\": boolean\n- \"requires_human_review\": boolean\n- \"reason\": short string\n- \"hard_block\": one of \"\", \"opt_out\", \"blacklist\", \"automated_reply\"\nDo not include markdown or explanations."
	DefaultReviserSystemPrompt        = "You rewrite outbound sales replies so they can be sent safely without human review."
	DefaultReviserInstructionPrompt   = "Rewrite the candidate reply to address the reviewer feedback. Keep the same intent, language and sign-off. Return only the rewritten reply text."
	DefaultGateSystemPrompt           = "You decide whether an automatic reply should be sent to the latest inbound message of a conversation."
	DefaultGateOutputPrompt           = "Return only a JSON object with:\n- \"should_reply\": boolean\n- \"reason\": short snake_case string"
	DefaultStoreDriver                = "postgres"
	DefaultStoreMaxOpenConns          = 10
	DefaultStoreMaxIdleConns          = 5
	DefaultStoreConnMaxLifetime       = "30m"
	DefaultStoreMigrateOnStart        = true
	DefaultStoreLockTimeout           = "10s"
	DefaultStoreLockRetry             = "50ms"
	DefaultNotifyTransport            = "slack"
	DefaultNotifyDedupeTTL            = "720h"
	DefaultNotifyDashboardBaseURL     = "http://localhost:3000"
	DefaultWebhookTimeout             = "15s"
	DefaultRunnerEnabled              = true
	DefaultRunnerSchedule             = "@every 15s"
	DefaultRunnerBatchSize            = 50
	DefaultRunnerConcurrency          = 4
	DefaultRunnerLeaseDuration        = "5m"
	DefaultRunnerJobTimeout           = "2m"
	DefaultRunnerShutdownTimeout      = "30s"
	DefaultRunnerInFlightPollInterval = "100ms"
	DefaultAMQPExchange               = "autosend.events"
	DefaultAMQPQueue                  = "autosend.draft_ready"
	DefaultAMQPBindingKey             = "draft.ready"
	DefaultAMQPPrefetch               = 10
	DefaultAMQPReconnectDelay         = "5s"
	DefaultDaemonShutdownTimeout      = "30s"
	DefaultDaemonHealthCheckInterval  = "30s"
	DefaultDaemonStartupShutdownTime  = "10s"
	DefaultAuditEnabled               = true

	envPrefix = "AUTOSEND_"
)

var DefaultOptOutPhrases = []string{
	"unsubscribe",
	"stop emailing",
	"stop messaging",
	"remove me",
	"take me off",
	"do not contact",
	"don't contact",
	"opt out",
	"opt-out",
	"not interested, stop",
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                     DefaultServerPort,
		"server.log_level":                DefaultServerLogLevel,
		"server.read_timeout":             DefaultServerReadTimeout,
		"server.write_timeout":            DefaultServerWriteTimeout,
		"server.idle_timeout":             DefaultServerIdleTimeout,
		"server.shutdown_timeout":         DefaultServerShutdownTimeout,
		"autosend.kill_switch":            false,
		"autosend.kill_switch_env":        DefaultKillSwitchEnv,
		"autosend.default_threshold":      DefaultThreshold,
		"autosend.past_run_buffer":        DefaultPastRunBuffer,
		"autosend.max_attempts":           DefaultMaxAttempts,
		"autosend.revision_enabled":       DefaultRevisionEnabled,
		"autosend.evaluation_timeout":     DefaultEvaluationTimeout,
		"autosend.revision_timeout":       DefaultRevisionTimeout,
		"autosend.gate_timeout":           DefaultGateTimeout,
		"autosend.schedule_timeout":       DefaultScheduleTimeout,
		"autosend.validation_timeout":     DefaultValidationTimeout,
		"autosend.dispatch_timeout":       DefaultDispatchTimeout,
		"autosend.notify_timeout":         DefaultNotifyTimeout,
		"autosend.inbound_preview_chars":  DefaultInboundPreviewChars,
		"autosend.draft_preview_chars":    DefaultDraftPreviewChars,
		"safety.opt_out_phrases":          DefaultOptOutPhrases,
		"models.default":                  DefaultModelDefault,
		"models.fallback":                 DefaultModelFallback,
		"models.max_fallback_attempts":    DefaultModelMaxFallbackAttempts,
		"prompts.evaluator.system":        DefaultEvaluatorSystemPrompt,
		"prompts.evaluator.output":        DefaultEvaluatorOutputPrompt,
		"prompts.reviser.system":          DefaultReviserSystemPrompt,
		"prompts.reviser.instruction":     DefaultReviserInstructionPrompt,
		"prompts.gate.system":             DefaultGateSystemPrompt,
		"prompts.gate.output":             DefaultGateOutputPrompt,
		"store.driver":                    DefaultStoreDriver,
		"store.file_path":                 filepath.Join(os.Getenv("HOME"), ".autosend", "jobs"),
		"store.max_open_conns":            DefaultStoreMaxOpenConns,
		"store.max_idle_conns":            DefaultStoreMaxIdleConns,
		"store.conn_max_lifetime":         DefaultStoreConnMaxLifetime,
		"store.migrate_on_start":          DefaultStoreMigrateOnStart,
		"store.lock_timeout":              DefaultStoreLockTimeout,
		"store.lock_retry":                DefaultStoreLockRetry,
		"notify.transport":                DefaultNotifyTransport,
		"notify.dedupe_ttl":               DefaultNotifyDedupeTTL,
		"notify.dedupe_path":              filepath.Join(os.Getenv("HOME"), ".autosend", "notify_dedupe.json"),
		"notify.dashboard_base_url":       DefaultNotifyDashboardBaseURL,
		"channels.email.region":           DefaultBedrockRegion,
		"channels.sms.timeout":            DefaultWebhookTimeout,
		"channels.social.timeout":         DefaultWebhookTimeout,
		"runner.enabled":                  DefaultRunnerEnabled,
		"runner.schedule":                 DefaultRunnerSchedule,
		"runner.batch_size":               DefaultRunnerBatchSize,
		"runner.concurrency":              DefaultRunnerConcurrency,
		"runner.lease_duration":           DefaultRunnerLeaseDuration,
		"runner.job_timeout":              DefaultRunnerJobTimeout,
		"runner.shutdown_timeout":         DefaultRunnerShutdownTimeout,
		"runner.in_flight_poll_interval":  DefaultRunnerInFlightPollInterval,
		"ingress.amqp.exchange":           DefaultAMQPExchange,
		"ingress.amqp.queue":              DefaultAMQPQueue,
		"ingress.amqp.binding_key":        DefaultAMQPBindingKey,
		"ingress.amqp.prefetch":           DefaultAMQPPrefetch,
		"ingress.amqp.reconnect_delay":    DefaultAMQPReconnectDelay,
		"daemon.shutdown_timeout":         DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":    DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout": DefaultDaemonStartupShutdownTime,
		"audit.enabled":                   DefaultAuditEnabled,
		"audit.path":                      filepath.Join(os.Getenv("HOME"), ".autosend", "decisions.log"),
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "openai"},
			{Name: DefaultModelFallback, Provider: "anthropic"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".autosend", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables: AUTOSEND_SERVER__LOG_LEVEL -> server.log_level
	k.Load(env.Provider(envPrefix, ".", envKey), nil)

	// CLI Flags
	if cmd != nil {
		loadFlags(k, cmd.Flags())
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	injectAPIKey(&cfg, "openai", os.Getenv("OPENAI_API_KEY"))
	injectAPIKey(&cfg, "anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	injectAPIKey(&cfg, "gemini", os.Getenv("GEMINI_API_KEY"))
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFlags overlays only flags the user actually set, so a flag default
// never masks a value from the file or the environment.
func loadFlags(k *koanf.Koanf, flags *pflag.FlagSet) {
	k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed {
			return "", nil
		}
		return f.Name, posflag.FlagVal(flags, f)
	}), nil)
}

func envKey(s string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(trimmed, "__", ".")
}

func injectAPIKey(cfg *Config, provider string, key string) {
	if key == "" {
		return
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == provider && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

// Validate rejects configurations the pipeline cannot run safely with.
func (c *Config) Validate() error {
	if c.AutoSend.DefaultThreshold < 0 || c.AutoSend.DefaultThreshold > 1 {
		return fmt.Errorf("autosend.default_threshold must be within [0,1], got %v", c.AutoSend.DefaultThreshold)
	}
	if c.AutoSend.MaxAttempts < 1 {
		return fmt.Errorf("autosend.max_attempts must be >= 1, got %d", c.AutoSend.MaxAttempts)
	}

	switch c.Store.Driver {
	case "postgres", "file":
	default:
		return fmt.Errorf("store.driver must be postgres or file, got %q", c.Store.Driver)
	}

	switch c.Notify.Transport {
	case "slack", "telegram", "null":
	default:
		return fmt.Errorf("notify.transport must be slack, telegram or null, got %q", c.Notify.Transport)
	}

	for _, rule := range c.Safety.Rules {
		if strings.TrimSpace(rule.Expr) == "" {
			return fmt.Errorf("safety rule %q has empty expr", rule.Name)
		}
	}

	return nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	return pathutil.ExpandInPlace(&cfg.Store.FilePath, &cfg.Notify.DedupePath, &cfg.Audit.Path)
}
