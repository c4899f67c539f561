package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/autosend/internal/adapter"
	"github.com/harunnryd/autosend/internal/audit"
	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/channel"
	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/idempotency"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/model"
	"github.com/harunnryd/autosend/internal/notify"
	"github.com/harunnryd/autosend/internal/repository/postgres"
	"github.com/harunnryd/autosend/internal/safety"
	"github.com/harunnryd/autosend/internal/staleness"

	"github.com/redis/go-redis/v9"
)

// RuntimeComponents is the fully wired decision pipeline shared by the CLI
// commands and the daemon.
type RuntimeComponents struct {
	Config *config.Config

	DB         *sql.DB
	Jobs       jobs.Store
	Repository *postgres.Repository
	Loader     *postgres.ContextLoader
	Router     model.ModelRouter
	Dispatcher *channel.Dispatcher
	Notifier   *notify.Service
	Executor   *autosend.Executor

	// Decisions is the Executor, wrapped with the audit trail when enabled.
	// Every surface should call this rather than Executor.
	Decisions audit.Decider

	closers []func() error
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config, db *sql.DB, router model.ModelRouter) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	components := &RuntimeComponents{Config: cfg, Router: router}

	if db == nil {
		opened, err := postgres.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db = opened
		components.closers = append(components.closers, opened.Close)
	}
	components.DB = db

	jobStore, err := OpenJobStore(cfg.Store, db)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init job store: %w", err)
	}
	components.Jobs = jobStore

	components.Repository = postgres.NewRepository(db)
	components.Loader = postgres.NewContextLoader(db)

	if components.Router == nil {
		built, err := model.NewModelRouter(ctx, cfg.Models)
		if err != nil {
			components.cleanup()
			return nil, fmt.Errorf("init model router: %w", err)
		}
		components.Router = built
	}

	rules, err := safety.NewRules(cfg.Safety.Rules)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init safety rules: %w", err)
	}
	screen := safety.NewScreen(cfg.Safety.OptOutPhrases, rules)
	evaluator := safety.NewEvaluator(components.Router, cfg.Safety.EvaluatorModel, cfg.Prompts.Evaluator, screen)
	gate := safety.NewGate(components.Router, cfg.Safety.GateModel, cfg.Prompts.Gate, screen)

	senders, err := buildSenders(ctx, cfg.Channels)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init channel senders: %w", err)
	}
	components.Dispatcher = channel.NewDispatcher(components.Repository, senders)

	notifier, err := components.buildNotifier(cfg)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init notifier: %w", err)
	}
	components.Notifier = notifier

	deps := autosend.Deps{
		KillSwitch: autosend.NewEnvKillSwitch(cfg.AutoSend.KillSwitch, cfg.AutoSend.KillSwitchEnv),
		Evaluator:  evaluator,
		Gate:       gate,
		Sender:     components.Dispatcher,
		Jobs:       components.Jobs,
		Validator:  staleness.NewValidator(components.Repository),
		Notifier:   components.Notifier,
		Links:      notify.NewLinks(cfg.Notify.DashboardBaseURL),
		Drafts:     components.Repository,
	}
	if cfg.AutoSend.RevisionEnabled {
		deps.Reviser = safety.NewReviser(components.Router, cfg.Safety.ReviserModel, cfg.Prompts.Reviser, evaluator)
	}

	opts, err := ExecutorOptions(cfg)
	if err != nil {
		components.cleanup()
		return nil, err
	}

	executor, err := autosend.NewExecutor(deps, opts)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init executor: %w", err)
	}
	components.Executor = executor
	components.Decisions = executor

	if cfg.Audit.Enabled {
		trail, err := audit.NewFileLogger(cfg.Audit.Path, cfg.Audit.RedactPatterns)
		if err != nil {
			components.cleanup()
			return nil, fmt.Errorf("init audit trail: %w", err)
		}
		components.Decisions = audit.NewRecordingDecider(executor, trail)
	}

	slog.Info("Runtime components initialized",
		"store", cfg.Store.Driver,
		"notify", cfg.Notify.Transport,
		"channels", len(senders),
		"revision", deps.Reviser != nil,
		"audit", cfg.Audit.Enabled)
	return components, nil
}

// OpenJobStore picks the job store named by store.driver. The postgres
// driver shares the domain database pool.
func OpenJobStore(cfg config.StoreConfig, db *sql.DB) (jobs.Store, error) {
	switch cfg.Driver {
	case "file":
		lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse store lock timeout: %w", err)
		}
		lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
		if err != nil {
			return nil, fmt.Errorf("parse store lock retry: %w", err)
		}
		return jobs.NewFileStore(cfg.FilePath, jobs.FileStoreConfig{LockTimeout: lockTimeout, LockRetry: lockRetry})
	case "postgres", "":
		if db == nil {
			return nil, fmt.Errorf("postgres job store requires a database")
		}
		return jobs.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}

// ExecutorOptions translates the autosend config section into executor options.
func ExecutorOptions(cfg *config.Config) (autosend.Options, error) {
	ac := cfg.AutoSend
	opts := autosend.Options{
		DefaultThreshold:    ac.DefaultThreshold,
		MaxAttempts:         ac.MaxAttempts,
		RevisionEnabled:     ac.RevisionEnabled,
		Reviewer:            cfg.Notify.Reviewer,
		InboundPreviewChars: ac.InboundPreviewChars,
		DraftPreviewChars:   ac.DraftPreviewChars,
	}

	err := config.ParseDurations(
		config.DurationField{Key: "autosend.past_run_buffer", Value: ac.PastRunBuffer, Default: config.DefaultPastRunBuffer, Dst: &opts.PastRunBuffer},
		config.DurationField{Key: "runner.lease_duration", Value: cfg.Runner.LeaseDuration, Default: config.DefaultRunnerLeaseDuration, Dst: &opts.LeaseDuration},
		config.DurationField{Key: "autosend.evaluation_timeout", Value: ac.EvaluationTimeout, Default: config.DefaultEvaluationTimeout, Dst: &opts.Timeouts.Evaluate},
		config.DurationField{Key: "autosend.revision_timeout", Value: ac.RevisionTimeout, Default: config.DefaultRevisionTimeout, Dst: &opts.Timeouts.Revise},
		config.DurationField{Key: "autosend.gate_timeout", Value: ac.GateTimeout, Default: config.DefaultGateTimeout, Dst: &opts.Timeouts.Gate},
		config.DurationField{Key: "autosend.schedule_timeout", Value: ac.ScheduleTimeout, Default: config.DefaultScheduleTimeout, Dst: &opts.Timeouts.Schedule},
		config.DurationField{Key: "autosend.validation_timeout", Value: ac.ValidationTimeout, Default: config.DefaultValidationTimeout, Dst: &opts.Timeouts.Validate},
		config.DurationField{Key: "autosend.dispatch_timeout", Value: ac.DispatchTimeout, Default: config.DefaultDispatchTimeout, Dst: &opts.Timeouts.Dispatch},
		config.DurationField{Key: "autosend.notify_timeout", Value: ac.NotifyTimeout, Default: config.DefaultNotifyTimeout, Dst: &opts.Timeouts.Notify},
	)
	if err != nil {
		return autosend.Options{}, err
	}

	return opts, nil
}

func buildSenders(ctx context.Context, cfg config.ChannelsConfig) (map[autosend.Channel]channel.Sender, error) {
	senders := make(map[autosend.Channel]channel.Sender)

	if strings.TrimSpace(cfg.Email.FromAddress) != "" {
		email, err := channel.NewEmailSender(ctx, cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		senders[autosend.ChannelEmail] = email
	}

	webhooks := map[autosend.Channel]config.WebhookConfig{
		autosend.ChannelSMS:    cfg.SMS,
		autosend.ChannelSocial: cfg.Social,
	}
	for ch, wc := range webhooks {
		if strings.TrimSpace(wc.URL) == "" {
			continue
		}
		sender, err := channel.NewWebhookSender(wc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ch, err)
		}
		senders[ch] = sender
	}

	if len(senders) == 0 {
		slog.Warn("No channel senders configured; every dispatch will fail closed")
	}
	return senders, nil
}

func (r *RuntimeComponents) buildNotifier(cfg *config.Config) (*notify.Service, error) {
	transport, err := adapter.NewOutputAdapter(cfg.Notify.Transport, cfg.Adapters)
	if err != nil {
		return nil, err
	}

	ttl, err := config.DurationOrDefault(cfg.Notify.DedupeTTL, config.DefaultNotifyDedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("parse notify dedupe ttl: %w", err)
	}

	var dedupe idempotency.Store
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r.closers = append(r.closers, client.Close)
		dedupe = idempotency.NewRedisStore(client)
	} else {
		fileStore, err := idempotency.NewFileStore(cfg.Notify.DedupePath)
		if err != nil {
			return nil, err
		}
		dedupe = fileStore
	}

	return notify.NewService(transport, dedupe, ttl), nil
}

// Close releases the resources the runtime opened itself. A pool passed in
// through WithDB stays open.
func (r *RuntimeComponents) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *RuntimeComponents) cleanup() {
	if err := r.Close(); err != nil {
		slog.Warn("Failed to release runtime resources", "error", err)
	}
}
