package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/analytics"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/llm"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/scheduler"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/siteconfig"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/storage"
	"github.com/tw20th/kangaroo-post-sub000/internal/infrastructure/telegram"
	"github.com/tw20th/kangaroo-post-sub000/internal/logging"
	"github.com/tw20th/kangaroo-post-sub000/internal/seeding"
	"github.com/tw20th/kangaroo-post-sub000/internal/topics"
	"github.com/tw20th/kangaroo-post-sub000/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	repo      *storage.SQLRepository
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New opens the record store and builds the pipeline from configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	policy := topics.NewPolicy(policyOptions(cfg.Selection))
	picker := topics.NewPicker(topics.PickerDeps{
		Candidates: repo,
		Themes:     siteconfig.NewThemeSource(cfg.Sites),
		Policy:     policy,
		Logger:     baseLogger.With("component", "picker"),
	})

	deps := usecase.PipelineDeps{
		Sites:       cfg.Sites,
		Picker:      picker,
		Seeder:      siteconfig.NewSeeder(seeding.NewRegistry(), cfg.Sites, repo, baseLogger.With("component", "seeder")),
		Candidates:  repo,
		Scores:      repo,
		Drafts:      repo,
		Usage:       repo,
		Logger:      baseLogger.With("component", "pipeline"),
		AvoidWindow: cfg.Selection.AvoidWindow(),
		Concurrency: cfg.Scheduler.Concurrency,
		MaxAttempts: cfg.Scheduler.MaxAttempts,
	}

	if cfg.Telemetry.Endpoint != "" {
		deps.Telemetry = analytics.NewClient(cfg.Telemetry.Endpoint, cfg.Telemetry.APIKey)
	}
	if cfg.ChatGPT.APIKey != "" {
		deps.Generator = llm.NewChatGPTClient(cfg.ChatGPT)
	} else {
		baseLogger.Warn("chatgpt api key is not set, cycles will only pick topics")
	}
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(deps)
	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
	}, nil
}

// Run performs one cycle, or in daemon mode keeps the cron running until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.repo.Close()

	if !a.cfg.Scheduler.Daemon {
		now := time.Now().In(a.cfg.Scheduler.Location())
		report, err := a.pipeline.RunCycle(ctx, now)
		a.logger.Info("cycle complete",
			"generated", report.Count(usecase.ScopeGenerated),
			"failed", report.Count(usecase.ScopeFailed))
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started",
		"cron", a.cfg.Scheduler.CronExpression,
		"timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("scheduler stopped")
	return nil
}

func policyOptions(sel config.SelectionConfig) topics.Options {
	return topics.Options{
		Thresholds: topics.Thresholds{
			SufficientImpressions: sel.Thresholds.SufficientImpressions,
			SufficientClicks:      sel.Thresholds.SufficientClicks,
			MatureImpressions:     sel.Thresholds.MatureImpressions,
			MatureClicks:          sel.Thresholds.MatureClicks,
			SufficientRatio:       sel.Thresholds.SufficientRatio,
			MatureCount:           sel.Thresholds.MatureCount,
		},
		TopN:                sel.TopN,
		ExploitProbabilityB: sel.ExploitProbabilityB,
		ExploitProbabilityC: sel.ExploitProbabilityC,
	}
}
