package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peachhaus_crm_backend/internal/automation"
	"peachhaus_crm_backend/internal/automation/agent"
	autoservice "peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/internal/documents"
	"peachhaus_crm_backend/internal/email"
	"peachhaus_crm_backend/internal/events"
	"peachhaus_crm_backend/internal/leads"
	"peachhaus_crm_backend/internal/messaging"
	"peachhaus_crm_backend/internal/notify"
	"peachhaus_crm_backend/internal/payments"
	"peachhaus_crm_backend/internal/scheduler"
	"peachhaus_crm_backend/platform/ai/moonshot"
	"peachhaus_crm_backend/platform/config"
	"peachhaus_crm_backend/platform/db"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		log.Error("failed to initialize email sender", "error", err)
		panic("failed to initialize email sender: " + err.Error())
	}

	val := validator.New()

	docStore, err := documents.NewStore(cfg)
	if err != nil {
		log.Error("failed to initialize document store", "error", err)
		panic("failed to initialize document store: " + err.Error())
	}

	leadsModule := leads.NewModule(pool, eventBus, val, log)

	deps := autoservice.Deps{
		Leads:     leadsModule.Repository(),
		Email:     sender,
		SMS:       messaging.NewMultiSender(cfg, log),
		Payments:  payments.NewService(cfg, log),
		Notifier:  notify.NewClient(cfg, log),
		Documents: docStore,
		BaseURL:   cfg.GetAppBaseURL(),
	}
	if cfg.IsAIEnabled() {
		model := moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey()})
		deps.Personalizer = autoservice.NewMoonshotPersonalizer(model, log)

		qualifier, err := agent.NewQualifier(cfg.GetMoonshotAPIKey(), leadsModule.Repository())
		if err != nil {
			log.Error("failed to initialize lead qualifier", "error", err)
			panic("failed to initialize lead qualifier: " + err.Error())
		}
		deps.Qualifier = qualifier
	}

	automationModule := automation.NewModule(pool, deps, val, log)
	automationModule.SubscribeEvents(eventBus)

	dispatcher, err := scheduler.NewOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped", "error", err)
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
