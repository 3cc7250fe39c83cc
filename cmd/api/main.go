package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peachhaus_crm_backend/internal/automation"
	autoservice "peachhaus_crm_backend/internal/automation/service"
	"peachhaus_crm_backend/internal/documents"
	"peachhaus_crm_backend/internal/email"
	"peachhaus_crm_backend/internal/events"
	apphttp "peachhaus_crm_backend/internal/http"
	"peachhaus_crm_backend/internal/http/router"
	"peachhaus_crm_backend/internal/leads"
	"peachhaus_crm_backend/internal/messaging"
	"peachhaus_crm_backend/internal/notify"
	"peachhaus_crm_backend/internal/payments"
	"peachhaus_crm_backend/platform/config"
	"peachhaus_crm_backend/platform/db"
	"peachhaus_crm_backend/platform/logger"
	"peachhaus_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
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

	paymentService := payments.NewService(cfg, log)
	smsSender := messaging.NewMultiSender(cfg, log)
	notifier := notify.NewClient(cfg, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(pool, eventBus, val, log)

	automationModule := automation.NewModule(pool, automationDeps(cfg, leadsModule, sender, smsSender, paymentService, notifier, docStore, log), val, log)
	automationModule.SubscribeEvents(eventBus)

	if err := automation.SeedDefaultRules(ctx, automationModule.RuleRepository(), log); err != nil {
		log.Error("failed to seed automation rules", "error", err)
		panic("failed to seed automation rules: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadsModule,
			automationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func automationDeps(
	cfg *config.Config,
	leadsModule *leads.Module,
	sender email.Sender,
	smsSender *messaging.MultiSender,
	paymentService *payments.Service,
	notifier *notify.Client,
	docStore documents.Store,
	log *logger.Logger,
) autoservice.Deps {
	deps := autoservice.Deps{
		Leads:     leadsModule.Repository(),
		Email:     sender,
		SMS:       smsSender,
		Payments:  paymentService,
		Notifier:  notifier,
		Documents: docStore,
		BaseURL:   cfg.GetAppBaseURL(),
	}

	if cfg.IsAIEnabled() {
		deps.Personalizer = newPersonalizer(cfg, log)
		qualifier, err := newQualifier(cfg, leadsModule)
		if err != nil {
			log.Error("failed to initialize lead qualifier", "error", err)
			panic("failed to initialize lead qualifier: " + err.Error())
		}
		deps.Qualifier = qualifier
	} else {
		log.Warn("MOONSHOT_API_KEY not configured; AI personalization and qualification disabled")
	}

	return deps
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
