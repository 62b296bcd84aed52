package bootstrap

import (
	"context"

	"github.com/GregMSThompson/finance-sync/internal/config"
	"github.com/GregMSThompson/finance-sync/internal/crypto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/handlers"
	"github.com/GregMSThompson/finance-sync/internal/providers"
	"github.com/GregMSThompson/finance-sync/internal/response"
	"github.com/GregMSThompson/finance-sync/internal/services"
	"github.com/GregMSThompson/finance-sync/internal/store"
)

type dispatcher interface {
	Run(ctx context.Context) error
}

type scheduler interface {
	Start(ctx context.Context) (func(), error)
}

// App is the wired object graph shared by the api and scheduler processes.
type App struct {
	Deps       *handlers.Deps
	Dispatcher dispatcher
	Scheduler  scheduler
}

func Wire(cfg *config.Config, bs *Bootstrap) *App {
	// helpers
	kmsHelper := crypto.NewKMS(bs.KMS, cfg.KMSKeyName)
	failures := errs.NewFailureClassifier()

	// stores
	ustore := store.NewUserStore(bs.Firestore)
	cstore := store.NewConnectionStore(bs.Firestore)
	tstore := store.NewTransactionStore(bs.Firestore)
	astore := store.NewAccountStore(bs.Firestore)
	ostore := store.NewOverrideStore(bs.Firestore)
	catstore := store.NewCategoryStore(bs.Firestore)
	sstore := store.NewSettingsStore(bs.Firestore)
	mstore := store.NewMailStore(bs.Firestore, cfg.Notify.Collection)
	tokens := store.NewTokenStore(bs.Secrets, cfg.ProjectID)

	// categorization
	settings := services.NewSettingsService(sstore, services.SettingsDefaults{
		SyncEnabled:    cfg.Sync.Enabled,
		SyncInterval:   cfg.Sync.Interval,
		CryptoInterval: cfg.Sync.CryptoInterval,
		AIEnabled:      cfg.AI.Enabled,
		AIModel:        cfg.AI.Model,
	})
	ai := services.NewAIClassifier(bs.Vertex, settings, cfg.AI.RequestSpacing, cfg.AI.Timeout)
	categorizer := services.NewCategorizer(ostore, astore, catstore, ai)
	overrides := services.NewOverrideService(ostore, tstore, categorizer)
	transactions := services.NewTransactionService(tstore, astore, categorizer, overrides, cfg.AI.RecategorizeBudget)

	// providers
	progress := services.NewProgressReporter(cstore)
	registry := providers.NewRegistry(
		providers.NewPlaidProvider(bs.Plaid, tokens, tstore, astore, transactions, progress),
		providers.NewManualProvider(progress),
	)

	// sync
	notifier := services.NewMailNotifier(mstore, ustore, cfg.Notify.AppName)
	orchestrator := services.NewSyncOrchestrator(cstore, registry, kmsHelper, failures, notifier, cfg.Sync.Timeout)
	syncDispatcher := services.NewSyncDispatcher(bs.Log, orchestrator, cfg.Sync.Workers, cfg.Sync.QueueSize)
	syncScheduler := services.NewSyncScheduler(bs.Log, settings, cstore, syncDispatcher, orchestrator, cfg.Sync.PollInterval, cfg.Sync.Timeout)

	// dependencies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = response.New(bs.Log)
	deps.Firebase = bs.Firebase
	deps.UserSvc = services.NewUserService(ustore)
	deps.ConnectionSvc = services.NewConnectionService(cstore, registry, kmsHelper, syncDispatcher)
	deps.AccountSvc = services.NewAccountService(astore, cstore, tstore, categorizer)
	deps.TransactionSvc = transactions
	deps.CategorySvc = services.NewCategoryService(catstore, categorizer)
	deps.OverrideSvc = overrides
	deps.SettingsSvc = settings

	return &App{
		Deps:       deps,
		Dispatcher: syncDispatcher,
		Scheduler:  syncScheduler,
	}
}
