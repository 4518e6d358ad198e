package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cbodonnell/quicksave/pkg/api"
	"github.com/cbodonnell/quicksave/pkg/auth"
	authproviders "github.com/cbodonnell/quicksave/pkg/auth/providers"
	"github.com/cbodonnell/quicksave/pkg/config"
	"github.com/cbodonnell/quicksave/pkg/log"
	"github.com/cbodonnell/quicksave/pkg/migrate"
	"github.com/cbodonnell/quicksave/pkg/queue"
	"github.com/cbodonnell/quicksave/pkg/remote"
	"github.com/cbodonnell/quicksave/pkg/save/projection"
	"github.com/cbodonnell/quicksave/pkg/state"
	"github.com/cbodonnell/quicksave/pkg/store"
	"github.com/cbodonnell/quicksave/pkg/supervisor"
	"github.com/cbodonnell/quicksave/pkg/sync"
	"github.com/cbodonnell/quicksave/pkg/version"
	"github.com/cbodonnell/quicksave/pkg/workers"
)

func main() {
	logLevel := flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	parsedLogLevel, err := log.ParseLogLevel(level)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting quicksave server version %s", version.Get())
	ctx := context.Background()

	localStore, err := store.NewSQLiteSnapshotStore(ctx, cfg.LocalSavePath, cfg.SQLiteMigrations)
	if err != nil {
		panic(fmt.Sprintf("Failed to open local save store: %v", err))
	}
	defer localStore.Close(ctx)

	var remoteClient remote.SaveClient
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is not set, cloud saves are disabled")
		remoteClient = remote.NewDisabledSaveClient()
	} else {
		remoteClient, err = remote.NewPostgresSaveClient(ctx, remote.NewPostgresSaveClientOptions{
			ConnStr:    cfg.DatabaseURL,
			Migrations: cfg.PostgresMigrations,
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create remote save client: %v", err))
		}
	}
	defer remoteClient.Close(ctx)

	stateManager := state.NewInMemoryStateManager()
	settings := state.NewSettingsManager()
	liveBinding := projection.NewLiveBinding(stateManager)

	// restore the last known good save into the live state
	if snapshot, err := localStore.Load(ctx); err != nil {
		log.Error("Failed to load local save: %v", err)
	} else if snapshot != nil {
		migrated, err := migrate.Migrate(snapshot)
		if err != nil {
			log.Error("Local save cannot be upgraded, leaving it untouched: %v", err)
		} else {
			if err := liveBinding.ApplySnapshot(ctx, migrated); err != nil {
				log.Error("Failed to apply local save: %v", err)
			} else {
				settings.SetOverrides(migrated.ConfigOverrides)
				log.Info("Restored local save from %d (version %d)", migrated.SavedAt, migrated.Version)
			}
		}
	}

	identity := auth.NewStaticIdentityProvider(cfg.UserID)

	orchestrator := sync.NewOrchestrator(sync.NewOrchestratorOptions{
		RemoteClient:     remoteClient,
		LocalStore:       localStore,
		IdentityProvider: identity,
		Applier:          liveBinding,
		MaxRetries:       cfg.MaxRetries,
		ProbeInterval:    cfg.ProbeInterval,
	})
	orchestrator.Start(ctx)

	cycleSupervisor := supervisor.NewSupervisor(supervisor.NewSupervisorOptions{
		Observer: func(fault error) {
			log.Error("Supervised cycle fault: %v", fault)
		},
	})

	stateChangedQueue := queue.NewInMemoryQueue(1024)

	autosaveWorker := workers.NewAutosaveWorker(workers.NewAutosaveWorkerOptions{
		StateManager: stateManager,
		Overrides:    settings,
		LocalStore:   localStore,
		SyncTrigger:  orchestrator,
		EventQueue:   stateChangedQueue,
		Supervisor:   cycleSupervisor,
		Interval:     cfg.AutosaveInterval,
	})
	go autosaveWorker.Start(ctx)

	var authProvider authproviders.AuthProvider
	if cfg.FirebaseProjectID != "" && cfg.FirebaseAPIKey != "" {
		authProvider, err = authproviders.NewFirebaseAuthProvider(ctx, cfg.FirebaseProjectID, cfg.FirebaseAPIKey)
		if err != nil {
			panic(fmt.Sprintf("Failed to create auth provider: %v", err))
		}
	} else {
		log.Warn("Firebase auth is not configured, using the insecure development auth provider")
		authProvider = authproviders.NewInsecureAuthProvider()
	}

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:         cfg.APIPort,
		AuthProvider: authProvider,
		Orchestrator: orchestrator,
		Worker:       autosaveWorker,
		LocalStore:   localStore,
		RemoteClient: remoteClient,
	})
	apiServer.Start()
}
