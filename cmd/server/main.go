package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sogos/pixelpipe/internal/domain/entity"
	"github.com/sogos/pixelpipe/internal/domain/repository"
	"github.com/sogos/pixelpipe/internal/domain/service"
	"github.com/sogos/pixelpipe/internal/domain/valueobject"
	"github.com/sogos/pixelpipe/internal/engine"
	"github.com/sogos/pixelpipe/internal/infrastructure/config"
	"github.com/sogos/pixelpipe/internal/infrastructure/logging"
	"github.com/sogos/pixelpipe/internal/infrastructure/persistence/postgres"
	"github.com/sogos/pixelpipe/internal/infrastructure/pubsub"
	"github.com/sogos/pixelpipe/internal/infrastructure/storage"
	"github.com/sogos/pixelpipe/internal/presentation/httpapi"
	"github.com/sogos/pixelpipe/internal/processing"
)

var (
	resetFlag  bool
	demoInputs []string

	rootCmd = &cobra.Command{
		Use:   "pixelpipe",
		Short: "Fault-tolerant image-processing pipeline engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			_ = godotenv.Load(".env.local")
		},
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.Flags().BoolVarP(&resetFlag, "reset", "r", false, "drop and recreate the application database before startup")
	rootCmd.Flags().StringSliceVar(&demoInputs, "demo", nil, "submit a demo tree over the two given input images")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() {
	// Initialize structured logger
	logger := logging.New()
	logger.Info("starting pixelpipe")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if resetFlag {
		if err := postgres.ResetDatabase(cfg.DatabaseURL); err != nil {
			logger.Error("failed to reset database", "error", err)
			os.Exit(1)
		}
		logger.Info("database reset")
	}

	// Connect to database
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations up to date")

	// Optional task event publishing
	var events pubsub.Publisher
	if cfg.RedisURL != "" {
		redisPubSub, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{URL: cfg.RedisURL}, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisPubSub.Close()
		events = redisPubSub
		logger.Info("task event publishing enabled")
	}

	// Artifact storage
	store, err := newArtifactStore(cfg)
	if err != nil {
		logger.Error("failed to initialize artifact storage", "error", err)
		os.Exit(1)
	}
	logger.Info("artifact storage ready", "backend", cfg.StorageBackend)

	// Shared runtime settings, editable through the API
	settings := config.NewSettings()

	repo := postgres.NewTaskRepository(db.DB, events, logger)

	// The scheduler and each worker thread open their repository through
	// this factory; it waits for the database when the pool is unhealthy.
	factory := func() (repository.TaskRepository, error) {
		if err := db.WaitReady(context.Background()); err != nil {
			return nil, err
		}
		return postgres.NewTaskRepository(db.DB, events, logger), nil
	}

	processor := processing.NewProcessor()
	var workers []*engine.WorkerThread
	for _, class := range engine.DefaultWorkerClasses() {
		workers = append(workers, engine.NewWorkerThread(class, processor, store, settings, logger))
	}

	eng, err := engine.New(factory, workers, settings, logger, engine.Options{
		TaskTimeout:  cfg.TaskTimeout,
		IdleInterval: cfg.IdleInterval,
	})
	if err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if len(demoInputs) > 0 {
		if err := submitDemoTree(repo, logger, demoInputs); err != nil {
			logger.Error("failed to submit demo tree", "error", err)
			os.Exit(1)
		}
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go eng.Run(engineCtx)
	logger.Info("scheduler started")

	// HTTP API for the GUI
	srv := httpapi.NewServer(":"+cfg.Port, httpapi.NewTaskHandler(repo, settings, logger), logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	stopEngine()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newArtifactStore(cfg *config.Config) (storage.ArtifactStore, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			BasePath:        cfg.S3BasePath,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	}
	return storage.NewLocalStorage(cfg.TempDir), nil
}

// submitDemoTree inserts an overlay of a resized first input over the
// second, exercising both worker classes end to end.
func submitDemoTree(repo repository.TaskRepository, logger service.Logger, inputs []string) error {
	first := inputs[0]
	second := first
	if len(inputs) > 1 {
		second = inputs[1]
	}

	tree := entity.NewTaskTree(valueobject.NewOverlay(10, 10),
		entity.NewTaskTree(valueobject.NewResize(512, 512),
			entity.NewInputLeaf(first),
		),
		entity.NewInputLeaf(second),
	)

	if err := repo.InsertTaskTree(context.Background(), tree); err != nil {
		return err
	}
	logger.Info("demo tree submitted", "inputs", inputs)
	return nil
}
