package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"studykit-backend/internal/arena"
	"studykit-backend/internal/documents"
	"studykit-backend/internal/extract"
	"studykit-backend/internal/history"
	"studykit-backend/internal/jobs"
	"studykit-backend/internal/keystore"
	"studykit-backend/internal/pipeline"
	"studykit-backend/internal/queue"
	"studykit-backend/internal/shared/auth"
	"studykit-backend/internal/shared/config"
	"studykit-backend/internal/shared/metrics"
	"studykit-backend/internal/shared/server"
	"studykit-backend/internal/shared/storage/db"
	"studykit-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config      config.Config
	Router      *gin.Engine
	DB          *sql.DB
	Arena       *arena.Arena
	Keys        *keystore.Store
	Queue       *queue.Queue
	Notifier    queue.Client
	History     history.Repo
	Content     *pipeline.ContentStore
	Pipeline    *pipeline.Service
	JobsHandler *documents.Handler
}

// Build wires the pipeline, its stores and the HTTP router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	secret, err := auth.ResolveSecret(cfg.Env, cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	limits, err := config.LoadLimits(cfg.LimitsFile)
	if err != nil {
		return nil, err
	}

	suite, err := arena.ParseSuite(cfg.ArenaCipher)
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		DB:       sqlDB,
		Notifier: notifier,
		Arena:    arena.New(arena.Options{Suite: suite, Grace: cfg.ArenaGrace}),
		Keys:     keystore.New(keystore.Options{KeyTTL: cfg.KeyTTL, JobTTL: cfg.JobTTL}),
		Queue:    queue.New(cfg.QueueConcurrency),
		Content:  pipeline.NewContentStore(cfg.ContentTTL, nil),
	}
	if sqlDB != nil {
		app.History = &history.PGRepo{DB: sqlDB}
	} else {
		app.History = history.NewMemoryRepo()
	}

	svc, err := pipeline.NewService(pipeline.Options{
		Arena:      app.Arena,
		Keys:       app.Keys,
		Queue:      app.Queue,
		Extractors: extract.DefaultRegistry(),
		Limits:     limits,
		History:    app.History,
		Notifier:   notifier,
		Content:    app.Content,
		BufferTTL:  cfg.BufferTTL,
	})
	if err != nil {
		return nil, err
	}
	app.Pipeline = svc
	app.JobsHandler = documents.NewHandler(svc)

	registerGauges(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:     cfg,
		Secret:     secret,
		JobHandler: app.JobsHandler,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"history":      historyBackend(sqlDB),
		"notify":       cfg.NotifyQueueURL != "",
		"arena_cipher": string(suite),
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.db.memory", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.GetSingleton(ctx, cfg.DatabaseURL, db.HistoryOptions(cfg.DBMaxConns))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.db.memory", map[string]any{"reason": "connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildNotifier(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.NotifyQueueURL) == "" {
		return queue.NopClient{}, nil
	}
	return queue.NewSQSClient(ctx, cfg.NotifyQueueURL, cfg.AWSRegion)
}

func registerGauges(app *App) {
	metrics.RegisterGauge("arena_buffers", "Encrypted buffers currently held", func() float64 {
		return float64(app.Arena.Len())
	})
	metrics.RegisterGauge("keystore_keys", "Ephemeral keys currently held", func() float64 {
		keys, _ := app.Keys.Counts()
		return float64(keys)
	})
	metrics.RegisterGauge("keystore_jobs", "Job records currently held", func() float64 {
		_, records := app.Keys.Counts()
		return float64(records)
	})
	metrics.RegisterGauge("content_entries", "Published content entries", func() float64 {
		return float64(app.Content.Len())
	})
	metrics.RegisterGauge("progress_subscribers", "Open progress streams", func() float64 {
		return float64(app.Pipeline.Hub().Subscribers())
	})
	if app.DB != nil {
		metrics.RegisterGauge("db_open_connections", "Open history database connections", func() float64 {
			return float64(app.DB.Stats().OpenConnections)
		})
	}
	for _, kind := range jobs.Kinds {
		metrics.RegisterGauge("queue_active_"+string(kind), "Jobs running for "+string(kind), func() float64 {
			return float64(app.Queue.Stats(kind).Active)
		})
		metrics.RegisterGauge("queue_pending_"+string(kind), "Jobs waiting for "+string(kind), func() float64 {
			return float64(app.Queue.Stats(kind).Pending)
		})
	}
}

func historyBackend(sqlDB *sql.DB) string {
	if sqlDB != nil {
		return "postgres"
	}
	return "memory"
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local", "test":
		return true
	default:
		return false
	}
}
