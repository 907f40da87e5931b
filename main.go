package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/captioning"
	"github.com/KubaBaniak/image-storage/internal/config"
	"github.com/KubaBaniak/image-storage/internal/database"
	"github.com/KubaBaniak/image-storage/internal/embedding"
	"github.com/KubaBaniak/image-storage/internal/handler"
	"github.com/KubaBaniak/image-storage/internal/logger"
	"github.com/KubaBaniak/image-storage/internal/model"
	"github.com/KubaBaniak/image-storage/internal/repository"
	"github.com/KubaBaniak/image-storage/internal/service"
	"github.com/KubaBaniak/image-storage/internal/storage"
	"github.com/KubaBaniak/image-storage/internal/tagging"
	"github.com/KubaBaniak/image-storage/internal/thumbnail"
	"github.com/KubaBaniak/image-storage/internal/vector"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg := config.Load()

	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg.Database.URL)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(db, &model.Image{}); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}

	store, err := storage.NewS3Store(cfg.S3, storage.BucketPolicy{
		MaxFileSizeBytes: cfg.Upload.MaxFileSizeBytes,
		AllowedMimeTypes: cfg.Upload.AllowedMimeTypes,
	}, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize object store", zap.Error(err))
	}

	vectors := vector.NewPgvectorIndex(db)
	if err := vectors.EnsureCollection(context.Background()); err != nil {
		zlog.Fatal("failed to initialize vector collection", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		zlog.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	repo := repository.NewImages(db)
	producer := tagging.NewProducer(queueClient, zlog)
	embedder := embedding.NewClient(cfg.Embedding.URL, cfg.Embedding.Token)
	captioner := captioning.NewClient(cfg.Captioning.URL, cfg.Captioning.Token)

	trigger := thumbnail.NewTriggerClient(
		cfg.Thumbnail.FunctionURL,
		cfg.Thumbnail.AuthToken,
		cfg.S3.Bucket,
		cfg.Thumbnail.TriggerTimeout,
		zlog,
	)
	poller := thumbnail.NewPoller(
		thumbnail.ProbeFunc(func(ctx context.Context, key string) error {
			_, err := store.Head(ctx, key)
			return err
		}),
		cfg.Thumbnail.PollInitial,
		cfg.Thumbnail.PollCap,
		cfg.Thumbnail.PollBudget,
		zlog,
	)

	svc := service.New(service.Deps{
		Repo:     repo,
		Store:    store,
		Trigger:  trigger,
		Poller:   poller,
		Vectors:  vectors,
		Embedder: embedder,
		Tags:     producer,
		Log:      zlog,
		PutTTL:   cfg.Upload.PresignPutTTL,
		GetTTL:   cfg.Upload.PresignGetTTL,
	})
	if err := svc.LoadPolicy(context.Background()); err != nil {
		zlog.Fatal("failed to load bucket upload policy", zap.Error(err))
	}

	worker := tagging.NewWorker(repo, store, captioner, zlog)
	queueServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    5,
		Queues:         map[string]int{tagging.QueueName: 1},
		RetryDelayFunc: tagging.RetryDelay,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			if retried >= maxRetry {
				zlog.Error("tagging job dead-lettered",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
				return
			}
			zlog.Warn("tagging job failed, will retry",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(tagging.TaskTypeTagImage, worker.HandleTagImage)
	if err := queueServer.Start(mux); err != nil {
		zlog.Fatal("failed to start tagging worker", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Server.AllowedOrigin},
		AllowMethods: []string{echo.GET, echo.POST, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	handler.NewHealthHandler().Register(e)
	handler.NewImageHandler(svc, zlog).Register(e)

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil {
			zlog.Info("server stopped", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	queueServer.Shutdown()
}
