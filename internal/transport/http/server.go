package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"schoolportal/internal/cache"
	"schoolportal/internal/config"
	"schoolportal/internal/database"
	"schoolportal/internal/handler"
	"schoolportal/internal/logger"
	"schoolportal/internal/queue"
	"schoolportal/internal/redis"
	"schoolportal/internal/repository"
	"schoolportal/internal/service"
	"schoolportal/internal/thread"
	"schoolportal/internal/worker"
)

const shutdownTimeout = 15 * time.Second

// stores groups the repositories selected by STORAGE_DRIVER.
type stores struct {
	comments      repository.CommentStore
	posts         repository.PostRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured backends. With the mongo driver only
// comments live in MongoDB; users, posts and notifications stay in Postgres.
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	s := &stores{}

	if cfg.StorageDriver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		s.comments = repository.NewMemoryCommentStore()
		s.posts = repository.NewMemoryPostRepository()
		s.users = repository.NewMemoryUserRepository()
		s.notifications = repository.NewMemoryNotificationRepository()
		return s, nil
	}

	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.closers = append(s.closers, func() { _ = db.Close() })

	if err := database.Migrate(ctx, db); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.posts = repository.NewPostRepository(db)
	s.users = repository.NewUserRepository(db)
	s.notifications = repository.NewNotificationRepository(db)
	s.comments = repository.NewCommentRepository(db)

	if cfg.StorageDriver == config.DriverMongo {
		client, mdb, err := database.ConnectMongo(ctx, cfg, log)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })

		if err := repository.EnsureCommentIndexes(ctx, mdb); err != nil {
			s.close()
			return nil, err
		}
		s.comments = repository.NewMongoCommentRepository(mdb)
	}

	return s, nil
}

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policies, err := thread.NewRolePolicies(cfg.ThreadPolicy, cfg.ThreadPolicyByRole)
	if err != nil {
		return fmt.Errorf("invalid thread policy: %w", err)
	}

	// 2. Connect to storage
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	notificationService := service.NewNotificationService(st.notifications, log)

	// 3. Redis: thread cache, comment stream, workers. All optional.
	var (
		threadCache cache.ThreadCache
		publisher   queue.Publisher
	)
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx); err != nil {
			return err
		}
		log.Info("connected to redis")

		threadCache = cache.NewThreadCache(rdb.Client, time.Duration(cfg.ThreadCacheTTL)*time.Second, log)
		publisher = queue.NewPublisher(rdb.Client, log)

		eventHandler := worker.NewHandler(threadCache, notificationService, log)
		managerCfg := worker.DefaultManagerConfig()
		managerCfg.WorkerCount = cfg.WorkerCount
		manager := worker.NewManager(queue.NewConsumer(rdb.Client, log), eventHandler, managerCfg, log)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start workers: %w", err)
		}
		defer manager.Stop()
	} else {
		log.Warn("REDIS_URL not set, thread cache and comment events disabled")
	}

	// 4. Services and handlers
	userService := service.NewUserService(st.users)
	authService := service.NewAuthService(cfg)
	postService := service.NewPostService(st.posts, st.users, log)
	commentService := service.NewCommentService(st.comments, st.posts, st.users, threadCache, publisher,
		service.CommentOptions{Cascade: cfg.CommentCascade, Policies: policies}, log)

	router := NewRouter(RouterConfig{
		AuthHandler:         handler.NewAuthHandler(userService, authService, log),
		PostHandler:         handler.NewPostHandler(postService, log),
		CommentHandler:      handler.NewCommentHandler(commentService, log),
		NotificationHandler: handler.NewNotificationHandler(notificationService, log),
		JWTSecret:           cfg.JWTSecret,
		Logger:              log,
	})

	// 5. Serve until a shutdown signal arrives
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", cfg.StorageDriver),
			zap.String("thread_policy", policies.Default.Name),
			zap.String("cascade", cfg.CommentCascade))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
