package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs" // match GOMAXPROCS to the container CPU quota
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/directory-auth/internal/config"
	"github.com/iliyamo/directory-auth/internal/database"
	"github.com/iliyamo/directory-auth/internal/handler"
	"github.com/iliyamo/directory-auth/internal/logger"
	"github.com/iliyamo/directory-auth/internal/middleware"
	"github.com/iliyamo/directory-auth/internal/queue"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/router"
	"github.com/iliyamo/directory-auth/internal/service"
	"github.com/iliyamo/directory-auth/internal/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load() // Load environment config
	if err != nil {
		// the logger is configured from cfg, so this is the one place that
		// cannot use it
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, flush := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		JSON:        cfg.Log.JSON,
		File:        cfg.Log.File,
		Development: !cfg.IsProduction(),
	})
	defer flush()
	defer logger.RedirectStdLog(log)()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		flush()
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		log.Info("rate limiter using redis", zap.String("addr", cfg.Redis.Addr))
	} else if cfg.RateLimit.Enabled {
		log.Info("rate limiter using in-process buckets")
	}

	access := utils.NewAccessTokenIssuer(cfg.JWTSecret, cfg.AccessTTL())
	svc := service.NewAuthService(store, access, service.Options{
		RefreshTTL: cfg.RefreshTTL(),
		InviteTTL:  cfg.InviteTTL(),
		BcryptCost: cfg.BcryptCost,
	})

	// Broker: the supervisor owns the connection; the consumer re-declares
	// topology and restarts consumers after every reconnect.
	var consumer *queue.Consumer
	sup := queue.NewSupervisor(queue.SupervisorConfig{
		URL:             cfg.AMQP.URL,
		Prefetch:        cfg.AMQP.Prefetch,
		RetryBase:       cfg.AMQP.RetryBase,
		RetryMax:        cfg.AMQP.RetryMax,
		PublishConfirms: cfg.AMQP.PublishConfirms,
	}, queue.DialAMQP, func(ctx context.Context, ch queue.Channel) error {
		return consumer.Start(ctx, ch)
	}, log.Named("broker"))
	publisher := queue.NewInvitePublisher(sup, log.Named("publisher"))
	consumer = queue.NewConsumer(queue.NewGateway(svc, publisher, log.Named("gateway")), cfg.AMQP.Prefetch, log.Named("consumer"))

	e := router.New(log)
	limit := middleware.NewTokenBucket(cfg.RateLimit, rdb, log.Named("ratelimit"))
	router.RegisterRoutes(e, handler.NewHealthHandler(store, sup))
	router.RegisterOAuth(e, handler.NewOAuthHandler(svc), limit)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), access, limit)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.CORS(cfg.CORSOrigins)(e),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore connects the configured credential store and applies migrations
// when asked to.
func openStore(ctx context.Context, cfg config.DBConfig, log *zap.Logger) (repository.Store, func(), error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory credential store; data is lost on exit")
		return repository.NewMemoryStore(), func() {}, nil
	}
	db, dialect, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db, dialect, log.Named("migrate")); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	log.Info("database connected", zap.String("driver", dialect.Name), zap.String("host", cfg.Host))
	return repository.NewSQLStore(db, dialect), func() { _ = db.Close() }, nil
}
