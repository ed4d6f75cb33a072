package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
	"tasktrail.io/internal/config"
	"tasktrail.io/internal/httpapi"
	"tasktrail.io/internal/obs"
	"tasktrail.io/internal/seed"
	"tasktrail.io/internal/store/pg"
	"tasktrail.io/internal/task"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

const healthRefreshSchedule = "@every 10s"

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("tasktrail-api stopped")
	}
}

// backend bundles the stores the services run on.
type backend struct {
	accounts auth.Store
	tasks    task.Store
	audit    audit.Store
	taskOpts []task.Option
	ready    httpapi.ReadyProbe
	close    func() error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TraceSampleRatio > 0 {
		tp := obs.InitTracing("tasktrail-api", version, cfg.TraceSampleRatio)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	table := auth.DefaultRoleTable()
	if cfg.RolesFile != "" {
		if table, err = auth.LoadRoleTableFile(cfg.RolesFile); err != nil {
			return err
		}
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = be.close() }()

	tokens, err := auth.NewTokens(cfg.AuthSecret, auth.WithIssuer(cfg.TokenIssuer), auth.WithTTL(cfg.TokenTTL))
	if err != nil {
		return err
	}
	resolver := auth.NewResolver(be.accounts, table)
	engine := auth.NewEngine(resolver)
	feed := audit.NewFeed()
	recorder := audit.NewRecorder(be.audit, audit.WithFeed(feed))
	tasks := task.NewService(be.tasks, engine, recorder, be.taskOpts...)

	limiter, err := newLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	proxies, err := httpapi.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	api := httpapi.New(
		auth.NewService(be.accounts, tokens, resolver, engine),
		engine,
		tasks,
		recorder,
		httpapi.WithVersion(version),
		httpapi.WithReadiness(be.ready),
		httpapi.WithFeed(feed),
		httpapi.WithLimiter(limiter),
		httpapi.WithTrustedProxies(proxies),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
	)

	// No WriteTimeout: /audit-logs/stream holds connections open.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(be.ready)
	_ = health.Refresh(ctx)
	grpcServer := grpc.NewServer()
	health.Register(grpcServer)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.AuditStatsSchedule, auditStatsJob(ctx, recorder)); err != nil {
		return fmt.Errorf("schedule audit stats: %w", err)
	}
	if _, err := scheduler.AddFunc(healthRefreshSchedule, func() { _ = health.Refresh(ctx) }); err != nil {
		return fmt.Errorf("schedule health refresh: %w", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.WithFields(logrus.Fields{"addr": cfg.GRPCAddr}).Info("grpc listening")
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})
	return g.Wait()
}

// openBackend connects to PostgreSQL when a DSN is configured and otherwise
// runs on seeded in-memory stores.
func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	if cfg.PostgresDSN == "" {
		accounts := auth.NewMemoryStore()
		tasks := task.NewMemoryStore()
		if _, err := seed.Run(ctx, accounts, tasks); err != nil {
			return backend{}, err
		}
		obs.Logger().Warn("no database configured, using in-memory stores with demo data")
		return backend{
			accounts: accounts,
			tasks:    tasks,
			audit:    audit.NewMemoryStore(),
			close:    func() error { return nil },
		}, nil
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		return backend{}, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return backend{}, fmt.Errorf("ping database: %w", err)
	}
	return backend{
		accounts: store.Accounts(),
		tasks:    store.Tasks(),
		audit:    store.Audit(),
		taskOpts: []task.Option{task.WithTransactor(store)},
		ready:    httpapi.ReadyProbe{DB: store.DB()},
		close:    store.Close,
	}, nil
}

// newLimiter shares rate limits through Redis when configured. The fixed
// window admits the burst once per burst/rate seconds.
func newLimiter(ctx context.Context, cfg *config.Config) (httpapi.Limiter, error) {
	if cfg.RedisURL == "" {
		return httpapi.NewLocalLimiter(cfg.RateBurst, cfg.RatePerSec), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	window := time.Duration(float64(cfg.RateBurst) / float64(cfg.RatePerSec) * float64(time.Second))
	return httpapi.NewRedisLimiter(client, cfg.RateBurst, window), nil
}
