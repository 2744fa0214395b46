package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/fediwatch/crawler/internal/bloomfilter"
	"github.com/fediwatch/crawler/internal/config"
	"github.com/fediwatch/crawler/internal/httpserver"
	"github.com/fediwatch/crawler/internal/httpserver/deps"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/orchestrator"
	"github.com/fediwatch/crawler/internal/ratelimit"
	"github.com/fediwatch/crawler/internal/redis"
	"github.com/fediwatch/crawler/internal/snapshot"
	redisstore "github.com/fediwatch/crawler/internal/store/redis"
	"github.com/fediwatch/crawler/internal/version"
)

// Sized for spec.md §2's ~10^6-host working set; Rebuild grows the filter
// past this if the known host count ever exceeds it.
const (
	bloomExpectedItems     = 1_000_000
	bloomFalsePositiveRate = 0.01
)

// App wires together the long-lived crawler daemon: the Store, the
// Orchestrator's dispatch loop, the Snapshotter, the Bloom filter and its
// periodic rebuild, and the internal control server — then runs all of
// them until SIGTERM.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	store       *redisstore.Store
	orch        *orchestrator.Orchestrator
	snapshotter *snapshot.Snapshotter
	bloom       *bloomfilter.Filter

	bloomRebuildInterval time.Duration
	stopBloomRebuild     chan struct{}
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	loggerClient.Infof("connecting to redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("failed to connect to redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("redis initialized successfully")

	st, err := redisstore.NewStore(context.Background(), redisClient)
	if err != nil {
		loggerClient.Errorf("failed to initialize store: %v", err)
		os.Exit(1)
	}

	bloom := bloomfilter.New(bloomExpectedItems, bloomFalsePositiveRate, st, loggerClient)
	if err := bloom.Rebuild(context.Background(), bloomExpectedItems, bloomFalsePositiveRate); err != nil {
		loggerClient.Warn("initial bloom filter rebuild failed, starting empty", logger.Error(err))
	}

	global := ratelimit.NewGlobalLimiter(cfg.MaxChecksPerSecond, cfg.MaxChecksPerSecond)
	perHost := ratelimit.NewPerHostLimiter(ratelimit.PerHostConfig{
		MaxPerDay: cfg.MaxChecksPerHostDay,
	})

	selfPath, err := os.Executable()
	if err != nil {
		loggerClient.Errorf("failed to resolve own executable path: %v", err)
		os.Exit(1)
	}

	orch := orchestrator.New(st, bloom, global, perHost, loggerClient, orchestrator.Config{
		TickInterval:        cfg.TickInterval,
		ClaimBatchSize:      batchSize(cfg),
		MaxConcurrentChecks: cfg.MaxConcurrentChecks,
		CheckerDeadline:     cfg.CheckerDeadline,
		WatchdogGrace:       cfg.WatchdogGrace,
		MaxPeersPerCheck:    cfg.MaxPeersPerCheck,
		SelfPath:            selfPath,
	})

	snapshotTrigger := make(chan struct{}, 1)
	snapshotter := snapshot.New(st, loggerClient, snapshot.Config{
		Path:        cfg.DataDir + "/instances.json",
		Interval:    cfg.SnapshotInterval,
		AliveWindow: cfg.AliveWindow,
	}, snapshotTrigger)

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		TimeNow:         time.Now,
		AllowedHosts:    cfg.AllowedHosts,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		Store:           st,
		SnapshotTrigger: snapshotTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:                  cfg,
		logger:               loggerClient,
		server:               server,
		redisClient:          redisClient,
		store:                st,
		orch:                 orch,
		snapshotter:          snapshotter,
		bloom:                bloom,
		bloomRebuildInterval: 6 * time.Hour,
		stopBloomRebuild:     make(chan struct{}),
	}
}

// batchSize derives ClaimDue's per-tick limit from the global rate and
// tick interval, so a tick never claims more work than it can plausibly
// dispatch (spec.md §5: "compute a batch_size such that the global
// dispatch rate does not exceed max_checks_per_second").
func batchSize(cfg *config.Config) int {
	n := int(float64(cfg.MaxChecksPerSecond) * cfg.TickInterval.Seconds())
	if n < 1 {
		n = 1
	}
	if n > cfg.MaxConcurrentChecks {
		n = cfg.MaxConcurrentChecks
	}
	return n
}

func (a *App) Run() error {
	a.logger.Infof("starting fediwatch v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("fediwatch %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	a.logger.Info("orchestrator started", logger.Duration("tick_interval", a.cfg.TickInterval))

	if err := a.snapshotter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start snapshotter: %w", err)
	}
	a.logger.Info("snapshotter started", logger.Duration("interval", a.cfg.SnapshotInterval))

	go a.runBloomRebuild(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("control server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	close(a.stopBloomRebuild)

	a.snapshotter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	// Each step runs regardless of whether an earlier one failed, so a
	// slow server shutdown never skips closing the store; multierr
	// aggregates whatever independent failures come out of it.
	var shutdownErr error

	if err := a.orch.Stop(shutdownCtx); err != nil {
		a.logger.Warn("orchestrator did not drain in time", logger.Error(err))
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("orchestrator stop: %w", err))
	}

	if err := a.server.Stop(shutdownCtx); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("failed to stop control server: %w", err))
	}

	if err := a.store.Close(); err != nil {
		shutdownErr = multierr.Append(shutdownErr, fmt.Errorf("failed to close store: %w", err))
	} else {
		a.logger.Info("store closed cleanly")
	}

	if shutdownErr != nil {
		return shutdownErr
	}

	a.logger.Info("fediwatch stopped cleanly")
	return nil
}

// runBloomRebuild periodically re-seeds the Bloom filter from the Store
// so its false-positive rate doesn't drift as the known host set grows
// well past the size it was first sized for (spec.md §9).
func (a *App) runBloomRebuild(ctx context.Context) {
	ticker := time.NewTicker(a.bloomRebuildInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.bloom.Rebuild(ctx, bloomExpectedItems, bloomFalsePositiveRate); err != nil {
				a.logger.Warn("bloom filter rebuild failed", logger.Error(err))
			}
		case <-a.stopBloomRebuild:
			return
		case <-ctx.Done():
			return
		}
	}
}
