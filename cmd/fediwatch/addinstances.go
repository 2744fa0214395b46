package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fediwatch/crawler/internal/config"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/redis"
	"github.com/fediwatch/crawler/internal/seedintake"
	redisstore "github.com/fediwatch/crawler/internal/store/redis"
)

// runAddInstances implements --add-instances: it only needs a Store, not
// the full App graph (no Orchestrator, Snapshotter, or control server),
// since it does one bulk insert and exits.
func runAddInstances(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

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
	}, log)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	st, err := redisstore.NewStore(context.Background(), redisClient)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer st.Close()

	result, err := seedintake.Run(context.Background(), st, log, os.Stdin, time.Now())
	if err != nil {
		return fmt.Errorf("seed intake: %w", err)
	}

	log.Infof("seed intake complete: %d accepted, %d rejected", result.Accepted, result.Rejected)
	if !result.Accepted50Percent() {
		return fmt.Errorf("seed intake: fewer than half of the input lines were accepted (%d/%d)",
			result.Accepted, result.Accepted+result.Rejected)
	}
	return nil
}
