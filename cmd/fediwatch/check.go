package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fediwatch/crawler/internal/checker"
	"github.com/fediwatch/crawler/internal/config"
	"github.com/fediwatch/crawler/internal/logger"
	"github.com/fediwatch/crawler/internal/softwaremap"
)

// checkCmd is the Checker subprocess entrypoint: RunChecker in
// internal/orchestrator/procrunner.go spawns "<self> check <host>" and
// reads its framed stdout. It is hidden from --help since operators
// never invoke it directly.
var checkCmd = &cobra.Command{
	Use:    "check <host>",
	Short:  "Run a single probe of host and write its outcome as framed stdout",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	host := args[0]
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	checker.ApplySandbox(log)

	if cfg.SoftwareMapFile != "" {
		m, err := softwaremap.Load(cfg.SoftwareMapFile)
		if err != nil {
			log.Warn("software map load failed, using built-in defaults", logger.Error(err))
		} else {
			checker.RegisterMastodonish(m.MastodonishExtra)
		}
	}

	checkerCfg := checker.Config{
		UserAgent:        fmt.Sprintf("Minoru's Fediverse Crawler (+%s)", cfg.InfoURL),
		RobotsUserAgent:  cfg.RobotsUserAgent,
		ConnectTimeout:   cfg.ConnectTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		MaxRedirects:     cfg.MaxRedirects,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		MaxPeersPerCheck: cfg.MaxPeersPerCheck,
	}

	if err := checker.Run(context.Background(), os.Stdout, log, checkerCfg, host); err != nil {
		return fmt.Errorf("check %s: %w", host, err)
	}
	return nil
}
