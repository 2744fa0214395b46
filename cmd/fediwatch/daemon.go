package main

import (
	"github.com/spf13/cobra"

	"github.com/fediwatch/crawler/internal/app"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	return app.New().Run()
}
