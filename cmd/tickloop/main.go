package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tickloop/tickloop/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "tickloop",
		Usage: "Persistent cron-like job scheduler",
		Commands: []*cli.Command{
			runHwd.cmd(),
			jobsHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}
