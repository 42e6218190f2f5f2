package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/tickloop/tickloop/internal/config"
	"github.com/tickloop/tickloop/internal/consts"
	"github.com/tickloop/tickloop/internal/sched"
	"github.com/tickloop/tickloop/internal/storage"
)

var jobsHwd = &JobsRunner{}

type JobsRunner struct{}

func (r *JobsRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect persisted scheduler state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   consts.DefaultConfigPath(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List all persisted jobs",
				Action: r.list,
			},
		},
	}
}

func (r *JobsRunner) list(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jobs := sched.LoadJobsFromStore(storage.NewFile(cfg.Scheduler.StoreDir))
	fmt.Print(sched.FormatJobList(jobs))
	return nil
}
