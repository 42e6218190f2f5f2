package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/tickloop/tickloop/internal/config"
	"github.com/tickloop/tickloop/internal/consts"
	"github.com/tickloop/tickloop/internal/pkg/logs"
	"github.com/tickloop/tickloop/internal/pkg/metrics"
	"github.com/tickloop/tickloop/internal/sched"
	"github.com/tickloop/tickloop/internal/storage"
)

var runHwd = &RunRunner{}

type RunRunner struct{}

func (r *RunRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the scheduler daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   consts.DefaultConfigPath(),
			},
		},
		Action: r.run,
	}
}

func (r *RunRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logs.Init(logs.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	profile := sched.ProfileGeneric
	if cfg.Scheduler.Profile == "mobile" {
		profile = sched.ProfileMobile
	}

	scheduler, err := sched.NewScheduler(sched.Options{
		Storage:     storage.NewFile(cfg.Scheduler.StoreDir),
		Bridge:      &logBridge{},
		Profile:     profile,
		InitialMode: sched.Mode(cfg.Scheduler.Mode),
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	scheduler.Start(ctx)

	if bind := cfg.Scheduler.MetricsBind; bind != "" {
		go serveMetrics(ctx, bind)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(stopCtx)
	logs.Flush()
	return nil
}

func serveMetrics(ctx context.Context, bind string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	logs.CtxInfo(ctx, "[metrics] serving on %s", bind)
	if err := http.ListenAndServe(bind, mux); err != nil {
		logs.CtxWarn(ctx, "[metrics] server stopped: %v", err)
	}
}

// logBridge surfaces scheduler events on the daemon log. A host application
// embedding the engine would supply its own bridge instead.
type logBridge struct{}

func (b *logBridge) JobFired(ev sched.FiredEvent) {
	logs.Info("[event] job fired: %s (%s) source=%s", ev.Name, ev.ID, ev.Source)
}

func (b *logBridge) JobSkipped(ev sched.SkipEvent) {
	logs.Info("[event] job skipped: %s (%s) reason=%s", ev.Name, ev.ID, ev.Reason)
}

func (b *logBridge) OverdueOnResume(jobs []sched.OverdueJob) {
	logs.Info("[event] %d overdue job(s) on resume", len(jobs))
	for _, j := range jobs {
		logs.Info("[event]   %s overdue by %dms", j.Name, j.OverdueMs)
	}
}

func (b *logBridge) StatusChanged(st sched.Status) {
	logs.Info("[event] status: paused=%v mode=%s enabled=%d", st.Paused, st.Mode, st.EnabledJobs)
}
