// Command tasksupervisord is the task supervisor daemon and CLI: a `serve`
// subcommand runs the HTTP control plane and the guardian loop; a `task`
// subcommand group is a thin client of a running daemon.
//
// Grounded on the teacher's cmd/provisr/main.go buildRoot/cobra wiring,
// simplified to this spec's two command families (no auth/cron/group/
// template commands, which this core does not implement).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/procpanel/tasksupervisor/internal/config"
	"github.com/procpanel/tasksupervisor/internal/guardian"
	"github.com/procpanel/tasksupervisor/internal/history"
	"github.com/procpanel/tasksupervisor/internal/httpapi"
	"github.com/procpanel/tasksupervisor/internal/metrics"
	"github.com/procpanel/tasksupervisor/internal/registry"
	"github.com/procpanel/tasksupervisor/internal/slogx"
	"github.com/procpanel/tasksupervisor/internal/supervisor"
	"github.com/procpanel/tasksupervisor/internal/taskstore"
	"github.com/procpanel/tasksupervisor/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "tasksupervisord",
		Short: "Task supervisor: HTTP-controlled process supervision with auto-restart",
		Long: `tasksupervisord runs a REST API for registering, starting, stopping, and
restarting local commands ("tasks"), with bounded startup validation, rolling
log capture, and an auto-restart guardian loop.

Examples:
  tasksupervisord serve
  tasksupervisord task list --api-url=http://localhost:3001/api
  tasksupervisord task start t1 --api-url=http://localhost:3001/api`,
	}
	root.AddCommand(createServeCommand(), createTaskCommand())
	return root
}

func createServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP control plane and guardian loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slogx.New(os.Stdout, slogx.FileConfig{Path: cfg.LogPath})
	logger.Info("starting tasksupervisord", "base_dir", cfg.BaseDir, "port", cfg.Port)

	taskDir, err := config.TaskDir(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("ensure task dir: %w", err)
	}
	store := taskstore.New(filepath.Join(taskDir, "tasks.json"), logger)

	reg := registry.New()
	sup := supervisor.New(store, reg, cfg.BaseDir, logger)

	if hist, herr := history.Open(filepath.Join(taskDir, "history.db")); herr != nil {
		logger.Warn("history sink unavailable, lifecycle events will not be recorded", "error", herr)
	} else {
		sup.SetHistorySink(hist)
		defer func() { _ = hist.Close() }()
	}

	mx := metrics.New()
	if err := mx.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("metrics registration failed", "error", err)
	}

	g := guardian.New(store, reg, sup, time.Duration(cfg.GuardianTick)*time.Second, logger)
	g.OnRestartSuccess(func(id string) { mx.GuardianRestartsTotal.Inc() })
	g.OnRestartFailure(func(id string) { mx.GuardianFailuresTotal.Inc() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)
	go runTasksRunningCollector(ctx, reg, mx)

	router := httpapi.New(store, sup, mx, g)
	server, addr, err := httpapi.ListenWithFallback(cfg.Port, cfg.PortSearchMax, router)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("listening", "addr", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	sup.ShutdownAll()
	logger.Info("shutdown complete")
	return nil
}

// runTasksRunningCollector periodically refreshes the tasks_running gauge
// from the registry's live entries, following the teacher's
// internal/metrics/process_metrics.go ticker-driven gauge refresh rather than
// updating the gauge inline at every MarkExited call site (which fires from
// more than one racing goroutine per logical transition).
func runTasksRunningCollector(ctx context.Context, reg *registry.Registry, mx *metrics.Metrics) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		mx.TasksRunning.Set(float64(reg.RunningCount()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func createTaskCommand() *cobra.Command {
	var apiURL string
	task := &cobra.Command{
		Use:   "task",
		Short: "Interact with a running tasksupervisord daemon",
	}
	task.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:3001/api", "daemon API base URL")

	task.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all tasks",
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(apiURL, 0)
				tasks, err := c.List()
				if err != nil {
					return err
				}
				for _, t := range tasks {
					fmt.Printf("%s\t%s\t%s\n", t.ID, t.Name, t.StartCommand)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "start <id>",
			Short: "Start a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(apiURL, 0)
				pid, err := c.Start(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("started, pid=%d\n", pid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop <id>",
			Short: "Stop a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(apiURL, 0)
				return c.Stop(args[0])
			},
		},
		&cobra.Command{
			Use:   "restart <id>",
			Short: "Restart a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(apiURL, 0)
				pid, err := c.Restart(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("restarted, pid=%d\n", pid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "logs <id>",
			Short: "Show captured stdout/stderr for a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := client.New(apiURL, 0)
				stdout, stderr, err := c.Logs(args[0])
				if err != nil {
					return err
				}
				for _, line := range stdout {
					fmt.Println("out:", line)
				}
				for _, line := range stderr {
					fmt.Println("err:", line)
				}
				return nil
			},
		},
	)
	return task
}
