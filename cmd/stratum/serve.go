package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/stratum/pkg/api"
	"github.com/cuemby/stratum/pkg/config"
	"github.com/cuemby/stratum/pkg/engine"
	"github.com/cuemby/stratum/pkg/executor"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/log"
	"github.com/cuemby/stratum/pkg/metrics"
	"github.com/cuemby/stratum/pkg/processing"
	"github.com/cuemby/stratum/pkg/scheduler"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/cuemby/stratum/pkg/webhook"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	dataDir       string
	httpAddr      string
	webhookURL    string
	webhookAuth   string
	autoUpgrade   bool
	maxBatchTasks int
	maxTasks      int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler daemon and its HTTP surface",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.dataDir, "data-dir", "./data.stratum", "root directory for every on-disk store")
	serveCmd.Flags().StringVar(&serveFlags.httpAddr, "http-addr", ":7700", "address the HTTP surface listens on")
	serveCmd.Flags().StringVar(&serveFlags.webhookURL, "webhook-url", "", "CLI-configured webhook endpoint, notified after every batch")
	serveCmd.Flags().StringVar(&serveFlags.webhookAuth, "webhook-authorization", "", "Authorization header value sent with CLI webhook deliveries")
	serveCmd.Flags().BoolVar(&serveFlags.autoUpgrade, "auto-upgrade", false, "allow starting against an on-disk schema version with a different major version; the upgrade runs as an enqueued task")
	serveCmd.Flags().IntVar(&serveFlags.maxBatchTasks, "max-batched-tasks", 0, "override the autobatcher's task-count ceiling (0 keeps the default)")
	serveCmd.Flags().IntVar(&serveFlags.maxTasks, "max-tasks", 0, "override the queue's auto-cleanup ceiling (0 keeps the default)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("main")
	metrics.SetVersion(Version)

	opts := config.Default(serveFlags.dataDir)
	opts.CLIWebhookURL = serveFlags.webhookURL
	opts.CLIWebhookAuthorization = serveFlags.webhookAuth
	opts.AutoUpgrade = serveFlags.autoUpgrade
	if serveFlags.maxBatchTasks > 0 {
		opts.MaxNumberOfBatchedTasks = serveFlags.maxBatchTasks
	}
	if serveFlags.maxTasks > 0 {
		opts.MaxNumberOfTasks = serveFlags.maxTasks
	}

	for _, dir := range []string{opts.TasksPath, opts.UpdateFilePath, opts.IndexesPath, opts.SnapshotsPath, opts.DumpsPath} {
		if err := os.MkdirAll(filepath.Join(opts.DataDir, dir), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	vs, onDisk, err := versioning.Open(filepath.Join(opts.DataDir, opts.VersionFilePath))
	if err != nil {
		return fmt.Errorf("opening version file: %w", err)
	}
	if err := versioning.Check(onDisk, opts.AutoUpgrade); err != nil {
		return fmt.Errorf("%w (run stratum-migrate, or pass --auto-upgrade)", err)
	}

	store, err := storage.NewBoltStore(filepath.Join(opts.DataDir, opts.TasksPath), opts.TaskDBSize)
	if err != nil {
		metrics.RegisterComponent("task_store", false, err.Error())
		return fmt.Errorf("opening task store: %w", err)
	}
	metrics.RegisterComponent("task_store", true, "opened")

	eng := engine.New(filepath.Join(opts.DataDir, opts.IndexesPath))
	mapper := indexmapper.New(eng, opts.IndexCount)
	metrics.RegisterComponent("index_mapper", true, "ready")

	proc := processing.New()
	ex := executor.New(store, mapper, eng, proc, opts, vs)

	if versioning.NeedsUpgrade(onDisk) {
		if _, err := store.Register(&types.Task{
			Kind:    types.KindUpgradeDatabase,
			Content: &types.UpgradeDatabase{From: onDisk},
		}, nil, false); err != nil {
			return fmt.Errorf("registering upgrade task: %w", err)
		}
		logger.Warn().Interface("from", onDisk).Msg("on-disk schema version differs; upgrade task enqueued")
	}

	var endpoints []webhook.Endpoint
	if opts.CLIWebhookURL != "" {
		endpoints = append(endpoints, webhook.Endpoint{URL: opts.CLIWebhookURL, Authorization: opts.CLIWebhookAuthorization})
	}
	notifier := webhook.New(endpoints, opts.WebhookTimeout)
	notifier.Start()

	sched := scheduler.New(store, mapper, proc, ex, notifier, opts)
	sched.Start()
	metrics.RegisterComponent("scheduler", true, "started")

	collector := metrics.NewCollector(store)
	collector.Start()

	server := api.NewServer(store, sched, opts, serveFlags.httpAddr)
	server.Start()
	logger.Info().Str("addr", serveFlags.httpAddr).Str("data_dir", opts.DataDir).Msg("stratum serving")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown did not complete cleanly")
	}
	sched.Stop()
	notifier.Stop()
	collector.Stop()
	return store.Close()
}
