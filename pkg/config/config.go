// Package config defines Stratum's runtime configuration, the Go analogue
// of index-scheduler's IndexSchedulerOptions, wired through cobra/pflag
// flags in cmd/stratum.
package config

import "time"

// Options configures every path, budget, and policy flag the scheduler
// needs at construction time.
type Options struct {
	// Paths; cmd/stratum joins every one of them onto DataDir.
	DataDir         string
	VersionFilePath string
	TasksPath       string
	UpdateFilePath  string
	IndexesPath     string
	SnapshotsPath   string
	DumpsPath       string

	// Webhooks configured at startup via CLI flags, independent of any
	// webhooks registered later through the API.
	CLIWebhookURL           string
	CLIWebhookAuthorization string

	// Storage budgets.
	TaskDBSize        int64
	IndexBaseMapSize  int64
	IndexGrowthAmount int64
	IndexCount        int

	// Batching policy.
	AutobatchingEnabled     bool
	MaxNumberOfBatchedTasks int
	BatchedTasksSizeLimit   int64

	// Queue cleanup.
	CleanupEnabled   bool
	MaxNumberOfTasks int

	// Schema migration.
	AutoUpgrade bool

	// Run loop.
	WakeUpTimeout      time.Duration
	IrrecoverableSleep time.Duration

	// Webhook delivery.
	WebhookTimeout time.Duration
}

// Default returns the baseline configuration used when no flags override
// it, mirroring the constants index-scheduler falls back to.
func Default(dataDir string) Options {
	return Options{
		DataDir:         dataDir,
		VersionFilePath: "VERSION",
		TasksPath:       "tasks",
		UpdateFilePath:  "update_files",
		IndexesPath:     "indexes",
		SnapshotsPath:   "snapshots",
		DumpsPath:       "dumps",

		TaskDBSize:        1 << 30, // 1 GiB
		IndexBaseMapSize:  100 << 20,
		IndexGrowthAmount: 100 << 20,
		IndexCount:        20,

		AutobatchingEnabled:     true,
		MaxNumberOfBatchedTasks: 1000,
		BatchedTasksSizeLimit:   1 << 30,

		CleanupEnabled:   true,
		MaxNumberOfTasks: 1_000_000,

		AutoUpgrade: false,

		WakeUpTimeout:      60 * time.Second,
		IrrecoverableSleep: 10 * time.Second,
		WebhookTimeout:     30 * time.Second,
	}
}
