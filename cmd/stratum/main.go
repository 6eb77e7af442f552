// Command stratum runs the task scheduler daemon: the HTTP surface, the
// run loop, and every collaborator they need, wired together the way
// cmd/warren wired a cluster manager in the teacher repo.
package main

import (
	"fmt"
	"os"

	"github.com/cuemby/stratum/pkg/log"
	"github.com/spf13/cobra"
)

// Version, Commit, and BuildTime are set via -ldflags at release build
// time; a `go build` without flags keeps the defaults below.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "stratum",
	Short: "Stratum is an embeddable, durable task scheduler",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON instead of console output")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stratum %s (%s) built %s\n", Version, Commit, BuildTime)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
