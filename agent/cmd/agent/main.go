package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "shotspool-agent",
	Short: "Capture the screen periodically and deliver it to a collector",
	Long: `shotspool-agent captures the screen on a fixed interval and uploads each
frame to a collector. Frames that cannot be delivered are kept in a bounded
local spool and sent, oldest first, once the collector is reachable again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(spoolCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(pipelineCmd("pause", "Stop new captures on a running agent"))
	rootCmd.AddCommand(pipelineCmd("resume", "Restart captures on a running agent"))
	rootCmd.AddCommand(pipelineCmd("drain", "Deliver the spool now if the collector is reachable"))
	rootCmd.AddCommand(pipelineCmd("reload", "Re-read the config file on a running agent"))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "shotspool-agent", version)
		},
	})
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
