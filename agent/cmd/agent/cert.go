package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/security"
)

func certCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "Show the collector's TLS certificate status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadOrDefault(configPath)
			cs := security.Check(cmd.Context(), cfg.Agent)
			if cs == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "collector is not served over https")
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cs)
		},
	}
}
