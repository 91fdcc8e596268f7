package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/control"
	"github.com/shotspool/shotspool/agent/internal/spool"
)

func spoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: "Inspect or clear the local spool",
		Long: `Inspect or clear the local spool. When the config enables the control API
the running agent is asked; otherwise the spool directory is read directly.`,
	}
	cmd.AddCommand(spoolListCmd(), spoolClearCmd())
	return cmd
}

func spoolListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending items, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadOrDefault(configPath)

			var resp control.SpoolResponse
			if addr := cfg.Agent.Control.ListenAddr; addr != "" {
				if err := controlCall(addr, "GET", "/api/v1/spool", &resp); err != nil {
					return err
				}
			} else {
				st, err := spool.Open(cfg.Agent.Spool.Dir, cfg.Agent.Spool.MaxFiles)
				if err != nil {
					return err
				}
				entries, err := st.ListPending()
				if err != nil {
					return err
				}
				resp.Count, resp.Max = len(entries), st.MaxFiles()
				for _, e := range entries {
					resp.Bytes += e.Size
					resp.Items = append(resp.Items, control.SpoolItem{
						Name:       e.Name,
						SourceID:   e.Key.SourceID,
						CapturedAt: e.Key.CaptureTime,
						Size:       e.Size,
						Parsed:     e.Parsed,
					})
				}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAPTURED\tSOURCE\tSIZE\tNAME")
			for _, it := range resp.Items {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
					it.CapturedAt.Format(time.RFC3339Nano), it.SourceID, it.Size, it.Name)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d items, %d bytes\n", resp.Count, resp.Max, resp.Bytes)
			return nil
		},
	}
}

func spoolClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every pending item without delivering it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop undelivered captures without --yes")
			}
			cfg := config.LoadOrDefault(configPath)

			var resp control.ClearResponse
			if addr := cfg.Agent.Control.ListenAddr; addr != "" {
				if err := controlCall(addr, "DELETE", "/api/v1/spool", &resp); err != nil {
					return err
				}
			} else {
				st, err := spool.Open(cfg.Agent.Spool.Dir, cfg.Agent.Spool.MaxFiles)
				if err != nil {
					return err
				}
				n, err := st.Clear()
				if err != nil {
					return err
				}
				resp.Removed = n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d items\n", resp.Removed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
