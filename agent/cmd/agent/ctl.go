package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/control"
)

func pipelineCmd(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.LoadOrDefault(configPath)
			addr := cfg.Agent.Control.ListenAddr
			if addr == "" {
				return fmt.Errorf("control API disabled: set agent.control.listen_addr in %s", configPath)
			}
			var resp control.CommandResponse
			if err := controlCall(addr, "POST", "/api/v1/pipeline/"+name, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Command, resp.Status)
			return nil
		},
	}
}

// controlCall sends one request to the local control API and decodes the
// JSON answer into out.
func controlCall(addr, method, path string, out interface{}) error {
	base := addr
	if !strings.Contains(base, "://") {
		if strings.HasPrefix(base, ":") {
			base = "127.0.0.1" + base
		}
		base = "http://" + base
	}

	resp, err := resty.New().
		SetTimeout(10*time.Second).
		R().
		Execute(method, strings.TrimSuffix(base, "/")+path)
	if err != nil {
		return fmt.Errorf("control API %s: %w", addr, err)
	}
	if resp.IsError() {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		if e.Error == "" {
			e.Error = resp.Status()
		}
		return fmt.Errorf("control API %s %s: %s", method, path, e.Error)
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("control API %s %s: decode: %w", method, path, err)
	}
	return nil
}
