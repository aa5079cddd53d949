package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func buildHealthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running instance's /healthz endpoint and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
			if err != nil {
				return fmt.Errorf("probing %s: %w", addr, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			var pretty map[string]any
			out := cmd.OutOrStdout()
			if err := json.Unmarshal(body, &pretty); err != nil {
				fmt.Fprintln(out, string(body))
			} else {
				encoded, _ := json.MarshalIndent(pretty, "", "  ")
				fmt.Fprintln(out, string(encoded))
			}

			if resp.StatusCode >= 500 {
				return fmt.Errorf("instance reported status code %d", resp.StatusCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8089", "host:port of the instance's health surface")
	return cmd
}
