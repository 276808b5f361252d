package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newHealthcheckCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe the readiness endpoint of a running server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runHealthcheck(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/health/ready", "readiness URL")
	return cmd
}

func runHealthcheck(url string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url) // #nosec G107 -- operator supplied probe URL.
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}
