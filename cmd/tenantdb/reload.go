package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newReloadCmd() *cobra.Command {
	var (
		addr    string
		pending bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running daemon to re-provision tenants from the record store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/admin/reload"
			if pending {
				path = "/admin/provision"
			}
			url := strings.TrimSuffix(addr, "/") + path

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			fmt.Fprint(cmd.OutOrStdout(), string(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "daemon base URL")
	cmd.Flags().BoolVar(&pending, "pending", false, "only provision directory and pre-registered tenants not yet active")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "request timeout")
	return cmd
}
