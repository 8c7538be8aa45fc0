package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/hooky/internal/tui/watch"
)

var (
	watchURL     string
	watchWebhook string
	watchToken   string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Follow a webhook's captured requests in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if watchWebhook == "" {
				return errors.New("--webhook is required")
			}
			client := watch.NewClient(watchURL, watchWebhook, watchToken)
			p := tea.NewProgram(watch.New(client), tea.WithContext(c.Context()))
			_, err := p.Run()
			return err
		},
	}
)

var (
	versionJSON bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			info := currentVersionInfo()
			if versionJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintf(c.OutOrStdout(), "hooky %s\ncommit: %s\n", info.Version, info.Commit)
			return nil
		},
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:3000", "hooky server base URL")
	watchCmd.Flags().StringVar(&watchWebhook, "webhook", "", "webhook id to follow")
	watchCmd.Flags().StringVar(&watchToken, "token", os.Getenv("HOOKY_TOKEN"), "bearer token for private webhooks")

	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output as JSON")
}
