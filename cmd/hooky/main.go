package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/mattjoyce/hooky/internal/config"
	"github.com/mattjoyce/hooky/internal/log"
)

var (
	// Version is set via ldflags when building.
	Version = ""
	// CommitSHA is set via ldflags when building.
	CommitSHA = ""

	configPath string

	rootCmd = &cobra.Command{
		Use:          "hooky",
		Short:        "Capture and inspect webhook requests",
		Long:         "Hooky hands out capture URLs, records every request sent to them and streams them live to viewers.",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("HOOKY_CONFIG"), "path to config file")
	rootCmd.AddCommand(
		serveCmd,
		sweepCmd,
		userCmd,
		watchCmd,
		versionCmd,
	)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	if Version == "" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
			Version = info.Main.Version
		} else {
			Version = "unknown (built from source)"
		}
	}
	rootCmd.Version = Version
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("couldn't set automaxprocs", "error", err)
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

type versionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func currentVersionInfo() versionInfo {
	info := versionInfo{Version: strings.TrimSpace(Version), Commit: strings.TrimSpace(CommitSHA)}
	if info.Commit == "" {
		info.Commit = readBuildSetting("vcs.revision")
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}
