//go:build !js && !tinygo && !cloudflare

// Command dashdeck exports dashboards to PDF decks
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joeblew999/dashdeck/handler"
	"github.com/joeblew999/dashdeck/internal/config"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "dashdeck",
		Short:         "Export dashboards to PDF slide decks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dashdeck v%s (native)\n", handler.Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./dashdeck.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.AddCommand(exportCmd, slidesCmd, serveCmd, versionCmd)
}

// setup loads config and builds the logger shared by every command
func setup() (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, closeLog := config.SetupLogger(cfg.Log.File, level)
	slog.SetDefault(logger)
	return cfg, logger, closeLog, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
