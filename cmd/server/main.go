//go:build !js && !tinygo && !cloudflare

// Host server: the export API backed by local storage and badger
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeblew999/dashdeck/internal/app"
	"github.com/joeblew999/dashdeck/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Config file (default ./dashdeck.yml)")
		addr       = flag.String("addr", "", "Listen address, overrides server.addr")
	)
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger, closeLog := config.SetupLogger(cfg.Log.File, level)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("dashdeck server",
		"storage", cfg.Storage.Dir,
		"kv", cfg.KV.Path,
		"backend", cfg.Capture.Backend,
		"settle", cfg.Capture.Settle,
	)
	return a.Serve(ctx, cfg.Server.Addr, logger)
}
