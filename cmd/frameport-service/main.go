// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frameport/lib/clock"
	"github.com/bureau-foundation/frameport/lib/config"
	"github.com/bureau-foundation/frameport/lib/process"
	"github.com/bureau-foundation/frameport/lib/service"
	"github.com/bureau-foundation/frameport/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var configPath string
	var logLevel string
	var showVersion bool

	flagSet := pflag.NewFlagSet("frameport-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $FRAMEPORT_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return process.WithCode(2, err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("frameport-service %s\n", version.Full())
		return nil
	}
	if flagSet.NArg() > 0 {
		return process.WithCode(2, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0)))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := service.ParseLevel(cfg.LogLevel)
	if err != nil {
		return process.WithCode(2, err)
	}
	logger := service.NewLogger(level)

	if err := cfg.EnsureStatusDirectory(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}

	logger.Info("frameport service running",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"service", cfg.Service.Name,
		"mixers", len(cfg.Mixers),
	)
	return d.run(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `frameport-service: preview hand-off daemon.

Renders a test pattern for each configured mixer and hands the
shared-memory surface to clients that connect with the mixer's id as
their channel id.

Usage:
  frameport-service [flags]

Examples:
  # Run with the config named by FRAMEPORT_CONFIG
  frameport-service

  # Run with an explicit config and debug logging
  frameport-service --config /etc/frameport/frameport.yaml --log-level debug

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
