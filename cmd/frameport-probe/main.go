// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/frameport/lib/process"
	"github.com/bureau-foundation/frameport/lib/version"
)

const (
	exitUsage       = 2
	exitUnreachable = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return process.WithCode(exitUsage, fmt.Errorf("no subcommand given"))
	}

	switch args[0] {
	case "watch":
		return runWatch(ctx, args[1:], out)
	case "status":
		return runStatus(ctx, args[1:], out)
	case "version", "--version":
		fmt.Fprintf(out, "frameport-probe %s\n", version.Full())
		return nil
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(os.Stderr)
		return process.WithCode(exitUsage, fmt.Errorf("unknown subcommand %q", args[0]))
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `frameport-probe: diagnostic client for frameport-service.

Usage:
  frameport-probe watch --channel ID [--service NAME] [--frames N] [--record FILE] [--compression zstd|lz4|bg4-lz4|none]
  frameport-probe status [--socket PATH] [--sessions] [--raw]
  frameport-probe version

Examples:
  # Count frames from the program mixer until interrupted
  frameport-probe watch --channel program

  # Record 100 frames with zstd compression
  frameport-probe watch --channel program --frames 100 --record program.fprc

  # Show service counters and the session list
  frameport-probe status --sessions

Run "frameport-probe <subcommand> --help" for flags.
`)
}
