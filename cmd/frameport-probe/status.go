// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frameport/lib/codec"
	"github.com/bureau-foundation/frameport/lib/process"
	"github.com/bureau-foundation/frameport/lib/service"
	"github.com/bureau-foundation/frameport/lib/version"
	"github.com/bureau-foundation/frameport/preview"
)

// defaultStatusSocket mirrors the daemon's default status.socket_path.
func defaultStatusSocket() string {
	runDir := os.Getenv("FRAMEPORT_RUN_DIR")
	if runDir == "" {
		runDir = "/run/frameport"
	}
	return runDir + "/status.sock"
}

// serviceStatus is the subset of the daemon's status response the
// probe prints.
type serviceStatus struct {
	Build         version.Build `cbor:"build"`
	Environment   string        `cbor:"environment"`
	Service       preview.Stats `cbor:"service"`
	Mixers        []mixerStatus `cbor:"mixers"`
	UptimeSeconds float64       `cbor:"uptime_seconds"`
}

type mixerStatus struct {
	ID       string `cbor:"id"`
	Width    int    `cbor:"width"`
	Height   int    `cbor:"height"`
	FPS      int    `cbor:"fps"`
	Pattern  string `cbor:"pattern"`
	Frames   uint64 `cbor:"frames"`
	Sessions int    `cbor:"sessions"`
}

type sessionList struct {
	Sessions []preview.SessionInfo `cbor:"sessions"`
}

type statusOptions struct {
	socket   string
	sessions bool
	raw      bool
	timeout  time.Duration
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	var options statusOptions
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	flagSet.StringVar(&options.socket, "socket", defaultStatusSocket(), "status socket path")
	flagSet.BoolVar(&options.sessions, "sessions", false, "also list open sessions")
	flagSet.BoolVar(&options.raw, "raw", false, "print responses in CBOR diagnostic notation")
	flagSet.DurationVar(&options.timeout, "timeout", 10*time.Second, "request timeout")

	if err := parseFlags(flagSet, args, out); err != nil {
		if errors.Is(err, errHelpShown) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, options.timeout)
	defer cancel()
	client := service.NewClient(options.socket)

	actions := []string{"status"}
	if options.sessions {
		actions = append(actions, "sessions")
	}

	for _, action := range actions {
		raw, err := client.CallRaw(ctx, action)
		if err != nil {
			return classifyStatusError(options.socket, err)
		}
		if options.raw {
			diagnostic, err := codec.Diagnose(raw)
			if err != nil {
				return fmt.Errorf("decoding %s response: %w", action, err)
			}
			fmt.Fprintf(out, "%s: %s\n", action, diagnostic)
			continue
		}
		if err := printResponse(out, action, raw); err != nil {
			return err
		}
	}
	return nil
}

// classifyStatusError marks connection failures as unreachable.
func classifyStatusError(socket string, err error) error {
	var opErr *net.OpError
	if (errors.As(err, &opErr) && opErr.Op == "dial") ||
		errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
		return process.WithCode(exitUnreachable, fmt.Errorf("status socket %s unreachable: %w", socket, err))
	}
	return err
}

func printResponse(out io.Writer, action string, raw codec.RawMessage) error {
	switch action {
	case "status":
		var status serviceStatus
		if err := codec.Unmarshal(raw, &status); err != nil {
			return fmt.Errorf("decoding status response: %w", err)
		}
		printStatus(out, status)
	case "sessions":
		var list sessionList
		if err := codec.Unmarshal(raw, &list); err != nil {
			return fmt.Errorf("decoding sessions response: %w", err)
		}
		printSessions(out, list)
	}
	return nil
}

func printStatus(out io.Writer, status serviceStatus) {
	stats := status.Service
	state := "listening"
	if !stats.Listening {
		state = "dead"
	}
	fmt.Fprintf(out, "frameport-service %s (%s), up %s\n",
		status.Build.Version, status.Environment,
		(time.Duration(status.UptimeSeconds * float64(time.Second))).Round(time.Second))
	fmt.Fprintf(out, "service %s: %s, %d sessions, %d/%d pending\n",
		stats.Name, state, stats.Sessions, stats.Pending, stats.QueueCapacity)
	fmt.Fprintf(out, "requests: %d accepted, %d rejected, %d dropped, %d opened, %d disconnected, %d receive retries\n",
		stats.Accepted, stats.Rejected, stats.Dropped, stats.Opened, stats.Disconnected, stats.ReceiveRetries)
	for _, mixer := range status.Mixers {
		fmt.Fprintf(out, "mixer %s: %dx%d@%d %s, %d frames, %d viewers\n",
			mixer.ID, mixer.Width, mixer.Height, mixer.FPS, mixer.Pattern, mixer.Frames, mixer.Sessions)
	}
}

func printSessions(out io.Writer, list sessionList) {
	if len(list.Sessions) == 0 {
		fmt.Fprintln(out, "no open sessions")
		return
	}
	for _, session := range list.Sessions {
		source := session.Source
		if source == "" {
			source = "-"
		}
		failed := ""
		if session.Failed {
			failed = " (failed)"
		}
		fmt.Fprintf(out, "session %s channel=%q source=%s opened=%s%s\n",
			session.ID, session.ChannelID, source, session.OpenedAt.Format(time.RFC3339), failed)
	}
}
