// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/frameport/lib/framerec"
	"github.com/bureau-foundation/frameport/lib/process"
	"github.com/bureau-foundation/frameport/lib/shm"
	"github.com/bureau-foundation/frameport/preview"
)

type watchOptions struct {
	service     string
	channel     string
	frames      int
	record      string
	compression string
	idle        time.Duration
}

func runWatch(ctx context.Context, args []string, out io.Writer) error {
	var options watchOptions
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flagSet.StringVar(&options.service, "service", "frameport.preview", "preview service name (leading / for a filesystem socket)")
	flagSet.StringVar(&options.channel, "channel", "", "channel id to request (required)")
	flagSet.IntVar(&options.frames, "frames", 0, "stop after this many frame updates (0 = until interrupted)")
	flagSet.StringVar(&options.record, "record", "", "append every frame to this framerec file")
	flagSet.StringVar(&options.compression, "compression", "zstd", "frame compression for --record: none, lz4, zstd, bg4-lz4")
	flagSet.DurationVar(&options.idle, "idle-timeout", 0, "fail if no message arrives within this long (0 = wait forever)")

	if err := parseFlags(flagSet, args, out); err != nil {
		if errors.Is(err, errHelpShown) {
			return nil
		}
		return err
	}
	if options.channel == "" {
		return process.WithCode(exitUsage, errors.New("--channel is required"))
	}
	if options.frames < 0 {
		return process.WithCode(exitUsage, fmt.Errorf("--frames must not be negative, got %d", options.frames))
	}
	compression, err := framerec.ParseCompression(options.compression)
	if err != nil {
		return process.WithCode(exitUsage, err)
	}

	return watch(ctx, options, compression, out)
}

// watcher tracks the surface currently held and the recording, if
// any.
type watcher struct {
	out      io.Writer
	surface  *shm.Surface
	recorder *framerec.Writer
	updates  int
	recorded int
}

func watch(ctx context.Context, options watchOptions, compression framerec.Compression, out io.Writer) (err error) {
	client, err := preview.Dial(options.service, options.channel)
	if err != nil {
		if errors.Is(err, preview.ErrServiceNotFound) {
			return process.WithCode(exitUnreachable, err)
		}
		return err
	}
	defer client.Close()

	w := &watcher{out: out}
	defer func() {
		if w.surface != nil {
			w.surface.Close()
		}
	}()

	if options.record != "" {
		file, createErr := os.Create(options.record)
		if createErr != nil {
			return fmt.Errorf("creating recording: %w", createErr)
		}
		buffered := bufio.NewWriter(file)
		defer func() {
			if flushErr := buffered.Flush(); flushErr != nil && err == nil {
				err = fmt.Errorf("writing recording: %w", flushErr)
			}
			if closeErr := file.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("closing recording: %w", closeErr)
			}
		}()

		w.recorder, err = framerec.NewWriter(buffered, compression)
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "connected to %s, channel %q\n", preview.SocketAddress(options.service), options.channel)

	for options.frames == 0 || w.updates < options.frames {
		receiveCtx, cancel := ctx, context.CancelFunc(func() {})
		if options.idle > 0 {
			receiveCtx, cancel = context.WithTimeout(ctx, options.idle)
		}
		event, err := client.Receive(receiveCtx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			fmt.Fprintln(out, "service closed the channel")
			w.finish(options)
			return nil
		case ctx.Err() != nil:
			w.finish(options)
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			w.finish(options)
			return fmt.Errorf("no message from service within %s", options.idle)
		default:
			return err
		}

		if err := w.handle(event); err != nil {
			return err
		}
	}
	w.finish(options)
	return nil
}

// handle applies one event. A new surface replaces the held one.
func (w *watcher) handle(event preview.Event) error {
	switch event.Kind {
	case preview.EventSetSurface:
		if w.surface != nil {
			w.surface.Close()
		}
		w.surface = event.Surface
		if w.surface == nil {
			fmt.Fprintln(w.out, "surface: none")
		} else {
			fmt.Fprintf(w.out, "surface: %d bytes\n", w.surface.Size())
		}
	case preview.EventFrameUpdated:
		w.updates++
		if w.recorder == nil || w.surface == nil {
			return nil
		}
		digest, err := w.recorder.WriteFrame(w.surface.Bytes())
		if err != nil {
			return fmt.Errorf("recording frame %d: %w", w.updates, err)
		}
		w.recorded++
		fmt.Fprintf(w.out, "frame %d: %s\n", w.updates, digest.String()[:16])
	}
	return nil
}

// finish prints the summary.
func (w *watcher) finish(options watchOptions) {
	fmt.Fprintf(w.out, "frames: %d\n", w.updates)
	if w.recorder != nil {
		fmt.Fprintf(w.out, "recorded %d frames to %s\n", w.recorded, options.record)
	}
}
