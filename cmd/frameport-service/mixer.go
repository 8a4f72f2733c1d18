// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bureau-foundation/frameport/lib/clock"
	"github.com/bureau-foundation/frameport/lib/config"
	"github.com/bureau-foundation/frameport/lib/shm"
	"github.com/bureau-foundation/frameport/preview"
)

// mixer renders a test pattern into its own surface and publishes it
// through a preview.Source. Only the goroutine in run writes to the
// surface; the memfd is sealed so clients can only map it read-only.
type mixer struct {
	config  config.MixerConfig
	source  *preview.Source
	surface *shm.Surface
	render  renderFunc
	clock   clock.Clock
	logger  *slog.Logger

	frames atomic.Uint64
}

func newMixer(cfg config.MixerConfig, clk clock.Clock, logger *slog.Logger) (*mixer, error) {
	render, ok := patterns[cfg.Pattern]
	if !ok {
		return nil, fmt.Errorf("unknown pattern %q", cfg.Pattern)
	}

	surface, err := shm.Create("frameport-"+cfg.ID, cfg.FrameSize())
	if err != nil {
		return nil, err
	}

	m := &mixer{
		config:  cfg,
		source:  preview.NewSource(cfg.ID),
		surface: surface,
		render:  render,
		clock:   clk,
		logger:  logger,
	}
	// Clients attached before the first tick see frame zero rather
	// than an empty buffer.
	m.render(surface.Bytes(), cfg.Width, cfg.Height, 0)
	if err := m.source.Publish(surface); err != nil {
		return nil, err
	}
	return m, nil
}

// run renders one frame per tick until ctx is done.
func (m *mixer) run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.config.FrameInterval())
	defer ticker.Stop()

	m.logger.Debug("mixer rendering",
		"width", m.config.Width,
		"height", m.config.Height,
		"fps", m.config.FPS,
		"pattern", m.config.Pattern,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.renderFrame()
		}
	}
}

// renderFrame draws the next frame and tells attached clients.
func (m *mixer) renderFrame() {
	frame := m.frames.Add(1)
	m.render(m.surface.Bytes(), m.config.Width, m.config.Height, frame)
	m.source.FrameRendered()
}

// Frames returns the number of frames rendered since start.
func (m *mixer) Frames() uint64 {
	return m.frames.Load()
}

// close detaches every client and releases the surface. run must have
// returned.
func (m *mixer) close() error {
	return m.source.Close()
}
