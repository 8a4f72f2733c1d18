// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/frameport/lib/clock"
	"github.com/bureau-foundation/frameport/lib/config"
	"github.com/bureau-foundation/frameport/lib/service"
	"github.com/bureau-foundation/frameport/preview"
)

// daemon owns the preview service, the mixers, and the status socket.
// It is the preview.Handler for the service, so its handler methods
// run on the goroutine calling Service.Run.
type daemon struct {
	config    *config.Config
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time

	registry *preview.Registry
	service  *preview.Service

	// mixers is in config order; byID indexes the same values by
	// channel id.
	mixers []*mixer
	byID   map[string]*mixer

	// status is nil when no status socket is configured.
	status *service.SocketServer
}

// newDaemon claims the service name and allocates every mixer's
// surface. On failure everything acquired so far is released.
func newDaemon(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*daemon, error) {
	policy, err := preview.ParseReceiveErrorPolicy(cfg.Service.ReceiveErrors)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		config:    cfg,
		clock:     clk,
		logger:    logger,
		startedAt: clk.Now(),
		registry:  preview.NewRegistry(),
		byID:      make(map[string]*mixer, len(cfg.Mixers)),
	}

	for _, mixerConfig := range cfg.Mixers {
		m, err := newMixer(mixerConfig, clk, logger.With("mixer", mixerConfig.ID))
		if err != nil {
			d.closeMixers()
			return nil, fmt.Errorf("creating mixer %s: %w", mixerConfig.ID, err)
		}
		d.mixers = append(d.mixers, m)
		d.byID[mixerConfig.ID] = m
	}

	d.service, err = d.registry.Start(cfg.Service.Name, preview.Options{
		QueueCapacity: cfg.Service.QueueCapacity,
		SendTimeout:   cfg.Service.SendTimeout,
		ReceiveErrors: policy,
		RetryBackoff:  cfg.Service.RetryBackoff,
		Logger:        logger.With("service", cfg.Service.Name),
		Clock:         clk,
	})
	if err != nil {
		d.closeMixers()
		return nil, err
	}

	if cfg.Status.SocketPath != "" {
		d.status = service.NewSocketServer(cfg.Status.SocketPath, logger)
		d.registerActions(d.status)
	}

	return d, nil
}

// run serves until ctx is done or the preview listener dies, then
// shuts everything down. A dead listener is reported as an error so
// the process exits non-zero.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mixers sync.WaitGroup
	for _, m := range d.mixers {
		mixers.Add(1)
		go func() {
			defer mixers.Done()
			m.run(ctx)
		}()
	}

	statusDone := make(chan error, 1)
	if d.status != nil {
		go func() {
			statusDone <- d.status.Serve(ctx)
		}()
	} else {
		statusDone <- nil
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.service.Run(ctx, d)
	}()

	var result error
	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
	case <-d.service.Dead():
		result = fmt.Errorf("preview service %s stopped receiving requests", d.service.Name())
		d.logger.Error("preview listener died, shutting down", "service", d.service.Name())
	}
	cancel()

	if err := <-runDone; err != nil {
		result = errors.Join(result, err)
	}
	mixers.Wait()
	if err := <-statusDone; err != nil {
		d.logger.Error("status socket error", "error", err)
		result = errors.Join(result, err)
	}

	if err := d.service.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("closing preview service: %w", err))
	}
	d.closeSessions()
	d.closeMixers()
	return result
}

// SessionOpened attaches the session to the mixer named by its channel
// id. Unknown ids are turned away.
func (d *daemon) SessionOpened(session *preview.Session) {
	m, ok := d.byID[session.ChannelID()]
	if !ok {
		d.logger.Warn("no mixer for channel id, closing session",
			"session_id", session.ID().String(),
			"channel_id", session.ChannelID(),
		)
		session.Close()
		return
	}
	session.Attach(m.source)
	d.logger.Info("session attached",
		"session_id", session.ID().String(),
		"mixer", m.config.ID,
		"viewers", m.source.Len(),
	)
}

// SessionClosed releases a session whose client went away.
func (d *daemon) SessionClosed(session *preview.Session) {
	d.logger.Debug("releasing disconnected session",
		"session_id", session.ID().String(),
		"channel_id", session.ChannelID(),
	)
	session.Close()
}

// closeSessions closes every session still attached to a mixer. Run
// has returned by the time this is called.
func (d *daemon) closeSessions() {
	for _, m := range d.mixers {
		for _, session := range m.source.Sessions() {
			session.Close()
		}
	}
}

func (d *daemon) closeMixers() {
	for _, m := range d.mixers {
		if err := m.close(); err != nil {
			d.logger.Warn("closing mixer", "mixer", m.config.ID, "error", err)
		}
	}
}
