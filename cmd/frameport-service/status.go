// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/bureau-foundation/frameport/lib/service"
	"github.com/bureau-foundation/frameport/lib/version"
	"github.com/bureau-foundation/frameport/preview"
)

// statusResponse is the CBOR response for the "status" action.
type statusResponse struct {
	Build         version.Build `cbor:"build"`
	Environment   string        `cbor:"environment"`
	Service       preview.Stats `cbor:"service"`
	Mixers        []mixerStatus `cbor:"mixers"`
	UptimeSeconds float64       `cbor:"uptime_seconds"`
}

// mixerStatus reports one mixer's render progress and audience.
type mixerStatus struct {
	ID       string `cbor:"id"`
	Width    int    `cbor:"width"`
	Height   int    `cbor:"height"`
	FPS      int    `cbor:"fps"`
	Pattern  string `cbor:"pattern"`
	Frames   uint64 `cbor:"frames"`
	Sessions int    `cbor:"sessions"`
}

// sessionsResponse is the CBOR response for the "sessions" action.
type sessionsResponse struct {
	Sessions []preview.SessionInfo `cbor:"sessions"`
}

func (d *daemon) registerActions(server *service.SocketServer) {
	server.Handle("status", d.handleStatus)
	server.Handle("sessions", d.handleSessions)
}

func (d *daemon) handleStatus(_ context.Context, _ []byte) (any, error) {
	mixers := make([]mixerStatus, 0, len(d.mixers))
	for _, m := range d.mixers {
		mixers = append(mixers, mixerStatus{
			ID:       m.config.ID,
			Width:    m.config.Width,
			Height:   m.config.Height,
			FPS:      m.config.FPS,
			Pattern:  m.config.Pattern,
			Frames:   m.Frames(),
			Sessions: m.source.Len(),
		})
	}

	return statusResponse{
		Build:         version.Current(),
		Environment:   string(d.config.Environment),
		Service:       d.service.Stats(),
		Mixers:        mixers,
		UptimeSeconds: d.clock.Now().Sub(d.startedAt).Seconds(),
	}, nil
}

func (d *daemon) handleSessions(_ context.Context, _ []byte) (any, error) {
	return sessionsResponse{Sessions: d.service.Sessions()}, nil
}
