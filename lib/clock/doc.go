// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Components that sleep, tick, or timestamp take a [Clock] instead of
// calling the time package. Production wiring passes [Real]; tests pass
// [Fake], which only moves when the test calls Advance:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go renderLoop(ctx, c)
//	c.WaitForTimers(1)          // loop has registered its ticker
//	c.Advance(time.Second / 30) // deliver exactly one tick
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing past it.
//
// Socket write deadlines are the one place real time is used directly:
// the kernel compares them against the monotonic clock, so a fake
// clock cannot drive them.
package clock
