// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for frameport packages.
//
// [SocketDir] creates a short temporary directory for Unix socket
// files. sun_path is limited to 108 bytes and t.TempDir() paths can
// exceed that under some build systems.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern so individual tests never call
// time.After directly. They are the only place test code waits on
// wall-clock time.
//
// [UniqueID] generates distinct names, used for abstract socket names
// so parallel tests never collide in the shared namespace.
//
// All helpers call t.Fatalf on failure.
package testutil
