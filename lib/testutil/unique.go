// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-<pid>-N" with N increasing on every call.
// The pid keeps names distinct across test binaries running at the
// same time, which matters for abstract socket names.
//
//	name := testutil.UniqueID("svc.test") // "svc.test-4242-1"
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, os.Getpid(), uniqueCounter.Add(1))
}
