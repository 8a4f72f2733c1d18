// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for frameport
// binaries: error reporting to stderr before the structured logger
// exists, and mapping run() errors to exit codes.
package process
