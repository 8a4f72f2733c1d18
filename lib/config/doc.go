// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads frameport-service configuration.
//
// Configuration comes from a single file named by either the
// FRAMEPORT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search, so the file on disk is the whole story.
//
// Files are YAML. A file ending in .json or .jsonc is read as JSON
// with comments and trailing commas allowed.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production turns debug logging off
// unless the file says otherwise.
//
// ${VAR} and ${VAR:-default} patterns are expanded in the status
// socket path and the service name. No environment
// variable overrides a config value directly.
//
// This package depends on no other frameport packages.
package config
