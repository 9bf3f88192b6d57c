// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds build information for the shopkeep binaries.
//
// The variables are injected with -ldflags -X at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/shopkeep/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without injection they read "unknown" and "0.1.0-dev".
package version
