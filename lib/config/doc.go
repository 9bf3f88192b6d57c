// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads shopkeep's configuration.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the SHOPKEEP_CONFIG environment variable (via
// [Load]). There is no discovery and no search path. The file format
// follows the extension: .yaml and .yml are YAML, .json and .jsonc are
// JSON with comments and trailing commas allowed.
//
// After the file is decoded over [Default], SHOPKEEP_* environment
// variables override individual fields (SHOPKEEP_ADMIN_ID,
// SHOPKEEP_LIVE_STOCK_INTERVAL, SHOPKEEP_IMPORT_ALLOWED_EXTENSIONS, and
// so on, following the struct layout). Durations are written as Go
// duration strings ("15s") in every source.
//
// [Config.Validate] must pass before the configuration is used.
package config
