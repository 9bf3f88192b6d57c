// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps the bot's Matrix access token out of the Go
// heap.
//
// A Buffer is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks,
// and unmaps it. The token only becomes a heap string at the HTTP
// header boundary.
package secret
