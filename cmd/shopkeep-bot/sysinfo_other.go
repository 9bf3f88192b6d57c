// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package main

import "runtime"

type hostInfo struct {
	system      string
	release     string
	memoryTotal uint64
	memoryFree  uint64
	diskTotal   uint64
	diskFree    uint64
	load1       float64
}

func readHostInfo() hostInfo {
	return hostInfo{system: runtime.GOOS, load1: -1}
}
