// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import "golang.org/x/sys/unix"

// hostInfo is what systeminfo reports about the machine. Zero sizes
// and a negative load mean unknown.
type hostInfo struct {
	system      string
	release     string
	memoryTotal uint64
	memoryFree  uint64
	diskTotal   uint64
	diskFree    uint64
	load1       float64
}

// sysinfoLoadScale is the fixed-point scale of sysinfo(2) load averages.
const sysinfoLoadScale = 1 << 16

func readHostInfo() hostInfo {
	host := hostInfo{system: "Linux", load1: -1}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		host.system = unix.ByteSliceToString(uts.Sysname[:])
		host.release = unix.ByteSliceToString(uts.Release[:])
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		unit := uint64(info.Unit)
		if unit == 0 {
			unit = 1
		}
		host.memoryTotal = uint64(info.Totalram) * unit
		host.memoryFree = (uint64(info.Freeram) + uint64(info.Bufferram)) * unit
		host.load1 = float64(info.Loads[0]) / sysinfoLoadScale
	}

	var fs unix.Statfs_t
	if err := unix.Statfs("/", &fs); err == nil {
		blockSize := uint64(fs.Bsize)
		host.diskTotal = uint64(fs.Blocks) * blockSize
		host.diskFree = uint64(fs.Bavail) * blockSize
	}
	return host
}
