// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for shopkeep.
//
// Components that schedule work (the live stock synchronizer, the
// confirmation gate, the progress reporter, the command sync loop)
// hold a Clock instead of calling the time package. Production wiring
// passes Real(); tests pass Fake() and move time forward explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go synchronizer.Run(ctx)
//	c.WaitForTimers(1)        // ticker registered
//	c.Advance(15 * time.Second) // exactly one tick
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
