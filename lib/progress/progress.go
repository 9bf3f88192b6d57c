// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress reports batch progress at a fixed cadence.
//
// A Reporter is stepped once per processed item (success or failure)
// and calls its Func every Every items, never more often. The final
// item does not force a report; callers report completion themselves.
package progress

import (
	"time"

	"github.com/bureau-foundation/shopkeep/lib/clock"
)

// DefaultEvery is the cadence used when Config.Every is not positive.
const DefaultEvery = 10

// Func receives (processed, total) at each cadence point.
type Func func(processed, total int)

// Config configures a Reporter.
type Config struct {
	// Every is the number of processed items between reports.
	Every int
	// MinInterval, when positive, additionally suppresses a report
	// if the previous one was less than MinInterval ago on Clock.
	// A suppressed report is not replayed.
	MinInterval time.Duration
	// Clock is required when MinInterval is set.
	Clock clock.Clock
}

// Reporter counts processed items. Not safe for concurrent use: a
// batch runs in one goroutine.
type Reporter struct {
	total       int
	every       int
	minInterval time.Duration
	clock       clock.Clock
	report      Func

	processed  int
	reports    int
	lastReport time.Time
}

// New creates a Reporter for a batch of total items. A nil report
// makes Step a counter only.
func New(total int, config Config, report Func) *Reporter {
	every := config.Every
	if every <= 0 {
		every = DefaultEvery
	}
	reporter := &Reporter{
		total:  total,
		every:  every,
		report: report,
	}
	if config.MinInterval > 0 && config.Clock != nil {
		reporter.minInterval = config.MinInterval
		reporter.clock = config.Clock
	}
	return reporter
}

// Step records one processed item and reports if it lands on the
// cadence. It returns whether a report was made.
func (r *Reporter) Step() bool {
	r.processed++
	if r.report == nil || r.processed%r.every != 0 {
		return false
	}
	if r.clock != nil {
		now := r.clock.Now()
		if r.reports > 0 && now.Sub(r.lastReport) < r.minInterval {
			return false
		}
		r.lastReport = now
	}
	r.reports++
	r.report(r.processed, r.total)
	return true
}

// Processed returns the number of Step calls so far.
func (r *Reporter) Processed() int {
	return r.processed
}

// Reports returns the number of reports made.
func (r *Reporter) Reports() int {
	return r.reports
}
