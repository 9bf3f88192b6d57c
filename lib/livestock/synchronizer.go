// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package livestock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/catalog"
	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/display"
)

// DefaultInterval is the tick interval when Config.Interval is unset.
const DefaultInterval = 15 * time.Second

// Source supplies catalog snapshots.
type Source interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

// State is the synchronizer's view of the live message.
type State string

const (
	// StateNoMessage: nothing published yet in this process.
	StateNoMessage State = "no_message"
	// StateActive: a message is tracked and was last seen present.
	StateActive State = "active"
	// StateLost: the tracked message disappeared and republishing
	// has not succeeded yet.
	StateLost State = "lost"
)

// TickResult describes what one tick did.
type TickResult string

const (
	TickPublished   TickResult = "published"
	TickEdited      TickResult = "edited"
	TickRepublished TickResult = "republished"
	TickFailed      TickResult = "failed"
	TickSkipped     TickResult = "skipped"
)

// Config configures a Synchronizer.
type Config struct {
	Channel chat.Channel
	Source  Source
	// Store is owned by the Synchronizer from here on. A nil Store
	// gets a fresh one.
	Store    *display.Store
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
	// OnTick, if set, is called after every scheduled or triggered
	// tick, including skipped ones.
	OnTick func(TickResult)
}

// Status is a point-in-time report for operators.
type Status struct {
	State      State         `json:"state"`
	MessageID  string        `json:"message_id,omitempty"`
	LastUpdate time.Time     `json:"last_update,omitzero"`
	Interval   time.Duration `json:"interval"`
	Running    bool          `json:"running"`
	Ticks      uint64        `json:"ticks"`
	Skipped    uint64        `json:"skipped"`
	Failures   uint64        `json:"failures"`
	LastResult TickResult    `json:"last_result,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
}

// Synchronizer keeps one live stock message in a channel consistent
// with the catalog.
//
// Each tick reads a fresh snapshot, renders it, and then either edits
// the tracked message (after confirming it still exists) or publishes
// a new one. A tracked message reported missing is forgotten and
// replaced within the same tick. Any other failure leaves the state
// as it was and is retried on the next tick.
//
// The whole tick runs under one mutex, so a tick is one atomic unit
// relative to every other tick. Scheduled ticks that come due while a
// tick is still running are skipped, not queued.
//
// Exactly one Synchronizer may own a room's live message.
type Synchronizer struct {
	channel  chat.Channel
	source   Source
	store    *display.Store
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	onTick   func(TickResult)

	// tickMutex is held for the full duration of a tick, whether
	// scheduled or manual. Scheduled ticks only ever TryLock it.
	tickMutex sync.Mutex
	// lost is guarded by tickMutex.
	lost bool

	running  atomic.Bool
	ticks    atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64

	statusMutex sync.Mutex
	lastResult  TickResult
	lastError   string
}

// New creates a Synchronizer. It does nothing until Run or Tick.
func New(config Config) (*Synchronizer, error) {
	if config.Channel == nil {
		return nil, fmt.Errorf("livestock: Channel is required")
	}
	if config.Source == nil {
		return nil, fmt.Errorf("livestock: Source is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("livestock: Clock is required")
	}
	store := config.Store
	if store == nil {
		store = display.NewStore()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		channel:  config.Channel,
		source:   config.Source,
		store:    store,
		clock:    config.Clock,
		interval: interval,
		logger:   logger,
		onTick:   config.OnTick,
	}, nil
}

// Run ticks once immediately and then every interval until ctx is
// done. It waits for an in-flight tick to finish before returning.
func (s *Synchronizer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("livestock: synchronizer already running")
	}
	defer s.running.Store(false)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	launch := func() {
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			s.TryTick(ctx)
		}()
	}

	s.logger.Info("live stock synchronizer started", "interval", s.interval)
	launch()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("live stock synchronizer stopping")
			return nil
		case <-ticker.C:
			launch()
		}
	}
}

// TryTick runs a tick unless one is already running, manual or
// scheduled, in which case it returns TickSkipped at once.
func (s *Synchronizer) TryTick(ctx context.Context) TickResult {
	if !s.tickMutex.TryLock() {
		s.skipped.Add(1)
		s.logger.Debug("live stock tick skipped, previous tick still running")
		s.notify(TickSkipped)
		return TickSkipped
	}
	result := s.tick(ctx)
	s.tickMutex.Unlock()
	s.notify(result)
	return result
}

// Tick runs one reconciliation, waiting for a running tick to finish
// first.
func (s *Synchronizer) Tick(ctx context.Context) TickResult {
	s.tickMutex.Lock()
	defer s.tickMutex.Unlock()
	return s.tick(ctx)
}

func (s *Synchronizer) notify(result TickResult) {
	if s.onTick != nil {
		s.onTick(result)
	}
}

// tick runs one reconciliation. The caller holds tickMutex.
func (s *Synchronizer) tick(ctx context.Context) TickResult {
	s.ticks.Add(1)
	result, err := s.reconcile(ctx)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("live stock tick failed", "error", err)
	}

	s.statusMutex.Lock()
	s.lastResult = result
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.statusMutex.Unlock()
	return result
}

// reconcile is the body of a tick. The caller holds tickMutex.
func (s *Synchronizer) reconcile(ctx context.Context) (TickResult, error) {
	products, err := s.source.ListProducts(ctx)
	if err != nil {
		return TickFailed, fmt.Errorf("reading catalog: %w", err)
	}
	content := Render(products, s.clock.Now())

	current := s.store.Current()
	if current.HasMessage() {
		err := s.update(ctx, current, content)
		if err == nil {
			s.store.Touch(s.clock.Now())
			return TickEdited, nil
		}
		if !errors.Is(err, chat.ErrNotFound) {
			return TickFailed, err
		}
		s.logger.Info("live stock message lost, republishing", "message_id", current.MessageID)
		s.store.Clear()
		s.lost = true
	}

	messageID, err := s.channel.Publish(ctx, content)
	if err != nil {
		return TickFailed, fmt.Errorf("publishing live stock message: %w", err)
	}
	s.store.RecordPublished(messageID, s.clock.Now())

	result := TickPublished
	if s.lost {
		result = TickRepublished
	}
	s.lost = false
	s.logger.Info("live stock message published", "message_id", messageID, "result", string(result))
	return result, nil
}

// update confirms the tracked message exists and edits it.
func (s *Synchronizer) update(ctx context.Context, current display.State, content chat.Content) error {
	if _, err := s.channel.Fetch(ctx, current.MessageID); err != nil {
		return fmt.Errorf("fetching live stock message %s: %w", current.MessageID, err)
	}
	if err := s.channel.Edit(ctx, current.MessageID, content); err != nil {
		return fmt.Errorf("editing live stock message %s: %w", current.MessageID, err)
	}
	return nil
}

// Status reports the synchronizer's current state without waiting for
// a running tick.
func (s *Synchronizer) Status() Status {
	current := s.store.Current()

	s.statusMutex.Lock()
	lastResult, lastError := s.lastResult, s.lastError
	s.statusMutex.Unlock()

	// Clear keeps LastUpdate, so an untracked message with a
	// LastUpdate was lost.
	state := StateNoMessage
	switch {
	case current.HasMessage():
		state = StateActive
	case !current.LastUpdate.IsZero():
		state = StateLost
	}

	status := Status{
		State:      state,
		LastUpdate: current.LastUpdate,
		Interval:   s.interval,
		Running:    s.running.Load(),
		Ticks:      s.ticks.Load(),
		Skipped:    s.skipped.Load(),
		Failures:   s.failures.Load(),
		LastResult: lastResult,
		LastError:  lastError,
	}
	if current.HasMessage() {
		status.MessageID = current.MessageID.String()
	}
	return status
}
