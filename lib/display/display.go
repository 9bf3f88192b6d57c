// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package display tracks the one live status message the shop keeps
// in its chat room: which message it is, and when it was last brought
// up to date.
//
// A Store is pure bookkeeping with no I/O. It is owned by a single
// livestock.Synchronizer, which serializes every access under its own
// tick lock; the Store's mutex only protects concurrent readers such
// as the ops status endpoint. State starts empty on every process
// start, so a message left by a previous run is never reused.
package display

import (
	"sync"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// State is a copy of the tracked message's identity and freshness.
type State struct {
	// MessageID is zero until the first successful publish and after
	// an observed loss.
	MessageID ref.EventID
	// LastUpdate is when the message was last published or edited.
	LastUpdate time.Time
}

// HasMessage reports whether a message is being tracked.
func (s State) HasMessage() bool {
	return !s.MessageID.IsZero()
}

// Store holds the State.
type Store struct {
	mutex sync.RWMutex
	state State
}

// NewStore returns a Store with no message.
func NewStore() *Store {
	return &Store{}
}

// Current returns a copy of the state.
func (s *Store) Current() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// RecordPublished starts tracking a newly published message.
func (s *Store) RecordPublished(id ref.EventID, at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = State{MessageID: id, LastUpdate: at}
}

// Touch records a successful in-place update of the tracked message.
func (s *Store) Touch(at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state.LastUpdate = at
}

// Clear forgets the tracked message. Call it only after the message
// was observed to be gone. LastUpdate is kept.
func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state.MessageID = ref.EventID{}
}
