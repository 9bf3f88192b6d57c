// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/clock"
	"github.com/bureau-foundation/shopkeep/lib/testutil"
	"github.com/bureau-foundation/shopkeep/messaging"
)

// scriptedSession answers Sync from a queue of results, then blocks
// until the context ends. Other Session methods are not used.
type scriptedSession struct {
	messaging.Session

	mu      sync.Mutex
	results []scriptedSync
	calls   []messaging.SyncOptions
}

type scriptedSync struct {
	batch string
	err   error
}

func (s *scriptedSession) Sync(ctx context.Context, options messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, options)
	if len(s.results) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	next := s.results[0]
	s.results = s.results[1:]
	s.mu.Unlock()
	if next.err != nil {
		return nil, next.err
	}
	return &messaging.SyncResponse{NextBatch: next.batch}, nil
}

func (s *scriptedSession) recordedCalls() []messaging.SyncOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.SyncOptions(nil), s.calls...)
}

func TestInitialSync(t *testing.T) {
	session := &scriptedSession{results: []scriptedSync{{batch: "s1"}}}
	token, err := InitialSync(context.Background(), session, `{"room":{}}`)
	if err != nil {
		t.Fatalf("InitialSync: %v", err)
	}
	if token != "s1" {
		t.Errorf("token = %q, want s1", token)
	}
	calls := session.recordedCalls()
	if calls[0].Since != "" || calls[0].Filter != `{"room":{}}` {
		t.Errorf("initial call = %+v", calls[0])
	}

	failing := &scriptedSession{results: []scriptedSync{{err: errors.New("M_UNKNOWN_TOKEN")}}}
	if _, err := InitialSync(context.Background(), failing, ""); err == nil {
		t.Error("InitialSync succeeded on a failing session")
	}
}

func TestRunSyncLoopBacksOffAndResumes(t *testing.T) {
	session := &scriptedSession{results: []scriptedSync{
		{err: errors.New("gateway timeout")},
		{err: errors.New("gateway timeout")},
		{batch: "s1"},
	}}
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	batches := make(chan string, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunSyncLoop(ctx, session, SyncConfig{Filter: "f"}, "s0", func(_ context.Context, response *messaging.SyncResponse) {
			batches <- response.NextBatch
		}, fake, quietLogger())
	}()

	// First failure waits one second.
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	// Second failure waits two.
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	if fake.PendingCount() != 1 {
		t.Fatalf("backoff fired after one second of a two second wait")
	}
	fake.Advance(time.Second)

	if batch := testutil.RequireReceive(t, batches, 5*time.Second, "handler call"); batch != "s1" {
		t.Errorf("batch = %q, want s1", batch)
	}

	// The loop is now parked in the next long poll.
	waitForCalls(t, session, 4)
	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "sync loop exit")

	calls := session.recordedCalls()
	for i, call := range calls[:3] {
		if call.Since != "s0" {
			t.Errorf("call %d since = %q, want s0", i, call.Since)
		}
	}
	last := calls[3]
	if last.Since != "s1" || last.Timeout != 30000 || !last.SetTimeout || last.Filter != "f" {
		t.Errorf("resumed call = %+v", last)
	}
}

func TestRunSyncLoopStopsOnCancelledContext(t *testing.T) {
	session := &scriptedSession{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	RunSyncLoop(ctx, session, SyncConfig{}, "", func(context.Context, *messaging.SyncResponse) {
		t.Error("handler called after cancellation")
	}, clock.Fake(time.Now()), quietLogger())
	if calls := session.recordedCalls(); len(calls) != 0 {
		t.Errorf("made %d sync calls with a cancelled context", len(calls))
	}
}

func waitForCalls(t *testing.T, session *scriptedSession, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(session.recordedCalls()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d sync calls", n)
		}
		time.Sleep(time.Millisecond)
	}
}
