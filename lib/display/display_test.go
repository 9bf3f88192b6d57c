// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"testing"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/ref"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore()
	if store.Current().HasMessage() {
		t.Fatal("new store already tracks a message")
	}

	published := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := ref.MustParseEventID("$first")
	store.RecordPublished(first, published)
	state := store.Current()
	if state.MessageID != first || !state.LastUpdate.Equal(published) {
		t.Fatalf("after publish: %+v", state)
	}

	edited := published.Add(15 * time.Second)
	store.Touch(edited)
	if state := store.Current(); state.MessageID != first || !state.LastUpdate.Equal(edited) {
		t.Fatalf("after touch: %+v", state)
	}

	store.Clear()
	state = store.Current()
	if state.HasMessage() {
		t.Fatal("message still tracked after Clear")
	}
	if !state.LastUpdate.Equal(edited) {
		t.Errorf("Clear reset LastUpdate to %v", state.LastUpdate)
	}

	second := ref.MustParseEventID("$second")
	store.RecordPublished(second, edited.Add(time.Second))
	if store.Current().MessageID != second {
		t.Errorf("MessageID = %s, want %s", store.Current().MessageID, second)
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	store := NewStore()
	store.RecordPublished(ref.MustParseEventID("$a"), time.Unix(0, 0))
	state := store.Current()
	state.MessageID = ref.MustParseEventID("$b")
	if store.Current().MessageID.String() != "$a" {
		t.Error("mutating the returned State changed the store")
	}
}
