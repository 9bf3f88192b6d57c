// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chattest provides in-memory fakes of chat.Channel and
// chat.DirectSender.
//
// The fake channel keeps messages and signals in memory, can delete a
// message to simulate external loss, inject signals from any user,
// fail or block any operation, and tracks the peak number of
// concurrent Publish/Edit/Fetch calls.
//
//	channel := chattest.NewChannel()
//	channel.SetError(chattest.OpEdit, errors.New("rate limited"))
//	channel.Delete(liveID)
package chattest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/shopkeep/lib/chat"
	"github.com/bureau-foundation/shopkeep/lib/ref"
)

// BotUser is the sender of everything the fake channel publishes or
// attaches.
var BotUser = ref.MustParseUserID("@bot:chattest.local")

// Op names a fake channel operation.
type Op string

const (
	OpPublish Op = "publish"
	OpEdit    Op = "edit"
	OpFetch   Op = "fetch"
	OpAttach  Op = "attach"
	OpRetract Op = "retract"
	OpAwait   Op = "await"
)

// Channel is an in-memory chat.Channel. The zero value is not usable;
// call NewChannel.
type Channel struct {
	mutex     sync.Mutex
	nextID    int
	messages  map[ref.EventID]chat.Content
	order     []ref.EventID
	signals   []chat.Signal
	retracted map[ref.EventID]bool
	errors    map[Op]error
	calls     map[Op]int
	changed   chan struct{}
	hook      func(ctx context.Context, op Op) error

	published chan ref.EventID
	awaiting  chan chat.SignalFilter

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewChannel creates an empty fake channel.
func NewChannel() *Channel {
	return &Channel{
		messages:  make(map[ref.EventID]chat.Content),
		retracted: make(map[ref.EventID]bool),
		errors:    make(map[Op]error),
		calls:     make(map[Op]int),
		changed:   make(chan struct{}),
		published: make(chan ref.EventID, 64),
		awaiting:  make(chan chat.SignalFilter, 64),
	}
}

// SetError makes every subsequent op fail with err. A nil err clears
// the failure.
func (c *Channel) SetError(op Op, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err == nil {
		delete(c.errors, op)
		return
	}
	c.errors[op] = err
}

// SetHook installs a function run at the start of every operation,
// outside the fake's lock. It may block (to simulate a slow platform)
// or return an error to fail the call.
func (c *Channel) SetHook(hook func(ctx context.Context, op Op) error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.hook = hook
}

// Published delivers the ID of each successfully published message.
func (c *Channel) Published() <-chan ref.EventID {
	return c.published
}

// Awaiting delivers the filter of each AwaitSignal call once it has
// started waiting.
func (c *Channel) Awaiting() <-chan chat.SignalFilter {
	return c.awaiting
}

// Delete removes a message as if a moderator deleted it.
func (c *Channel) Delete(id ref.EventID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.messages, id)
}

// Inject adds a signal from any user, waking waiting AwaitSignal
// calls. It returns the signal's ID.
func (c *Channel) Inject(messageID ref.EventID, kind chat.SignalKind, from ref.UserID) ref.EventID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.addSignalLocked(messageID, kind, from)
}

// Message returns the current content of a message.
func (c *Channel) Message(id ref.EventID) (chat.Content, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	content, ok := c.messages[id]
	return content, ok
}

// Messages returns the IDs of messages still present, in publish
// order.
func (c *Channel) Messages() []ref.EventID {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var ids []ref.EventID
	for _, id := range c.order {
		if _, ok := c.messages[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Signals returns every signal not yet retracted.
func (c *Channel) Signals() []chat.Signal {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var live []chat.Signal
	for _, signal := range c.signals {
		if !c.retracted[signal.ID] {
			live = append(live, signal)
		}
	}
	return live
}

// Calls returns how many times op was invoked, including failures.
func (c *Channel) Calls(op Op) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calls[op]
}

// MaxInFlight returns the peak number of concurrent Publish, Edit, and
// Fetch calls observed.
func (c *Channel) MaxInFlight() int {
	return int(c.maxInFlight.Load())
}

// begin counts the call, runs the hook, and returns the injected
// error for op, if any.
func (c *Channel) begin(ctx context.Context, op Op) (func(), error) {
	c.mutex.Lock()
	c.calls[op]++
	hook := c.hook
	c.mutex.Unlock()

	tracked := op == OpPublish || op == OpEdit || op == OpFetch
	if tracked {
		current := c.inFlight.Add(1)
		for {
			peak := c.maxInFlight.Load()
			if current <= peak || c.maxInFlight.CompareAndSwap(peak, current) {
				break
			}
		}
	}
	done := func() {
		if tracked {
			c.inFlight.Add(-1)
		}
	}

	if hook != nil {
		if err := hook(ctx, op); err != nil {
			done()
			return nil, err
		}
	}

	c.mutex.Lock()
	err := c.errors[op]
	c.mutex.Unlock()
	if err != nil {
		done()
		return nil, err
	}
	return done, nil
}

func (c *Channel) newIDLocked(kind string) ref.EventID {
	c.nextID++
	return ref.MustParseEventID(fmt.Sprintf("$%s-%d", kind, c.nextID))
}

func (c *Channel) addSignalLocked(messageID ref.EventID, kind chat.SignalKind, from ref.UserID) ref.EventID {
	id := c.newIDLocked("signal")
	c.signals = append(c.signals, chat.Signal{ID: id, MessageID: messageID, Kind: kind, From: from})
	close(c.changed)
	c.changed = make(chan struct{})
	return id
}

// Publish implements chat.Channel.
func (c *Channel) Publish(ctx context.Context, content chat.Content) (ref.EventID, error) {
	done, err := c.begin(ctx, OpPublish)
	if err != nil {
		return ref.EventID{}, err
	}
	defer done()

	c.mutex.Lock()
	id := c.newIDLocked("message")
	c.messages[id] = content
	c.order = append(c.order, id)
	c.mutex.Unlock()

	select {
	case c.published <- id:
	default:
	}
	return id, nil
}

// Edit implements chat.Channel.
func (c *Channel) Edit(ctx context.Context, id ref.EventID, content chat.Content) error {
	done, err := c.begin(ctx, OpEdit)
	if err != nil {
		return err
	}
	defer done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.messages[id]; !ok {
		return fmt.Errorf("chattest: edit %s: %w", id, chat.ErrNotFound)
	}
	c.messages[id] = content
	return nil
}

// Fetch implements chat.Channel.
func (c *Channel) Fetch(ctx context.Context, id ref.EventID) (chat.Message, error) {
	done, err := c.begin(ctx, OpFetch)
	if err != nil {
		return chat.Message{}, err
	}
	defer done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	content, ok := c.messages[id]
	if !ok {
		return chat.Message{}, fmt.Errorf("chattest: fetch %s: %w", id, chat.ErrNotFound)
	}
	return chat.Message{ID: id, Sender: BotUser, Content: content}, nil
}

// AttachSignal implements chat.Channel. The signal comes from BotUser.
func (c *Channel) AttachSignal(ctx context.Context, id ref.EventID, kind chat.SignalKind) (ref.EventID, error) {
	done, err := c.begin(ctx, OpAttach)
	if err != nil {
		return ref.EventID{}, err
	}
	defer done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.messages[id]; !ok {
		return ref.EventID{}, fmt.Errorf("chattest: attach to %s: %w", id, chat.ErrNotFound)
	}
	return c.addSignalLocked(id, kind, BotUser), nil
}

// RetractSignal implements chat.Channel.
func (c *Channel) RetractSignal(ctx context.Context, signalID ref.EventID) error {
	done, err := c.begin(ctx, OpRetract)
	if err != nil {
		return err
	}
	defer done()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.retracted[signalID] = true
	return nil
}

// AwaitSignal implements chat.Channel. The timeout runs on the real
// clock; callers that need fake time race their own timer and cancel
// ctx instead.
func (c *Channel) AwaitSignal(ctx context.Context, filter chat.SignalFilter, timeout time.Duration) (chat.Signal, error) {
	done, err := c.begin(ctx, OpAwait)
	if err != nil {
		return chat.Signal{}, err
	}
	defer done()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout) //nolint:realclock fake platform timeout
		defer timer.Stop()
		expired = timer.C
	}

	announced := false
	for {
		c.mutex.Lock()
		for _, signal := range c.signals {
			if !c.retracted[signal.ID] && filter.Matches(signal) {
				c.mutex.Unlock()
				return signal, nil
			}
		}
		changed := c.changed
		c.mutex.Unlock()

		if !announced {
			announced = true
			select {
			case c.awaiting <- filter:
			default:
			}
		}

		select {
		case <-changed:
		case <-expired:
			return chat.Signal{}, chat.ErrTimedOut
		case <-ctx.Done():
			return chat.Signal{}, ctx.Err()
		}
	}
}

var _ chat.Channel = (*Channel)(nil)

// DirectSender is an in-memory chat.DirectSender.
type DirectSender struct {
	mutex   sync.Mutex
	failing map[ref.UserID]error
	sent    []Direct
}

// Direct is one delivered direct message.
type Direct struct {
	To      ref.UserID
	Content chat.Content
}

// NewDirectSender creates a fake sender that delivers to everyone.
func NewDirectSender() *DirectSender {
	return &DirectSender{failing: make(map[ref.UserID]error)}
}

// Fail makes sends to user return err.
func (s *DirectSender) Fail(user ref.UserID, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.failing[user] = err
}

// Sent returns delivered messages in send order.
func (s *DirectSender) Sent() []Direct {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Direct(nil), s.sent...)
}

// SendDirect implements chat.DirectSender.
func (s *DirectSender) SendDirect(ctx context.Context, user ref.UserID, content chat.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := s.failing[user]; err != nil {
		return fmt.Errorf("chattest: send to %s: %w", user, err)
	}
	s.sent = append(s.sent, Direct{To: user, Content: content})
	return nil
}

var _ chat.DirectSender = (*DirectSender)(nil)
