package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJoinRoomFetchesAndRendersHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history[PublicRoom] = []Message{
		{Room: PublicRoom, Sender: "Alice", Text: "hi", Timestamp: 100},
	}

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}

	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "history rendered")
	got := f.view.visibleTexts()
	if len(got) != 1 || got[0] != "Alice: hi" {
		t.Fatalf("unexpected visible list: %v", got)
	}
	if f.ctrl.CurrentRoom() != PublicRoom {
		t.Fatalf("current room = %q", f.ctrl.CurrentRoom())
	}
	if f.cache.count(PublicRoom) != 1 {
		t.Fatalf("cache write-through missed, count = %d", f.cache.count(PublicRoom))
	}
}

func TestJoinRoomUsesCacheWithoutRefetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["room_a"] = []Message{{Room: "room_a", Sender: "Alice", Text: "one", Timestamp: 1}}

	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "first render")

	// Moving away and back must render from cache, not fetch again.
	f.backend.mu.Lock()
	f.backend.errs["room_a"] = errors.New("backend gone")
	f.backend.mu.Unlock()

	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 2 }, "cached render")
	got := f.view.visibleTexts()
	if len(got) != 1 || got[0] != "Alice: one" {
		t.Fatalf("unexpected visible list: %v", got)
	}
}

// The optimistic echo of a self-sent message must never be rendered twice
// when the channel delivers it back.
func TestSendMessageDedupOnEcho(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history[PublicRoom] = []Message{
		{Room: PublicRoom, Sender: "Alice", Text: "hi", Timestamp: 100},
	}

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "history rendered")

	if err := f.ctrl.SendMessage(ctx, "yo"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := f.view.visibleTexts(); len(got) != 2 || got[1] != "Bob: yo" {
		t.Fatalf("unexpected visible list after send: %v", got)
	}
	if f.channel.sentCount() != 1 {
		t.Fatalf("expected one dispatch, got %d", f.channel.sentCount())
	}

	// The channel echoes the message back.
	f.ctrl.ReceivePush(ctx, PublicRoom, "Bob", "yo", 101)

	if got := f.view.visibleTexts(); len(got) != 2 {
		t.Fatalf("echo was rendered twice: %v", got)
	}
	if n := len(f.ctrl.History(PublicRoom)); n != 2 {
		t.Fatalf("cache count = %d, want 2", n)
	}
}

func TestReceivePushForInactiveRoomCachesOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history[PublicRoom] = nil

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "history rendered")

	f.ctrl.ReceivePush(ctx, "private_Alice_Bob", "Alice", "psst", 200)

	if got := f.view.visibleTexts(); len(got) != 0 {
		t.Fatalf("push for inactive room was rendered: %v", got)
	}
	if n := len(f.ctrl.History("private_Alice_Bob")); n != 1 {
		t.Fatalf("push not cached, count = %d", n)
	}
}

func TestSendMessageRateLimitedInPublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.ctrl.SendMessage(ctx, "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}

	f.clock.Advance(500 * time.Millisecond)
	err := f.ctrl.SendMessage(ctx, "second")
	if ErrCode(err) != ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if f.channel.sentCount() != 1 {
		t.Fatalf("throttled message was dispatched, sent = %d", f.channel.sentCount())
	}
	if n := len(f.ctrl.History(PublicRoom)); n != 1 {
		t.Fatalf("throttled message was cached, count = %d", n)
	}

	// After the cooldown the next send goes through.
	f.clock.Advance(2 * time.Second)
	if err := f.ctrl.SendMessage(ctx, "third"); err != nil {
		t.Fatalf("post-cooldown send: %v", err)
	}
}

func TestSendMessageUnthrottledOutsidePublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["private_Alice_Bob"] = nil

	if err := f.ctrl.JoinRoom(ctx, "private_Alice_Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := f.ctrl.SendMessage(ctx, "burst"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if f.channel.sentCount() != 5 {
		t.Fatalf("sent = %d, want 5", f.channel.sentCount())
	}
}

func TestSendMessageLengthCapInPublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}

	long := make([]byte, DefaultMaxPublicLen+1)
	for i := range long {
		long[i] = 'a'
	}
	err := f.ctrl.SendMessage(ctx, string(long))
	if ErrCode(err) != ErrCodeInvalidOperation {
		t.Fatalf("expected invalid_operation, got %v", err)
	}
}

// A history fetch resolving for a room the user has already left must be
// discarded, regardless of completion order.
func TestStaleHistoryFetchDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["room_a"] = []Message{{Room: "room_a", Sender: "Alice", Text: "stale", Timestamp: 1}}
	f.backend.history["room_b"] = []Message{{Room: "room_b", Sender: "Carol", Text: "fresh", Timestamp: 2}}

	gateA := f.backend.gate("room_a")

	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if err := f.ctrl.JoinRoom(ctx, "room_b"); err != nil {
		t.Fatalf("join b: %v", err)
	}

	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "room b rendered")

	// Now let room_a's fetch resolve late.
	close(gateA)

	time.Sleep(50 * time.Millisecond)
	if room := f.view.visibleRoom(); room != "room_b" {
		t.Fatalf("visible room = %q, want room_b", room)
	}
	got := f.view.visibleTexts()
	if len(got) != 1 || got[0] != "Carol: fresh" {
		t.Fatalf("stale fetch leaked into view: %v", got)
	}
	if n := len(f.ctrl.History("room_a")); n != 0 {
		t.Fatalf("stale fetch populated state, count = %d", n)
	}
}

func TestLateHistoryRenderCannotOvertakeNewerRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["room_a"] = []Message{{Room: "room_a", Sender: "Alice", Text: "old", Timestamp: 1}}
	view := newStallingView(f.view, "room_a")
	f.ctrl.renderer = view

	// Cache room_b first so joining it later renders without a fetch.
	f.ctrl.ReceivePush(ctx, "room_b", "Carol", "fresh", 2)

	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("join a: %v", err)
	}
	select {
	case <-view.entered: // room_a's fetch resolved, its render is in flight
	case <-time.After(2 * time.Second):
		t.Fatal("render of room_a never started")
	}

	done := make(chan error, 1)
	go func() { done <- f.ctrl.JoinRoom(ctx, "room_b") }()

	close(view.release)
	if err := <-done; err != nil {
		t.Fatalf("join b: %v", err)
	}

	if room := f.view.visibleRoom(); room != "room_b" {
		t.Fatalf("visible room = %q, want room_b", room)
	}
	got := f.view.visibleTexts()
	if len(got) != 1 || got[0] != "Carol: fresh" {
		t.Fatalf("held-back render overtook the active room: %v", got)
	}
}

func TestDeletePublicRoomForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history[PublicRoom] = []Message{{Room: PublicRoom, Sender: "Alice", Text: "hi", Timestamp: 1}}

	if err := f.ctrl.JoinRoom(ctx, PublicRoom); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "history rendered")

	err := f.ctrl.DeleteRoom(ctx, PublicRoom)
	if ErrCode(err) != ErrCodeInvalidOperation {
		t.Fatalf("expected invalid_operation, got %v", err)
	}
	if f.ctrl.CurrentRoom() != PublicRoom {
		t.Fatalf("current room changed to %q", f.ctrl.CurrentRoom())
	}
	if n := len(f.ctrl.History(PublicRoom)); n != 1 {
		t.Fatalf("cache altered, count = %d", n)
	}
	if len(f.backend.deleted) != 0 {
		t.Fatalf("delete reached the server: %v", f.backend.deleted)
	}
}

func TestDeleteCurrentRoomFallsBackToPublic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["group_x"] = nil
	f.backend.history[PublicRoom] = nil

	if err := f.ctrl.JoinRoom(ctx, "group_x"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "group rendered")

	if err := f.ctrl.DeleteRoom(ctx, "group_x"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	waitFor(t, func() bool { return f.ctrl.CurrentRoom() == PublicRoom }, "fallback to public room")
	if n := len(f.ctrl.History("group_x")); n != 0 {
		t.Fatalf("deleted room still cached, count = %d", n)
	}
	if f.cache.count("group_x") != 0 {
		t.Fatalf("deleted room still in durable cache")
	}
}

func TestHistoryFetchFailureKeepsRoomAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.errs["room_a"] = errors.New("connection refused")

	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("join: %v", err)
	}

	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "empty render")
	if f.ctrl.CurrentRoom() != "room_a" {
		t.Fatalf("current room = %q, want room_a", f.ctrl.CurrentRoom())
	}
	f.view.mu.Lock()
	notices := append([]string(nil), f.view.notices...)
	f.view.mu.Unlock()
	if len(notices) != 1 || notices[0] != ErrCodeNetworkFailure {
		t.Fatalf("unexpected notices: %v", notices)
	}
}

func TestSendFailureKeepsOptimisticEcho(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["group_x"] = nil

	if err := f.ctrl.JoinRoom(ctx, "group_x"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "rendered")

	f.channel.mu.Lock()
	f.channel.err = errors.New("broken pipe")
	f.channel.mu.Unlock()

	err := f.ctrl.SendMessage(ctx, "hello?")
	if ErrCode(err) != ErrCodeNetworkFailure {
		t.Fatalf("expected network_failure, got %v", err)
	}
	// Send and hope: no rollback.
	if got := f.view.visibleTexts(); len(got) != 1 || got[0] != "Bob: hello?" {
		t.Fatalf("optimistic echo lost: %v", got)
	}
}

func TestUserBannedForcesPublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["group_x"] = nil
	f.backend.history[PublicRoom] = nil

	if err := f.ctrl.JoinRoom(ctx, "group_x"); err != nil {
		t.Fatalf("join: %v", err)
	}

	f.ctrl.UserBanned(ctx, "Alice", "spam") // someone else: no effect
	if f.ctrl.CurrentRoom() != "group_x" {
		t.Fatalf("foreign ban moved the client to %q", f.ctrl.CurrentRoom())
	}

	f.ctrl.UserBanned(ctx, "Bob", "spam")
	if f.ctrl.CurrentRoom() != PublicRoom {
		t.Fatalf("ban did not force public room, current = %q", f.ctrl.CurrentRoom())
	}
}

func TestChannelReconnectedResubscribesCurrentRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	f.backend.history["group_x"] = nil

	if err := f.ctrl.JoinRoom(ctx, "group_x"); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.ctrl.ChannelReconnected(ctx)

	f.channel.mu.Lock()
	joins := append([]string(nil), f.channel.joins...)
	f.channel.mu.Unlock()
	if len(joins) != 2 || joins[1] != "group_x" {
		t.Fatalf("unexpected join sequence: %v", joins)
	}
}

func TestStartLoadsDurableCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Bob")
	seed := Message{Room: "room_a", Sender: "Alice", Text: "old", Timestamp: 5}
	if err := f.cache.Append(ctx, seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	f.ctrl.Start(ctx)

	// Joining renders straight from the reloaded cache, no fetch needed.
	f.backend.errs["room_a"] = errors.New("offline")
	if err := f.ctrl.JoinRoom(ctx, "room_a"); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitFor(t, func() bool { return f.view.renderCount() == 1 }, "rendered from cache")
	got := f.view.visibleTexts()
	if len(got) != 1 || got[0] != "Alice: old" {
		t.Fatalf("unexpected visible list: %v", got)
	}
}
