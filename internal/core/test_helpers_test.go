package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/log"
)

// fakeBackend serves canned history per room. A gate channel per room makes a
// fetch block until the test releases it.
type fakeBackend struct {
	mu      sync.Mutex
	history map[string][]Message
	errs    map[string]error
	gates   map[string]chan struct{}
	deleted []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history: make(map[string][]Message),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) gate(room string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[room] = ch
	return ch
}

func (f *fakeBackend) History(_ context.Context, room string) ([]Message, error) {
	f.mu.Lock()
	gate := f.gates[room]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[room]; err != nil {
		return nil, err
	}
	msgs := make([]Message, len(f.history[room]))
	copy(msgs, f.history[room])
	return msgs, nil
}

func (f *fakeBackend) DeleteRoom(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[room]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, room)
	return nil
}

func (f *fakeBackend) DeleteMessage(_ context.Context, room string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[room]
}

// fakeChannel records subscriptions and sends.
type fakeChannel struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	sent   []Message
	err    error
}

func (f *fakeChannel) Join(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.joins = append(f.joins, room)
	return nil
}

func (f *fakeChannel) Leave(_ context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, room)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// memCache is an in-memory CacheStore.
type memCache struct {
	mu    sync.Mutex
	rooms map[string][]Message
}

func newMemCache() *memCache {
	return &memCache{rooms: make(map[string][]Message)}
}

func (m *memCache) Load(context.Context) (map[string][]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Message, len(m.rooms))
	for room, msgs := range m.rooms {
		cp := make([]Message, len(msgs))
		copy(cp, msgs)
		out[room] = cp
	}
	return out, nil
}

func (m *memCache) Replace(_ context.Context, room string, msgs []Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	m.rooms[room] = cp
	return nil
}

func (m *memCache) Append(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[msg.Room] = append(m.rooms[msg.Room], msg)
	return nil
}

func (m *memCache) DeleteRoom(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, room)
	return nil
}

func (m *memCache) count(room string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms[room])
}

// recView records what the controller asked to display and notify.
type recView struct {
	mu      sync.Mutex
	room    string    // room of the last full render
	visible []Message // last full render plus appended messages
	renders int       // full renders
	notices []string  // notification codes
}

func (v *recView) RenderRoom(room Room, msgs []Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.room = room.ID
	v.visible = make([]Message, len(msgs))
	copy(v.visible, msgs)
	v.renders++
}

func (v *recView) RenderMessage(_ Room, msg Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = append(v.visible, msg)
}

func (v *recView) Notify(code, _ string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notices = append(v.notices, code)
}

func (v *recView) visibleTexts() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.visible))
	for _, msg := range v.visible {
		out = append(out, msg.Sender+": "+msg.Text)
	}
	return out
}

func (v *recView) renderCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders
}

func (v *recView) visibleRoom() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.room
}

// stallingView holds the first full render of one room in flight until the
// test releases it, then records through the wrapped recView.
type stallingView struct {
	*recView
	stallRoom string
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func newStallingView(rec *recView, room string) *stallingView {
	return &stallingView{
		recView:   rec,
		stallRoom: room,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (v *stallingView) RenderRoom(room Room, msgs []Message) {
	if room.ID == v.stallRoom {
		v.once.Do(func() {
			close(v.entered)
			<-v.release
		})
	}
	v.recView.RenderRoom(room, msgs)
}

type fixture struct {
	ctrl    *Controller
	backend *fakeBackend
	channel *fakeChannel
	cache   *memCache
	view    *recView
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFixture(t *testing.T, nick string) *fixture {
	t.Helper()

	backend := newFakeBackend()
	channel := &fakeChannel{}
	cache := newMemCache()
	view := &recView{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	ctrl := NewController(ControllerConfig{
		Nickname: nick,
		Backend:  backend,
		Channel:  channel,
		Cache:    cache,
		Renderer: view,
		Notifier: view,
		Logger:   log.NewWithWriter("error", testWriter{t}),
		Now:      clock.Now,
	})
	return &fixture{ctrl: ctrl, backend: backend, channel: channel, cache: cache, view: view, clock: clock}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
