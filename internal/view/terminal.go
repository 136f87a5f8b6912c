package view

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/core"
)

// Terminal renders the active room to a writer, one message per line. It
// implements core.Renderer and core.Notifier and only ever reads the state
// handed to it.
type Terminal struct {
	mu       sync.Mutex
	out      io.Writer
	nickname string
}

// NewTerminal builds a renderer writing to out. The nickname is used to
// derive private room titles.
func NewTerminal(out io.Writer, nickname string) *Terminal {
	return &Terminal{out: out, nickname: nickname}
}

// RenderRoom replaces the visible list with the room's message sequence.
func (t *Terminal) RenderRoom(room core.Room, msgs []core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := room.DisplayName(t.nickname)
	switch room.Kind {
	case core.KindPrivate:
		fmt.Fprintf(t.out, "--- @ %s (private) ---\n", title)
	case core.KindPublic:
		fmt.Fprintf(t.out, "--- # %s (public) ---\n", title)
	default:
		fmt.Fprintf(t.out, "--- # %s (group) ---\n", title)
	}
	for _, msg := range msgs {
		t.printMessage(msg)
	}
}

// RenderMessage appends one message to the visible list.
func (t *Terminal) RenderMessage(_ core.Room, msg core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printMessage(msg)
}

// Notify prints a transient user-visible notice.
func (t *Terminal) Notify(code, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "!! [%s] %s\n", code, text)
}

func (t *Terminal) printMessage(msg core.Message) {
	ts := time.Unix(msg.Timestamp, 0).Format("15:04")
	fmt.Fprintf(t.out, "[%s] %s: %s\n", ts, msg.Sender, msg.Text)
}
