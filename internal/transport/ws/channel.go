package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// EventSink receives the pushes the channel cares to forward. Implemented by
// the sync controller.
type EventSink interface {
	ReceivePush(ctx context.Context, room, sender, text string, timestamp int64)
	RoomDeleted(ctx context.Context, room string)
	UserBanned(ctx context.Context, user, reason string)
	ChannelReconnected(ctx context.Context)
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Channel is the real-time side of the client. It keeps one WebSocket
// connection alive, redialing with backoff, and bridges pushes to the sink.
// It satisfies core.Channel for the outbound direction.
type Channel struct {
	url      string
	user     string
	token    string
	sink     EventSink
	notifier core.Notifier
	log      *zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	readyOnce sync.Once
	ready     chan struct{}
}

// New builds a channel client. Nothing connects until Run.
func New(wsURL, user, token string, sink EventSink, notifier core.Notifier, logger *zerolog.Logger) *Channel {
	return &Channel{
		url:      wsURL,
		user:     user,
		token:    token,
		sink:     sink,
		notifier: notifier,
		log:      logger,
		ready:    make(chan struct{}),
	}
}

// Ready is closed after the first successful hello. Callers may wait on it
// before issuing the initial room subscription.
func (ch *Channel) Ready() <-chan struct{} {
	return ch.ready
}

// Run dials and reads until the context is cancelled, redialing on any
// connection loss. Every redial waits the current backoff; a successful hello
// resets it. After every reconnect the sink is told, so the controller can
// re-issue its current-room subscription.
func (ch *Channel) Run(ctx context.Context) error {
	backoff := initialBackoff
	first := true

	wait := func() error {
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
		return nil
	}

	for {
		conn, _, err := websocket.Dial(ctx, ch.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ch.log.Warn().Err(err).Dur("retry_in", backoff).Msg("channel dial failed")
			if err := wait(); err != nil {
				return err
			}
			continue
		}
		ch.setConn(conn)
		if err := ch.hello(ctx); err != nil {
			ch.setConn(nil)
			conn.Close(websocket.StatusInternalError, "hello failed")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ch.log.Warn().Err(err).Dur("retry_in", backoff).Msg("channel hello failed")
			if err := wait(); err != nil {
				return err
			}
			continue
		}
		backoff = initialBackoff
		ch.log.Info().Str("url", ch.url).Msg("channel connected")
		ch.readyOnce.Do(func() { close(ch.ready) })

		if !first {
			ch.sink.ChannelReconnected(ctx)
		}
		first = false

		err = ch.readLoop(ctx, conn)
		ch.setConn(nil)
		conn.Close(websocket.StatusNormalClosure, "closing")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		ch.log.Warn().Err(err).Dur("retry_in", backoff).Msg("channel disconnected")
		if err := wait(); err != nil {
			return err
		}
	}
}

// Join implements core.Channel.
func (ch *Channel) Join(ctx context.Context, room string) error {
	data, err := json.Marshal(proto.JoinData{Room: room})
	if err != nil {
		return err
	}
	return ch.write(ctx, proto.Outbound{Type: proto.OutboundTypeJoin, Data: data})
}

// Leave implements core.Channel.
func (ch *Channel) Leave(ctx context.Context, room string) error {
	data, err := json.Marshal(proto.JoinData{Room: room})
	if err != nil {
		return err
	}
	return ch.write(ctx, proto.Outbound{Type: proto.OutboundTypeLeave, Data: data})
}

// Send implements core.Channel.
func (ch *Channel) Send(ctx context.Context, msg core.Message) error {
	data, err := json.Marshal(proto.MsgData{Room: msg.Room, Text: msg.Text})
	if err != nil {
		return err
	}
	return ch.write(ctx, proto.Outbound{Type: proto.OutboundTypeMsg, Data: data})
}

func (ch *Channel) hello(ctx context.Context) error {
	data, err := json.Marshal(proto.HelloData{
		User:     ch.user,
		Token:    ch.token,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		return err
	}
	return ch.write(ctx, proto.Outbound{Type: proto.OutboundTypeHello, Data: data})
}

func (ch *Channel) setConn(conn *websocket.Conn) {
	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()
}

func (ch *Channel) write(ctx context.Context, env proto.Outbound) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return errors.New("channel is not connected")
	}
	return wsjson.Write(ctx, conn, env)
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		switch inbound.Type {
		case proto.InboundTypeError:
			if inbound.Error != nil {
				ch.notifier.Notify(inbound.Error.Code, inbound.Error.Msg)
			}
		case proto.InboundTypeEvent:
			ch.dispatchEvent(ctx, inbound)
		default:
			ch.log.Debug().Str("type", inbound.Type).Msg("unknown channel envelope")
		}
	}
}

func (ch *Channel) dispatchEvent(ctx context.Context, inbound proto.Inbound) {
	switch inbound.Event {
	case proto.EventMessage:
		var evt proto.EventMessageData
		if err := json.Unmarshal(inbound.Data, &evt); err != nil {
			ch.log.Warn().Err(err).Msg("unmarshal message event")
			return
		}
		ch.sink.ReceivePush(ctx, evt.Room, evt.User, evt.Text, evt.TS)
	case proto.EventRoomDeleted:
		var evt proto.EventRoomDeletedData
		if err := json.Unmarshal(inbound.Data, &evt); err != nil {
			ch.log.Warn().Err(err).Msg("unmarshal room_deleted event")
			return
		}
		ch.sink.RoomDeleted(ctx, evt.Room)
	case proto.EventUserBanned:
		var evt proto.EventUserBannedData
		if err := json.Unmarshal(inbound.Data, &evt); err != nil {
			ch.log.Warn().Err(err).Msg("unmarshal user_banned event")
			return
		}
		ch.sink.UserBanned(ctx, evt.User, evt.Reason)
	case proto.EventProfileUpdated:
		// Cosmetic only; worth a line in the log, nothing more.
		var evt proto.EventProfileUpdatedData
		if err := json.Unmarshal(inbound.Data, &evt); err != nil {
			ch.log.Warn().Err(err).Msg("unmarshal profile_updated event")
			return
		}
		ch.log.Debug().Str("user", evt.User).Str("field", evt.Field).Msg("profile updated")
	default:
		ch.log.Debug().Str("event", inbound.Event).Msg("unknown channel event")
	}
}
