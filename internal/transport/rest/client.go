package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Client talks to the chat backend's REST surface. It satisfies core.Backend
// and additionally covers room lifecycle, user search and moderation.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zerolog.Logger
}

// NewClient builds a REST client for the given base URL. The token is
// attached as a bearer header when non-empty.
func NewClient(baseURL, token string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}, nil
}

// statusResponse is the backend's uniform mutation envelope.
type statusResponse struct {
	Success bool   `json:"success"`
	Room    string `json:"room,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BanRecord describes one active ban as reported by the backend.
type BanRecord struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
	Until    string `json:"until"`
	BannedBy string `json:"banned_by"`
	BannedAt int64  `json:"banned_at"`
}

// History returns the ordered message history of a room. A 404 maps to the
// not_found domain code; callers treat it like any other fetch failure.
func (c *Client) History(ctx context.Context, room string) ([]core.Message, error) {
	var wire []proto.WireMessage
	if err := c.get(ctx, "/messages/"+url.PathEscape(room), &wire); err != nil {
		return nil, err
	}
	msgs := make([]core.Message, 0, len(wire))
	for _, m := range wire {
		msgs = append(msgs, core.Message{
			Room:      room,
			Sender:    m.Sender,
			Text:      m.Text,
			Timestamp: m.Timestamp,
		})
	}
	return msgs, nil
}

// Rooms lists the rooms visible to the user, classified once at ingestion.
func (c *Client) Rooms(ctx context.Context) ([]core.Room, error) {
	var ids []string
	if err := c.get(ctx, "/rooms", &ids); err != nil {
		return nil, err
	}
	rooms := make([]core.Room, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, core.ParseRoom(id))
	}
	return rooms, nil
}

// SearchUsers returns usernames matching the query prefix.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]string, error) {
	var users []string
	path := "/search_users?q=" + url.QueryEscape(query)
	if err := c.get(ctx, path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreatePrivate opens (or finds) a two-party room with the target user and
// returns its identifier.
func (c *Client) CreatePrivate(ctx context.Context, targetUser string) (string, error) {
	st, err := c.post(ctx, "/create_private", map[string]string{"nick": targetUser})
	if err != nil {
		return "", err
	}
	return st.Room, nil
}

// CreateGroup creates a named multi-party room and returns its identifier.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	st, err := c.post(ctx, "/create_group", map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	return st.Room, nil
}

// DeleteRoom removes a room on the server.
func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	_, err := c.post(ctx, "/delete_room", map[string]string{"room": room})
	return err
}

// DeleteMessage removes the message at the given index in a room.
func (c *Client) DeleteMessage(ctx context.Context, room string, index int) error {
	_, err := c.post(ctx, "/delete_message", map[string]any{"room": room, "index": index})
	return err
}

// BlockUser blocks the other participant of a private room.
func (c *Client) BlockUser(ctx context.Context, room string) error {
	_, err := c.post(ctx, "/block_user", map[string]string{"room": room})
	return err
}

// BanUser bans a user for durationHours; -1 means permanent.
func (c *Client) BanUser(ctx context.Context, username, reason string, durationHours int) error {
	_, err := c.post(ctx, "/admin/ban_user", map[string]any{
		"username": username,
		"reason":   reason,
		"duration": durationHours,
	})
	return err
}

// UnbanUser lifts a ban.
func (c *Client) UnbanUser(ctx context.Context, username string) error {
	_, err := c.post(ctx, "/admin/unban_user", map[string]string{"username": username})
	return err
}

// BannedUsers lists active bans.
func (c *Client) BannedUsers(ctx context.Context) ([]BanRecord, error) {
	var out struct {
		Users []BanRecord `json:"users"`
	}
	if err := c.get(ctx, "/admin/banned_users", &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any) (*statusResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var st statusResponse
	if err := c.do(req, &st); err != nil {
		return nil, err
	}
	if !st.Success {
		msg := st.Error
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &core.Error{Code: core.ErrCodeInvalidOperation, Message: msg}
	}
	return &st, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Int("status", resp.StatusCode).Msg("rest request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &core.Error{Code: core.ErrCodeNotFound, Message: req.URL.Path + " not found"}
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
