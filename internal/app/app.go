package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/kv"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
	"github.com/vovakirdan/wirechat-client/internal/view"
)

// connectWait bounds how long the initial room join waits for the channel.
// Past it the client proceeds offline; the cached history still renders.
const connectWait = 5 * time.Second

// App wires the sync controller to its transports, stores and the terminal.
type App struct {
	cfg      config.Config
	log      *zerolog.Logger
	ctrl     *core.Controller
	channel  *ws.Channel
	api      *rest.Client
	cache    *sqlite.MessageCache
	session  store.SessionStore
	terminal *view.Terminal

	in  io.Reader
	out io.Writer
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if cfg.Nickname == "" {
		return nil, fmt.Errorf("nickname is required (flag, config file or WIRECHAT_NICKNAME)")
	}
	cache, err := sqlite.New(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open message cache: %w", err)
	}
	session, err := kv.Open(cfg.StatePath)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	if err := ensureClientID(session); err != nil {
		logger.Warn().Err(err).Msg("failed to persist client id")
	}
	cfg.Token = resolveToken(cfg.Token, session, logger)
	if cfg.Token != "" && auth.Expired(cfg.Token, time.Now()) {
		logger.Warn().Msg("session token is expired or unreadable; the server may reject requests")
	}

	api, err := rest.NewClient(cfg.ServerURL, cfg.Token, cfg.RequestTimeout, logger)
	if err != nil {
		cache.Close()
		session.Close()
		return nil, fmt.Errorf("init rest client: %w", err)
	}

	terminal := view.NewTerminal(os.Stdout, cfg.Nickname)

	ctrl := core.NewController(core.ControllerConfig{
		Nickname:     cfg.Nickname,
		Cooldown:     cfg.Cooldown,
		MaxPublicLen: cfg.MaxPublicLen,
		Backend:      api,
		Cache:        cache,
		Renderer:     terminal,
		Notifier:     terminal,
		Logger:       logger,
	})
	channel := ws.New(cfg.WSURL, cfg.Nickname, cfg.Token, ctrl, terminal, logger)
	ctrl.SetChannel(channel)

	return &App{
		cfg:      cfg,
		log:      logger,
		ctrl:     ctrl,
		channel:  channel,
		api:      api,
		cache:    cache,
		session:  session,
		terminal: terminal,
		in:       os.Stdin,
		out:      os.Stdout,
	}, nil
}

// Run starts the channel, joins the last active room and serves the
// interactive loop until context cancellation or end of input.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	a.ctrl.Start(ctx)

	channelErr := make(chan error, 1)
	go func() {
		channelErr <- a.channel.Run(ctx)
	}()

	select {
	case <-a.channel.Ready():
	case <-time.After(connectWait):
		a.log.Warn().Msg("channel not connected yet, starting from local cache")
	case <-ctx.Done():
		return <-channelErr
	}

	room, err := a.session.Get(store.KeyLastRoom)
	if err != nil || room == "" {
		room = core.PublicRoom
	}
	a.joinRoom(ctx, room)

	fmt.Fprintf(a.out, "Connected as %s. Type a message, or /help for commands.\n", a.cfg.Nickname)
	a.inputLoop(ctx)

	return nil
}

func (a *App) inputLoop(ctx context.Context) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := a.handleLine(ctx, line); quit {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleLine interprets one input line; true means the session should end.
func (a *App) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		a.report(a.ctrl.SendMessage(ctx, line))
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "join":
		a.joinRoom(ctx, arg)
	case "rooms":
		a.listRooms(ctx)
	case "pm":
		a.openPrivate(ctx, arg)
	case "find":
		a.findUsers(ctx, arg)
	case "group":
		a.openGroup(ctx, arg)
	case "delete":
		a.report(a.ctrl.DeleteRoom(ctx, a.ctrl.CurrentRoom()))
	case "delmsg":
		index, err := strconv.Atoi(arg)
		if err != nil {
			a.terminal.Notify(core.ErrCodeInvalidOperation, "usage: /delmsg <index>")
			return false
		}
		a.report(a.ctrl.DeleteMessage(ctx, index))
	case "block":
		a.blockUser(ctx)
	case "refresh":
		a.ctrl.Refresh(ctx)
	case "leave":
		a.ctrl.LeaveRoom(ctx)
	case "help":
		a.printHelp()
	case "quit", "exit":
		a.ctrl.LeaveRoom(ctx)
		return true
	default:
		a.terminal.Notify(core.ErrCodeInvalidOperation, "unknown command /"+cmd)
	}
	return false
}

func (a *App) joinRoom(ctx context.Context, roomID string) {
	if roomID == "" {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "usage: /join <room>")
		return
	}
	if err := a.ctrl.JoinRoom(ctx, roomID); err != nil {
		a.report(err)
		return
	}
	if err := a.session.Set(store.KeyLastRoom, roomID); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist last room")
	}
}

func (a *App) listRooms(ctx context.Context) {
	rooms, err := a.api.Rooms(ctx)
	if err != nil {
		a.report(err)
		return
	}
	for _, room := range rooms {
		fmt.Fprintf(a.out, "  %-8s %s  (%s)\n", room.Kind, room.DisplayName(a.cfg.Nickname), room.ID)
	}
}

func (a *App) openPrivate(ctx context.Context, user string) {
	if user == "" {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "usage: /pm <user>")
		return
	}
	if user == a.cfg.Nickname {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "you cannot chat with yourself")
		return
	}
	room, err := a.api.CreatePrivate(ctx, user)
	if err != nil {
		a.report(err)
		return
	}
	a.joinRoom(ctx, room)
}

func (a *App) findUsers(ctx context.Context, query string) {
	if query == "" {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "usage: /find <query>")
		return
	}
	users, err := a.api.SearchUsers(ctx, query)
	if err != nil {
		a.report(err)
		return
	}
	if len(users) == 0 {
		fmt.Fprintln(a.out, "  no users found")
		return
	}
	for _, user := range users {
		fmt.Fprintf(a.out, "  %s\n", user)
	}
}

func (a *App) openGroup(ctx context.Context, name string) {
	if name == "" {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "usage: /group <name>")
		return
	}
	room, err := a.api.CreateGroup(ctx, name)
	if err != nil {
		a.report(err)
		return
	}
	a.joinRoom(ctx, room)
}

func (a *App) blockUser(ctx context.Context) {
	roomID := a.ctrl.CurrentRoom()
	if core.ParseRoom(roomID).Kind != core.KindPrivate {
		a.terminal.Notify(core.ErrCodeInvalidOperation, "blocking only applies to private rooms")
		return
	}
	if err := a.api.BlockUser(ctx, roomID); err != nil {
		a.report(err)
		return
	}
	a.terminal.Notify("ok", "user blocked")
}

func (a *App) printHelp() {
	fmt.Fprint(a.out, `commands:
  /join <room>    switch to a room
  /rooms          list your rooms
  /pm <user>      open a private chat
  /find <query>   search for users
  /group <name>   create a group room
  /delete         delete the current room
  /delmsg <n>     delete message n in the current room
  /block          block the other side of a private room
  /refresh        re-fetch history for the current room
  /leave          leave the current room
  /quit           exit
`)
}

func (a *App) report(err error) {
	if err == nil {
		return
	}
	code := core.ErrCode(err)
	if code == "" {
		code = core.ErrCodeNetworkFailure
	}
	a.terminal.Notify(code, err.Error())
}

func (a *App) cleanup() {
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close message cache")
	}
	if err := a.session.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close session store")
	}
}

// resolveToken remembers an explicitly configured token in the session store
// and falls back to the remembered one when none is configured, so the token
// only has to be supplied once.
func resolveToken(configured string, session store.SessionStore, logger *zerolog.Logger) string {
	if configured != "" {
		if err := session.Set(store.KeyToken, configured); err != nil {
			logger.Warn().Err(err).Msg("failed to remember session token")
		}
		return configured
	}
	remembered, err := session.Get(store.KeyToken)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read remembered session token")
		return ""
	}
	return remembered
}

func ensureClientID(session store.SessionStore) error {
	id, err := session.Get(store.KeyClientID)
	if err != nil {
		return err
	}
	if id != "" {
		return nil
	}
	return session.Set(store.KeyClientID, uuid.NewString())
}
