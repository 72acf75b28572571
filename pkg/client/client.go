// Package client is a Go game client for the relay. It speaks the websocket
// protocol, keeps the room view current and, once a game starts, runs the
// shared-board engine locally from the broadcast seed.
package client

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

var (
	ErrClosed = eris.New("client closed")
	// ErrDesync is reported when the pieces broadcast with game-start differ
	// from the ones the local dealer derives from the seed.
	ErrDesync = eris.New("piece sequence does not match seed")
)

// Rejected is an error reply from the relay.
type Rejected struct {
	Message string
}

func (e *Rejected) Error() string {
	return e.Message
}

type Options struct {
	Header   http.Header
	Renderer Renderer
	Logger   *zerolog.Logger
}

type inbound struct {
	Opcode   string          `json:"opcode"`
	Payload  json.RawMessage `json:"payload"`
	Listener string          `json:"listener"`
}

// Client is one connection to the relay.
type Client struct {
	conn     *websocket.Conn
	renderer Renderer
	logger   zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]chan inbound

	mu        sync.Mutex
	sessionID string
	name      string
	room      *structs.RoomInfo
	directory []structs.RoomSummary
	game      *Game

	done chan struct{}
	err  error
}

// Dial connects to the relay's websocket endpoint and starts reading.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to dial %s", url)
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = nopRenderer{}
	}
	c := &Client{
		conn:     conn,
		renderer: renderer,
		logger:   logger,
		pending:  make(map[string]chan inbound),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Room returns the last room view, or nil outside a room.
func (c *Client) Room() *structs.RoomInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil
	}
	room := *c.room
	return &room
}

func (c *Client) Directory() []structs.RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]structs.RoomSummary(nil), c.directory...)
}

// Game returns the running game, or nil.
func (c *Client) Game() *Game {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.game
}

func (c *Client) Identify(ctx context.Context, sessionID, nickname string) (*structs.SessionConfirmed, error) {
	var confirmed structs.SessionConfirmed
	err := c.request(ctx, "identify", &structs.IdentifyParams{SessionID: sessionID, Nickname: nickname}, &confirmed)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sessionID = confirmed.SessionID
	c.name = confirmed.Name
	c.room = confirmed.RestoredRoom
	c.mu.Unlock()
	return &confirmed, nil
}

func (c *Client) CreateRoom(ctx context.Context, params structs.CreateRoomParams) (*structs.RoomInfo, error) {
	var room structs.RoomInfo
	if err := c.request(ctx, "create-room", &params, &room); err != nil {
		return nil, err
	}
	c.setRoom(&room)
	return &room, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID, accessCode string) (*structs.RoomInfo, error) {
	var room structs.RoomInfo
	params := &structs.JoinRoomParams{RoomID: roomID, AccessCode: accessCode}
	if err := c.request(ctx, "join-room", params, &room); err != nil {
		return nil, err
	}
	c.setRoom(&room)
	return &room, nil
}

func (c *Client) LeaveRoom() error {
	return c.send("leave-room", struct{}{}, "")
}

func (c *Client) ToggleReady() error {
	return c.send("toggle-ready", struct{}{}, "")
}

func (c *Client) ChangeColor(color string) error {
	return c.send("change-color", &structs.ColorParams{Color: color}, "")
}

func (c *Client) Kick(sessionID string) error {
	return c.send("kick-player", &structs.KickParams{TargetSessionID: sessionID}, "")
}

func (c *Client) EndGame() error {
	return c.send("end-game", struct{}{}, "")
}

func (c *Client) RequestSync() error {
	return c.send("request-sync", struct{}{}, "")
}

// request sends a packet with a listener and waits for the reply that echoes
// it. An error reply comes back as *Rejected.
func (c *Client) request(ctx context.Context, opcode string, payload, out any) error {
	listener := strconv.FormatUint(c.nextID.Add(1), 10)
	reply := make(chan inbound, 1)
	c.pendingMu.Lock()
	c.pending[listener] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, listener)
		c.pendingMu.Unlock()
	}()

	if err := c.send(opcode, payload, listener); err != nil {
		return err
	}
	select {
	case p := <-reply:
		if p.Opcode == "error" {
			var e structs.ErrorPayload
			_ = json.Unmarshal(p.Payload, &e)
			return &Rejected{Message: e.Message}
		}
		if out != nil {
			if err := json.Unmarshal(p.Payload, out); err != nil {
				return eris.Wrapf(err, "failed to decode %s reply", opcode)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) send(opcode string, payload any, listener string) error {
	bytes, err := json.Marshal(&structs.SignalPacket{Opcode: opcode, Payload: payload, Listener: listener})
	if err != nil {
		return eris.Wrap(err, "failed to encode packet")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
		return eris.Wrapf(err, "failed to send %s", opcode)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		var p inbound
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn().Err(err).Msg("undecodable packet from relay")
			continue
		}
		if p.Listener != "" && c.deliver(p) {
			continue
		}
		c.handle(p)
	}
}

func (c *Client) deliver(p inbound) bool {
	c.pendingMu.Lock()
	reply, ok := c.pending[p.Listener]
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case reply <- p:
	default:
	}
	return true
}

func (c *Client) handle(p inbound) {
	switch p.Opcode {
	case "room-update":
		var room structs.RoomInfo
		if c.decode(p, &room) {
			c.setRoom(&room)
		}

	case "rooms-list":
		var directory []structs.RoomSummary
		if c.decode(p, &directory) {
			c.mu.Lock()
			c.directory = directory
			c.mu.Unlock()
		}

	case "left-room", "kicked":
		c.mu.Lock()
		c.room = nil
		c.game = nil
		c.mu.Unlock()

	case "game-start":
		var start structs.GameStart
		if c.decode(p, &start) {
			c.startGame(&start)
		}

	case "game-ended":
		c.mu.Lock()
		c.game = nil
		c.mu.Unlock()

	case "game-state":
		if g := c.Game(); g != nil && !g.IsHost() {
			g.applyState(p.Payload)
		}

	case "player-input":
		if g := c.Game(); g != nil {
			g.applyRemote(p.Payload)
		}

	case "session-replaced":
		c.logger.Warn().Msg("session taken over by another connection")

	case "error":
		var e structs.ErrorPayload
		if c.decode(p, &e) {
			c.logger.Debug().Str("message", e.Message).Msg("relay rejected a request")
		}
	}
}

func (c *Client) decode(p inbound, out any) bool {
	if err := json.Unmarshal(p.Payload, out); err != nil {
		c.logger.Warn().Err(err).Str("opcode", p.Opcode).Msg("undecodable payload")
		return false
	}
	return true
}

func (c *Client) setRoom(room *structs.RoomInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
	if c.game != nil {
		c.game.setHost(room.HostID)
	}
}

func (c *Client) startGame(start *structs.GameStart) {
	c.mu.Lock()
	self := c.sessionID
	c.mu.Unlock()

	g, err := newGame(c, start, self)
	if err != nil {
		c.logger.Error().Err(err).Uint32("seed", start.PieceSeed).Msg("game start rejected")
	}
	c.mu.Lock()
	c.game = g
	c.mu.Unlock()
}
