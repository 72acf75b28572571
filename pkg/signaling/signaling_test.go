package signaling_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeDev101/coopstack/server/pkg/dealer"
	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/signaling"
	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

const readTimeout = 2 * time.Second

type packet struct {
	Opcode   string          `json:"opcode"`
	Payload  json.RawMessage `json:"payload"`
	Listener string          `json:"listener"`
}

type fixture struct {
	srv  *signaling.Server
	app  *fiber.App
	addr string
}

func newFixture(t *testing.T, opts signaling.Options) *fixture {
	t.Helper()
	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"*"}
	}
	srv := signaling.Initialize(opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx) }()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	srv.Routes(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })

	return &fixture{srv: srv, app: app, addr: ln.Addr().String()}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (f *fixture) dial(t *testing.T) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+f.addr+"/", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(opcode string, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"opcode": opcode, "payload": payload}))
}

// expect reads until a packet with opcode arrives and decodes its payload
// into out.
func (c *wsClient) expect(opcode string, out any) packet {
	c.t.Helper()
	return c.expectWhere(opcode, out, nil)
}

// expectWhere is expect with an extra condition on the raw payload.
func (c *wsClient) expectWhere(opcode string, out any, match func(json.RawMessage) bool) packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", opcode)
		var p packet
		require.NoError(c.t, json.Unmarshal(raw, &p))
		if p.Opcode != opcode || (match != nil && !match(p.Payload)) {
			continue
		}
		if out != nil {
			require.NoError(c.t, json.Unmarshal(p.Payload, out))
		}
		return p
	}
}

func (c *wsClient) identify(id, nickname string) structs.SessionConfirmed {
	c.t.Helper()
	c.send("identify", map[string]any{"sessionId": id, "nickname": nickname})
	var confirmed structs.SessionConfirmed
	c.expect("session-confirmed", &confirmed)
	return confirmed
}

func (c *wsClient) errorMessage() string {
	c.t.Helper()
	var e structs.ErrorPayload
	c.expect("error", &e)
	return e.Message
}

// lobby connects two identified players and seats both in a room hosted by
// the first.
func (f *fixture) lobby(t *testing.T) (host, guest *wsClient, hostID, guestID string, room structs.RoomInfo) {
	t.Helper()
	host, guest = f.dial(t), f.dial(t)
	hostID = host.identify("", "Host").SessionID
	guestID = guest.identify("", "Guest").SessionID

	host.send("create-room", map[string]any{"name": "Tetrominoes"})
	host.expect("room-created", &room)
	guest.send("join-room", map[string]any{"roomId": room.ID})
	guest.expect("room-joined", nil)
	return host, guest, hostID, guestID, room
}

func start(t *testing.T, host, guest *wsClient) (structs.GameStart, structs.GameStart) {
	t.Helper()
	host.send("toggle-ready", map[string]any{})
	guest.send("toggle-ready", map[string]any{})
	var a, b structs.GameStart
	host.expect("game-start", &a)
	guest.expect("game-start", &b)
	return a, b
}

func TestIdentifyAndCreateRoom(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	a, watcher := f.dial(t), f.dial(t)

	confirmed := a.identify("", "Ada")
	assert.NotEmpty(t, confirmed.SessionID)
	assert.Equal(t, "Ada", confirmed.Name)
	assert.Nil(t, confirmed.RestoredRoom)

	a.send("create-room", map[string]any{"name": "Cascade", "isPrivate": true, "accessCode": "ab-12"})
	var room structs.RoomInfo
	a.expect("room-created", &room)
	assert.Equal(t, "Cascade", room.Name)
	assert.Equal(t, "AB12", room.AccessCode)
	assert.Equal(t, confirmed.SessionID, room.HostID)
	require.Len(t, room.Players, 1)

	// Every connection hears about the new room, identified or not.
	var directory []structs.RoomSummary
	watcher.expectWhere("rooms-list", &directory, func(raw json.RawMessage) bool { return string(raw) != "[]" })
	require.Len(t, directory, 1)
	assert.Equal(t, room.ID, directory[0].ID)
	assert.True(t, directory[0].IsPrivate)
}

func TestRoomErrors(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	a := f.dial(t)

	a.send("create-room", map[string]any{"name": "x"})
	assert.Equal(t, "identify first", a.errorMessage())

	a.identify("", "")
	a.send("create-room", map[string]any{"name": "x", "isPrivate": true, "accessCode": "AB"})
	assert.Equal(t, "access code must be 4-8 letters or digits", a.errorMessage())

	a.send("join-room", map[string]any{"roomId": "nope"})
	assert.Equal(t, "room not found", a.errorMessage())

	a.send("create-room", map[string]any{})
	assert.Equal(t, "name is required", a.errorMessage())

	a.send("dance", nil)
	assert.Equal(t, "unknown opcode", a.errorMessage())
}

func TestMalformedPacketKeepsConnection(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	a := f.dial(t)

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "packet decoding error", a.errorMessage())

	a.send("keepalive", "ping")
	var echo string
	a.expect("keepalive", &echo)
	assert.Equal(t, "ping", echo)
}

func TestMetaAndDisabledRelay(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	a := f.dial(t)

	a.send("meta", nil)
	var meta structs.MetadataPacket
	a.expect("meta", &meta)
	assert.NotEmpty(t, meta.ServerVersion)
	assert.NotEmpty(t, meta.GoVersion)

	a.identify("", "Ada")
	a.send("relay-offer", map[string]any{"sdp": map[string]any{"type": "offer", "sdp": "v=0"}})
	assert.Equal(t, "relay is disabled", a.errorMessage())
}

func TestGameStartAgreesWithDealer(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	host, guest, hostID, _, _ := f.lobby(t)

	a, b := start(t, host, guest)
	assert.Equal(t, a, b)
	assert.Equal(t, hostID, a.HostID)
	assert.Len(t, a.Players, 2)
	assert.Equal(t, dealer.Strings(dealer.New(int64(a.PieceSeed)).Initial()), a.PieceSequence)

	// Ready during a game is refused.
	guest.send("toggle-ready", map[string]any{})
	assert.Equal(t, "game already in progress", guest.errorMessage())
}

// stalledStore answers nothing until released.
type stalledStore struct {
	release chan struct{}
	once    sync.Once
}

func (s *stalledStore) unblock() { s.once.Do(func() { close(s.release) }) }

func (s *stalledStore) wait(ctx context.Context) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stalledStore) Load(ctx context.Context, _ string) (*storage.Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return nil, storage.ErrNotFound
}

func (s *stalledStore) Save(ctx context.Context, _ *storage.Record) error {
	return s.wait(ctx)
}

func (s *stalledStore) Delete(ctx context.Context, _ string) error {
	return s.wait(ctx)
}

func TestSlowStoreDoesNotStallRelay(t *testing.T) {
	store := &stalledStore{release: make(chan struct{})}
	f := newFixture(t, signaling.Options{Manager: manager.Options{Store: store, StoreTimeout: time.Minute}})
	t.Cleanup(store.unblock)

	host, guest, _, guestID, _ := f.lobby(t)
	start(t, host, guest)

	// A returning player whose record has to be fetched from the store.
	late := f.dial(t)
	late.send("identify", map[string]any{"sessionId": "from-yesterday", "nickname": "Late"})
	late.send("keepalive", "after")

	guest.send("player-input", map[string]any{"action": "drop"})
	var input map[string]any
	host.expect("player-input", &input)
	assert.Equal(t, guestID, input["playerId"])

	store.unblock()
	var confirmed structs.SessionConfirmed
	late.expect("session-confirmed", &confirmed)
	assert.Equal(t, "Late", confirmed.Name)
	assert.NotEqual(t, "from-yesterday", confirmed.SessionID)

	// Packets sent while the lookup was running keep their order.
	var echo string
	late.expect("keepalive", &echo)
	assert.Equal(t, "after", echo)
}

func TestStateAndInputRelay(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	host, guest, _, guestID, _ := f.lobby(t)
	start(t, host, guest)

	host.send("game-state", map[string]any{"tick": 3})
	var state map[string]any
	guest.expect("game-state", &state)
	assert.Equal(t, float64(3), state["tick"])
	assert.Equal(t, float64(1), state["sequence"])

	guest.send("player-input", map[string]any{"action": "move", "direction": 1})
	var input map[string]any
	host.expect("player-input", &input)
	assert.Equal(t, guestID, input["playerId"])
	assert.Equal(t, float64(1), input["sequence"])

	var ack structs.InputAck
	guest.expect("input-ack", &ack)
	require.NotNil(t, ack.Sequence)
	assert.Equal(t, int64(1), *ack.Sequence)

	guest.send("player-input", map[string]any{"action": "teleport"})
	assert.Contains(t, guest.errorMessage(), "action must be one of")

	guest.send("request-sync", map[string]any{})
	guest.expect("game-state", &state)
	assert.Equal(t, float64(3), state["tick"])
}

func TestReconnectWithinGrace(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	host, guest, _, guestID, room := f.lobby(t)
	start(t, host, guest)

	host.send("game-state", map[string]any{"tick": 9})
	guest.expect("game-state", nil)

	require.NoError(t, guest.conn.Close())
	var ref structs.PlayerRef
	host.expect("player-disconnected", &ref)
	assert.Equal(t, guestID, ref.PlayerID)

	back := f.dial(t)
	confirmed := back.identify(guestID, "")
	assert.Equal(t, guestID, confirmed.SessionID)
	require.NotNil(t, confirmed.RestoredRoom)
	assert.Equal(t, room.ID, confirmed.RestoredRoom.ID)

	back.expect("game-start", nil)
	var state map[string]any
	back.expect("game-state", &state)
	assert.Equal(t, float64(9), state["tick"])

	host.expect("player-reconnected", &ref)
	assert.Equal(t, guestID, ref.PlayerID)
}

func TestExpiryRemovesMember(t *testing.T) {
	f := newFixture(t, signaling.Options{Manager: manager.Options{GracePeriod: 50 * time.Millisecond}})
	host, guest, _, _, _ := f.lobby(t)

	require.NoError(t, guest.conn.Close())
	var info structs.RoomInfo
	host.expectWhere("room-update", &info, func(raw json.RawMessage) bool {
		var r structs.RoomInfo
		return json.Unmarshal(raw, &r) == nil && len(r.Players) == 1
	})
	assert.Len(t, info.Players, 1)
}

func TestKick(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	host, guest, _, guestID, room := f.lobby(t)

	// Only the host can kick; anyone else is ignored without a reply.
	guest.send("kick-player", map[string]any{"targetSessionId": guestID})
	host.send("kick-player", map[string]any{"targetSessionId": guestID})

	guest.expect("left-room", nil)
	var kicked structs.Kicked
	guest.expect("kicked", &kicked)
	assert.Equal(t, room.ID, kicked.RoomID)
	assert.Equal(t, room.Name, kicked.RoomName)
}

func TestSessionTakeover(t *testing.T) {
	f := newFixture(t, signaling.Options{})
	first := f.dial(t)
	id := first.identify("", "Ada").SessionID

	second := f.dial(t)
	assert.Equal(t, id, second.identify(id, "").SessionID)

	first.expect("session-replaced", nil)
	require.NoError(t, first.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := first.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestOriginRejected(t *testing.T) {
	f := newFixture(t, signaling.Options{AllowedOrigins: []string{"play.coop.games"}})

	header := http.Header{"Origin": []string{"https://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws://"+f.addr+"/", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://play.coop.games")
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+f.addr+"/", header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHTTPRoutes(t *testing.T) {
	f := newFixture(t, signaling.Options{PublicURL: "https://play.coop.games"})
	a := f.dial(t)
	a.identify("", "")
	a.send("create-room", map[string]any{"name": "Cascade"})
	var room structs.RoomInfo
	a.expect("room-created", &room)

	get := func(path string) (*http.Response, []byte) {
		resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, body
	}

	resp, body := get("/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, body = get("/rooms")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var directory []structs.RoomSummary
	require.NoError(t, json.Unmarshal(body, &directory))
	require.Len(t, directory, 1)
	assert.Equal(t, room.ID, directory[0].ID)

	resp, body = get("/rooms/" + room.ID + "/qr")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, []byte("\x89PNG"), body[:4])

	resp, _ = get("/rooms/missing/qr")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = get("/protocol")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var schemas map[string]any
	require.NoError(t, json.Unmarshal(body, &schemas))
	assert.Contains(t, schemas, "identify")
	assert.Contains(t, schemas, "player-input")
}
