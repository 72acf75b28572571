// Package signaling is the relay's transport surface: the websocket handler,
// the HTTP routes and the hub that serializes everything they produce.
package signaling

import (
	"context"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/peer"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/handlers"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/origin"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/session"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

type Options struct {
	// AllowedOrigins are host patterns; "*" matches anything.
	AllowedOrigins []string
	Manager        manager.Options
	// Relay enables the data-channel relay when set.
	Relay *peer.Config
	// PublicURL is the base of room join links. When empty it is derived from
	// the request.
	PublicURL string
}

type Server struct {
	hub       *Hub
	origins   []*regexp.Regexp
	validator *validator.Validate
	publicURL string
}

func Initialize(opts Options) *Server {
	s := &Server{
		hub:       newHub(),
		origins:   origin.CompilePatterns(opts.AllowedOrigins),
		validator: newValidator(),
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
	}

	mopts := opts.Manager
	mopts.OnExpire = s.hub.onExpire
	s.hub.deps = &handlers.Deps{
		Server:    manager.New(mopts),
		Validator: s.validator,
		Relay:     opts.Relay,
		Inbound:   s.receive,
	}

	if opts.Relay != nil && opts.Relay.TURNOnly {
		log.Info().Msg("TURN only mode enabled, non-relayed candidates will be ignored")
	}
	return s
}

// Run drives the hub until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// Query runs f against the registry on the hub's goroutine.
func (s *Server) Query(ctx context.Context, f func(*manager.Server)) error {
	return s.hub.Query(ctx, f)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	return v
}

// AuthorizedOrigins implements the CheckOrigin method of the websocket.Upgrader.
// This checks if the incoming request's origin is allowed to connect to the server.
func (s *Server) AuthorizedOrigins(r *fasthttp.Request) bool {
	o := string(r.Header.Peek("Origin"))
	result := origin.IsAllowed(o, s.origins)
	log.Debug().Str("origin", o).Str("host", string(r.Host())).Bool("permitted", result).Msg("origin check")
	return result
}

// Upgrader rejects requests from origins that are not allowed, and requests
// that are not websocket upgrades.
func (s *Server) Upgrader(c *fiber.Ctx) error {
	if !s.AuthorizedOrigins(c.Request()) {
		return fiber.ErrForbidden
	}
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("allowed", true)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler reads packets from one websocket until it closes. Each packet is
// decoded and validated here, then handed to the hub.
func (s *Server) Handler(conn *websocket.Conn) {
	client := session.New(conn, conn.RemoteAddr().String())
	s.hub.open(client)
	defer func() {
		s.hub.close(client)
		client.Close()
		<-client.Done()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("conn", client.ID).Msg("websocket read failed")
			}
			return
		}
		s.receive(client, raw)
	}
}

// receive decodes one packet. A packet that fails to decode or validate gets
// an error reply; the connection stays open.
func (s *Server) receive(client *structs.Client, raw []byte) {
	packet := &structs.InboundPacket{}
	if err := json.Unmarshal(raw, packet); err != nil {
		statsd.Incr("packets.malformed")
		message.Code(client, "error", &structs.ErrorPayload{Message: "packet decoding error"}, "")
		return
	}
	if err := s.validator.Struct(packet); err != nil {
		statsd.Incr("packets.malformed")
		message.Code(client, "error", &structs.ErrorPayload{Message: handlers.Describe(err)}, packet.Listener)
		return
	}
	statsd.Incr("packets", "opcode:"+packet.Opcode)
	s.hub.dispatch(client, packet)
}

type (
	connectionHandler func(*handlers.Deps, *structs.Client, *structs.InboundPacket)
	sessionHandler    func(*handlers.Deps, *structs.Client, *manager.Session, *structs.InboundPacket)
)

// Opcodes that work before identify.
var connectionHandlers = map[string]connectionHandler{
	"identify":   handlers.IDENTIFY,
	"keepalive":  handlers.KEEPALIVE,
	"meta":       handlers.META,
	"rooms-list": handlers.ROOMS_LIST,
}

var sessionHandlers = map[string]sessionHandler{
	"create-room":  handlers.CREATE_ROOM,
	"join-room":    handlers.JOIN_ROOM,
	"leave-room":   handlers.LEAVE_ROOM,
	"kick-player":  handlers.KICK_PLAYER,
	"change-color": handlers.CHANGE_COLOR,
	"toggle-ready": handlers.TOGGLE_READY,
	"end-game":     handlers.END_GAME,
	"game-state":   handlers.GAME_STATE,
	"request-sync": handlers.REQUEST_SYNC,
	"player-input": handlers.PLAYER_INPUT,
	"relay-offer":  handlers.RELAY_OFFER,
	"relay-ice":    handlers.RELAY_ICE,
}

func execute_packet(d *handlers.Deps, client *structs.Client, packet *structs.InboundPacket) {
	if handle, ok := connectionHandlers[packet.Opcode]; ok {
		handle(d, client, packet)
		return
	}

	handle, ok := sessionHandlers[packet.Opcode]
	if !ok {
		message.Code(client, "error", &structs.ErrorPayload{Message: "unknown opcode"}, packet.Listener)
		return
	}
	sess := d.Server.SessionOf(client)
	if sess == nil {
		message.Code(client, "error", &structs.ErrorPayload{Message: "identify first"}, packet.Listener)
		return
	}
	sess.LastSeen = d.Server.Now()
	handle(d, client, sess, packet)
}
