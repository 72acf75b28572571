package signaling

import (
	"net/url"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"
	"github.com/skip2/go-qrcode"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

const qrSize = 320

// Routes mounts the websocket endpoint and the HTTP endpoints on app.
func (s *Server) Routes(app *fiber.App) {
	app.Get("/healthz", s.health)
	app.Get("/rooms", s.rooms)
	app.Get("/rooms/:id/qr", s.roomQR)
	app.Get("/protocol", s.protocol)
	app.Get("/", s.Upgrader, websocket.New(s.Handler))
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.Query(c.Context(), func(*manager.Server) {}); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.SendString("ok")
}

func (s *Server) rooms(c *fiber.Ctx) error {
	var directory []structs.RoomSummary
	if err := s.Query(c.Context(), func(m *manager.Server) { directory = m.Directory() }); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(directory)
}

// roomQR renders a PNG QR code of the room's join link.
func (s *Server) roomQR(c *fiber.Ctx) error {
	id := c.Params("id")
	found := false
	if err := s.Query(c.Context(), func(m *manager.Server) { found = m.Rooms[id] != nil }); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	if !found {
		return fiber.NewError(fiber.StatusNotFound, "room not found")
	}

	base := s.publicURL
	if base == "" {
		base = c.BaseURL()
	}
	png, err := qrcode.Encode(base+"/?room="+url.QueryEscape(id), qrcode.Medium, qrSize)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "qr generation failed")
	}
	c.Type("png")
	return c.Send(png)
}

func (s *Server) protocol(c *fiber.Ctx) error {
	return c.JSON(protocolSchemas())
}

var protocolSchemas = sync.OnceValue(func() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		ExpandedStruct: true,
	}
	return map[string]*jsonschema.Schema{
		"packet":       r.Reflect(&structs.InboundPacket{}),
		"identify":     r.Reflect(&structs.IdentifyParams{}),
		"create-room":  r.Reflect(&structs.CreateRoomParams{}),
		"join-room":    r.Reflect(&structs.JoinRoomParams{}),
		"kick-player":  r.Reflect(&structs.KickParams{}),
		"change-color": r.Reflect(&structs.ColorParams{}),
		"player-input": r.Reflect(&structs.PlayerInputParams{}),
		"relay-offer":  r.Reflect(&structs.RelayOffer{}),
		"relay-ice":    r.Reflect(&structs.RelayIce{}),
	}
})
