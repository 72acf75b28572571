package session

import (
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/peer"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// New wraps a freshly upgraded connection in a client and starts its writer.
// The client is not known to the registry until Open runs on the event loop.
func New(conn structs.Conn, remote string) *structs.Client {
	client := structs.NewClient(conn, ulid.Make().String())
	client.Remote = remote
	go client.Pump()
	return client
}

// Open registers a connection and sends it the current room directory.
func Open(s *manager.Server, client *structs.Client) {
	s.Register(client)
	message.Code(client, "rooms-list", s.Directory(), "")
	statsd.Gauge("connections", float64(len(s.Clients)))
	log.Debug().Str("conn", client.ID).Str("remote", client.Remote).Msg("connection opened")
}

// Close handles a lost connection. A session still bound to the connection
// keeps its seat for the grace period; its room hears that the player is
// gone. Closing a connection whose session moved elsewhere only unregisters
// it.
func Close(s *manager.Server, client *structs.Client) {
	if client == nil {
		log.Warn().Msg("attempted to close nil client")
		return
	}
	s.Unregister(client)
	peer.Shutdown(s.DeleteRelay(client))

	sess, room := s.Disconnect(client)
	if room != nil {
		message.Broadcast(
			room.Clients(sess.ID),
			&structs.SignalPacket{
				Opcode:  "player-disconnected",
				Payload: &structs.PlayerRef{PlayerID: sess.ID},
			},
		)
		RoomUpdate(room)
	}
	client.Close()

	statsd.Gauge("connections", float64(len(s.Clients)))
	event := log.Debug().Str("conn", client.ID)
	if sess != nil {
		event = event.Str("session", sess.ID)
	}
	event.Msg("connection closed")
}

// Replace tells a connection that another one took over its session, then
// closes it.
func Replace(s *manager.Server, client *structs.Client) {
	message.Code(client, "session-replaced", nil, "")
	peer.Shutdown(s.DeleteRelay(client))
	client.Close()
	go func() {
		<-client.Done()
		_ = client.Conn.Close()
	}()
	statsd.Incr("sessions.replaced")
}
