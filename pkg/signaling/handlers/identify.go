package handlers

import (
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/session"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// IDENTIFY binds the connection to a session, resuming it when the id is
// known. A member coming back is reattached to its room; mid-game it gets the
// game start and the last snapshot replayed.
func IDENTIFY(d *Deps, client *structs.Client, packet *structs.InboundPacket) {
	params, ok := decode[structs.IdentifyParams](d, client, packet)
	if !ok {
		return
	}

	id, err := d.Server.Identify(client, params.SessionID, params.Nickname)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	if id.Replaced != nil {
		session.Replace(d.Server, id.Replaced)
	}

	confirmed := &structs.SessionConfirmed{
		SessionID: id.Session.ID,
		Name:      id.Session.Name,
	}
	if id.Room != nil {
		info := id.Room.Info()
		confirmed.RestoredRoom = &info
	}
	message.Code(client, "session-confirmed", confirmed, packet.Listener)

	if id.Room != nil {
		session.Rejoined(d.Server, id.Session, id.Room, id.Rejoined)
	}

	if id.Resumed {
		statsd.Incr("sessions.resumed")
	} else {
		statsd.Incr("sessions.created")
	}
	statsd.Gauge("sessions", float64(len(d.Server.Sessions)))
	log.Info().
		Str("conn", client.ID).
		Str("session", id.Session.ID).
		Bool("resumed", id.Resumed).
		Bool("rejoined", id.Rejoined).
		Msg("session identified")
}
