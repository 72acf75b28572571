package session

import (
	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// RoomUpdate sends the full room info to every connected member.
func RoomUpdate(room *manager.Room) {
	if room == nil {
		return
	}
	message.Broadcast(
		room.Clients(""),
		&structs.SignalPacket{Opcode: "room-update", Payload: room.Info()},
	)
}

// Directory broadcasts the room directory to every open connection.
func Directory(s *manager.Server) {
	message.Broadcast(
		s.Connected(),
		&structs.SignalPacket{Opcode: "rooms-list", Payload: s.Directory()},
	)
	statsd.Gauge("rooms", float64(len(s.Rooms)))
}

// Departed notifies everyone affected by a member leaving a room. The
// departed connection, if any, receives left-room, and kicked as well when
// it was removed by the host. The directory is left to the caller.
func Departed(dep *manager.Departure, kicked bool) {
	if dep == nil {
		return
	}
	if dep.Client != nil {
		message.Code(dep.Client, "left-room", struct{}{}, "")
		if kicked {
			message.Code(dep.Client, "kicked", &structs.Kicked{RoomID: dep.RoomID, RoomName: dep.RoomName}, "")
		}
	}
	RoomUpdate(dep.Room)
	if dep.Deleted {
		statsd.Incr("rooms.deleted")
	}
}

// Rejoined brings a reattached member up to date: the room hears that the
// player is back and, mid-game, the member gets the game start and the last
// authoritative state again.
func Rejoined(s *manager.Server, sess *manager.Session, room *manager.Room, reconnected bool) {
	if reconnected {
		message.Broadcast(
			room.Clients(sess.ID),
			&structs.SignalPacket{
				Opcode:  "player-reconnected",
				Payload: &structs.PlayerRef{PlayerID: sess.ID},
			},
		)
		statsd.Incr("sessions.reconnected")
	}
	RoomUpdate(room)

	if room.Game == nil {
		return
	}
	message.Code(sess.Client, "game-start", &room.Game.Start, "")
	if snapshot := s.Snapshot(sess); snapshot != nil {
		message.Relay(sess.Client, "game-state", snapshot, "")
	}
}
