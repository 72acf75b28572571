package handlers

import (
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/session"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// CREATE_ROOM opens a room with the sender as host.
func CREATE_ROOM(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	params, ok := decode[structs.CreateRoomParams](d, client, packet)
	if !ok {
		return
	}

	room, dep, err := d.Server.CreateRoom(sess, *params)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	session.Departed(dep, false)
	message.Code(client, "room-created", room.Info(), packet.Listener)
	session.Directory(d.Server)

	statsd.Incr("rooms.created")
	log.Info().Str("session", sess.ID).Str("room", room.ID).Bool("private", room.IsPrivate).Msg("room created")
}

// JOIN_ROOM seats the sender in a room, or reattaches it if it still holds a
// seat there.
func JOIN_ROOM(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	params, ok := decode[structs.JoinRoomParams](d, client, packet)
	if !ok {
		return
	}

	room, dep, resumed, err := d.Server.JoinRoom(sess, params.RoomID, params.AccessCode)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	session.Departed(dep, false)
	message.Code(client, "room-joined", room.Info(), packet.Listener)
	if resumed {
		session.Rejoined(d.Server, sess, room, true)
	} else {
		session.RoomUpdate(room)
	}
	session.Directory(d.Server)

	log.Info().Str("session", sess.ID).Str("room", room.ID).Bool("resumed", resumed).Msg("room joined")
}

func LEAVE_ROOM(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	dep := d.Server.LeaveRoom(sess)
	if dep == nil {
		message.Code(client, "left-room", struct{}{}, packet.Listener)
		return
	}
	session.Departed(dep, false)
	session.Directory(d.Server)

	log.Info().Str("session", sess.ID).Str("room", dep.RoomID).Bool("deleted", dep.Deleted).Msg("room left")
}

// KICK_PLAYER removes another member from the host's room.
func KICK_PLAYER(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	params, ok := decode[structs.KickParams](d, client, packet)
	if !ok {
		return
	}

	dep, err := d.Server.Kick(sess, params.TargetSessionID)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	session.Departed(dep, true)
	session.Directory(d.Server)

	statsd.Incr("players.kicked")
	log.Info().Str("session", sess.ID).Str("target", params.TargetSessionID).Str("room", dep.RoomID).Msg("player kicked")
}

func CHANGE_COLOR(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	params, ok := decode[structs.ColorParams](d, client, packet)
	if !ok {
		return
	}

	room, err := d.Server.SetColor(sess, params.Color)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	session.RoomUpdate(room)
}
