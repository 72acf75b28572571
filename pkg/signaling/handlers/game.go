package handlers

import (
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/session"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// TOGGLE_READY flips the sender's ready flag. Once every member is connected
// and ready, the game starts: each member gets the seed and the first batch.
func TOGGLE_READY(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	room, err := d.Server.ToggleReady(sess)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	session.RoomUpdate(room)

	g := d.Server.StartGame(room)
	if g == nil {
		return
	}
	message.Broadcast(
		room.Clients(""),
		&structs.SignalPacket{Opcode: "game-start", Payload: &g.Start},
	)
	session.RoomUpdate(room)
	session.Directory(d.Server)

	statsd.Incr("games.started", "players:"+strconv.Itoa(len(room.Members)))
	log.Info().Str("room", room.ID).Uint32("seed", g.Seed).Int("players", len(room.Members)).Msg("game started")
}

// END_GAME returns the host's room to the lobby.
func END_GAME(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	var game *manager.Game
	if room := d.Server.RoomOf(sess); room != nil {
		game = room.Game
	}

	room, err := d.Server.EndGame(sess)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	message.Broadcast(
		room.Clients(""),
		&structs.SignalPacket{Opcode: "game-ended", Payload: &structs.GameEnded{RoomID: room.ID}},
	)
	session.RoomUpdate(room)
	session.Directory(d.Server)

	if game != nil {
		statsd.Since("games.duration", game.StartedAt)
	}
	log.Info().Str("room", room.ID).Msg("game ended")
}

// GAME_STATE forwards the host's authoritative snapshot to the rest of the
// room.
func GAME_STATE(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	out, err := d.Server.SubmitState(sess, packet.Payload)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	if out == nil {
		return
	}
	for _, target := range out.Targets {
		message.Relay(target, "game-state", out.Payload, "")
	}
}

func REQUEST_SYNC(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	if snapshot := d.Server.Snapshot(sess); snapshot != nil {
		message.Relay(client, "game-state", snapshot, packet.Listener)
	}
}

// PLAYER_INPUT stamps an input with the sender and a sequence, forwards it
// to the rest of the room and acknowledges it.
func PLAYER_INPUT(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	if _, ok := decode[structs.PlayerInputParams](d, client, packet); !ok {
		return
	}

	out, err := d.Server.SubmitInput(sess, packet.Payload)
	if err != nil {
		message.Error(client, err, packet.Listener)
		return
	}
	if out == nil {
		return
	}
	for _, target := range out.Targets {
		message.Relay(target, "player-input", out.Payload, "")
	}
	if out.Ack {
		message.Relay(client, "input-ack", &structs.InputAck{Sequence: out.Sequence}, packet.Listener)
	}
}
