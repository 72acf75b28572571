package manager

import (
	"github.com/goccy/go-json"

	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// Relayed is a stamped game message and the connections it goes to.
type Relayed struct {
	Room     *Room
	Targets  []*structs.Client
	Payload  json.RawMessage
	Sequence *int64
	// Ack is set when the sender should get an input-ack.
	Ack bool
}

var null = json.RawMessage("null")

// SubmitState stamps a snapshot from the host and stores it as the room's
// last authoritative state. A numeric sequence supplied by the host is kept;
// otherwise the room counter advances. It returns nil if the message is
// dropped.
func (s *Server) SubmitState(sess *Session, payload json.RawMessage) (*Relayed, error) {
	room := s.RoomOf(sess)
	if room == nil {
		return nil, nil
	}
	if room.HostID != sess.ID {
		return nil, fail(ErrAuthority, "only the host can publish game state")
	}
	g := room.Game
	if g == nil {
		return nil, nil
	}
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, fail(ErrValidation, "game state must be an object")
	}

	seq, ok := sequenceOf(fields["sequence"])
	if ok {
		g.StateSequence = seq
	} else {
		g.StateSequence++
		seq = g.StateSequence
	}
	fields["sequence"] = encodeInt(seq)

	stamped, err := json.Marshal(fields)
	if err != nil {
		return nil, fail(ErrValidation, "game state could not be encoded")
	}
	g.Snapshot = stamped
	return &Relayed{
		Room:     room,
		Targets:  room.Clients(sess.ID),
		Payload:  stamped,
		Sequence: &seq,
	}, nil
}

// SubmitInput stamps a player input with the sender and the room's next input
// sequence. Before a game starts, input from anyone but the host is passed
// through with a null sequence and no ack.
func (s *Server) SubmitInput(sess *Session, payload json.RawMessage) (*Relayed, error) {
	room := s.RoomOf(sess)
	if room == nil {
		return nil, nil
	}
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, fail(ErrValidation, "player input must be an object")
	}
	playerID, _ := json.Marshal(sess.ID)
	fields["playerId"] = playerID

	out := &Relayed{Room: room, Targets: room.Clients(sess.ID)}
	if g := room.Game; g != nil {
		g.InputSequence++
		seq := g.InputSequence
		g.LastInput[sess.ID] = seq
		fields["sequence"] = encodeInt(seq)
		out.Sequence = &seq
		out.Ack = true
	} else {
		if room.HostID == sess.ID {
			return nil, nil
		}
		fields["sequence"] = null
	}

	if out.Payload, err = json.Marshal(fields); err != nil {
		return nil, fail(ErrValidation, "player input could not be encoded")
	}
	return out, nil
}

// Snapshot returns the last authoritative state of the session's game.
func (s *Server) Snapshot(sess *Session) json.RawMessage {
	room := s.RoomOf(sess)
	if room == nil || room.Game == nil {
		return nil
	}
	return room.Game.Snapshot
}

func decodeObject(payload json.RawMessage) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(payload) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	return fields, nil
}

func sequenceOf(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int64(f), true
}

func encodeInt(v int64) json.RawMessage {
	out, _ := json.Marshal(v)
	return out
}
