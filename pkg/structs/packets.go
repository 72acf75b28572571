package structs

import (
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Declare the inbound packet format. The payload is decoded per opcode.
type InboundPacket struct {
	Opcode   string          `json:"opcode" validate:"required,max=32" label:"opcode"`
	Payload  json.RawMessage `json:"payload,omitempty" label:"payload"`
	Listener string          `json:"listener,omitempty" validate:"omitempty,max=64" label:"listener"` // Echoed back on direct replies
}

// Declare the outbound packet format.
type SignalPacket struct {
	Opcode   string `json:"opcode"`
	Payload  any    `json:"payload,omitempty"`
	Listener string `json:"listener,omitempty"`
}

type IdentifyParams struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=64" label:"sessionId"`
	Nickname  string `json:"nickname" validate:"omitempty,max=24" label:"nickname"`
}

type SessionConfirmed struct {
	SessionID    string    `json:"sessionId"`
	Name         string    `json:"name"`
	RestoredRoom *RoomInfo `json:"restoredRoom"`
}

type CreateRoomParams struct {
	Name       string `json:"name" validate:"required,max=48" label:"name"`
	IsPrivate  bool   `json:"isPrivate" label:"isPrivate"`
	AccessCode string `json:"accessCode" validate:"omitempty,max=64" label:"accessCode"`
}

type JoinRoomParams struct {
	RoomID     string `json:"roomId" validate:"required,max=64" label:"roomId"`
	AccessCode string `json:"accessCode" validate:"omitempty,max=64" label:"accessCode"`
}

type KickParams struct {
	TargetSessionID string `json:"targetSessionId" validate:"required,max=64" label:"targetSessionId"`
}

type ColorParams struct {
	Color string `json:"color" validate:"required,max=16" label:"color"`
}

// PlayerInputParams is the typed view of a player-input payload. The full
// payload is relayed untouched apart from the stamp.
type PlayerInputParams struct {
	Action    string `json:"action" validate:"required,oneof=move rotate drop hard-drop" label:"action"`
	Direction int    `json:"direction,omitempty" validate:"omitempty,min=-1,max=1" label:"direction"`
}

type PlayerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
}

type RoomInfo struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	HostID     string       `json:"hostId"`
	MaxPlayers int          `json:"maxPlayers"`
	Started    bool         `json:"started"`
	IsPrivate  bool         `json:"isPrivate"`
	AccessCode string       `json:"accessCode,omitempty"`
	Players    []PlayerInfo `json:"players"`
}

// RoomSummary is one entry of the rooms-list directory.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Started     bool   `json:"started"`
	IsPrivate   bool   `json:"isPrivate"`
}

type GameStart struct {
	Players       []PlayerInfo `json:"players"`
	PieceSeed     uint32       `json:"pieceSeed"`
	PieceSequence []string     `json:"pieceSequence"`
	HostID        string       `json:"hostId"`
}

type Kicked struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type GameEnded struct {
	RoomID string `json:"roomId"`
}

type PlayerRef struct {
	PlayerID string `json:"playerId"`
}

type InputAck struct {
	Sequence *int64 `json:"sequence"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type MetadataPacket struct {
	OperatingSystem string `json:"os"`
	Architecture    string `json:"architecture"`
	ServerVersion   string `json:"version"`
	GoVersion       string `json:"go_version"`
}

// RelayOffer carries the client's SDP offer for the server data-channel relay.
type RelayOffer struct {
	SDP *webrtc.SessionDescription `json:"sdp" validate:"required" label:"sdp"`
}

type RelayAnswer struct {
	SDP *webrtc.SessionDescription `json:"sdp"`
}

type RelayIce struct {
	Candidate *webrtc.ICECandidateInit `json:"candidate" validate:"required" label:"candidate"`
}
