package manager

import (
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/MikeDev101/coopstack/server/pkg/dealer"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

type Member struct {
	SessionID string
	Client    *structs.Client // nil while disconnected
	Name      string
	Color     string
	Ready     bool
	Connected bool
}

// Game is the relay-side record of a running game.
type Game struct {
	Seed          uint32
	Dealer        *dealer.Dealer
	Start         structs.GameStart
	StartedAt     time.Time
	StateSequence int64
	InputSequence int64
	Snapshot      json.RawMessage
	LastInput     map[string]int64
}

type Room struct {
	ID         string
	Name       string
	HostID     string
	MaxPlayers int
	Started    bool
	IsPrivate  bool
	AccessCode string
	Members    []*Member // join order
	Game       *Game
	CreatedAt  time.Time
}

// Departure describes a member leaving a room, by choice, by kick or by
// expiry.
type Departure struct {
	Session  *Session
	Client   *structs.Client // the departed member's connection, if any
	Room     *Room           // nil once the room has been deleted
	RoomID   string
	RoomName string
	Deleted  bool
}

// CreateRoom opens a room with sess as host and only member. A session in
// another room leaves it first.
func (s *Server) CreateRoom(sess *Session, params structs.CreateRoomParams) (*Room, *Departure, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, nil, fail(ErrValidation, "room name is required")
	}
	code := ""
	if params.IsPrivate {
		var ok bool
		if code, ok = NormalizeAccessCode(params.AccessCode); !ok {
			return nil, nil, fail(ErrValidation, "access code must be 4-8 letters or digits")
		}
	}

	dep := s.LeaveRoom(sess)
	room := &Room{
		ID:         s.NewRoomID(),
		Name:       name,
		HostID:     sess.ID,
		MaxPlayers: s.opts.MaxPlayers,
		IsPrivate:  params.IsPrivate,
		AccessCode: code,
		CreatedAt:  s.Now(),
	}
	room.add(sess)
	s.addRoom(room)
	s.persist(sess)
	return room, dep, nil
}

// JoinRoom seats sess in a room. A session that is still a member (but not
// attached) is reattached without counting against capacity.
func (s *Server) JoinRoom(sess *Session, roomID, accessCode string) (*Room, *Departure, bool, error) {
	room := s.Rooms[roomID]
	if room == nil {
		return nil, nil, false, fail(ErrNotFound, "room not found")
	}

	if m := room.Member(sess.ID); m != nil {
		if sess.RoomID == room.ID && m.Connected && m.Client == sess.Client {
			return nil, nil, false, fail(ErrConflict, "already in this room")
		}
		dep := s.leaveOther(sess, room.ID)
		sess.RoomID = room.ID
		m.Client = sess.Client
		m.Connected = sess.Client != nil
		room.electHost()
		s.persist(sess)
		return room, dep, true, nil
	}

	if room.IsPrivate {
		code, ok := NormalizeAccessCode(accessCode)
		if !ok || code != room.AccessCode {
			return nil, nil, false, fail(ErrValidation, "incorrect access code")
		}
	}
	if room.Started {
		return nil, nil, false, fail(ErrConflict, "game already in progress")
	}
	if room.Full() {
		return nil, nil, false, fail(ErrCapacity, "room is full")
	}

	dep := s.leaveOther(sess, room.ID)
	room.add(sess)
	room.electHost()
	s.persist(sess)
	return room, dep, false, nil
}

func (s *Server) leaveOther(sess *Session, roomID string) *Departure {
	if sess.RoomID == "" || sess.RoomID == roomID {
		return nil
	}
	return s.LeaveRoom(sess)
}

// LeaveRoom removes sess from its room, frees its color, re-elects the host
// if needed and deletes the room once empty. It returns nil if sess was not
// in a room.
func (s *Server) LeaveRoom(sess *Session) *Departure {
	room := s.RoomOf(sess)
	sess.RoomID = ""
	if room == nil {
		return nil
	}

	dep := &Departure{Session: sess, RoomID: room.ID, RoomName: room.Name}
	if i := room.index(sess.ID); i >= 0 {
		dep.Client = room.Members[i].Client
		sess.Color = room.Members[i].Color
		room.Members = slices.Delete(room.Members, i, i+1)
	}
	if room.Game != nil {
		delete(room.Game.LastInput, sess.ID)
	}

	if len(room.Members) == 0 {
		s.deleteRoom(room.ID)
		dep.Deleted = true
	} else {
		room.electHost()
		dep.Room = room
	}
	s.persist(sess)
	return dep
}

// Kick removes target from the host's room. Anything other than the current
// host kicking a different member is an authority error.
func (s *Server) Kick(host *Session, targetID string) (*Departure, error) {
	room := s.RoomOf(host)
	if room == nil || room.HostID != host.ID {
		return nil, fail(ErrAuthority, "only the host can kick players")
	}
	if targetID == host.ID || room.Member(targetID) == nil {
		return nil, fail(ErrAuthority, "cannot kick that player")
	}
	target := s.Sessions[targetID]
	if target == nil {
		target = &Session{ID: targetID, RoomID: room.ID}
	}
	return s.LeaveRoom(target), nil
}

// SetColor changes the member's color. Outside a room it only changes the
// preferred color.
func (s *Server) SetColor(sess *Session, color string) (*Room, error) {
	color, ok := NormalizeColor(color)
	if !ok {
		return nil, fail(ErrValidation, "invalid color")
	}
	room := s.RoomOf(sess)
	if room == nil {
		sess.Color = color
		s.persist(sess)
		return nil, nil
	}
	m := room.Member(sess.ID)
	if m.Color == color {
		return room, nil
	}
	if room.colorTaken(color, sess.ID) {
		return nil, fail(ErrConflict, "color already taken")
	}
	m.Color = color
	sess.Color = color
	s.persist(sess)
	return room, nil
}

func (s *Server) SetReady(sess *Session, ready bool) (*Room, error) {
	room := s.RoomOf(sess)
	if room == nil {
		return nil, fail(ErrNotFound, "you are not in a room")
	}
	if room.Started {
		return nil, fail(ErrConflict, "game already in progress")
	}
	room.Member(sess.ID).Ready = ready
	return room, nil
}

func (s *Server) ToggleReady(sess *Session) (*Room, error) {
	room := s.RoomOf(sess)
	if room == nil {
		return nil, fail(ErrNotFound, "you are not in a room")
	}
	return s.SetReady(sess, !room.Member(sess.ID).Ready)
}

// StartGame starts the room's game if every member is connected and ready.
// It returns nil if the game did not start.
func (s *Server) StartGame(room *Room) *Game {
	if room.Started || !room.AllReady() {
		return nil
	}
	seed := s.NewSeed()
	d := dealer.New(int64(seed))
	pieces := d.Initial()

	info := room.Info()
	room.Game = &Game{
		Seed:      seed,
		Dealer:    d,
		StartedAt: s.Now(),
		LastInput: make(map[string]int64),
		Start: structs.GameStart{
			Players:       info.Players,
			PieceSeed:     seed,
			PieceSequence: dealer.Strings(pieces),
			HostID:        room.HostID,
		},
	}
	room.Started = true
	return room.Game
}

// EndGame returns the host's room to the lobby state.
func (s *Server) EndGame(sess *Session) (*Room, error) {
	room := s.RoomOf(sess)
	if room == nil || room.HostID != sess.ID {
		return nil, fail(ErrAuthority, "only the host can end the game")
	}
	if !room.Started {
		return nil, fail(ErrConflict, "no game in progress")
	}
	room.Started = false
	room.Game = nil
	for _, m := range room.Members {
		m.Ready = false
	}
	return room, nil
}

func (r *Room) Member(sessionID string) *Member {
	if i := r.index(sessionID); i >= 0 {
		return r.Members[i]
	}
	return nil
}

func (r *Room) index(sessionID string) int {
	return slices.IndexFunc(r.Members, func(m *Member) bool { return m.SessionID == sessionID })
}

func (r *Room) Full() bool {
	return len(r.Members) >= r.MaxPlayers
}

// AllReady reports whether the room has members and every one of them is
// connected and ready.
func (r *Room) AllReady() bool {
	if len(r.Members) == 0 {
		return false
	}
	for _, m := range r.Members {
		if !m.Connected || !m.Ready {
			return false
		}
	}
	return true
}

// UsedColors is the set of colors currently held by members.
func (r *Room) UsedColors() map[string]bool {
	used := make(map[string]bool, len(r.Members))
	for _, m := range r.Members {
		if m.Color != "" {
			used[m.Color] = true
		}
	}
	return used
}

// Clients returns the connections of connected members other than except.
func (r *Room) Clients(except string) []*structs.Client {
	var out []*structs.Client
	for _, m := range r.Members {
		if m.SessionID != except && m.Connected && m.Client != nil {
			out = append(out, m.Client)
		}
	}
	return out
}

func (r *Room) Info() structs.RoomInfo {
	info := structs.RoomInfo{
		ID:         r.ID,
		Name:       r.Name,
		HostID:     r.HostID,
		MaxPlayers: r.MaxPlayers,
		Started:    r.Started,
		IsPrivate:  r.IsPrivate,
		AccessCode: r.AccessCode,
		Players:    make([]structs.PlayerInfo, len(r.Members)),
	}
	for i, m := range r.Members {
		info.Players[i] = structs.PlayerInfo{
			ID:        m.SessionID,
			Name:      m.Name,
			Color:     m.Color,
			Ready:     m.Ready,
			Connected: m.Connected,
			IsHost:    m.SessionID == r.HostID,
		}
	}
	return info
}

func (r *Room) Summary() structs.RoomSummary {
	return structs.RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		PlayerCount: len(r.Members),
		MaxPlayers:  r.MaxPlayers,
		Started:     r.Started,
		IsPrivate:   r.IsPrivate,
	}
}

func (r *Room) add(sess *Session) {
	r.Members = append(r.Members, &Member{
		SessionID: sess.ID,
		Client:    sess.Client,
		Name:      sess.Name,
		Color:     r.pickColor(sess.Color),
		Connected: sess.Client != nil,
	})
	sess.RoomID = r.ID
	sess.Color = r.Members[len(r.Members)-1].Color
}
