// Package manager holds the session registry, the room registry and the state
// relay. A Server is owned by a single event loop: none of its methods are
// safe for concurrent use, and callers serialize every mutation.
package manager

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/MikeDev101/coopstack/server/pkg/constants"
	"github.com/MikeDev101/coopstack/server/pkg/dealer"
	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

type Options struct {
	GracePeriod time.Duration
	MaxPlayers  int
	Scheduler   Scheduler
	// OnExpire receives grace-period expiries. It runs on the timer's
	// goroutine and must hand the expiry back to the event loop.
	OnExpire func(Expiry)
	// Store is optional. Without it, forgotten sessions cannot be resumed.
	Store        storage.Store
	StoreTimeout time.Duration
}

// Server is the relay's registry state.
type Server struct {
	Sessions map[string]*Session
	Rooms    map[string]*Room
	Clients  map[*structs.Client]struct{}
	Monitor  *Monitor

	Now          func() time.Time
	NewSeed      func() uint32
	NewRoomID    func() string
	NewSessionID func() string

	opts   Options
	order  []string // room ids in creation order
	relays map[*structs.Client]*structs.Relay
	writer *storage.Writer
}

const writeBuffer = 256

func New(opts Options) *Server {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = constants.DefaultGracePeriod
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = constants.DefaultMaxPlayers
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 2 * time.Second
	}
	if opts.OnExpire == nil {
		opts.OnExpire = func(Expiry) {}
	}
	s := &Server{
		Sessions:     make(map[string]*Session),
		Rooms:        make(map[string]*Room),
		Clients:      make(map[*structs.Client]struct{}),
		Monitor:      NewMonitor(opts.GracePeriod, opts.Scheduler, opts.OnExpire),
		Now:          time.Now,
		NewSeed:      dealer.NewSeed,
		NewRoomID:    func() string { return ulid.Make().String() },
		NewSessionID: func() string { return uuid.NewString() },
		opts:         opts,
		relays:       make(map[*structs.Client]*structs.Relay),
	}
	if opts.Store != nil {
		s.writer = storage.NewWriter(opts.Store, opts.StoreTimeout, writeBuffer)
	}
	return s
}

// Close writes out pending session records. The server must not be used
// afterwards.
func (s *Server) Close() {
	if s.writer != nil {
		s.writer.Close()
	}
}

func (s *Server) Options() Options {
	return s.opts
}

// Register tracks an open connection for directory broadcasts.
func (s *Server) Register(client *structs.Client) {
	s.Clients[client] = struct{}{}
}

func (s *Server) Unregister(client *structs.Client) {
	delete(s.Clients, client)
}

// Connected returns every open connection.
func (s *Server) Connected() []*structs.Client {
	out := make([]*structs.Client, 0, len(s.Clients))
	for c := range s.Clients {
		out = append(out, c)
	}
	return out
}

// SessionOf returns the session a connection is currently bound to. A
// connection whose session was taken over by another connection has none.
func (s *Server) SessionOf(client *structs.Client) *Session {
	if client == nil || client.SessionID == "" {
		return nil
	}
	sess := s.Sessions[client.SessionID]
	if sess == nil || sess.Client != client {
		return nil
	}
	return sess
}

// RoomOf returns the room a session is a member of.
func (s *Server) RoomOf(sess *Session) *Room {
	if sess == nil || sess.RoomID == "" {
		return nil
	}
	return s.Rooms[sess.RoomID]
}

// Directory lists rooms in creation order.
func (s *Server) Directory() []structs.RoomSummary {
	out := make([]structs.RoomSummary, 0, len(s.order))
	for _, id := range s.order {
		if room := s.Rooms[id]; room != nil {
			out = append(out, room.Summary())
		}
	}
	return out
}

func (s *Server) addRoom(room *Room) {
	s.Rooms[room.ID] = room
	s.order = append(s.order, room.ID)
}

func (s *Server) deleteRoom(id string) {
	delete(s.Rooms, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func defaultName(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 4 {
		short = short[:4]
	}
	return "Player " + strings.ToUpper(short)
}
