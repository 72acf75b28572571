package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// Session is a player's durable identity. It outlives any single connection.
type Session struct {
	ID        string
	Name      string
	RoomID    string
	Color     string // last color held, preferred on the next join
	Connected bool
	Client    *structs.Client
	LastSeen  time.Time
}

// Identity is the outcome of Identify.
type Identity struct {
	Session *Session
	// Room is set when the session was reattached to its room.
	Room *Room
	// Replaced is the connection that held the session before this one.
	Replaced *structs.Client
	// Resumed reports that an existing identity was picked up rather than
	// minted.
	Resumed bool
	// Rejoined reports that the session's member was disconnected and is
	// back.
	Rejoined bool
}

// Identify binds a connection to a session. A known id resumes that session;
// an unknown id, or none, mints a new one. Sessions that only live in the
// store must be brought back with LoadRecord and Adopt first.
func (s *Server) Identify(client *structs.Client, id, nickname string) (*Identity, error) {
	id = strings.TrimSpace(id)
	nickname = strings.TrimSpace(nickname)

	if client.SessionID != "" {
		if id != "" && id != client.SessionID {
			return nil, fail(ErrConflict, "connection is already identified")
		}
		id = client.SessionID
	}

	result := &Identity{}
	sess := s.Sessions[id]
	if sess != nil {
		result.Resumed = true
	} else {
		sess = &Session{ID: s.NewSessionID()}
		sess.Name = defaultName(sess.ID)
		s.Sessions[sess.ID] = sess
	}
	if nickname != "" {
		sess.Name = nickname
	}
	if sess.Client != nil && sess.Client != client {
		result.Replaced = sess.Client
	}

	result.Session = sess
	result.Room, result.Rejoined = s.Touch(sess, client)
	s.persist(sess)
	return result, nil
}

// Touch attaches a connection to a session, cancels its grace period and
// reattaches its room membership. It returns the room and whether the member
// had been disconnected.
func (s *Server) Touch(sess *Session, client *structs.Client) (*Room, bool) {
	s.Monitor.Cancel(sess.ID)
	sess.Client = client
	sess.Connected = true
	sess.LastSeen = s.Now()
	client.SessionID = sess.ID

	room := s.RoomOf(sess)
	if room == nil {
		sess.RoomID = ""
		return nil, false
	}
	m := room.Member(sess.ID)
	if m == nil {
		sess.RoomID = ""
		return nil, false
	}
	rejoined := !m.Connected
	m.Client = client
	m.Connected = true
	m.Name = sess.Name
	room.electHost()
	return room, rejoined
}

// Disconnect handles the loss of a connection. The member stays in its room,
// marked disconnected and not ready, until the grace period runs out. A
// connection that no longer owns its session is ignored.
func (s *Server) Disconnect(client *structs.Client) (*Session, *Room) {
	sess := s.SessionOf(client)
	if sess == nil {
		return nil, nil
	}
	sess.Client = nil
	sess.Connected = false
	sess.LastSeen = s.Now()
	s.Monitor.Arm(sess.ID)

	room := s.RoomOf(sess)
	if room == nil {
		return sess, nil
	}
	if m := room.Member(sess.ID); m != nil {
		m.Client = nil
		m.Connected = false
		m.Ready = false
	}
	room.electHost()
	return sess, room
}

// Expire ends a grace period. Stale expiries, and expiries for sessions that
// have since reconnected or been forgotten, do nothing.
func (s *Server) Expire(e Expiry) (*Departure, bool) {
	if !s.Monitor.Claim(e) {
		return nil, false
	}
	sess := s.Sessions[e.SessionID]
	if sess == nil || sess.Connected {
		return nil, false
	}
	return s.Forget(sess.ID), true
}

// Forget drops a session, removing it from its room first.
func (s *Server) Forget(id string) *Departure {
	s.Monitor.Cancel(id)
	sess := s.Sessions[id]
	if sess == nil {
		return nil
	}
	dep := s.LeaveRoom(sess)
	delete(s.Sessions, id)
	return dep
}

// NeedsRecord reports whether identifying client with id has to consult the
// store first.
func (s *Server) NeedsRecord(client *structs.Client, id string) bool {
	id = strings.TrimSpace(id)
	return s.opts.Store != nil && id != "" && client.SessionID == "" && s.Sessions[id] == nil
}

// LoadRecord reads a session record from the store. It does not touch the
// registry, so it may run off the event loop. A missing record and a store
// failure both return nil.
func (s *Server) LoadRecord(id string) *storage.Record {
	if s.opts.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout)
	defer cancel()

	record, err := s.opts.Store.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("session", id).Msg("session store unavailable, minting a new session")
		}
		return nil
	}
	return record
}

// Adopt registers a session read from the store. A session with the same id
// that appeared in the meantime wins.
func (s *Server) Adopt(record *storage.Record) *Session {
	if sess := s.Sessions[record.ID]; sess != nil {
		return sess
	}
	sess := &Session{ID: record.ID, Name: record.Name, Color: record.Color}
	if sess.Name == "" {
		sess.Name = defaultName(sess.ID)
	}
	s.Sessions[sess.ID] = sess
	return sess
}

func (s *Server) persist(sess *Session) {
	if s.writer == nil {
		return
	}
	queued := s.writer.Save(&storage.Record{
		ID:        sess.ID,
		Name:      sess.Name,
		Color:     sess.Color,
		RoomID:    sess.RoomID,
		UpdatedAt: s.Now(),
	})
	if !queued {
		log.Warn().Str("session", sess.ID).Msg("session write queue full, dropping record")
	}
}
