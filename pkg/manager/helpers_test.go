package manager

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) Close() error                   { return nil }

// blockingStore holds every call until unblock.
type blockingStore struct {
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	saved map[string]storage.Record
}

func newBlockingStore() *blockingStore {
	return &blockingStore{release: make(chan struct{}), saved: make(map[string]storage.Record)}
}

func (s *blockingStore) unblock() {
	s.once.Do(func() { close(s.release) })
}

func (s *blockingStore) wait(ctx context.Context) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *blockingStore) Load(ctx context.Context, id string) (*storage.Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return nil, storage.ErrNotFound
}

func (s *blockingStore) Save(ctx context.Context, r *storage.Record) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.saved[r.ID] = *r
	s.mu.Unlock()
	return nil
}

func (s *blockingStore) Delete(context.Context, string) error {
	return nil
}

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeScheduler struct {
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// fire runs every timer that has not been stopped.
func (s *fakeScheduler) fire() {
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.f()
		}
	}
}

func (s *fakeScheduler) active() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type harness struct {
	srv     *Server
	sched   *fakeScheduler
	expired []Expiry
	conns   int
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{sched: &fakeScheduler{}}
	opts.Scheduler = h.sched
	opts.OnExpire = func(e Expiry) { h.expired = append(h.expired, e) }
	h.srv = New(opts)
	t.Cleanup(func() {
		if b, ok := opts.Store.(*blockingStore); ok {
			b.unblock()
		}
		h.srv.Close()
	})

	rooms, sessions := 0, 0
	h.srv.NewRoomID = func() string { rooms++; return fmt.Sprintf("room-%d", rooms) }
	h.srv.NewSessionID = func() string { sessions++; return fmt.Sprintf("sess-%d", sessions) }
	h.srv.NewSeed = func() uint32 { return 42 }
	return h
}

func (h *harness) connect() *structs.Client {
	h.conns++
	c := structs.NewClient(nopConn{}, fmt.Sprintf("conn-%d", h.conns))
	h.srv.Register(c)
	return c
}

// player connects and identifies a new session.
func (h *harness) player(t *testing.T, name string) *Session {
	t.Helper()
	id, err := h.srv.Identify(h.connect(), "", name)
	require.NoError(t, err)
	return id.Session
}

func (h *harness) room(t *testing.T, host *Session, others ...*Session) *Room {
	t.Helper()
	room, _, err := h.srv.CreateRoom(host, structs.CreateRoomParams{Name: "Lobby"})
	require.NoError(t, err)
	for _, o := range others {
		_, _, _, err := h.srv.JoinRoom(o, room.ID, "")
		require.NoError(t, err)
	}
	return room
}

func (h *harness) start(t *testing.T, room *Room) *Game {
	t.Helper()
	for _, m := range room.Members {
		_, err := h.srv.SetReady(h.srv.Sessions[m.SessionID], true)
		require.NoError(t, err)
	}
	g := h.srv.StartGame(room)
	require.NotNil(t, g)
	return g
}

func memberColors(r *Room) map[string]bool {
	out := map[string]bool{}
	for _, m := range r.Members {
		out[m.Color] = true
	}
	return out
}
