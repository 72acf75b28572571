package signaling

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/handlers"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/session"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/storage"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// ErrStopped is returned by Query once the hub has stopped.
var ErrStopped = eris.New("hub stopped")

type eventKind int

const (
	opened eventKind = iota
	received
	closed
	restored
)

type event struct {
	kind   eventKind
	client *structs.Client
	packet *structs.InboundPacket
	at     time.Time
	record *storage.Record
}

// Hub is the event loop. It owns the registry: connection events, packets,
// grace-period expiries and queries are all handled on its goroutine, one at
// a time. Events of one connection keep their order.
type Hub struct {
	deps    *handlers.Deps
	events  chan event
	expired chan manager.Expiry
	queries chan func(*manager.Server)
	done    chan struct{}

	// Connections waiting on a session store lookup. Their packets are held
	// here, identify first, until the lookup comes back.
	pending map[*structs.Client][]event
}

func newHub() *Hub {
	return &Hub{
		events:  make(chan event, 256),
		expired: make(chan manager.Expiry, 16),
		queries: make(chan func(*manager.Server)),
		done:    make(chan struct{}),
		pending: make(map[*structs.Client][]event),
	}
}

// Run processes events until ctx is done. Every open connection is closed on
// the way out.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	log.Info().Msg("hub started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.deps.Server.Close()
			log.Info().Msg("hub stopped")
			return nil
		case e := <-h.events:
			h.safely(func() { h.handle(e) })
		case e := <-h.expired:
			h.safely(func() { h.expire(e) })
		case q := <-h.queries:
			h.safely(func() { q(h.deps.Server) })
		}
	}
}

// Query runs f on the hub's goroutine and waits for it to return.
func (h *Hub) Query(ctx context.Context, f func(*manager.Server)) error {
	reply := make(chan struct{})
	q := func(s *manager.Server) {
		defer close(reply)
		f(s)
	}
	select {
	case h.queries <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) post(e event) {
	select {
	case h.events <- e:
	case <-h.done:
	}
}

func (h *Hub) open(client *structs.Client) {
	h.post(event{kind: opened, client: client})
}

func (h *Hub) close(client *structs.Client) {
	h.post(event{kind: closed, client: client})
}

func (h *Hub) dispatch(client *structs.Client, packet *structs.InboundPacket) {
	h.post(event{kind: received, client: client, packet: packet, at: time.Now()})
}

// onExpire is handed to the reconnection monitor. It runs on a timer
// goroutine.
func (h *Hub) onExpire(e manager.Expiry) {
	select {
	case h.expired <- e:
	case <-h.done:
	}
}

func (h *Hub) handle(e event) {
	s := h.deps.Server
	switch e.kind {
	case opened:
		session.Open(s, e.client)
	case closed:
		delete(h.pending, e.client)
		if _, ok := s.Clients[e.client]; ok {
			session.Close(s, e.client)
		}
	case received:
		// Packets arriving over a data channel can outlive the websocket.
		if _, ok := s.Clients[e.client]; !ok {
			return
		}
		h.receive(e)
	case restored:
		h.restore(e)
	}
}

func (h *Hub) receive(e event) {
	if queued, ok := h.pending[e.client]; ok {
		h.pending[e.client] = append(queued, e)
		return
	}
	if id, ok := identifyID(e.packet); ok && h.deps.Server.NeedsRecord(e.client, id) {
		h.pending[e.client] = []event{e}
		h.lookup(e.client, id)
		return
	}
	h.execute(e)
}

func (h *Hub) execute(e event) {
	execute_packet(h.deps, e.client, e.packet)
	statsd.Since("packet.latency", e.at, "opcode:"+e.packet.Opcode)
}

// lookup reads a session record off the loop and posts it back.
func (h *Hub) lookup(client *structs.Client, id string) {
	statsd.Incr("sessions.lookups")
	go func() {
		record := h.deps.Server.LoadRecord(id)
		h.post(event{kind: restored, client: client, record: record})
	}()
}

// restore finishes a deferred identify and replays what the connection sent
// while it waited.
func (h *Hub) restore(e event) {
	queued, ok := h.pending[e.client]
	delete(h.pending, e.client)
	if !ok || len(queued) == 0 {
		return
	}
	if _, ok := h.deps.Server.Clients[e.client]; !ok {
		return
	}
	if e.record != nil {
		h.deps.Server.Adopt(e.record)
	}
	h.safely(func() { h.execute(queued[0]) })
	for _, q := range queued[1:] {
		h.safely(func() { h.receive(q) })
	}
}

func identifyID(packet *structs.InboundPacket) (string, bool) {
	if packet.Opcode != "identify" || len(packet.Payload) == 0 {
		return "", false
	}
	var params structs.IdentifyParams
	if err := json.Unmarshal(packet.Payload, &params); err != nil {
		return "", false
	}
	return params.SessionID, params.SessionID != ""
}

func (h *Hub) expire(e manager.Expiry) {
	s := h.deps.Server
	dep, ok := s.Expire(e)
	if !ok {
		return
	}
	statsd.Incr("sessions.expired")
	log.Info().Str("session", e.SessionID).Msg("session expired")
	if dep == nil {
		return
	}
	session.Departed(dep, false)
	session.Directory(s)
}

func (h *Hub) shutdown() {
	for _, client := range h.deps.Server.Connected() {
		client.Close()
		go func(c *structs.Client) {
			<-c.Done()
			_ = c.Conn.Close()
		}(client)
	}
}

// safely keeps one bad event from taking down the loop.
func (h *Hub) safely(f func()) {
	defer func() {
		if r := recover(); r != nil {
			statsd.Incr("hub.panics")
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic in hub")
		}
	}()
	f()
}
