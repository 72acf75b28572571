package client

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/MikeDev101/coopstack/server/pkg/board"
	"github.com/MikeDev101/coopstack/server/pkg/dealer"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// Game is the local side of a running game: the shared-board engine seeded
// from game-start, driven by local input, relayed input and, on non-hosts,
// the host's snapshots.
type Game struct {
	client *Client
	start  structs.GameStart
	index  map[string]int
	self   int

	mu     sync.Mutex
	engine *board.Engine
	hostID string
	desync bool
}

func newGame(c *Client, start *structs.GameStart, self string) (*Game, error) {
	n := len(start.Players)
	g := &Game{
		client: c,
		start:  *start,
		index:  make(map[string]int, n),
		self:   -1,
		engine: board.New(board.DefaultConfig(n), n, start.PieceSeed),
		hostID: start.HostID,
	}
	for i, p := range start.Players {
		g.index[p.ID] = i
		if p.ID == self {
			g.self = i
		}
	}

	local := dealer.Strings(dealer.New(int64(start.PieceSeed)).Initial())
	if !slices.Equal(local, start.PieceSequence) {
		g.desync = true
		return g, ErrDesync
	}
	return g, nil
}

// Start is the game-start the game was built from.
func (g *Game) Start() structs.GameStart {
	return g.start
}

// Self is the local player's index, or -1 when the session is not playing.
func (g *Game) Self() int {
	return g.self
}

// Desynced reports that the broadcast pieces did not match the seed.
func (g *Game) Desynced() bool {
	return g.desync
}

func (g *Game) IsHost() bool {
	self := g.client.SessionID()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hostID == self
}

func (g *Game) setHost(id string) {
	g.mu.Lock()
	g.hostID = id
	g.mu.Unlock()
}

// Snapshot copies the engine state.
func (g *Game) Snapshot() board.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Snapshot()
}

// Input applies a local input and relays it to the room.
func (g *Game) Input(in Input) error {
	if g.self < 0 {
		return nil
	}
	g.mu.Lock()
	apply(g.engine, g.self, in)
	g.mu.Unlock()
	g.render()
	return g.client.send("player-input", &in, "")
}

// Tick advances gravity by one frame and redraws.
func (g *Game) Tick(dt time.Duration) {
	g.mu.Lock()
	g.engine.Update(dt)
	g.mu.Unlock()
	g.render()
}

// PublishState sends the engine snapshot as the authoritative state. Only the
// host's snapshots are accepted by the relay.
func (g *Game) PublishState() error {
	if !g.IsHost() {
		return nil
	}
	return g.client.send("game-state", g.Snapshot(), "")
}

// Play runs the frame loop until ctx is done or the game ends. The host
// publishes a snapshot every publishEvery frames; zero never publishes.
func (g *Game) Play(ctx context.Context, source InputSource, frame time.Duration, publishEvery int) error {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	var inputs <-chan Input
	if source != nil {
		inputs = source.Inputs()
	}
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.client.Done():
			return ErrClosed
		case in, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			if err := g.Input(in); err != nil {
				return err
			}
		case <-ticker.C:
			g.Tick(frame)
			frames++
			if publishEvery > 0 && frames%publishEvery == 0 {
				if err := g.PublishState(); err != nil {
					return err
				}
			}
			if g.Over() {
				return nil
			}
		}
	}
}

func (g *Game) Over() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Over()
}

type relayedInput struct {
	Input
	PlayerID string `json:"playerId"`
}

func (g *Game) applyRemote(payload json.RawMessage) {
	var in relayedInput
	if err := json.Unmarshal(payload, &in); err != nil {
		return
	}
	i, ok := g.index[in.PlayerID]
	if !ok || i == g.self {
		return
	}
	g.mu.Lock()
	apply(g.engine, i, in.Input)
	g.mu.Unlock()
	g.render()
}

func (g *Game) applyState(payload json.RawMessage) {
	var s board.Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		g.client.logger.Debug().Err(err).Msg("ignoring undecodable game state")
		return
	}
	g.mu.Lock()
	ok := g.engine.Restore(s)
	g.mu.Unlock()
	if !ok {
		g.client.logger.Debug().Msg("ignoring game state for a different board")
		return
	}
	g.render()
}

func (g *Game) render() {
	s := g.Snapshot()
	g.client.renderer.DrawBoard(s)
	if g.self >= 0 && g.self < len(s.Players) {
		g.client.renderer.DrawPreview(s.Players[g.self].Next)
	}
}

func apply(e *board.Engine, i int, in Input) {
	switch in.Action {
	case ActionMove:
		e.Move(i, in.Direction)
	case ActionRotate:
		dir := in.Direction
		if dir == 0 {
			dir = 1
		}
		e.Rotate(i, dir)
	case ActionDrop:
		e.Drop(i)
	case ActionHardDrop:
		e.HardDrop(i)
	}
}
