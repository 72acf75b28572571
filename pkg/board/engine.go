// Package board is the shared-board collision engine. Each connected client
// runs one Engine per game; every player in the room drops pieces onto the
// same board, and the engine tells apart landing on locked terrain from
// bumping into another player's falling piece.
package board

import (
	"time"

	"github.com/MikeDev101/coopstack/server/pkg/dealer"
)

// State is a player's position in the spawn/fall/lock cycle.
type State int

const (
	Spawning State = iota
	Falling
	Locking
	Eliminated
)

func (s State) String() string {
	return [...]string{"spawning", "falling", "locking", "eliminated"}[s]
}

// DropResult is the outcome of a single drop step.
type DropResult int

const (
	// NoPiece means the player has nothing falling.
	NoPiece DropResult = iota
	// Moved means the piece went down one row (or to the floor on a hard drop
	// that then locked, see Locked).
	Moved
	// Blocked means another player's falling piece is directly below; the
	// piece stays where it is and nothing is merged.
	Blocked
	// Locked means the piece merged into the board.
	Locked
)

type Config struct {
	Width        int
	Height       int
	BaseInterval time.Duration
	MinInterval  time.Duration
	SpeedFactor  float64 // interval multiplier per cleared line
	// ContestedLimit is how many consecutive soft-blocked drops a piece waits
	// before locking where it hangs. Zero waits forever.
	ContestedLimit int
}

// DefaultConfig sizes the board for the number of players sharing it.
func DefaultConfig(players int) Config {
	return Config{
		Width:          max(10, 6*players+4),
		Height:         20,
		BaseInterval:   time.Second,
		MinInterval:    100 * time.Millisecond,
		SpeedFactor:    0.95,
		ContestedLimit: 5,
	}
}

type Player struct {
	Index    int
	Kind     dealer.Piece
	Shape    Shape
	X, Y     int
	Next     dealer.Piece
	State    State
	Interval time.Duration

	elapsed   time.Duration
	contested int
	draws     int
}

// Engine holds the board, the players' falling pieces and the team stats.
type Engine struct {
	cfg     Config
	board   *Board
	players []*Player
	stats   Stats

	dealer   *dealer.Dealer
	sequence []dealer.Piece
	over     bool
}

// New builds an engine for a game seed and spawns every player's first piece
// in player order.
func New(cfg Config, players int, seed uint32) *Engine {
	e := &Engine{
		cfg:     cfg,
		board:   NewBoard(cfg.Width, cfg.Height),
		players: make([]*Player, players),
		stats:   Stats{Level: 1},
		dealer:  dealer.New(int64(seed)),
	}
	e.sequence = e.dealer.Initial()
	for i := range e.players {
		e.players[i] = &Player{Index: i, Interval: cfg.BaseInterval}
	}
	for i := range e.players {
		e.spawn(i)
	}
	return e
}

func (e *Engine) Board() *Board { return e.board }

func (e *Engine) Stats() Stats { return e.stats }

// Over reports whether every player has been eliminated.
func (e *Engine) Over() bool { return e.over }

func (e *Engine) Players() int { return len(e.players) }

func (e *Engine) Player(i int) *Player {
	if i < 0 || i >= len(e.players) {
		return nil
	}
	return e.players[i]
}

// pieceFor returns the k-th piece of player i. Players take turns through the
// shared sequence, so player i gets sequence[i], sequence[i+n], ...
func (e *Engine) pieceFor(i, k int) dealer.Piece {
	idx := k*len(e.players) + i
	for idx >= len(e.sequence) {
		e.sequence = append(e.sequence, e.dealer.Refill()...)
	}
	return e.sequence[idx]
}

// anchor is the spawn column for player i, spreading players evenly across
// the board width.
func (e *Engine) anchor(i int, s Shape) int {
	n := len(e.players)
	return (2*i+1)*e.cfg.Width/(2*n) - s.width()/2
}

func (e *Engine) spawn(i int) bool {
	p := e.players[i]
	p.State = Spawning
	p.Kind = e.pieceFor(i, p.draws)
	p.draws++
	p.Next = e.pieceFor(i, p.draws)
	shape := ShapeOf(p.Kind)

	base := e.anchor(i, shape)
	for off := 0; off <= e.cfg.Width; off++ {
		for _, dx := range offsets(off) {
			x := base + dx
			if e.Check(i, shape, x, 0) == None {
				p.Shape, p.X, p.Y = shape, x, 0
				p.State = Falling
				p.elapsed, p.contested = 0, 0
				return true
			}
		}
	}

	p.Shape = nil
	p.State = Eliminated
	e.over = e.allEliminated()
	return false
}

func offsets(off int) []int {
	if off == 0 {
		return []int{0}
	}
	return []int{-off, off}
}

func (e *Engine) allEliminated() bool {
	for _, p := range e.players {
		if p.State != Eliminated {
			return false
		}
	}
	return true
}

// Check classifies placing shape at (x, y) for player i.
func (e *Engine) Check(i int, shape Shape, x, y int) Collision {
	result := None
	shape.cells(x, y, func(cx, cy int) bool {
		if e.board.Blocked(cx, cy) {
			result = Hard
			return false
		}
		if e.occupiedByOther(i, cx, cy) {
			result = Soft
		}
		return true
	})
	return result
}

func (e *Engine) occupiedByOther(i, x, y int) bool {
	for _, o := range e.players {
		if o.Index == i || o.Shape == nil {
			continue
		}
		hit := false
		o.Shape.cells(o.X, o.Y, func(cx, cy int) bool {
			if cx == x && cy == y {
				hit = true
				return false
			}
			return true
		})
		if hit {
			return true
		}
	}
	return false
}

func (e *Engine) falling(i int) *Player {
	p := e.Player(i)
	if p == nil || p.State != Falling || p.Shape == nil {
		return nil
	}
	return p
}

// Move shifts player i's piece sideways. Any collision, soft or hard,
// rejects the move. A successful move restarts the contested count.
func (e *Engine) Move(i, dx int) bool {
	p := e.falling(i)
	if p == nil || e.Check(i, p.Shape, p.X+dx, p.Y) != None {
		return false
	}
	p.X += dx
	p.contested = 0
	return true
}

// Rotate turns player i's piece in place. Any collision rejects it.
func (e *Engine) Rotate(i, dir int) bool {
	p := e.falling(i)
	if p == nil {
		return false
	}
	rotated := p.Shape.Rotate(dir)
	if e.Check(i, rotated, p.X, p.Y) != None {
		return false
	}
	p.Shape = rotated
	p.contested = 0
	return true
}

// Drop moves player i's piece down one row. Landing on terrain locks it; a
// falling piece underneath only blocks it, until ContestedLimit consecutive
// blocked drops have passed.
func (e *Engine) Drop(i int) DropResult {
	p := e.falling(i)
	if p == nil {
		return NoPiece
	}
	switch e.Check(i, p.Shape, p.X, p.Y+1) {
	case None:
		p.Y++
		p.contested = 0
		return Moved
	case Soft:
		p.contested++
		if e.cfg.ContestedLimit > 0 && p.contested >= e.cfg.ContestedLimit {
			e.lock(i)
			return Locked
		}
		return Blocked
	default:
		e.lock(i)
		return Locked
	}
}

// HardDrop drops player i's piece as far as it goes. It locks on terrain and
// stops without locking above another falling piece.
func (e *Engine) HardDrop(i int) DropResult {
	p := e.falling(i)
	if p == nil {
		return NoPiece
	}
	for {
		switch e.Check(i, p.Shape, p.X, p.Y+1) {
		case None:
			p.Y++
		case Soft:
			return Blocked
		default:
			e.lock(i)
			return Locked
		}
	}
}

// Update advances gravity by dt for every player, in player order.
func (e *Engine) Update(dt time.Duration) {
	if e.over {
		return
	}
	for _, p := range e.players {
		if p.State != Falling {
			continue
		}
		p.elapsed += dt
		for p.State == Falling && p.elapsed >= p.Interval {
			p.elapsed -= p.Interval
			e.Drop(p.Index)
		}
	}
}

func (e *Engine) lock(i int) {
	p := e.players[i]
	p.State = Locking
	owner := i + 1
	p.Shape.cells(p.X, p.Y, func(cx, cy int) bool {
		if cy >= 0 {
			e.board.Cells[cy][cx] = owner
		}
		return true
	})
	p.Shape = nil

	cleared := e.board.Sweep()
	e.score(cleared)
	if cleared > 0 {
		e.settle()
	}
	e.spawn(i)
}

// settle lifts any falling piece that the row shift pushed into locked cells
// or into another falling piece.
func (e *Engine) settle() {
	for _, o := range e.players {
		if o.Shape == nil {
			continue
		}
		for o.Y > -e.cfg.Height && e.Check(o.Index, o.Shape, o.X, o.Y) != None {
			o.Y--
		}
	}
}
