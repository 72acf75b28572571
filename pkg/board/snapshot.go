package board

import (
	"time"

	"github.com/MikeDev101/coopstack/server/pkg/dealer"
)

// Snapshot is the host's authoritative view, published as a game-state
// payload and applied by peers that fall out of sync or rejoin mid-game.
type Snapshot struct {
	Cells   [][]int          `json:"board"`
	Players []PlayerSnapshot `json:"players"`
	Stats   Stats            `json:"stats"`
	Over    bool             `json:"over"`
}

type PlayerSnapshot struct {
	Kind     dealer.Piece `json:"piece,omitempty"`
	Shape    Shape        `json:"shape,omitempty"`
	X        int          `json:"x"`
	Y        int          `json:"y"`
	Next     dealer.Piece `json:"next,omitempty"`
	State    string       `json:"state"`
	Interval int64        `json:"dropIntervalMs"`
	Draws    int          `json:"draws"`
}

func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Cells:   e.board.Clone(),
		Players: make([]PlayerSnapshot, len(e.players)),
		Stats:   e.stats,
		Over:    e.over,
	}
	if e.stats.LastClear != nil {
		detail := *e.stats.LastClear
		s.Stats.LastClear = &detail
	}
	for i, p := range e.players {
		ps := PlayerSnapshot{
			Kind:     p.Kind,
			X:        p.X,
			Y:        p.Y,
			Next:     p.Next,
			State:    p.State.String(),
			Interval: p.Interval.Milliseconds(),
			Draws:    p.draws,
		}
		if p.Shape != nil {
			ps.Shape = p.Shape.clone()
		}
		s.Players[i] = ps
	}
	return s
}

// Restore replaces the local view with a snapshot. A snapshot that does not
// fit this engine is ignored: a different board size or player count, an
// unknown cell owner, a drop interval that is not positive, or a piece
// outside the board.
func (e *Engine) Restore(s Snapshot) bool {
	if !e.fits(s) {
		return false
	}

	e.board.Cells = cloneCells(s.Cells)
	e.stats = s.Stats
	e.over = s.Over
	for i, ps := range s.Players {
		p := e.players[i]
		p.Kind, p.Next = ps.Kind, ps.Next
		p.X, p.Y = ps.X, ps.Y
		p.State = parseState(ps.State)
		p.Interval = max(e.cfg.MinInterval, time.Duration(ps.Interval)*time.Millisecond)
		p.draws = ps.Draws
		p.elapsed, p.contested = 0, 0
		p.Shape = nil
		if ps.Shape != nil {
			p.Shape = ps.Shape.clone()
		}
	}
	return true
}

func (e *Engine) fits(s Snapshot) bool {
	if len(s.Cells) != e.board.Height || len(s.Players) != len(e.players) {
		return false
	}
	for _, row := range s.Cells {
		if len(row) != e.board.Width {
			return false
		}
		for _, v := range row {
			if v < 0 || v > len(e.players) {
				return false
			}
		}
	}
	for _, ps := range s.Players {
		if ps.Interval <= 0 {
			return false
		}
		inside := true
		ps.Shape.cells(ps.X, ps.Y, func(cx, cy int) bool {
			inside = cx >= 0 && cx < e.board.Width && cy >= 0 && cy < e.board.Height
			return inside
		})
		if !inside {
			return false
		}
	}
	return true
}

func cloneCells(cells [][]int) [][]int {
	out := make([][]int, len(cells))
	for y, row := range cells {
		out[y] = append([]int(nil), row...)
	}
	return out
}

func parseState(s string) State {
	for st := Spawning; st <= Eliminated; st++ {
		if st.String() == s {
			return st
		}
	}
	return Falling
}
