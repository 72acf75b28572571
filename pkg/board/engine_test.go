package board

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeDev101/coopstack/server/pkg/dealer"
)

func place(e *Engine, i int, shape Shape, x, y int) *Player {
	p := e.players[i]
	p.Shape, p.X, p.Y = shape, x, y
	p.State = Falling
	return p
}

func fillRow(b *Board, y, owner int, except ...int) {
	for x := range b.Cells[y] {
		b.Cells[y][x] = owner
	}
	for _, x := range except {
		b.Cells[y][x] = 0
	}
}

func TestScoreFormula(t *testing.T) {
	d := Score(4, 2)
	assert.InDelta(t, 1.2, d.StreakMultiplier, 1e-9)
	assert.InDelta(t, 1.6, d.MultiLine, 1e-9)
	assert.Equal(t, 192, d.PerLine)
	assert.Equal(t, 768, d.Total)

	single := Score(1, 0)
	assert.Equal(t, 100, single.PerLine)
	assert.Equal(t, 100, single.Total)
}

func TestFourLineClearAtComboTwo(t *testing.T) {
	e := New(DefaultConfig(1), 1, 7)
	for y := 16; y < 20; y++ {
		fillRow(e.board, y, 9, 0)
	}
	e.stats.ComboChain = 2
	place(e, 0, ShapeOf(dealer.I).Rotate(1), 0, 16)

	require.Equal(t, Locked, e.Drop(0))

	stats := e.Stats()
	assert.Equal(t, 768, stats.Score)
	assert.Equal(t, 4, stats.Lines)
	assert.Equal(t, 1, stats.Level)
	assert.Equal(t, 3, stats.ComboChain)
	require.NotNil(t, stats.LastClear)
	assert.Equal(t, 192, stats.LastClear.PerLine)

	for y := range e.board.Cells {
		for x := range e.board.Cells[y] {
			assert.Zero(t, e.board.Cells[y][x], "cell %d,%d", x, y)
		}
	}

	want := time.Duration(float64(time.Second) * math.Pow(0.95, 4))
	assert.Equal(t, want, e.Player(0).Interval)
	assert.Equal(t, Falling, e.Player(0).State)
}

func TestLockWithoutClearResetsCombo(t *testing.T) {
	e := New(DefaultConfig(1), 1, 7)
	e.stats.ComboChain = 3
	place(e, 0, ShapeOf(dealer.O), 0, 18)

	require.Equal(t, Locked, e.Drop(0))
	assert.Zero(t, e.Stats().ComboChain)
	assert.Equal(t, 1, e.board.Cells[19][0])
	assert.Equal(t, 1, e.board.Cells[18][1])
	assert.Equal(t, time.Second, e.Player(0).Interval)
}

func TestLevelFollowsLines(t *testing.T) {
	e := New(DefaultConfig(1), 1, 7)
	e.stats.Lines = 8
	fillRow(e.board, 19, 9, 0, 1)
	fillRow(e.board, 18, 9, 0, 1)
	place(e, 0, ShapeOf(dealer.O), 0, 18)

	require.Equal(t, Locked, e.Drop(0))
	assert.Equal(t, 10, e.Stats().Lines)
	assert.Equal(t, 2, e.Stats().Level)
}

func TestDropSpeedFloor(t *testing.T) {
	e := New(DefaultConfig(1), 1, 7)
	e.players[0].Interval = 101 * time.Millisecond
	fillRow(e.board, 19, 9, 0, 1)
	fillRow(e.board, 18, 9, 0, 1)
	place(e, 0, ShapeOf(dealer.O), 0, 18)

	e.Drop(0)
	assert.Equal(t, 100*time.Millisecond, e.Player(0).Interval)
}

func TestDropOntoFallingPieceIsBlocked(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.ContestedLimit = 0
	e := New(cfg, 2, 11)
	place(e, 0, ShapeOf(dealer.O), 5, 5)
	b := place(e, 1, ShapeOf(dealer.O), 5, 3)

	for range 10 {
		assert.Equal(t, Blocked, e.Drop(1))
	}
	assert.Equal(t, 3, b.Y)
	assert.Equal(t, Falling, b.State)
	for y := range e.board.Cells {
		for x := range e.board.Cells[y] {
			assert.Zero(t, e.board.Cells[y][x])
		}
	}
}

func TestContestedPieceLocksAfterLimit(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.ContestedLimit = 3
	e := New(cfg, 2, 11)
	place(e, 0, ShapeOf(dealer.O), 5, 5)
	place(e, 1, ShapeOf(dealer.O), 5, 3)

	assert.Equal(t, Blocked, e.Drop(1))
	assert.Equal(t, Blocked, e.Drop(1))
	assert.Equal(t, Locked, e.Drop(1))
	assert.Equal(t, 2, e.board.Cells[3][5])
	assert.Equal(t, 2, e.board.Cells[4][6])
}

func TestContestedCountResetsAfterDrop(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.ContestedLimit = 2
	e := New(cfg, 2, 11)
	a := place(e, 0, ShapeOf(dealer.O), 5, 5)
	place(e, 1, ShapeOf(dealer.O), 5, 3)

	assert.Equal(t, Blocked, e.Drop(1))
	a.X = 10
	assert.Equal(t, Moved, e.Drop(1))
	a.X, a.Y = 5, 6
	assert.Equal(t, Blocked, e.Drop(1))
	assert.Equal(t, Falling, e.Player(1).State)
}

func TestContestedCountResetsWhenBlockedPlayerMoves(t *testing.T) {
	cfg := DefaultConfig(2)
	cfg.ContestedLimit = 2
	e := New(cfg, 2, 11)
	place(e, 0, ShapeOf(dealer.O), 5, 5)
	place(e, 1, ShapeOf(dealer.O), 5, 3)

	assert.Equal(t, Blocked, e.Drop(1))
	require.True(t, e.Move(1, -1))
	require.True(t, e.Move(1, 1))
	assert.Equal(t, Blocked, e.Drop(1))
	assert.Equal(t, Falling, e.Player(1).State)

	require.True(t, e.Rotate(1, 1))
	assert.Equal(t, Blocked, e.Drop(1))
	assert.Equal(t, Falling, e.Player(1).State)

	assert.Equal(t, Locked, e.Drop(1))
}

func TestHardDropStopsAboveFallingPiece(t *testing.T) {
	e := New(DefaultConfig(2), 2, 11)
	place(e, 0, ShapeOf(dealer.O), 5, 10)
	b := place(e, 1, ShapeOf(dealer.O), 5, 0)

	assert.Equal(t, Blocked, e.HardDrop(1))
	assert.Equal(t, 8, b.Y)
	assert.Zero(t, e.board.Cells[9][5])
}

func TestHardDropLocksOnFloor(t *testing.T) {
	e := New(DefaultConfig(2), 2, 11)
	place(e, 0, ShapeOf(dealer.O), 0, 0)
	place(e, 1, ShapeOf(dealer.O), 10, 0)

	assert.Equal(t, Locked, e.HardDrop(1))
	assert.Equal(t, 2, e.board.Cells[19][10])
	assert.Equal(t, 2, e.board.Cells[18][11])
}

func TestMoveAndRotateRejectOverlap(t *testing.T) {
	e := New(DefaultConfig(2), 2, 11)
	place(e, 0, ShapeOf(dealer.O), 5, 5)
	b := place(e, 1, ShapeOf(dealer.O), 7, 5)

	assert.False(t, e.Move(1, -1))
	assert.Equal(t, 7, b.X)
	assert.True(t, e.Move(1, 1))
	assert.Equal(t, 8, b.X)

	wall := place(e, 1, ShapeOf(dealer.I).Rotate(1), 15, 5)
	assert.False(t, e.Rotate(1, 1))
	assert.Len(t, wall.Shape, 4)
	assert.False(t, e.Move(1, 1))
}

func TestRotation(t *testing.T) {
	tee := ShapeOf(dealer.T)
	assert.Equal(t, Shape{{1, 0}, {1, 1}, {1, 0}}, tee.Rotate(1))
	assert.Equal(t, tee, tee.Rotate(1).Rotate(-1))
	assert.Equal(t, tee, tee.Rotate(1).Rotate(1).Rotate(1).Rotate(1))
}

func TestPlayersTakeTurnsThroughSequence(t *testing.T) {
	seq := dealer.New(21).Next(6)
	e := New(DefaultConfig(2), 2, 21)

	assert.Equal(t, seq[0], e.Player(0).Kind)
	assert.Equal(t, seq[1], e.Player(1).Kind)
	assert.Equal(t, seq[2], e.Player(0).Next)
	assert.Equal(t, seq[3], e.Player(1).Next)
}

func TestPiecesBeyondInitialBatchRefill(t *testing.T) {
	e := New(DefaultConfig(1), 1, 5)
	want := dealer.New(5).Next(300)
	assert.Equal(t, want[299], e.pieceFor(0, 299))
}

func TestSpawnSpreadsPlayers(t *testing.T) {
	e := New(DefaultConfig(3), 3, 4)
	for i := range 3 {
		p := e.Player(i)
		require.Equal(t, Falling, p.State)
		assert.Equal(t, None, e.Check(i, p.Shape, p.X, p.Y))
	}
	assert.Less(t, e.Player(0).X, e.Player(1).X)
	assert.Less(t, e.Player(1).X, e.Player(2).X)
}

func TestSpawnSearchesOutward(t *testing.T) {
	e := New(DefaultConfig(1), 1, 4)
	p := e.Player(0)
	anchor := e.anchor(0, ShapeOf(p.Next))

	// Block the anchor, one column right of it, and everything to the left.
	for y := 0; y < 2; y++ {
		for x := 0; x <= anchor+1; x++ {
			e.board.Cells[y][x] = 9
		}
	}
	p.Shape = nil
	require.True(t, e.spawn(0))
	assert.Greater(t, p.X, anchor)
	assert.Equal(t, None, e.Check(0, p.Shape, p.X, p.Y))
}

func TestSpawnEliminatesWhenNoColumnFits(t *testing.T) {
	e := New(DefaultConfig(2), 2, 4)
	fillRow(e.board, 0, 9, 0)
	fillRow(e.board, 1, 9, 0)
	fillRow(e.board, 2, 9, 0)

	e.players[0].Shape = nil
	assert.False(t, e.spawn(0))
	assert.Equal(t, Eliminated, e.Player(0).State)
	assert.False(t, e.Over())

	e.players[1].Shape = nil
	assert.False(t, e.spawn(1))
	assert.True(t, e.Over())

	assert.Equal(t, NoPiece, e.Drop(0))
	e.Update(time.Minute)
	assert.Equal(t, Eliminated, e.Player(1).State)
}

func TestUpdateAppliesGravity(t *testing.T) {
	e := New(DefaultConfig(1), 1, 9)
	p := place(e, 0, ShapeOf(dealer.O), 4, 0)

	e.Update(999 * time.Millisecond)
	assert.Equal(t, 0, p.Y)
	e.Update(time.Millisecond)
	assert.Equal(t, 1, p.Y)
	e.Update(3 * time.Second)
	assert.Equal(t, 4, p.Y)
}

func TestSweepRechecksShiftedRow(t *testing.T) {
	b := NewBoard(4, 5)
	fillRow(b, 4, 1)
	fillRow(b, 3, 2)
	b.Cells[2][1] = 3

	assert.Equal(t, 2, b.Sweep())
	assert.Equal(t, []int{0, 3, 0, 0}, b.Cells[4])
	for y := 0; y < 4; y++ {
		assert.Equal(t, []int{0, 0, 0, 0}, b.Cells[y])
	}
}

func TestSweepIgnoresOwnership(t *testing.T) {
	b := NewBoard(4, 3)
	b.Cells[2] = []int{1, 2, 3, 4}
	b.Cells[1] = []int{1, 0, 3, 4}

	assert.Equal(t, 1, b.Sweep())
	assert.Equal(t, []int{1, 0, 3, 4}, b.Cells[2])
}

func TestBlocked(t *testing.T) {
	b := NewBoard(4, 4)
	b.Cells[3][2] = 1
	assert.True(t, b.Blocked(-1, 0))
	assert.True(t, b.Blocked(4, 0))
	assert.True(t, b.Blocked(0, 4))
	assert.True(t, b.Blocked(2, 3))
	assert.False(t, b.Blocked(1, -2))
	assert.False(t, b.Blocked(1, 3))
}

func TestSnapshotRestore(t *testing.T) {
	host := New(DefaultConfig(2), 2, 13)
	host.HardDrop(0)
	host.Move(1, 1)
	snap := host.Snapshot()

	peer := New(DefaultConfig(2), 2, 13)
	require.True(t, peer.Restore(snap))
	assert.Equal(t, host.board.Cells, peer.board.Cells)
	assert.Equal(t, host.Stats(), peer.Stats())
	for i := range 2 {
		assert.Equal(t, host.Player(i).X, peer.Player(i).X)
		assert.Equal(t, host.Player(i).Kind, peer.Player(i).Kind)
		assert.Equal(t, host.Player(i).Next, peer.Player(i).Next)
	}

	// Later draws follow the same sequence.
	host.HardDrop(1)
	peer.HardDrop(1)
	assert.Equal(t, host.Player(1).Kind, peer.Player(1).Kind)

	snap.Cells[0][0] = 7
	assert.Zero(t, peer.board.Cells[0][0])
}

func TestRestoreRejectsMismatchedBoard(t *testing.T) {
	two := New(DefaultConfig(2), 2, 1)
	three := New(DefaultConfig(3), 3, 1)
	assert.False(t, three.Restore(two.Snapshot()))
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	cases := map[string]func(s *Snapshot){
		"zero interval":     func(s *Snapshot) { s.Players[0].Interval = 0 },
		"negative interval": func(s *Snapshot) { s.Players[1].Interval = -5 },
		"piece off right":   func(s *Snapshot) { s.Players[0].X = len(s.Cells[0]) },
		"piece off left":    func(s *Snapshot) { s.Players[1].X = -3 },
		"piece below floor": func(s *Snapshot) { s.Players[0].Y = len(s.Cells) },
		"unknown owner":     func(s *Snapshot) { s.Cells[19][0] = 9 },
		"negative owner":    func(s *Snapshot) { s.Cells[0][0] = -1 },
		"short row":         func(s *Snapshot) { s.Cells[4] = s.Cells[4][:3] },
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			host := New(DefaultConfig(2), 2, 13)
			snap := host.Snapshot()
			corrupt(&snap)

			peer := New(DefaultConfig(2), 2, 13)
			before := peer.Snapshot()
			assert.False(t, peer.Restore(snap))
			assert.Equal(t, before, peer.Snapshot())

			// The engine is still playable afterwards.
			peer.Update(time.Second)
			assert.False(t, peer.Over())
		})
	}
}

func TestRestoreClampsShortInterval(t *testing.T) {
	host := New(DefaultConfig(2), 2, 13)
	snap := host.Snapshot()
	snap.Players[0].Interval = 1

	peer := New(DefaultConfig(2), 2, 13)
	require.True(t, peer.Restore(snap))
	assert.Equal(t, 100*time.Millisecond, peer.Player(0).Interval)

	peer.Update(time.Second)
	assert.False(t, peer.Over())
	assert.Equal(t, Falling, peer.Player(0).State)
}
