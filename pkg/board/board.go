package board

// Collision classifies a candidate placement.
type Collision int

const (
	// None means the placement is free.
	None Collision = iota
	// Soft means the placement overlaps another player's falling piece.
	Soft
	// Hard means the placement leaves the board or overlaps a locked cell.
	Hard
)

func (c Collision) String() string {
	switch c {
	case None:
		return "none"
	case Soft:
		return "soft"
	default:
		return "hard"
	}
}

// Board is the grid of locked cells. 0 is empty, otherwise the owner's player
// index plus one. Rows above the top edge (negative y) are open air.
type Board struct {
	Width  int
	Height int
	Cells  [][]int
}

func NewBoard(width, height int) *Board {
	b := &Board{Width: width, Height: height, Cells: make([][]int, height)}
	for y := range b.Cells {
		b.Cells[y] = make([]int, width)
	}
	return b
}

// Blocked reports whether a cell is outside the walls or floor, or locked.
func (b *Board) Blocked(x, y int) bool {
	if x < 0 || x >= b.Width || y >= b.Height {
		return true
	}
	if y < 0 {
		return false
	}
	return b.Cells[y][x] != 0
}

// Sweep removes every complete row, shifting the rows above down, and
// returns how many rows were removed. A row is complete when no cell is
// empty, whoever owns the cells.
func (b *Board) Sweep() int {
	cleared := 0
	for y := b.Height - 1; y >= 0; {
		if !b.full(y) {
			y--
			continue
		}
		copy(b.Cells[1:y+1], b.Cells[:y])
		b.Cells[0] = make([]int, b.Width)
		cleared++
		// Row y now holds what was above it; check it again.
	}
	return cleared
}

func (b *Board) full(y int) bool {
	for _, v := range b.Cells[y] {
		if v == 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the cells.
func (b *Board) Clone() [][]int {
	return cloneCells(b.Cells)
}
