package board

import "github.com/MikeDev101/coopstack/server/pkg/dealer"

// Shape is a piece matrix; non-zero entries are filled.
type Shape [][]int

var shapes = map[dealer.Piece]Shape{
	dealer.I: {{1, 1, 1, 1}},
	dealer.J: {{1, 0, 0}, {1, 1, 1}},
	dealer.L: {{0, 0, 1}, {1, 1, 1}},
	dealer.O: {{1, 1}, {1, 1}},
	dealer.S: {{0, 1, 1}, {1, 1, 0}},
	dealer.T: {{0, 1, 0}, {1, 1, 1}},
	dealer.Z: {{1, 1, 0}, {0, 1, 1}},
}

// ShapeOf returns a copy of the spawn orientation of a piece.
func ShapeOf(p dealer.Piece) Shape {
	return shapes[p].clone()
}

func (s Shape) clone() Shape {
	out := make(Shape, len(s))
	for i, row := range s {
		out[i] = append([]int(nil), row...)
	}
	return out
}

func (s Shape) width() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Rotate returns the shape turned a quarter clockwise (dir > 0) or
// counter-clockwise (dir < 0).
func (s Shape) Rotate(dir int) Shape {
	h, w := len(s), s.width()
	out := make(Shape, w)
	for r := range out {
		out[r] = make([]int, h)
		for c := range out[r] {
			if dir >= 0 {
				out[r][c] = s[h-1-c][r]
			} else {
				out[r][c] = s[c][w-1-r]
			}
		}
	}
	return out
}

// cells calls fn with the board coordinates of every filled cell until fn
// returns false.
func (s Shape) cells(x, y int, fn func(cx, cy int) bool) {
	for r, row := range s {
		for c, v := range row {
			if v == 0 {
				continue
			}
			if !fn(x+c, y+r) {
				return
			}
		}
	}
}
