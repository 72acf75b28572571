// Package dealer produces the shared falling-piece sequence. Every client
// regenerates the sequence locally from the game seed, so two dealers built
// from the same seed must agree piece for piece regardless of how the draws
// are batched.
package dealer

import (
	"math/rand/v2"

	"github.com/MikeDev101/coopstack/server/pkg/constants"
)

// Piece is one of the seven tetromino symbols.
type Piece string

const (
	I Piece = "I"
	J Piece = "J"
	L Piece = "L"
	O Piece = "O"
	S Piece = "S"
	T Piece = "T"
	Z Piece = "Z"
)

// Alphabet is the bag contents in canonical order. Shuffles start from this
// order, so it is part of the wire contract.
var Alphabet = [7]Piece{I, J, L, O, S, T, Z}

// Dealer deals pieces from successive shuffled bags.
type Dealer struct {
	seed  uint32
	state uint32
	bag   []Piece
	drawn int
}

// New returns a dealer for the given seed. The seed is truncated to its low
// 32 bits so negative or oversized inputs map onto the same state a client
// using unsigned arithmetic would compute.
func New(seed int64) *Dealer {
	s := uint32(seed)
	return &Dealer{seed: s, state: s}
}

// NewSeed returns a fresh random seed for a game.
func NewSeed() uint32 {
	return rand.Uint32()
}

func (d *Dealer) Seed() uint32 {
	return d.seed
}

// Drawn reports how many pieces have been dealt so far.
func (d *Dealer) Drawn() int {
	return d.drawn
}

// Next deals the next n pieces.
func (d *Dealer) Next(n int) []Piece {
	out := make([]Piece, 0, max(n, 0))
	for range n {
		if len(d.bag) == 0 {
			d.refill()
		}
		out = append(out, d.bag[0])
		d.bag = d.bag[1:]
		d.drawn++
	}
	return out
}

// Initial deals the batch broadcast with game-start.
func (d *Dealer) Initial() []Piece {
	return d.Next(constants.InitialBatch)
}

// Refill deals one on-demand batch.
func (d *Dealer) Refill() []Piece {
	return d.Next(constants.RefillBatch)
}

// refill shuffles a new bag with a Fisher-Yates pass.
func (d *Dealer) refill() {
	bag := Alphabet
	for i := len(bag) - 1; i > 0; i-- {
		j := int(d.float() * float64(i+1))
		bag[i], bag[j] = bag[j], bag[i]
	}
	d.bag = append(d.bag, bag[:]...)
}

// float advances the mulberry32 generator and returns a value in [0, 1).
func (d *Dealer) float() float64 {
	d.state += 0x6D2B79F5
	t := d.state
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	return float64(t^t>>14) / 4294967296.0
}

// Strings converts pieces to their wire form.
func Strings(pieces []Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = string(p)
	}
	return out
}
