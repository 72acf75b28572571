package client

import (
	"github.com/MikeDev101/coopstack/server/pkg/board"
	"github.com/MikeDev101/coopstack/server/pkg/dealer"
)

const (
	ActionMove     = "move"
	ActionRotate   = "rotate"
	ActionDrop     = "drop"
	ActionHardDrop = "hard-drop"
)

// Input is one discrete player action.
type Input struct {
	Action    string `json:"action"`
	Direction int    `json:"direction,omitempty"`
}

// Renderer draws the game. It is called from the frame loop and from the
// connection's reader goroutine.
type Renderer interface {
	DrawBoard(board.Snapshot)
	DrawPreview(next dealer.Piece)
}

// InputSource produces the local player's actions.
type InputSource interface {
	Inputs() <-chan Input
}

type nopRenderer struct{}

func (nopRenderer) DrawBoard(board.Snapshot) {}
func (nopRenderer) DrawPreview(dealer.Piece) {}
