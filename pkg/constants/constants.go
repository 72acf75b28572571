package constants

import "time"

// Version is reported by the META opcode and the --version flag.
const Version = "1.0.0"

const (
	// DefaultMaxPlayers is the seat count of a room unless configured otherwise.
	DefaultMaxPlayers = 4

	// DefaultGracePeriod is how long a disconnected session keeps its seat.
	DefaultGracePeriod = 30 * time.Second

	// InitialBatch is the number of pieces broadcast with game-start.
	InitialBatch = 224

	// RefillBatch is the number of pieces dealt per on-demand refill.
	RefillBatch = 64

	MinAccessCode = 4
	MaxAccessCode = 8
)

// Palette is the fixed set of member colors, in allocation order.
var Palette = []string{
	"#00F0F0",
	"#F0A000",
	"#A000F0",
	"#00C000",
	"#F03030",
	"#3060F0",
	"#F0F000",
	"#F060C0",
}
