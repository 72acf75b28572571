package structs

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Relay is a server-side WebRTC peer bound to one client. Once its data
// channel is open, sequenced game traffic for that client uses it instead of
// the websocket.
type Relay struct {
	Conn             *webrtc.PeerConnection
	Peer             *Client
	Running          atomic.Bool
	RequestShutdown  chan bool // used to shutdown the relay.
	ShutdownComplete chan bool // used to wait for shutdown to complete.
}
