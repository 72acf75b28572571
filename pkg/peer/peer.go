// Package peer runs the optional server-side WebRTC relay. A client that
// negotiates one gets a data channel for its game traffic; packets it sends
// on that channel are dispatched exactly like websocket packets.
package peer

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// ChannelLabel is the label of the negotiated game channel (id 0).
const ChannelLabel = "game"

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

type Config struct {
	ICEServers []webrtc.ICEServer
	// TURNOnly restricts the relay to TURN candidates. Remote candidates that
	// are not relayed are ignored.
	TURNOnly bool
}

// ParseICEServers turns "url[,url...][|username|credential]" entries into ICE
// servers. An empty list falls back to a public STUN server.
func ParseICEServers(entries []string) []webrtc.ICEServer {
	var out []webrtc.ICEServer
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		server := webrtc.ICEServer{URLs: strings.Split(parts[0], ",")}
		if len(parts) == 3 {
			server.Username = parts[1]
			server.Credential = parts[2]
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	if len(out) == 0 {
		return defaultICEServers
	}
	return out
}

// Spawn creates a relay peer for client. inbound receives every packet the
// client sends over the data channel, on pion's goroutine.
func Spawn(cfg *Config, client *structs.Client, inbound func(*structs.Client, []byte)) (*structs.Relay, error) {
	policy := webrtc.ICETransportPolicyAll
	if cfg.TURNOnly {
		policy = webrtc.ICETransportPolicyRelay
	}

	conn, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         cfg.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to create peer connection")
	}

	relay := &structs.Relay{
		Conn:             conn,
		Peer:             client,
		RequestShutdown:  make(chan bool),
		ShutdownComplete: make(chan bool),
	}
	relay.Running.Store(true)

	yes := true
	zero := uint16(0)
	channel, err := conn.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &yes,
		ID:         &zero,
		Ordered:    &yes,
	})
	if err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "failed to create data channel")
	}
	channelhandler(relay, channel, inbound)
	handler(relay)

	logger := log.With().Str("conn", client.ID).Logger()
	logger.Debug().Msg("relay starting up")

	go func() {
		<-relay.RequestShutdown
		if relay.Running.Swap(false) {
			if err := relay.Conn.Close(); err != nil {
				logger.Warn().Err(err).Msg("relay close failed")
			}
		}
		client.SetChannel(nil)
		logger.Debug().Msg("relay shut down")
		relay.ShutdownComplete <- true
	}()

	return relay, nil
}

// Shutdown stops a relay in the background.
func Shutdown(r *structs.Relay) {
	if r == nil {
		return
	}
	go func() {
		r.RequestShutdown <- true
		<-r.ShutdownComplete
	}()
}

func MakeAnswerFromOffer(r *structs.Relay, offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := r.Conn.SetRemoteDescription(*offer); err != nil {
		return nil, eris.Wrap(err, "failed to set remote description")
	}
	answer, err := r.Conn.CreateAnswer(nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create answer")
	}
	if err := r.Conn.SetLocalDescription(answer); err != nil {
		return nil, eris.Wrap(err, "failed to set local description")
	}
	return r.Conn.LocalDescription(), nil
}

// HandleIce adds a remote candidate. In TURN-only mode anything but a relayed
// candidate is skipped.
func HandleIce(cfg *Config, r *structs.Relay, ice *webrtc.ICECandidateInit) error {
	if cfg.TURNOnly && !strings.Contains(ice.Candidate, "typ relay") {
		return nil
	}
	if err := r.Conn.AddICECandidate(*ice); err != nil {
		return eris.Wrap(err, "failed to add ice candidate")
	}
	return nil
}

func handler(r *structs.Relay) {
	logger := log.With().Str("conn", r.Peer.ID).Logger()

	r.Conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Debug().Str("state", s.String()).Msg("relay state changed")
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			r.Peer.SetChannel(nil)
		}
	})

	r.Conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		if err := message.Code(r.Peer, "relay-ice", &structs.RelayIce{Candidate: &candidate}, ""); err != nil {
			logger.Debug().Err(err).Msg("failed to send relay candidate")
		}
	})
}

func channelhandler(r *structs.Relay, d *webrtc.DataChannel, inbound func(*structs.Client, []byte)) {
	logger := log.With().Str("conn", r.Peer.ID).Str("channel", d.Label()).Logger()

	d.OnError(func(err error) {
		logger.Warn().Err(err).Msg("data channel error")
	})

	d.OnOpen(func() {
		logger.Debug().Msg("data channel open")
		r.Peer.SetChannel(func(data []byte) error {
			return d.SendText(string(data))
		})
	})

	d.OnClose(func() {
		logger.Debug().Msg("data channel closed")
		r.Peer.SetChannel(nil)
	})

	d.OnMessage(func(msg webrtc.DataChannelMessage) {
		inbound(r.Peer, msg.Data)
	})
}
