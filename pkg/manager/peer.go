package manager

import (
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// GetRelay returns the data-channel relay peer of a connection, if any.
func (s *Server) GetRelay(client *structs.Client) *structs.Relay {
	return s.relays[client]
}

// SetRelay binds a relay peer to a connection. The previous relay, if any, is
// returned so the caller can shut it down.
func (s *Server) SetRelay(client *structs.Client, relay *structs.Relay) *structs.Relay {
	old := s.relays[client]
	s.relays[client] = relay
	return old
}

// DeleteRelay unbinds and returns the relay peer of a connection.
func (s *Server) DeleteRelay(client *structs.Client) *structs.Relay {
	relay := s.relays[client]
	delete(s.relays, client)
	return relay
}

func (s *Server) RelayCount() int {
	return len(s.relays)
}
