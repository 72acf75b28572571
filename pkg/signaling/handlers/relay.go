package handlers

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/peer"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/statsd"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// RELAY_OFFER answers a client's offer with a fresh server-side peer. A relay
// the client already had is shut down.
func RELAY_OFFER(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	if d.Relay == nil {
		reject(client, "relay is disabled", packet.Listener)
		return
	}
	params, ok := decode[structs.RelayOffer](d, client, packet)
	if !ok {
		return
	}

	relay, err := peer.Spawn(d.Relay, client, d.Inbound)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Msg(eris.ToString(err, true))
		reject(client, "relay unavailable", packet.Listener)
		return
	}
	peer.Shutdown(d.Server.SetRelay(client, relay))

	answer, err := peer.MakeAnswerFromOffer(relay, params.SDP)
	if err != nil {
		log.Warn().Err(err).Str("session", sess.ID).Msg("relay negotiation failed")
		peer.Shutdown(d.Server.DeleteRelay(client))
		reject(client, "relay negotiation failed", packet.Listener)
		return
	}
	message.Code(client, "relay-answer", &structs.RelayAnswer{SDP: answer}, packet.Listener)
	statsd.Gauge("relays", float64(d.Server.RelayCount()))
}

func RELAY_ICE(d *Deps, client *structs.Client, sess *manager.Session, packet *structs.InboundPacket) {
	relay := d.Server.GetRelay(client)
	if d.Relay == nil || relay == nil {
		return
	}
	params, ok := decode[structs.RelayIce](d, client, packet)
	if !ok {
		return
	}
	if err := peer.HandleIce(d.Relay, relay, params.Candidate); err != nil {
		log.Debug().Err(err).Str("session", sess.ID).Msg("rejected relay candidate")
	}
}
