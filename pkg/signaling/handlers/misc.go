package handlers

import (
	"runtime"

	"github.com/MikeDev101/coopstack/server/pkg/constants"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// KEEPALIVE echoes the payload back.
func KEEPALIVE(d *Deps, client *structs.Client, packet *structs.InboundPacket) {
	message.Code(client, "keepalive", packet.Payload, packet.Listener)
}

func META(d *Deps, client *structs.Client, packet *structs.InboundPacket) {
	message.Code(
		client,
		"meta",
		&structs.MetadataPacket{
			OperatingSystem: runtime.GOOS,
			Architecture:    runtime.GOARCH,
			GoVersion:       runtime.Version(),
			ServerVersion:   constants.Version,
		},
		packet.Listener,
	)
}

func ROOMS_LIST(d *Deps, client *structs.Client, packet *structs.InboundPacket) {
	message.Code(client, "rooms-list", d.Server.Directory(), packet.Listener)
}
