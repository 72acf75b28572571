// Package handlers implements one function per inbound opcode. Every handler
// runs on the hub's goroutine.
package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/peer"
	"github.com/MikeDev101/coopstack/server/pkg/signaling/message"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

// Deps is what the handlers run against.
type Deps struct {
	Server    *manager.Server
	Validator *validator.Validate
	// Relay is nil when the data-channel relay is disabled.
	Relay *peer.Config
	// Inbound feeds a packet received outside the websocket back into the
	// hub.
	Inbound func(client *structs.Client, raw []byte)
}

// decode reads and validates the payload of a packet. On failure the client
// gets an error reply and ok is false.
func decode[T any](d *Deps, client *structs.Client, packet *structs.InboundPacket) (*T, bool) {
	params := new(T)
	if len(packet.Payload) > 0 && string(packet.Payload) != "null" {
		if err := json.Unmarshal(packet.Payload, params); err != nil {
			reject(client, "malformed payload", packet.Listener)
			return nil, false
		}
	}
	if err := d.Validator.Struct(params); err != nil {
		reject(client, Describe(err), packet.Listener)
		return nil, false
	}
	return params, true
}

// Describe turns a validation failure into a message for players.
func Describe(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid payload"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s is too long", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func reject(client *structs.Client, msg, listener string) {
	message.Code(client, "error", &structs.ErrorPayload{Message: msg}, listener)
}
