package message

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/MikeDev101/coopstack/server/pkg/manager"
	"github.com/MikeDev101/coopstack/server/pkg/structs"
)

var ErrDropped = eris.New("client closed or buffer full")

// Send encodes a message and queues it on the client's websocket.
func Send(client *structs.Client, message any) error {
	if client == nil {
		return nil
	}
	bytes, err := json.Marshal(message)
	if err != nil {
		return eris.Wrap(err, "failed to encode message")
	}
	if !client.Enqueue(bytes) {
		log.Debug().Str("conn", client.ID).Msg("dropped outbound message")
		return ErrDropped
	}
	return nil
}

func Code(client *structs.Client, code string, payload any, listener string) error {
	return Send(client, &structs.SignalPacket{Opcode: code, Payload: payload, Listener: listener})
}

func Broadcast(clients []*structs.Client, message any) {
	bytes, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode broadcast")
		return
	}
	for _, client := range clients {
		client.Enqueue(bytes)
	}
}

// Relay sends a game message over the client's data channel when one is open,
// and over the websocket otherwise.
func Relay(client *structs.Client, code string, payload any, listener string) error {
	if client == nil {
		return nil
	}
	write := client.Channel()
	if write == nil {
		return Code(client, code, payload, listener)
	}
	bytes, err := json.Marshal(&structs.SignalPacket{Opcode: code, Payload: payload, Listener: listener})
	if err != nil {
		return eris.Wrap(err, "failed to encode message")
	}
	if err := write(bytes); err != nil {
		log.Debug().Err(err).Str("conn", client.ID).Msg("data channel write failed, using websocket")
		client.SetChannel(nil)
		return Code(client, code, payload, listener)
	}
	return nil
}

// Error replies with an error packet for a rejected operation. Authority
// errors are not reported back.
func Error(client *structs.Client, err error, listener string) {
	if err == nil || errors.Is(err, manager.ErrAuthority) {
		return
	}
	msg := "internal error"
	var e *manager.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	Code(client, "error", &structs.ErrorPayload{Message: msg}, listener)
}
