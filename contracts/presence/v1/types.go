// Package v1 defines the sauat presence protocol v1 contract.
//
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated during the websocket handshake.
const Subprotocol = "sauat.presence.v1"

// Type constants (wire-stable).
const (
	// TypeActiveCountChanged carries the current number of live connections (server -> client).
	// It is sent once on connect and then on every change.
	TypeActiveCountChanged = "ActiveCountChanged"

	// TypeCountGet asks for the current count (client -> server).
	TypeCountGet = "count_get"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	TS      time.Time       `json:"ts,omitzero"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch e.Type {
	case TypeActiveCountChanged, TypeCountGet, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// CountPayload is the body of TypeActiveCountChanged.
type CountPayload struct {
	Count int `json:"count"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewCountEnvelope builds a TypeActiveCountChanged envelope.
func NewCountEnvelope(count int, ts time.Time) Envelope {
	p, _ := json.Marshal(CountPayload{Count: count})
	return Envelope{V: Version, Type: TypeActiveCountChanged, TS: ts, Payload: p}
}

// NewErrorEnvelope builds a TypeError envelope.
func NewErrorEnvelope(code, msg string, ts time.Time) Envelope {
	p, _ := json.Marshal(ErrorPayload{Code: code, Message: msg})
	return Envelope{V: Version, Type: TypeError, TS: ts, Payload: p}
}
