package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ajitpratap0/tradesim/internal/validation"
)

var (
	// ErrMalformedPayload is returned for frames that are not a well-formed envelope
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownKind is returned when message_type names no registered message
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrValidation is returned when a payload fails field validation
	ErrValidation = errors.New("validation error")
)

// Envelope is the outer frame of every message
type Envelope struct {
	Kind    Kind            `json:"message_type"`
	Message json.RawMessage `json:"message"`
}

// Decode parses the envelope of an inbound frame
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: missing message_type", ErrMalformedPayload)
	}
	if !env.Kind.IsInbound() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	return env, nil
}

// Payload decodes and validates the message body of an envelope
func Payload(env Envelope) (Inbound, error) {
	factory, ok := inboundRegistry[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}

	msg := factory()
	body := bytes.TrimSpace(env.Message)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		body = []byte("{}")
	}
	if body[0] != '{' {
		return nil, fmt.Errorf("%w: message must be a JSON object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	v := validation.NewValidator()
	msg.check(v)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return msg, nil
}

// DecodeInbound parses a frame into a validated inbound message
func DecodeInbound(raw []byte) (Inbound, error) {
	env, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Payload(env)
}

// Encode renders an outbound message inside its envelope
func Encode(msg Outbound) ([]byte, error) {
	return encode(msg.Kind(), msg)
}

// EncodeInbound renders a client message; used by clients and tests
func EncodeInbound(msg Inbound) ([]byte, error) {
	return encode(msg.Kind(), msg)
}

func encode(kind Kind, msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return json.Marshal(Envelope{Kind: kind, Message: body})
}

// DecodeOutbound parses a server frame; used by clients and tests
func DecodeOutbound(raw []byte) (Outbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	factory, ok := outboundRegistry[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	msg := factory()
	if err := json.Unmarshal(env.Message, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}
