package protocol

import "errors"

var (
	// ErrMalformedEnvelope indicates bytes that do not parse as a CBOR
	// array with an unsigned integer tag in the first position.
	ErrMalformedEnvelope = errors.New("malformed message envelope")

	// ErrUnknownMessageType indicates a tag outside the closed message
	// type enumeration. This is a hard error, never a silent skip.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrUnsupportedMessageType indicates a recognized tag with no
	// handler wired on the receiving side.
	ErrUnsupportedMessageType = errors.New("unsupported message type")

	// ErrPayloadDecode indicates a known tag whose payload fields do not
	// match the schema registered for that type.
	ErrPayloadDecode = errors.New("message payload does not match schema")

	// ErrTypeMismatch indicates a reply carrying a different tag than the
	// one the caller statically expected.
	ErrTypeMismatch = errors.New("message type mismatch")
)
