package protocol

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageSize bounds a single wire message. Session loops perform one
// read of this size per connection; a message that does not fit arrives
// truncated and fails envelope decoding. There is no reassembly across
// reads.
const MaxMessageSize = 4096

// encMode uses Core Deterministic Encoding so the same logical message
// always produces identical bytes on both ends.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Read buffers are fixed-size, so decoding
// always consumes exactly one data item and ignores trailing padding.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// Envelope is the result of phase-one decoding: the type tag plus the raw
// bytes the payload can later be decoded from.
type Envelope struct {
	Type MessageType
	Raw  []byte
}

// Encode serializes a message into its tagged array form.
func Encode(msg Message) ([]byte, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	return data, nil
}

// DecodeEnvelope performs the generic phase-one decode: the buffer must
// start with a CBOR array whose first element is an unsigned integer tag.
// The payload is not validated here; callers branch on the tag and then
// decode the full message.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	var elems []cbor.RawMessage
	if _, err := decMode.UnmarshalFirst(buf, &elems); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(elems) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty array", ErrMalformedEnvelope)
	}
	var tag uint64
	if err := decMode.Unmarshal(elems[0], &tag); err != nil {
		return Envelope{}, fmt.Errorf("%w: first element is not an unsigned integer", ErrMalformedEnvelope)
	}
	return Envelope{Type: MessageType(tag), Raw: buf}, nil
}

// Decode performs both phases: it verifies the envelope tag matches M's
// static type, then decodes the payload into M. A tag from outside the
// closed enumeration is ErrUnknownMessageType, a wrong-but-known tag is
// ErrTypeMismatch, and a schema violation is ErrPayloadDecode.
func Decode[M Message](buf []byte) (M, error) {
	var msg M
	env, err := DecodeEnvelope(buf)
	if err != nil {
		return msg, err
	}
	if !env.Type.Known() {
		return msg, fmt.Errorf("%w: tag %d", ErrUnknownMessageType, uint64(env.Type))
	}
	if want := msg.MessageType(); env.Type != want {
		return msg, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, env.Type, want)
	}
	if _, err := decMode.UnmarshalFirst(buf, &msg); err != nil {
		return msg, fmt.Errorf("%w: %s: %v", ErrPayloadDecode, env.Type, err)
	}
	return msg, nil
}

// ReadMessage performs the single bounded read a session loop does per
// connection and returns the bytes received.
func ReadMessage(r io.Reader) ([]byte, error) {
	buf := make([]byte, MaxMessageSize)
	n, err := r.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return buf[:n], nil
}
