package protocol

import (
	"context"
	"fmt"
	"net"
)

// HandlerFunc processes one fully decoded message. The connection is live:
// a handler may read further bytes and write reply envelopes. The daemon
// context D carries the process-wide state of whichever side is listening.
type HandlerFunc[M Message, D any] func(ctx context.Context, msg M, conn net.Conn, daemon D) error

// Dispatcher routes decoded envelopes to the handler registered for their
// tag. D is the daemon context type handlers receive.
type Dispatcher[D any] struct {
	bindings map[MessageType]func(ctx context.Context, buf []byte, conn net.Conn, daemon D) error
}

// NewDispatcher returns a Dispatcher with no handlers wired. Recognized
// tags without a binding are reported as unsupported, not as decode
// failures.
func NewDispatcher[D any]() *Dispatcher[D] {
	return &Dispatcher[D]{
		bindings: make(map[MessageType]func(context.Context, []byte, net.Conn, D) error),
	}
}

// Handle wires fn as the handler for message type M. The payload is decoded
// into M before fn runs; a schema mismatch never reaches the handler.
func Handle[M Message, D any](d *Dispatcher[D], fn HandlerFunc[M, D]) {
	var m M
	d.bindings[m.MessageType()] = func(ctx context.Context, buf []byte, conn net.Conn, daemon D) error {
		msg, err := Decode[M](buf)
		if err != nil {
			return err
		}
		return fn(ctx, msg, conn, daemon)
	}
}

// Dispatch decodes the envelope tag, resolves it against the closed
// enumeration and the wired handlers, fully decodes the payload, and
// invokes the handler. The handler's own error is propagated unchanged.
func (d *Dispatcher[D]) Dispatch(ctx context.Context, buf []byte, conn net.Conn, daemon D) error {
	env, err := DecodeEnvelope(buf)
	if err != nil {
		return err
	}
	if !env.Type.Known() {
		return fmt.Errorf("%w: tag %d", ErrUnknownMessageType, uint64(env.Type))
	}
	binding, ok := d.bindings[env.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedMessageType, env.Type)
	}
	return binding(ctx, buf, conn, daemon)
}
