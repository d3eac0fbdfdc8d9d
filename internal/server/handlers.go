package server

import (
	"context"
	"fmt"
	"net"

	"tether/internal/logging"
	"tether/internal/protocol"
)

// registerHandlers wires the server's request handlers. IndexRequest is the
// only operation currently supported; every other recognized tag reaches
// the dispatcher's unsupported branch.
func registerHandlers(dispatcher *protocol.Dispatcher[*Daemon]) {
	protocol.Handle(dispatcher, handleIndexRequest)
}

// handleIndexRequest refreshes the workspace index and replies with the new
// fingerprint. Changed tells the client whether its previous fingerprint is
// stale.
func handleIndexRequest(ctx context.Context, req protocol.IndexRequest, conn net.Conn, d *Daemon) error {
	if req.Workspace != "" && req.Workspace != d.cfg.Paths.Workspace {
		d.logger.Warn("client workspace differs from served workspace",
			logging.String("client_workspace", req.Workspace),
			logging.String("workspace", d.cfg.Paths.Workspace))
	}

	result, err := d.scanner.Scan(ctx, d.store)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}

	resp := protocol.NewIndexResponse(result.Fingerprint, result.FileCount, result.Fingerprint != req.PrevHash)
	buf, err := protocol.Encode(resp)
	if err != nil {
		return err
	}
	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("write index reply: %w", err)
	}

	d.logger.Info("index request served",
		logging.Uint64("prev_hash", req.PrevHash),
		logging.Uint64("hash", result.Fingerprint),
		logging.Int64("files", result.FileCount),
		logging.Bool("changed", resp.Changed),
		logging.String(logging.FieldEventType, "index_served"))
	return nil
}
