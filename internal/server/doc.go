// Package server implements the remote-host daemon: it owns the workspace
// index and accepts connections arriving through the tunnel. Connections
// are handled strictly one at a time; each is one bounded read, one
// dispatch, and whatever replies the handler writes. Per-connection errors
// drop the connection, never the listen loop.
package server
