// Package client implements the local-host daemon: it talks to the server
// through the tunnel's local port and accepts push connections from the
// server on a separate listen port. The last observed index fingerprint is
// process state with a single writer; it only moves when a successful reply
// confirms the remote index is at that value, and it is persisted to the
// cache directory so one-shot CLI invocations observe it too.
package client
