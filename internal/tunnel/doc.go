// Package tunnel supervises the ssh process that connects the client's
// local port to the server's remote port. A single monitor goroutine owns
// the process handle: it spawns ssh (which also launches the remote server
// daemon), polls liveness, respawns on clean exit, counts consecutive
// failed exits against a hard retry limit, and kills the process on
// shutdown. At most one live tunnel process exists per supervisor.
package tunnel
