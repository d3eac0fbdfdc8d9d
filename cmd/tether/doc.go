// Command tether is the local-host CLI. It supervises the ssh tunnel, runs
// the client daemon, and offers one-shot index and status queries against a
// running tunnel.
package main
