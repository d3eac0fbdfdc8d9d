// Package index maintains the server-side file index of a workspace: a
// SQLite table of relative paths with sizes, modification times, and BLAKE3
// content hashes, plus a single fingerprint summarizing the whole index.
// The fingerprint is what travels over the wire; the client compares it
// against the last value it observed to detect staleness.
package index
