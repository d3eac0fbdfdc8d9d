// Package config loads, normalizes, and validates tether's TOML
// configuration. Both daemons share one schema; Load falls back to built-in
// defaults when no file exists so `tether config init` can write a starting
// point.
package config
