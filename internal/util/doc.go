// Package util holds small string helpers shared by the engine, the host and
// the stores: log-safe truncation and raw query editing that preserves the
// original encoding of untouched parameters.
package util
