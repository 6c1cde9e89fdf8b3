// Package internal holds helpers shared across the module that are not part
// of the public API: random session-identifier generation and parsing.
package internal
