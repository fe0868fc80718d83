// Package storage provides the optional persistence layer.
//
// It currently supports:
//   - Alert history appends (what was dispatched, when, to how many targets)
//   - Sent-notification markers (so restarts don't re-alert inside a window)
package storage
