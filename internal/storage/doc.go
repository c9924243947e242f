// Package storage persists the subscription map.
//
// It currently supports:
//   - A human-readable JSON snapshot file (safe to hand-edit for recovery)
//   - An optional SQLite backend (build tag "sqlite")
package storage
