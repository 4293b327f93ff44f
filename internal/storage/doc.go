// Package storage owns the bot's durable state.
//
// It has two parts:
//   - State: per-channel reminder lists and pinned calendar entries, persisted
//     as a single JSON file. In-memory state is authoritative during the
//     process lifetime; Save is best-effort and called after every mutation.
//   - Audit: an optional append-only log of fired reminders and state
//     mutations (file or sqlite driver).
package storage
