// Package store provides SQLite-backed durable storage for session links.
//
// A link binds a session identity (the player's UUID, stored as its 36-char
// text form) to an external account identity (a Discord user ID).
//
// # Invariants
//
// The schema enforces both uniqueness rules itself:
//   - session_id is the PRIMARY KEY: at most one row per session
//   - discord_id is UNIQUE: at most one session per linked account
//
// An unlinked row has discord_id NULL. Rows imported from the legacy
// plugin table may carry 0 instead, which is read as unlinked too.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - A single open connection, so link transactions serialize
//
// Every database failure returned by a query operation wraps ErrUnavailable.
// Callers in the event path treat that as "cannot determine linkage".
package store
