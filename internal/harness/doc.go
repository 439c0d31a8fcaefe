// Package harness runs registration scenarios against a real coordinator.
//
// A scenario names sessions, optionally seeds existing links, then plays a
// list of steps (join, move, command, message, disconnect) through the
// coordinator. After every step the harness waits for the coordinator to go
// idle, including link writes still running on the worker pool, and records
// what each session saw.
//
// # Scenario Format
//
//	name: register_then_link
//	description: "An unlinked session registers and is released"
//	sessions:
//	  steve: { id: "123e4567-e89b-12d3-a456-426614174000", name: Steve }
//	links:
//	  - { session: steve, account: 555 }
//	store_down: false
//	steps:
//	  - { op: join, session: steve, pos: [10, 20, 30] }
//	  - { op: command, session: steve, command: register }
//	  - { op: message, session: steve, claims: steve, account: 555 }
//	  - { op: move, session: steve, pos: [11, 20, 30] }
//	assertions:
//	  - { type: unfrozen, session: steve }
//	  - { type: linked, session: steve, account: 555 }
//	  - { type: feedback, session: steve, kinds: [must_register, token, remind, linked] }
//	  - { type: log_contains, message: "session registered" }
//
// A message step is sent by session and claims the identity named by claims,
// which is either a session alias or literal text. payload replaces the
// encoded assertion with raw base64 bytes.
//
// # Assertion Types
//
//   - frozen, unfrozen: the session's freeze state after the last step
//   - linked, unlinked: the store's answer for the session (account 0 matches any)
//   - feedback: the exact sequence of feedback kinds the session received
//   - log_contains: a record with the message (and level, if given) was logged
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store with a fixed
// clock, so traces are identical across runs and can be compared with
// golden files under testdata/golden.
package harness
