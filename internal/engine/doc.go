// Package engine implements the registration coordinator.
//
// The coordinator gates movement behind an account-linking step. A session
// that joins without a linked account is frozen at its join position until
// a registration assertion for it arrives on the side channel and is
// persisted.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Join, command, side-channel and disconnect events are enqueued from any
// goroutine and processed one at a time by Coordinator.Run. Only the loop
// notifies sessions or changes their registration and freeze state.
//
// Store Calls Off the Loop:
// Join and command lookups and account links run on a bounded set of worker
// goroutines. When a store call returns, its outcome is enqueued as a
// continuation event and applied by the loop. Commands and messages that
// arrive while a session's join lookup runs are held and replayed after it.
//
// Movement:
// InterceptMove is called directly by the runtime on its movement path. It
// only reads the freeze registry, which is safe for concurrent use.
//
// Per-session states:
//
//	Unknown (frozen) --join/lookup--> Registered
//	Unknown (frozen) --join/lookup--> Unregistered (frozen)
//	Unregistered --assertion persisted--> Registered
//	any --disconnect--> (discarded)
//
// Join freezes the session before returning, so no move slips through while
// the lookup is in flight. Lookups run under a timeout; if the store cannot
// answer, the session is treated as unregistered.
package engine
