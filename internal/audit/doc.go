// Package audit implements async dispatching of security audit events.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zerolog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: one audit record (who, from where, what happened, why).
//
// # What this package must NOT do
//
//   - Decide which events to emit; the engine does that.
//   - Carry secrets or raw tokens in events.
//   - Import inkauth or any sibling internal package.
package audit
