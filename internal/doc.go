// Package internal contains helpers that are private to inkauth, currently
// secure random token generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters and the authenticate latency histogram
//   - rate: Redis-backed fixed-window throttles
//   - security: posture report behind Engine.SecurityReport
//
// # What this package must NOT do
//
//   - Export types that appear in the public inkauth API.
//   - Be imported by any package outside the inkauth module.
package internal
