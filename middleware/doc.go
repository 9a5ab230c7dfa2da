// Package middleware adapts the inkauth request gate to net/http.
//
// [Gate.Authenticate] extracts the access token (bearer header, then the
// accessToken cookie, then the token query parameter on routes wrapped with
// [AllowQueryToken]), runs the engine pipeline and attaches the
// [inkauth.Principal]. [Gate.RequireRole] and [Gate.RequireOwnership] add
// authorization on top. Rejections are written as the JSON error envelope.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs. Every decision is delegated to the Authenticator.
//   - Access Redis or the credential store directly.
package middleware
