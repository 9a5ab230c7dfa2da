// Package httpapi serves the /auth routes of the wire contract on top of
// an [inkauth.Engine]: registration, login, refresh, logout, password
// change and reset, email verification, and session listing.
//
// Tokens are returned both in the JSON body and as httpOnly cookies. The
// refresh cookie is scoped to /auth/refresh. Errors use the envelope
// written by [middleware.WriteError].
package httpapi
