// Package jwt issues and verifies the signed access and refresh tokens.
//
// Access and refresh tokens are HS256-signed with separate secrets, so a token
// of one kind never verifies as the other. Verification is stateless; whether
// a token has been revoked is decided by the token ledger, not here.
package jwt
