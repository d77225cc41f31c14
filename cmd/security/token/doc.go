// Package token issues and verifies the JWTs userhub hands to clients and hashes
// refresh tokens for server-side storage.
//
// Access and refresh tokens are HS256 JWTs signed with one shared secret and told apart
// by the "typ" claim. Refresh tokens are never stored in plain form: the store keeps
// HMAC-SHA256(token, key) when a hash key is configured and SHA-256(token) otherwise,
// both as 64-char hex.
package token
