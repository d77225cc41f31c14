// Package httpx holds the HTTP plumbing shared by userhub's handlers: the response
// envelope, JSON decoding, request validation, error-to-status mapping, and the
// bearer-token authentication middleware.
package httpx
