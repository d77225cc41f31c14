// Package session implements userhub's authentication flow.
//
// Service registers and logs users in, issues JWT access/refresh pairs, rotates refresh
// tokens, and revokes them on logout, password change and password reset. Refresh
// tokens are persisted only as hashes; each one is single-use, and rotation deletes the
// presented row and inserts its successor atomically, so a replayed token finds nothing.
//
// Every credential or token failure collapses to an UnauthorizedError carrying a
// generic reason.
package session
