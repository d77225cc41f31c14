// Package identity owns userhub's user records.
//
// It defines the User model, the Store persistence boundary with its PostgreSQL and
// in-memory implementations, the list/filter/pagination query, and the typed errors
// callers map to HTTP statuses.
//
// Stores never hash passwords; they persist the hash they are given. The hash only
// leaves the store through UserAuth, which the auth flow uses for verification.
package identity
