// Package users serves the /api/users routes: admin CRUD over accounts and the
// caller's own profile.
package users
