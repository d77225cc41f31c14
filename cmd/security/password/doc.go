// Package password provides password hashing and verification for userhub.
//
// New hashes are Argon2id in a PHC-like encoded string. Verification also accepts
// bcrypt hashes ($2a$/$2b$/$2y$) so accounts imported from the previous system keep
// working until their next password change.
//
// Hash strings are treated as untrusted input during Verify; argon2id parameters that
// exceed the configured limits by a wide margin are refused.
package password
