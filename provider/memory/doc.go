// Package memory provides an in-process auth.IdentityProvider with user pool
// semantics: bcrypt password hashes, HS256 tokens, confirmation and reset
// codes, admin created users that must change their password, and token
// revocation. It backs tests, demos and offline development.
package memory
