// Package auth is the authentication and session client of the habit tracker.
// Credential operations run against a managed identity provider; the session
// is derived from the provider on every call instead of being cached.
//
// Credential operations:
//   - Client covers registration, confirmation codes, sign in, password
//     recovery and password change. Each call validates input locally,
//     forwards to the IdentityProvider and maps failures onto the sentinel
//     errors in errors.go (ErrNotAuthorized, ErrCodeMismatch, ...).
//   - A sign in that the provider answers with a new password challenge is
//     not an error: SignInResult carries the challenge and CompleteNewPassword
//     finishes it.
//
// Session:
//   - GetCurrentUser and GetAccessToken ask the provider for the tracked user
//     and its session each time. ErrNoCurrentUser and ErrSessionExpired stay
//     distinguishable; IsNoSession matches both.
//   - SessionStateMachine tracks SignedOut, AwaitingConfirmation and SignedIn
//     for observers. It is informational and never gates an operation.
//
// Persistence:
//   - TokenStore writes the profile, access token and refresh token under a
//     namespace through the Storage interface. Backends live under storage/
//     (memory, redis, sqlite).
//
// Activity sinks:
//   - ActivitySink receives login, logout, password and state change events.
//     Sinks run best-effort (errors are logged) so a slow audit trail never
//     blocks authentication. See metrics and activitymap for ready sinks.
package auth
