// Package cognito implements auth.IdentityProvider against an Amazon Cognito
// user pool.
//
// The provider uses the public app client flows (USER_PASSWORD_AUTH,
// REFRESH_TOKEN_AUTH and the NEW_PASSWORD_REQUIRED challenge). The signed in
// user and its tokens are tracked in the injected auth.Storage under the
// CognitoIdentityServiceProvider.<clientId> keys used by the Cognito client
// SDKs, so a session survives restarts. Cognito exceptions are translated
// into the auth error taxonomy before they leave the package.
package cognito
