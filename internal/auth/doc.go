// Package auth implements the OAuth token lifecycle for Spotify.
//
// # Authorization Code Flow
//
// [Manager.BeginLogin] builds the authorize URL with an anti-forgery state
// token stored server-side with a 15 minute TTL. [Manager.HandleCallback]
// validates the returned state, exchanges the code for a token pair, and
// persists the resulting [models.Credential]. [Manager.Refresh] trades the
// refresh token for a new access token; a revoked refresh token surfaces
// [shared.ErrRefreshFailed], at which point the caller must force a new
// login.
//
// # Sessions
//
// [Sessions] issues HS256-signed JWTs wrapping a credential's identity,
// with expiry mirroring the provider access-token lifetime, and verifies
// them back into claims.
//
// # Encryption at rest
//
// [Vault] provides AES-256-GCM encryption with an HKDF-derived key so
// stored token pairs are never written in plaintext.
package auth
