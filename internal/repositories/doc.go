// Package repositories provides persistence layer implementations for all model types.
//
// [CredentialRepository] owns the credentials table and encrypts token
// pairs through an [auth.Vault] before they reach disk. [PlaylistRepository]
// owns the playlists table, storing tracks as a JSON column, handling CRUD,
// soft deletes, and sequence generation.
package repositories
