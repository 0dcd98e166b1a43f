// Package models defines the data model for the music proxy service.
//
// # Entities
//
// [Credential] holds a user's Spotify token pair and its absolute expiry.
// The pair is encrypted before it reaches the database; the expiry always
// describes the tokens actually stored alongside it.
//
// [Playlist] is a user-owned playlist with an embedded track list. Tracks
// are value objects ([PlaylistTrack]) serialized as JSON in persistence.
//
// # Repository Abstraction
//
// The generic [Repository] interface is implemented per entity in the
// repositories package, keyed by [Model.Key].
package models
