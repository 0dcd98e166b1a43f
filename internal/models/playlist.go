package models

import (
	"strings"
	"time"

	"github.com/harmonium-app/harmonium/internal/shared"
)

// PlaylistTrack represents a track within a playlist.
type PlaylistTrack struct {
	TrackID  string `json:"track_id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Genre    string `json:"genre,omitempty"`
	AlbumArt string `json:"album_art,omitempty"`
}

// Playlist represents a user-owned playlist with an embedded track list.
type Playlist struct {
	ID          string          `json:"id"`
	Sequence    int             `json:"-"`
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tracks      []PlaylistTrack `json:"tracks"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewPlaylist creates a playlist owned by the given user with an empty track list.
func NewPlaylist(userID, name, description string) *Playlist {
	now := time.Now()
	return &Playlist{
		UserID:      userID,
		Name:        name,
		Description: description,
		Tracks:      []PlaylistTrack{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Key returns the playlist's unique identifier.
func (p *Playlist) Key() string { return p.ID }

// Validate checks required playlist fields.
func (p *Playlist) Validate() error {
	if p.UserID == "" || p.Name == "" {
		return shared.ErrInvalidInput
	}
	return nil
}

// AddTrack appends a track to the playlist.
func (p *Playlist) AddTrack(track PlaylistTrack) {
	p.Tracks = append(p.Tracks, track)
}

// RemoveTrack deletes all tracks with the given track ID, reporting whether any were removed.
func (p *Playlist) RemoveTrack(trackID string) bool {
	kept := p.Tracks[:0]
	removed := false
	for _, t := range p.Tracks {
		if t.TrackID == trackID {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	p.Tracks = kept
	return removed
}

// FilterTracksByGenre trims the track list to tracks whose genre matches one of
// the comma-separated genres. Matching is case-insensitive.
func (p *Playlist) FilterTracksByGenre(genreFilter string) {
	if genreFilter == "" {
		return
	}

	genres := map[string]bool{}
	for _, g := range strings.Split(genreFilter, ",") {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			genres[g] = true
		}
	}
	if len(genres) == 0 {
		return
	}

	kept := p.Tracks[:0]
	for _, t := range p.Tracks {
		if t.Genre != "" && genres[strings.ToLower(t.Genre)] {
			kept = append(kept, t)
		}
	}
	p.Tracks = kept
}
