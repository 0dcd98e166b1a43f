package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// PlaylistRepository implements [models.Repository] for [models.Playlist] persistence.
//
// Tracks are serialized as a JSON array column; playlist rows are
// soft-deleted.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new [PlaylistRepository] with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist with generated ID and sequence
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	playlist.ID = shared.GenerateID()
	playlist.Sequence = sequence

	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tracks, err := marshalTracks(playlist.Tracks)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO playlists (id, sequence, user_id, name, description, tracks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, playlist.ID, sequence, playlist.UserID, playlist.Name,
		playlist.Description, tracks, playlist.CreatedAt, playlist.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	return nil
}

// Get retrieves a playlist by ID, excluding soft-deleted playlists
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `
		SELECT id, sequence, user_id, name, description, tracks, created_at, updated_at
		FROM playlists
		WHERE id = ? AND deleted_at IS NULL
	`

	var (
		playlist  models.Playlist
		rawTracks string
	)

	err := r.db.QueryRow(query, id).Scan(&playlist.ID, &playlist.Sequence, &playlist.UserID,
		&playlist.Name, &playlist.Description, &rawTracks, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}

	if err := json.Unmarshal([]byte(rawTracks), &playlist.Tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracks: %w", err)
	}

	return &playlist, nil
}

// Update modifies an existing playlist's metadata and track list
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tracks, err := marshalTracks(playlist.Tracks)
	if err != nil {
		return err
	}

	now := time.Now()
	playlist.UpdatedAt = now

	query := `
		UPDATE playlists
		SET name = ?, description = ?, tracks = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, playlist.Name, playlist.Description, tracks, now, playlist.ID)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlist.ID)
	}

	return nil
}

// Delete soft-deletes a playlist by ID
func (r *PlaylistRepository) Delete(id string) error {
	query := `
		UPDATE playlists
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	return nil
}

// ListForUser retrieves all playlists owned by a user, excluding soft-deleted
// playlists. A non-empty genreFilter trims each playlist's track list to
// tracks matching one of the comma-separated genres.
func (r *PlaylistRepository) ListForUser(userID, genreFilter string) ([]*models.Playlist, error) {
	query := `
		SELECT id, sequence, user_id, name, description, tracks, created_at, updated_at
		FROM playlists
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		var (
			playlist  models.Playlist
			rawTracks string
		)

		err := rows.Scan(&playlist.ID, &playlist.Sequence, &playlist.UserID, &playlist.Name,
			&playlist.Description, &rawTracks, &playlist.CreatedAt, &playlist.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}

		if err := json.Unmarshal([]byte(rawTracks), &playlist.Tracks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tracks: %w", err)
		}

		playlist.FilterTracksByGenre(genreFilter)
		playlists = append(playlists, &playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// AddTrack appends a track to a playlist and persists the new track list.
func (r *PlaylistRepository) AddTrack(id string, track models.PlaylistTrack) (*models.Playlist, error) {
	playlist, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	playlist.AddTrack(track)
	if err := r.Update(playlist); err != nil {
		return nil, err
	}

	return playlist, nil
}

// RemoveTrack removes all occurrences of a track from a playlist and persists the result.
func (r *PlaylistRepository) RemoveTrack(id, trackID string) (*models.Playlist, error) {
	playlist, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	if !playlist.RemoveTrack(trackID) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}

	if err := r.Update(playlist); err != nil {
		return nil, err
	}

	return playlist, nil
}

func marshalTracks(tracks []models.PlaylistTrack) (string, error) {
	if tracks == nil {
		tracks = []models.PlaylistTrack{}
	}
	data, err := json.Marshal(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tracks: %w", err)
	}
	return string(data), nil
}
