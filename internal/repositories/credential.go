package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harmonium-app/harmonium/internal/auth"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// CredentialRepository implements [auth.CredentialStore] over SQLite.
//
// Token pairs pass through the [auth.Vault] on every write and read, so
// plaintext tokens never reach the database file.
type CredentialRepository struct {
	db    *sql.DB
	vault *auth.Vault
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection and vault.
func NewCredentialRepository(db *sql.DB, vault *auth.Vault) *CredentialRepository {
	return &CredentialRepository{db: db, vault: vault}
}

// Create inserts a new credential.
func (r *CredentialRepository) Create(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	accessToken, refreshToken, err := r.seal(cred)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, cred.UserID, accessToken, refreshToken, cred.ExpiresAt, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}

	return nil
}

// Get retrieves the credential for a user with tokens decrypted.
func (r *CredentialRepository) Get(userID string) (*models.Credential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	var cred models.Credential
	err := r.db.QueryRow(query, userID).Scan(
		&cred.UserID, &cred.AccessToken, &cred.RefreshToken,
		&cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	if err := r.open(&cred); err != nil {
		return nil, err
	}

	return &cred, nil
}

// Update modifies an existing credential.
func (r *CredentialRepository) Update(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	accessToken, refreshToken, err := r.seal(cred)
	if err != nil {
		return err
	}

	query := `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ?
	`

	result, err := r.db.Exec(query, accessToken, refreshToken, cred.ExpiresAt, cred.UpdatedAt, cred.UserID)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, cred.UserID)
	}

	return nil
}

// Upsert inserts or replaces the credential for a user in one statement, so
// the expiry can never be stored without the token pair it belongs to.
func (r *CredentialRepository) Upsert(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	accessToken, refreshToken, err := r.seal(cred)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, cred.UserID, accessToken, refreshToken, cred.ExpiresAt, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// Delete removes the credential for a user (logout).
func (r *CredentialRepository) Delete(userID string) error {
	result, err := r.db.Exec("DELETE FROM credentials WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, userID)
	}

	return nil
}

// ListExpiring returns credentials whose expiry falls before now+within,
// for the background refresh sweep.
func (r *CredentialRepository) ListExpiring(within time.Duration) ([]*models.Credential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_at, created_at, updated_at
		FROM credentials
		WHERE expires_at <= ?
		ORDER BY expires_at ASC
	`

	rows, err := r.db.Query(query, time.Now().Add(within))
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var cred models.Credential
		err := rows.Scan(
			&cred.UserID, &cred.AccessToken, &cred.RefreshToken,
			&cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}

		if err := r.open(&cred); err != nil {
			return nil, err
		}

		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return creds, nil
}

// seal encrypts the token pair for storage.
func (r *CredentialRepository) seal(cred *models.Credential) (accessToken, refreshToken string, err error) {
	accessToken, err = r.vault.Encrypt(cred.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refreshToken, err = r.vault.Encrypt(cred.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// open decrypts the token pair in place after a read.
func (r *CredentialRepository) open(cred *models.Credential) error {
	accessToken, err := r.vault.Decrypt(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := r.vault.Decrypt(cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	cred.AccessToken = accessToken
	cred.RefreshToken = refreshToken
	return nil
}
