// package tasks implements background maintenance for stored provider credentials.
//
// The core abstraction is RefreshEngine, which sweeps the credential store on an
// interval and refreshes tokens before they expire, so interactive requests rarely
// pay the refresh round trip themselves.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harmonium-app/harmonium/internal/models"
	"github.com/harmonium-app/harmonium/internal/shared"
	"golang.org/x/time/rate"
)

// RefreshError records a single credential that could not be refreshed.
type RefreshError struct {
	UserID string // Owner of the failing credential
	Err    error  // Cause of the failure
}

// RefreshResult summarizes one sweep over the credential store.
type RefreshResult struct {
	Checked   int            // Credentials inspected this sweep
	Refreshed int            // Tokens successfully refreshed
	Skipped   int            // Credentials without a refresh token
	Failed    int            // Refresh attempts that errored
	Errors    []RefreshError // Individual failures for logging/inspection
}

// Refresher exchanges a credential's refresh token for new access tokens.
// Satisfied by auth.Manager.
type Refresher interface {
	Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error)
}

// ExpiringLister lists credentials expiring within a window.
// Satisfied by repositories.CredentialRepository.
type ExpiringLister interface {
	ListExpiring(within time.Duration) ([]*models.Credential, error)
}

// RefreshEngine periodically refreshes credentials approaching expiry.
type RefreshEngine struct {
	creds     ExpiringLister
	refresher Refresher
	limiter   *rate.Limiter
	window    time.Duration
	interval  time.Duration
	logger    *log.Logger
}

// RefreshEngineOptions configures a [RefreshEngine]. Zero values pick
// sensible defaults.
type RefreshEngineOptions struct {
	Window   time.Duration // How far ahead of expiry to refresh (default 2x the credential leeway)
	Interval time.Duration // Time between sweeps (default 5m)
	Rate     float64       // Refresh calls per second against the provider (default 1)
}

// NewRefreshEngine creates a refresh engine over the given store and refresher.
func NewRefreshEngine(creds ExpiringLister, refresher Refresher, logger *log.Logger, opts RefreshEngineOptions) *RefreshEngine {
	if opts.Window <= 0 {
		opts.Window = 2 * models.DefaultExpiryLeeway
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if logger == nil {
		logger = log.Default()
	}

	return &RefreshEngine{
		creds:     creds,
		refresher: refresher,
		limiter:   rate.NewLimiter(rate.Limit(opts.Rate), 1),
		window:    opts.Window,
		interval:  opts.Interval,
		logger:    logger,
	}
}

// Sweep refreshes every credential expiring within the window. Individual
// failures are collected rather than aborting the sweep; the returned
// error covers only listing failures and context cancellation.
func (e *RefreshEngine) Sweep(ctx context.Context) (*RefreshResult, error) {
	expiring, err := e.creds.ListExpiring(e.window)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{Checked: len(expiring)}

	for _, cred := range expiring {
		if err := e.limiter.Wait(ctx); err != nil {
			return result, err
		}

		if _, err := e.refresher.Refresh(ctx, cred); err != nil {
			if errors.Is(err, shared.ErrNoRefreshToken) {
				result.Skipped++
				continue
			}

			result.Failed++
			result.Errors = append(result.Errors, RefreshError{UserID: cred.UserID, Err: err})
			e.logger.Warn("credential refresh failed", "user_id", cred.UserID, "error", err)
			continue
		}

		result.Refreshed++
	}

	return result, nil
}

// Run sweeps on the configured interval until the context is canceled.
// The first sweep happens after one interval, not immediately, so startup
// is not serialized behind provider calls.
func (e *RefreshEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("credential refresh engine started", "interval", e.interval, "window", e.window)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("credential refresh engine stopped")
			return
		case <-ticker.C:
			result, err := e.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.logger.Error("credential sweep failed", "error", err)
				continue
			}

			if result.Checked > 0 {
				e.logger.Info("credential sweep complete",
					"checked", result.Checked,
					"refreshed", result.Refreshed,
					"skipped", result.Skipped,
					"failed", result.Failed,
				)
			}
		}
	}
}
