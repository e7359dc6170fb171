package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested user does not exist.
var ErrNotFound = errors.New("directory: user not found")

// Repository provides read access and counter updates on the users table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetProfile fetches the public profile fields for a user.
func (r *Repository) GetProfile(ctx context.Context, userID string) (Profile, error) {
	const query = `
		SELECT id, full_name, email
		FROM users
		WHERE id = $1
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&profile.ID, &profile.FullName, &profile.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("directory: query profile: %w", err)
	}

	return profile, nil
}

// Email resolves a user's email address for notification delivery.
func (r *Repository) Email(ctx context.Context, userID string) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("directory: query email: %w", err)
	}
	return email, nil
}

// GetEngagement reads the availability columns for a user. The online flag is
// filled in by the service from the presence tracker.
func (r *Repository) GetEngagement(ctx context.Context, userID string) (Eligibility, error) {
	const query = `
		SELECT available, status, current_job_id
		FROM users
		WHERE id = $1
	`

	var e Eligibility
	err := r.pool.QueryRow(ctx, query, userID).Scan(&e.Available, &e.Status, &e.CurrentJobID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Eligibility{}, ErrNotFound
		}
		return Eligibility{}, fmt.Errorf("directory: query engagement: %w", err)
	}

	return e, nil
}

// SetAvailable flips the manual availability toggle.
func (r *Repository) SetAvailable(ctx context.Context, userID string, available bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET available = $2,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
	`, userID, available)
	if err != nil {
		return fmt.Errorf("directory: set available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementCompletedJobs bumps a user's lifetime completed-job counter.
func (r *Repository) IncrementCompletedJobs(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET completed_jobs = completed_jobs + 1,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("directory: increment completed jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
