package directory

import (
	"context"
	"fmt"

	"scriptrelay/presence"
)

// Reader abstracts repository operations for the service.
type Reader interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	GetEngagement(ctx context.Context, userID string) (Eligibility, error)
	SetAvailable(ctx context.Context, userID string, available bool) error
	IncrementCompletedJobs(ctx context.Context, userID string) error
}

// Service exposes the user-directory operations other components consume.
type Service struct {
	repo     Reader
	presence presence.Tracker
}

// NewService builds a Service using the provided repository and tracker.
func NewService(repo Reader, tracker presence.Tracker) *Service {
	return &Service{repo: repo, presence: tracker}
}

// GetProfile returns the public profile for the given user.
func (s *Service) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// GetEligibility merges the durable availability record with live session
// presence.
func (s *Service) GetEligibility(ctx context.Context, userID string) (Eligibility, error) {
	e, err := s.repo.GetEngagement(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}

	online, err := s.presence.Online(ctx, userID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("directory: presence lookup: %w", err)
	}
	e.Online = online

	return e, nil
}

// SetAvailable flips the manual availability toggle.
func (s *Service) SetAvailable(ctx context.Context, userID string, available bool) error {
	return s.repo.SetAvailable(ctx, userID, available)
}

// IncrementCompletedJobs bumps the lifetime completed-job counter.
func (s *Service) IncrementCompletedJobs(ctx context.Context, userID string) error {
	return s.repo.IncrementCompletedJobs(ctx, userID)
}
