package dispute

import "context"

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID string, admin bool, negotiationID string) ([]Record, error) {
	if admin {
		return s.repo.ListAll(ctx, negotiationID)
	}
	return s.repo.ListForUser(ctx, userID, negotiationID)
}

func (s *Service) Open(ctx context.Context, openerID, negotiationID, reason string) (Record, error) {
	return s.repo.Create(ctx, openerID, negotiationID, reason)
}

func (s *Service) Resolve(ctx context.Context, admin bool, disputeID string) (Record, error) {
	if !admin {
		return Record{}, ErrForbidden
	}
	return s.repo.Resolve(ctx, disputeID)
}
