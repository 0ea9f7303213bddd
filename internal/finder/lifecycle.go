package finder

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/missing-finder/internal/database"
	"go.uber.org/zap"
)

// MarkFound moves an open case owned by requesterID into the resolved set.
// Concurrent calls for one case are serialized; the store additionally
// refuses to move a case that is no longer open.
func (s *Service) MarkFound(ctx context.Context, caseID, requesterID string) (*CaseView, error) {
	unlock := s.locks.lock(caseID)
	defer unlock()

	view, err := s.markFound(ctx, caseID, requesterID)
	s.metrics.transition("mark_found", err)
	return view, err
}

func (s *Service) markFound(ctx context.Context, caseID, requesterID string) (*CaseView, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{CaseID: caseID}
	}
	if c.OwnerID != requesterID {
		s.logger.Warn("Rejected mark found by non-owner", zap.String("case_id", caseID), zap.String("requester_id", requesterID))
		return nil, &PermissionError{CaseID: caseID}
	}
	if c.State != database.StateOpen {
		return nil, &AlreadyResolvedError{CaseID: caseID}
	}

	resolvedAt := s.now().UTC()
	if err := s.store.MoveToResolved(ctx, caseID, resolvedAt); err != nil {
		if errors.Is(err, database.ErrNotOpen) {
			return nil, &AlreadyResolvedError{CaseID: caseID}
		}
		return nil, fmt.Errorf("resolve case: %w", err)
	}
	s.index.Remove(caseID)
	s.metrics.setOpenCases(s.index.Len())

	s.logger.Info("Case marked found", zap.String("case_id", caseID), zap.String("owner_id", requesterID))

	c.State = database.StateFound
	c.ResolvedAt = &resolvedAt
	view := NewCaseView(c)
	return &view, nil
}

// DeleteResolved permanently removes a resolved case owned by requesterID
// together with its photo. Open cases are reported as not found.
func (s *Service) DeleteResolved(ctx context.Context, caseID, requesterID string) error {
	unlock := s.locks.lock(caseID)
	defer unlock()

	err := s.deleteResolved(ctx, caseID, requesterID)
	s.metrics.transition("delete_resolved", err)
	return err
}

func (s *Service) deleteResolved(ctx context.Context, caseID, requesterID string) error {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return fmt.Errorf("load case: %w", err)
	}
	if c == nil || c.State != database.StateFound {
		return &NotFoundError{CaseID: caseID}
	}
	if c.OwnerID != requesterID {
		s.logger.Warn("Rejected delete by non-owner", zap.String("case_id", caseID), zap.String("requester_id", requesterID))
		return &PermissionError{CaseID: caseID}
	}

	if err := s.store.DeleteResolved(ctx, caseID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &NotFoundError{CaseID: caseID}
		}
		return fmt.Errorf("delete case: %w", err)
	}
	s.deletePhoto(ctx, c.PhotoReference)

	s.logger.Info("Resolved case deleted", zap.String("case_id", caseID), zap.String("owner_id", requesterID))
	return nil
}

// ListByOwner returns the owner's open cases, newest sighting first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]CaseView, error) {
	cases, err := s.store.ListByOwner(ctx, ownerID, database.StateOpen)
	if err != nil {
		return nil, fmt.Errorf("list open cases: %w", err)
	}
	return newCaseViews(cases), nil
}

// ListResolvedByOwner returns the owner's resolved cases, newest sighting first.
func (s *Service) ListResolvedByOwner(ctx context.Context, ownerID string) ([]CaseView, error) {
	cases, err := s.store.ListByOwner(ctx, ownerID, database.StateFound)
	if err != nil {
		return nil, fmt.Errorf("list resolved cases: %w", err)
	}
	return newCaseViews(cases), nil
}

// GetCase returns one case from either set.
func (s *Service) GetCase(ctx context.Context, caseID string) (*CaseView, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case: %w", err)
	}
	if c == nil {
		return nil, &NotFoundError{CaseID: caseID}
	}
	view := NewCaseView(c)
	return &view, nil
}
