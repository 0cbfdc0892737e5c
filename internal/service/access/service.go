package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/repository"
	apperrors "github.com/medichat/records-api/pkg/errors"
)

// Gate is the single authorization primitive. Every component that touches
// patient data on behalf of another user goes through it before any read or
// write.
type Gate interface {
	CanAccessPatient(ctx context.Context, viewerUserID, patientUserID uuid.UUID) (bool, error)
	AssertPatientAccess(ctx context.Context, viewerUserID, patientUserID uuid.UUID) error
}

type Service struct {
	grants repository.AccessRepository
}

func NewService(grants repository.AccessRepository) *Service {
	return &Service{grants: grants}
}

// CanAccessPatient is true for the patient themselves, or when a live
// (unrevoked) grant exists for the pair.
func (s *Service) CanAccessPatient(ctx context.Context, viewerUserID, patientUserID uuid.UUID) (bool, error) {
	if viewerUserID == patientUserID {
		return true, nil
	}

	grant, err := s.grants.GetActiveGrant(ctx, patientUserID, viewerUserID)
	if err != nil {
		return false, fmt.Errorf("failed to check access grant: %w", err)
	}
	return grant != nil, nil
}

func (s *Service) AssertPatientAccess(ctx context.Context, viewerUserID, patientUserID uuid.UUID) error {
	ok, err := s.CanAccessPatient(ctx, viewerUserID, patientUserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.KindForbiddenPatient)
	}
	return nil
}
