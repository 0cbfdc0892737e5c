package invite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/internal/repository"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/logger"
)

const inviteTTL = 7 * 24 * time.Hour

type InviteService interface {
	CreateInvite(ctx context.Context, inviterUserID uuid.UUID, kind model.InviteKind) (*model.CreatedInvite, error)
	ListInvites(ctx context.Context, inviterUserID uuid.UUID) ([]*model.Invite, error)
	AcceptInvite(ctx context.Context, token string, acceptorUserID uuid.UUID) (*model.AcceptedInvite, error)
	RevokeInvite(ctx context.Context, inviteID, requesterUserID uuid.UUID) error
	RevokeAccess(ctx context.Context, patientUserID, physicianUserID uuid.UUID) error
}

type Service struct {
	invites    repository.InviteRepository
	grants     repository.AccessRepository
	outbox     repository.OutboxRepository
	store      repository.TxRunner
	appBaseURL string
	logger     *logger.Logger
}

func NewService(
	invites repository.InviteRepository,
	grants repository.AccessRepository,
	outbox repository.OutboxRepository,
	store repository.TxRunner,
	appBaseURL string,
	logger *logger.Logger,
) *Service {
	return &Service{
		invites:    invites,
		grants:     grants,
		outbox:     outbox,
		store:      store,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
}

// newInviteToken returns a URL-safe high-entropy token. Only its hash is
// stored; the raw token is returned to the inviter exactly once.
func newInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Service) CreateInvite(ctx context.Context, inviterUserID uuid.UUID, kind model.InviteKind) (*model.CreatedInvite, error) {
	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}

	invite := &model.Invite{
		ID:            uuid.New(),
		Kind:          kind,
		InviterUserID: inviterUserID,
		TokenHash:     hashInviteToken(token),
		ExpiresAt:     time.Now().Add(inviteTTL),
		CreatedAt:     time.Now(),
	}

	if err := s.invites.Create(ctx, invite); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info("invite created",
		"invite_id", invite.ID.String(),
		"kind", string(kind),
	)

	return &model.CreatedInvite{
		Invite:    invite,
		Token:     token,
		InviteURL: fmt.Sprintf("%s/invite/%s", s.appBaseURL, token),
	}, nil
}

func (s *Service) ListInvites(ctx context.Context, inviterUserID uuid.UUID) ([]*model.Invite, error) {
	return s.invites.ListByInviter(ctx, inviterUserID)
}

// AcceptInvite validates the token, resolves the patient/physician pair from
// the invite kind, and atomically reactivates-or-creates the grant while
// stamping the invite accepted. The stamp is conditional on the invite still
// being open, so a concurrent duplicate accept loses cleanly.
func (s *Service) AcceptInvite(ctx context.Context, token string, acceptorUserID uuid.UUID) (*model.AcceptedInvite, error) {
	invite, err := s.invites.GetByTokenHash(ctx, hashInviteToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to look up invite: %w", err)
	}
	if invite == nil {
		return nil, apperrors.New(apperrors.KindInviteNotFound)
	}

	now := time.Now()
	switch invite.Status(now) {
	case model.InviteStatusRevoked:
		return nil, apperrors.New(apperrors.KindInviteRevoked)
	case model.InviteStatusAccepted:
		return nil, apperrors.New(apperrors.KindInviteAccepted)
	case model.InviteStatusExpired:
		return nil, apperrors.New(apperrors.KindInviteExpired)
	}

	var patientUserID, physicianUserID uuid.UUID
	switch invite.Kind {
	case model.InviteKindPatientInvitesPhysician:
		patientUserID = invite.InviterUserID
		physicianUserID = acceptorUserID
	case model.InviteKindPhysicianInvitesPatient:
		patientUserID = acceptorUserID
		physicianUserID = invite.InviterUserID
	default:
		return nil, apperrors.Newf(apperrors.KindBadRequest, "unsupported invite kind %q", invite.Kind)
	}

	if patientUserID == physicianUserID {
		return nil, apperrors.New(apperrors.KindInviteSelf)
	}

	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.grants.UpsertGrantTx(ctx, tx, patientUserID, physicianUserID); err != nil {
			return err
		}

		affected, err := s.invites.MarkAcceptedTx(ctx, tx, invite.ID, acceptorUserID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return apperrors.New(apperrors.KindInviteAccepted)
		}

		payload, _ := json.Marshal(map[string]string{
			"invite_id":         invite.ID.String(),
			"patient_user_id":   patientUserID.String(),
			"physician_user_id": physicianUserID.String(),
		})
		return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
			EventType: model.EventInviteAccepted,
			Payload:   payload,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invite accepted",
		"invite_id", invite.ID.String(),
		"kind", string(invite.Kind),
	)

	return &model.AcceptedInvite{
		InviteID:        invite.ID,
		Kind:            invite.Kind,
		PatientUserID:   patientUserID,
		PhysicianUserID: physicianUserID,
	}, nil
}

// RevokeInvite is restricted to the original inviter and is an idempotent
// no-op when already revoked.
func (s *Service) RevokeInvite(ctx context.Context, inviteID, requesterUserID uuid.UUID) error {
	invite, err := s.invites.Get(ctx, inviteID)
	if err != nil {
		return fmt.Errorf("failed to look up invite: %w", err)
	}
	if invite == nil {
		return apperrors.New(apperrors.KindInviteNotFound)
	}
	if invite.InviterUserID != requesterUserID {
		return apperrors.New(apperrors.KindInviteForbidden)
	}
	if invite.RevokedAt != nil {
		return nil
	}
	return s.invites.Revoke(ctx, inviteID, time.Now())
}

// RevokeAccess is the patient-initiated hard revoke of a grant, independent
// of any invite history.
func (s *Service) RevokeAccess(ctx context.Context, patientUserID, physicianUserID uuid.UUID) error {
	if err := s.grants.RevokeGrant(ctx, patientUserID, physicianUserID, time.Now()); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"patient_user_id":   patientUserID.String(),
		"physician_user_id": physicianUserID.String(),
	})
	if err := s.outbox.Create(ctx, &model.OutboxEvent{
		EventType: model.EventAccessRevoked,
		Payload:   payload,
	}); err != nil {
		s.logger.Error(err, "failed to record access revoke event")
	}

	return nil
}
