package invite

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medichat/records-api/internal/model"
	apperrors "github.com/medichat/records-api/pkg/errors"
	"github.com/medichat/records-api/pkg/logger"
)

type fakeStore struct{}

func (fakeStore) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type fakeInviteRepo struct {
	invites map[uuid.UUID]*model.Invite
}

func newFakeInviteRepo() *fakeInviteRepo {
	return &fakeInviteRepo{invites: make(map[uuid.UUID]*model.Invite)}
}

func (f *fakeInviteRepo) Create(_ context.Context, invite *model.Invite) error {
	cp := *invite
	f.invites[invite.ID] = &cp
	return nil
}

func (f *fakeInviteRepo) GetByTokenHash(_ context.Context, tokenHash string) (*model.Invite, error) {
	for _, inv := range f.invites {
		if inv.TokenHash == tokenHash {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeInviteRepo) Get(_ context.Context, id uuid.UUID) (*model.Invite, error) {
	inv, ok := f.invites[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (f *fakeInviteRepo) ListByInviter(_ context.Context, inviterUserID uuid.UUID) ([]*model.Invite, error) {
	var out []*model.Invite
	for _, inv := range f.invites {
		if inv.InviterUserID == inviterUserID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeInviteRepo) MarkAcceptedTx(_ context.Context, _ *sqlx.Tx, id, acceptorUserID uuid.UUID, at time.Time) (int64, error) {
	inv, ok := f.invites[id]
	if !ok || inv.AcceptedAt != nil || inv.RevokedAt != nil {
		return 0, nil
	}
	inv.AcceptedAt = &at
	inv.AcceptedByUserID = &acceptorUserID
	return 1, nil
}

func (f *fakeInviteRepo) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	if inv, ok := f.invites[id]; ok && inv.RevokedAt == nil {
		inv.RevokedAt = &at
	}
	return nil
}

type fakeGrantRepo struct {
	upserts [][2]uuid.UUID
	revokes [][2]uuid.UUID
}

func (f *fakeGrantRepo) GetActiveGrant(context.Context, uuid.UUID, uuid.UUID) (*model.AccessGrant, error) {
	return nil, nil
}

func (f *fakeGrantRepo) UpsertGrantTx(_ context.Context, _ *sqlx.Tx, patientUserID, physicianUserID uuid.UUID) error {
	f.upserts = append(f.upserts, [2]uuid.UUID{patientUserID, physicianUserID})
	return nil
}

func (f *fakeGrantRepo) RevokeGrant(_ context.Context, patientUserID, physicianUserID uuid.UUID, _ time.Time) error {
	f.revokes = append(f.revokes, [2]uuid.UUID{patientUserID, physicianUserID})
	return nil
}

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) CreateTx(_ context.Context, _ *sqlx.Tx, event *model.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(context.Context, int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) UpdateStatus(context.Context, uuid.UUID, model.OutboxStatus, *string) error {
	return nil
}

func newTestService() (*Service, *fakeInviteRepo, *fakeGrantRepo, *fakeOutboxRepo) {
	invites := newFakeInviteRepo()
	grants := &fakeGrantRepo{}
	outbox := &fakeOutboxRepo{}
	log := logger.NewLogger(&logger.Config{Output: io.Discard})
	svc := NewService(invites, grants, outbox, fakeStore{}, "https://app.example.com", log)
	return svc, invites, grants, outbox
}

func TestCreateInvite(t *testing.T) {
	svc, invites, _, _ := newTestService()
	inviter := uuid.New()

	created, err := svc.CreateInvite(context.Background(), inviter, model.InviteKindPatientInvitesPhysician)
	require.NoError(t, err)

	assert.NotEmpty(t, created.Token)
	assert.Contains(t, created.InviteURL, created.Token)

	stored := invites.invites[created.Invite.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, created.Token, stored.TokenHash, "raw token must never be stored")
	assert.Equal(t, hashInviteToken(created.Token), stored.TokenHash)
	assert.WithinDuration(t, time.Now().Add(inviteTTL), stored.ExpiresAt, time.Minute)
}

func TestAcceptInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("patient invites physician resolves roles", func(t *testing.T) {
		svc, _, grants, outbox := newTestService()
		patient := uuid.New()
		physician := uuid.New()

		created, err := svc.CreateInvite(ctx, patient, model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		accepted, err := svc.AcceptInvite(ctx, created.Token, physician)
		require.NoError(t, err)
		assert.Equal(t, patient, accepted.PatientUserID)
		assert.Equal(t, physician, accepted.PhysicianUserID)

		require.Len(t, grants.upserts, 1)
		assert.Equal(t, [2]uuid.UUID{patient, physician}, grants.upserts[0])

		require.Len(t, outbox.events, 1)
		assert.Equal(t, model.EventInviteAccepted, outbox.events[0].EventType)
	})

	t.Run("physician invites patient resolves roles", func(t *testing.T) {
		svc, _, grants, _ := newTestService()
		physician := uuid.New()
		patient := uuid.New()

		created, err := svc.CreateInvite(ctx, physician, model.InviteKindPhysicianInvitesPatient)
		require.NoError(t, err)

		accepted, err := svc.AcceptInvite(ctx, created.Token, patient)
		require.NoError(t, err)
		assert.Equal(t, patient, accepted.PatientUserID)
		assert.Equal(t, physician, accepted.PhysicianUserID)
		require.Len(t, grants.upserts, 1)
	})

	t.Run("unknown token", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		_, err := svc.AcceptInvite(ctx, "no-such-token", uuid.New())
		assert.Equal(t, apperrors.KindInviteNotFound, apperrors.KindOf(err))
	})

	t.Run("self acceptance is rejected", func(t *testing.T) {
		svc, _, grants, _ := newTestService()
		inviter := uuid.New()

		created, err := svc.CreateInvite(ctx, inviter, model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		_, err = svc.AcceptInvite(ctx, created.Token, inviter)
		assert.Equal(t, apperrors.KindInviteSelf, apperrors.KindOf(err))
		assert.Empty(t, grants.upserts)
	})

	t.Run("single use", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		created, err := svc.CreateInvite(ctx, uuid.New(), model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		_, err = svc.AcceptInvite(ctx, created.Token, uuid.New())
		require.NoError(t, err)

		_, err = svc.AcceptInvite(ctx, created.Token, uuid.New())
		assert.Equal(t, apperrors.KindInviteAccepted, apperrors.KindOf(err))
	})

	t.Run("expired invite", func(t *testing.T) {
		svc, invites, _, _ := newTestService()
		created, err := svc.CreateInvite(ctx, uuid.New(), model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)
		invites.invites[created.Invite.ID].ExpiresAt = time.Now().Add(-time.Hour)

		_, err = svc.AcceptInvite(ctx, created.Token, uuid.New())
		assert.Equal(t, apperrors.KindInviteExpired, apperrors.KindOf(err))
	})

	t.Run("revoked invite", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		inviter := uuid.New()
		created, err := svc.CreateInvite(ctx, inviter, model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		require.NoError(t, svc.RevokeInvite(ctx, created.Invite.ID, inviter))

		_, err = svc.AcceptInvite(ctx, created.Token, uuid.New())
		assert.Equal(t, apperrors.KindInviteRevoked, apperrors.KindOf(err))
	})
}

func TestRevokeInvite(t *testing.T) {
	ctx := context.Background()

	t.Run("only the inviter may revoke", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		created, err := svc.CreateInvite(ctx, uuid.New(), model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		err = svc.RevokeInvite(ctx, created.Invite.ID, uuid.New())
		assert.Equal(t, apperrors.KindInviteForbidden, apperrors.KindOf(err))
	})

	t.Run("revoking twice is a no-op", func(t *testing.T) {
		svc, _, _, _ := newTestService()
		inviter := uuid.New()
		created, err := svc.CreateInvite(ctx, inviter, model.InviteKindPatientInvitesPhysician)
		require.NoError(t, err)

		require.NoError(t, svc.RevokeInvite(ctx, created.Invite.ID, inviter))
		require.NoError(t, svc.RevokeInvite(ctx, created.Invite.ID, inviter))
	})
}

func TestRevokeAccess(t *testing.T) {
	svc, _, grants, outbox := newTestService()
	patient := uuid.New()
	physician := uuid.New()

	require.NoError(t, svc.RevokeAccess(context.Background(), patient, physician))
	require.Len(t, grants.revokes, 1)
	assert.Equal(t, [2]uuid.UUID{patient, physician}, grants.revokes[0])
	require.Len(t, outbox.events, 1)
	assert.Equal(t, model.EventAccessRevoked, outbox.events[0].EventType)
}
