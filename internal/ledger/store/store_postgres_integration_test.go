//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"consent-ledger/internal/ledger/models"
	"consent-ledger/internal/ledger/store"
	id "consent-ledger/pkg/domain"
	"consent-ledger/pkg/platform/sentinel"
	"consent-ledger/pkg/testutil"
	"consent-ledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateLedger(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) createStudy(ctx context.Context) *models.Study {
	study, err := models.NewStudy(testutil.TestAddresses.Owner, "meta", "Gait", "walk ten metres", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateStudy(ctx, study))
	return study
}

func (s *PostgresStoreSuite) createConsent(ctx context.Context, study *models.Study, docRef string, supersedes id.ConsentID) *models.Consent {
	consent, err := models.NewConsent(study.ID, testutil.TestAddresses.Participant, docRef, nil, supersedes, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateConsent(ctx, consent))
	return consent
}

func (s *PostgresStoreSuite) TestStudyRoundTrip() {
	ctx := context.Background()
	study := s.createStudy(ctx)
	s.EqualValues(1, study.ID)

	got, err := s.store.GetStudy(ctx, study.ID)
	s.Require().NoError(err)
	s.Equal(testutil.TestAddresses.Owner, got.Owner)
	s.Equal("Gait", got.Title)
	s.True(got.Active)
	s.WithinDuration(s.now, got.CreatedAt, time.Millisecond)

	got.Active = false
	got.Title = "Gait v2"
	s.Require().NoError(s.store.UpdateStudy(ctx, got))

	again, err := s.store.GetStudy(ctx, study.ID)
	s.Require().NoError(err)
	s.False(again.Active)
	s.Equal("Gait v2", again.Title)

	studies, err := s.store.ListStudies(ctx)
	s.Require().NoError(err)
	s.Len(studies, 1)

	_, err = s.store.GetStudy(ctx, 404)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestPairIndexFollowsLatestRequest() {
	ctx := context.Background()
	study := s.createStudy(ctx)

	first := s.createConsent(ctx, study, "doc-1", 0)
	mapped, err := s.store.FindConsentIDByPair(ctx, study.ID, testutil.TestAddresses.Participant)
	s.Require().NoError(err)
	s.Equal(first.ID, mapped)

	second := s.createConsent(ctx, study, "doc-2", first.ID)
	mapped, err = s.store.FindConsentIDByPair(ctx, study.ID, testutil.TestAddresses.Participant)
	s.Require().NoError(err)
	s.Equal(second.ID, mapped)

	old, err := s.store.GetConsent(ctx, first.ID)
	s.Require().NoError(err, "superseded consent stays addressable")
	s.Equal("doc-1", old.DocumentRef)

	byStudy, err := s.store.ListConsentsByStudy(ctx, study.ID)
	s.Require().NoError(err)
	s.Require().Len(byStudy, 2)
	s.Equal(first.ID, byStudy[0].ID)

	byParticipant, err := s.store.ListConsentsByParticipant(ctx, testutil.TestAddresses.Participant)
	s.Require().NoError(err)
	s.Len(byParticipant, 2)

	_, err = s.store.FindConsentIDByPair(ctx, study.ID, testutil.TestAddresses.Stranger)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConsentTransitionPersists() {
	ctx := context.Background()
	study := s.createStudy(ctx)
	consent := s.createConsent(ctx, study, "doc", 0)

	s.Require().NoError(consent.Grant("sha256-cred", s.now))
	s.Require().NoError(s.store.UpdateConsent(ctx, consent))

	got, err := s.store.GetConsent(ctx, consent.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, got.Status)
	s.Equal("sha256-cred", got.CredentialRef)
	s.Require().NotNil(got.RespondedAt)
	s.WithinDuration(s.now, *got.RespondedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestPermissionsKeepFirstIntroductionOrder() {
	ctx := context.Background()
	study := s.createStudy(ctx)
	consent := s.createConsent(ctx, study, "doc", 0)

	s.Require().NoError(s.store.SetPermission(ctx, consent.ID, "share_biometrics", true, s.now))
	s.Require().NoError(s.store.SetPermission(ctx, consent.ID, "export_raw", false, s.now))
	s.Require().NoError(s.store.SetPermission(ctx, consent.ID, "share_biometrics", false, s.now))

	perms, err := s.store.ListPermissions(ctx, consent.ID)
	s.Require().NoError(err)
	s.Require().Len(perms, 2)
	s.Equal("share_biometrics", perms[0].Key)
	s.False(perms[0].Granted)
	s.Equal("export_raw", perms[1].Key)
	s.Equal(1, perms[1].Position)

	_, err = s.store.GetPermission(ctx, consent.ID, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.Error(s.store.SetPermission(ctx, 404, "k", true, s.now), "foreign key rejects unknown consents")
}
