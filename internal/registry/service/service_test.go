package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"assetregistry/internal/registry/models"
	"assetregistry/internal/registry/service/mocks"
	"assetregistry/internal/registry/store"
	"assetregistry/pkg/domain"
	dErrors "assetregistry/pkg/domain-errors"
	"assetregistry/pkg/platform/sentinel"
	"assetregistry/pkg/requestcontext"
)

// =============================================================================
// Registry Service Test Suite (mocked store)
// =============================================================================
// Justification for unit tests: the service owns error translation and
// post-commit side effects. Mocking the store lets each failure mode be
// injected directly, including infrastructure errors no real store produces
// on demand.

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockStore    *mocks.MockStore
	mockNotifier *mocks.MockCommitNotifier
	service      *Service
	ctx          context.Context
	now          time.Time
	assetID      domain.AssetID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockNotifier = mocks.NewMockCommitNotifier(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(s.mockStore, WithLogger(logger), WithCommitNotifier(s.mockNotifier))
	s.Require().NoError(err)

	s.now = time.Date(2024, 5, 1, 9, 30, 0, 123456789, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-1")
	s.assetID = domain.HashAssetName("sample")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil)
		s.Error(err)
		s.Contains(err.Error(), "registry store is required")
	})
}

// =============================================================================
// Register
// =============================================================================

func (s *ServiceSuite) TestRegister() {
	s.Run("creates record with caller as owner and notifies relay", func() {
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, rec *models.AssetRecord, ev *models.Event) (*models.Event, error) {
				s.Equal(domain.Identity("alice"), rec.Owner)
				s.Equal("demo", rec.Metadata)
				s.Equal(s.now.Truncate(time.Microsecond), rec.RegistrationTime)
				s.Equal(models.EventAssetRegistered, ev.Kind)
				s.Equal("req-1", ev.RequestID)
				stored := *ev
				stored.Sequence = 1
				return &stored, nil
			})
		s.mockNotifier.EXPECT().Notify()

		receipt, err := s.service.Register(s.ctx, "alice", s.assetID, "demo")
		s.Require().NoError(err)
		s.Equal(int64(1), receipt.Event.Sequence)
		s.Equal(s.assetID, receipt.Record.AssetID)
	})

	s.Run("duplicate id maps to AssetAlreadyRegistered", func() {
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, sentinel.ErrAlreadyUsed)

		_, err := s.service.Register(s.ctx, "alice", s.assetID, "demo")
		s.ErrorIs(err, models.ErrAssetAlreadyRegistered)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("empty caller is rejected before touching the store", func() {
		_, err := s.service.Register(s.ctx, "", s.assetID, "demo")
		s.ErrorIs(err, models.ErrInvalidIdentity)
	})

	s.Run("infrastructure failure is wrapped as internal", func() {
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection reset"))

		_, err := s.service.Register(s.ctx, "alice", s.assetID, "demo")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal("failed to register asset", dErrors.MessageOf(err))
	})

	s.Run("cancelled context maps to timeout", func() {
		s.mockStore.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, context.Canceled)

		_, err := s.service.Register(s.ctx, "alice", s.assetID, "demo")
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

// =============================================================================
// Transfer and metadata update
// =============================================================================

func (s *ServiceSuite) TestTransferOwnership() {
	s.Run("empty new owner is rejected before touching the store", func() {
		_, err := s.service.TransferOwnership(s.ctx, "alice", s.assetID, " ")
		s.ErrorIs(err, models.ErrInvalidIdentity)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown asset maps to AssetDoesNotExist", func() {
		s.mockStore.EXPECT().Execute(gomock.Any(), s.assetID, gomock.Any(), gomock.Any()).
			Return(nil, nil, sentinel.ErrNotFound)

		_, err := s.service.TransferOwnership(s.ctx, "alice", s.assetID, "bob")
		s.ErrorIs(err, models.ErrAssetDoesNotExist)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("validate and mutate callbacks enforce ownership", func() {
		s.mockStore.EXPECT().Execute(gomock.Any(), s.assetID, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.AssetID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.AssetRecord, *models.Event, error) {
				current := &models.AssetRecord{AssetID: s.assetID, Owner: "alice", RegistrationTime: s.now}
				s.ErrorIs(validate(&models.AssetRecord{AssetID: s.assetID, Owner: "carol"}), models.ErrNotAssetOwner)
				s.Require().NoError(validate(current))
				ev := mutate(current)
				s.Equal(domain.Identity("bob"), current.Owner)
				s.Equal(domain.Identity("alice"), ev.PreviousOwner)
				s.Equal(domain.Identity("alice"), ev.Actor)
				ev.Sequence = 2
				return current, ev, nil
			})
		s.mockNotifier.EXPECT().Notify()

		receipt, err := s.service.TransferOwnership(s.ctx, "alice", s.assetID, "bob")
		s.Require().NoError(err)
		s.Equal(domain.Identity("bob"), receipt.Record.Owner)
		s.Equal(models.EventOwnershipTransferred, receipt.Event.Kind)
	})

	s.Run("ownership failure from the store passes through", func() {
		s.mockStore.EXPECT().Execute(gomock.Any(), s.assetID, gomock.Any(), gomock.Any()).
			Return(nil, nil, models.NotAssetOwner(s.assetID))

		_, err := s.service.TransferOwnership(s.ctx, "mallory", s.assetID, "mallory")
		s.ErrorIs(err, models.ErrNotAssetOwner)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestUpdateMetadata() {
	s.Run("mutate keeps owner and registration time", func() {
		s.mockStore.EXPECT().Execute(gomock.Any(), s.assetID, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.AssetID, validate store.ValidateFunc, mutate store.MutateFunc) (*models.AssetRecord, *models.Event, error) {
				current := &models.AssetRecord{AssetID: s.assetID, Owner: "bob", Metadata: "demo", RegistrationTime: s.now}
				s.Require().NoError(validate(current))
				ev := mutate(current)
				s.Equal("updated", current.Metadata)
				s.Equal(domain.Identity("bob"), current.Owner)
				s.Equal(s.now, current.RegistrationTime)
				return current, ev, nil
			})
		s.mockNotifier.EXPECT().Notify()

		receipt, err := s.service.UpdateMetadata(s.ctx, "bob", s.assetID, "updated")
		s.Require().NoError(err)
		s.Equal("updated", receipt.Event.Metadata)
	})

	s.Run("unknown asset maps to AssetDoesNotExist", func() {
		s.mockStore.EXPECT().Execute(gomock.Any(), s.assetID, gomock.Any(), gomock.Any()).
			Return(nil, nil, sentinel.ErrNotFound)

		_, err := s.service.UpdateMetadata(s.ctx, "bob", s.assetID, "updated")
		s.ErrorIs(err, models.ErrAssetDoesNotExist)
	})
}

// =============================================================================
// Reads
// =============================================================================

func (s *ServiceSuite) TestReads() {
	s.Run("assets by owner never returns nil", func() {
		s.mockStore.EXPECT().ListByOwner(gomock.Any(), domain.Identity("nobody")).Return(nil, nil)

		ids, err := s.service.AssetsByOwner(s.ctx, "nobody")
		s.Require().NoError(err)
		s.NotNil(ids)
		s.Empty(ids)
	})

	s.Run("exists surfaces store failures as internal", func() {
		s.mockStore.EXPECT().Exists(gomock.Any(), s.assetID).Return(false, errors.New("disk"))

		_, err := s.service.AssetExists(s.ctx, s.assetID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("owner of unknown asset", func() {
		s.mockStore.EXPECT().FindByID(gomock.Any(), s.assetID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.AssetOwner(s.ctx, s.assetID)
		s.ErrorIs(err, models.ErrAssetDoesNotExist)
	})

	s.Run("history of unknown asset", func() {
		s.mockStore.EXPECT().History(gomock.Any(), s.assetID).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.History(s.ctx, s.assetID)
		s.ErrorIs(err, models.ErrAssetDoesNotExist)
	})

	s.Run("events rejects a negative cursor", func() {
		_, err := s.service.Events(s.ctx, -1, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("events passes paging through", func() {
		s.mockStore.EXPECT().EventsAfter(gomock.Any(), int64(5), 20).Return([]models.Event{{Sequence: 6}}, nil)

		events, err := s.service.Events(s.ctx, 5, 20)
		s.Require().NoError(err)
		s.Len(events, 1)
	})
}
