package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dataregistry/internal/ratelimit/admin/mocks"
	dErrors "dataregistry/pkg/domain-errors"
	"dataregistry/pkg/domain"
	"dataregistry/pkg/platform/audit"
)

type AdminServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	mockBuckets *mocks.MockBucketStore
	mockAuditor *mocks.MockAuditPublisher
	service     *Service
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockBuckets = mocks.NewMockBucketStore(s.ctrl)
	s.mockAuditor = mocks.NewMockAuditPublisher(s.ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(
		s.mockBuckets,
		WithLogger(logger),
		WithAuditPublisher(s.mockAuditor),
	)
	s.Require().NoError(err)
}

func (s *AdminServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AdminServiceSuite) TestNewRequiresBucketStore() {
	_, err := New(nil)
	s.Require().Error(err)
}

func (s *AdminServiceSuite) TestResetClearsBucketAndAudits() {
	ctx := context.Background()
	adminID := domain.NewAdminID()
	keyID := domain.NewAPIKeyID()

	s.mockBuckets.EXPECT().Reset(ctx, keyID.String()).Return(nil)
	s.mockAuditor.EXPECT().Emit(ctx, gomock.Cond(func(e audit.Event) bool {
		return e.Action == string(audit.EventRateLimitReset) &&
			e.EntityID == keyID.String() &&
			e.ActorID == adminID.String() &&
			e.ActorType == audit.ActorAdmin
	})).Return(nil)

	s.Require().NoError(s.service.Reset(ctx, adminID, keyID))
}

func (s *AdminServiceSuite) TestResetRejectsNilKeyID() {
	err := s.service.Reset(context.Background(), domain.NewAdminID(), domain.APIKeyID{})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *AdminServiceSuite) TestResetPropagatesStoreError() {
	ctx := context.Background()
	keyID := domain.NewAPIKeyID()

	s.mockBuckets.EXPECT().Reset(ctx, keyID.String()).Return(errors.New("redis down"))

	err := s.service.Reset(ctx, domain.NewAdminID(), keyID)
	s.Require().Error(err)
	s.Equal(dErrors.CodeInternal, dErrors.CodeOf(err))
}

func (s *AdminServiceSuite) TestResetSurvivesAuditFailure() {
	ctx := context.Background()
	keyID := domain.NewAPIKeyID()

	s.mockBuckets.EXPECT().Reset(ctx, keyID.String()).Return(nil)
	s.mockAuditor.EXPECT().Emit(ctx, gomock.Any()).Return(errors.New("outbox full"))

	s.Require().NoError(s.service.Reset(ctx, domain.NewAdminID(), keyID))
}
