package service

import (
	"context"
	"errors"
	"testing"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis/redistest"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/notify"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockListingRepository struct {
	mock.Mock
}

func (m *mockListingRepository) Create(ctx context.Context, l *models.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	args := m.Called(ctx, id)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *mockListingRepository) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	args := m.Called(ctx, filter)
	l, _ := args.Get(0).([]models.Listing)
	return l, args.Error(1)
}

func (m *mockListingRepository) Update(ctx context.Context, l *models.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockListingRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockTransactionRepository struct {
	mock.Mock
}

func (m *mockTransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.Transaction)
	return t, args.Error(1)
}

func (m *mockTransactionRepository) ListByParticipant(ctx context.Context, userID string) ([]models.Transaction, error) {
	args := m.Called(ctx, userID)
	t, _ := args.Get(0).([]models.Transaction)
	return t, args.Error(1)
}

func (m *mockTransactionRepository) UpdateStatus(ctx context.Context, id string, from, to models.TransactionStatus) (*models.Transaction, error) {
	args := m.Called(ctx, id, from, to)
	t, _ := args.Get(0).(*models.Transaction)
	return t, args.Error(1)
}

func TestListingService_GetServedFromCacheMock(t *testing.T) {
	ctx := context.Background()
	stored := &models.Listing{ID: "l-1", SellerID: seller, Title: "Lamp", Price: 1500, Status: models.ListingActive}

	t.Run("second read is served from redis", func(t *testing.T) {
		repo := &mockListingRepository{}
		repo.On("GetByID", mock.Anything, "l-1").Return(stored, nil).Once()
		fake := redistest.New()
		svc := NewListingService(repo, fake)

		first, err := svc.Get(ctx, "l-1")
		require.NoError(t, err)
		second, err := svc.Get(ctx, "l-1")
		require.NoError(t, err)

		assert.Equal(t, first.Title, second.Title)
		assert.Equal(t, openListingCacheTTL, fake.TTLs[listingCacheKey("l-1")])
		repo.AssertNumberOfCalls(t, "GetByID", 1)
	})

	t.Run("redis outage falls through to the repository", func(t *testing.T) {
		repo := &mockListingRepository{}
		repo.On("GetByID", mock.Anything, "l-1").Return(stored, nil)
		fake := redistest.New()
		fake.Err = errors.New("connection refused")
		svc := NewListingService(repo, fake)

		for i := 0; i < 2; i++ {
			l, err := svc.Get(ctx, "l-1")
			require.NoError(t, err)
			assert.Equal(t, "Lamp", l.Title)
		}
		repo.AssertNumberOfCalls(t, "GetByID", 2)
	})

	t.Run("misses are not cached", func(t *testing.T) {
		repo := &mockListingRepository{}
		repo.On("GetByID", mock.Anything, "gone").Return(nil, pkgerrors.ErrListingNotFound)
		fake := redistest.New()
		svc := NewListingService(repo, fake)

		_, err := svc.Get(ctx, "gone")
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
		assert.False(t, fake.Has(listingCacheKey("gone")))
	})
}

func TestListingService_RepositoryFailure(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("failed to list listings: connection reset")

	repo := &mockListingRepository{}
	repo.On("List", mock.Anything, mock.AnythingOfType("models.ListingFilter")).Return(nil, dbErr)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Listing")).Return(dbErr)
	svc := NewListingService(repo, redistest.New())

	_, err := svc.List(ctx, models.ListingFilter{})
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.Code(err))

	_, err = svc.Create(ctx, seller, models.CreateListingInput{
		Title: "Desk", Description: "Oak", Category: "furniture", Price: 100, Condition: models.ConditionGood,
	})
	assert.ErrorIs(t, err, dbErr)
	repo.AssertExpectations(t)
}

func TestTransactionService_LostRace(t *testing.T) {
	ctx := context.Background()
	current := &models.Transaction{ID: "t-1", BuyerID: buyer, SellerID: seller, Status: models.StatusPaid}

	repo := &mockTransactionRepository{}
	repo.On("GetByID", mock.Anything, "t-1").Return(current, nil)
	repo.On("UpdateStatus", mock.Anything, "t-1", models.StatusPaid, models.StatusShipped).
		Return(nil, pkgerrors.TransitionError(string(models.StatusPaid), string(models.StatusShipped)))
	rec := &notify.Recorder{}
	svc := NewTransactionService(repo, rec)

	_, err := svc.UpdateStatus(ctx, "t-1", seller, models.StatusShipped)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	assert.Empty(t, rec.Events())
	repo.AssertExpectations(t)
}

func TestTransactionService_RejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	current := &models.Transaction{ID: "t-1", BuyerID: buyer, SellerID: seller, Status: models.StatusOfferAccepted}

	repo := &mockTransactionRepository{}
	repo.On("GetByID", mock.Anything, "t-1").Return(current, nil)
	svc := NewTransactionService(repo, &notify.Recorder{})

	_, err := svc.UpdateStatus(ctx, "t-1", seller, models.StatusShipped)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
