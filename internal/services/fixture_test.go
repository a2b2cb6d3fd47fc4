package service

import (
	"context"
	"testing"

	"github.com/honeynil/p2p-marketplace/internal/infrastructure/redis/redistest"
	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/notify"
	"github.com/honeynil/p2p-marketplace/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

const (
	seller = "seller-1"
	buyer  = "buyer-1"
	buyer2 = "buyer-2"
	other  = "outsider"
)

type fixture struct {
	store        *memory.Store
	redis        *redistest.Fake
	notifier     *notify.Recorder
	listings     *listingService
	offers       *offerService
	transactions *transactionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddUser(models.UserSummary{ID: seller, Name: "Sam Seller", Email: "sam@example.com"})
	store.AddUser(models.UserSummary{ID: buyer, Name: "Bea Buyer", Email: "bea@example.com"})
	store.AddUser(models.UserSummary{ID: buyer2, Name: "Bo Buyer", Email: "bo@example.com"})

	fake := redistest.New()
	rec := &notify.Recorder{}
	return &fixture{
		store:        store,
		redis:        fake,
		notifier:     rec,
		listings:     NewListingService(store.Listings(), fake),
		offers:       NewOfferService(store.Listings(), store.Offers(), fake, rec),
		transactions: NewTransactionService(store.Transactions(), rec),
	}
}

func (f *fixture) listing(t *testing.T) *models.Listing {
	t.Helper()
	l, err := f.listings.Create(context.Background(), seller, models.CreateListingInput{
		Title:       "Road bike",
		Description: "Carbon frame, 56cm",
		Price:       120000,
		Category:    "bikes",
		Condition:   models.ConditionGood,
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) offer(t *testing.T, listingID, buyerID string, amount int64) *models.Offer {
	t.Helper()
	o, err := f.offers.Create(context.Background(), buyerID, models.CreateOfferInput{ListingID: listingID, Amount: amount})
	require.NoError(t, err)
	return o
}

// transactionIn drives a fresh transaction to status via allowed transitions.
func (f *fixture) transactionIn(t *testing.T, status models.TransactionStatus) *models.Transaction {
	t.Helper()
	ctx := context.Background()
	l := f.listing(t)
	o := f.offer(t, l.ID, buyer, 95000)
	res, err := f.offers.Accept(ctx, o.ID, seller)
	require.NoError(t, err)

	path := map[models.TransactionStatus][]struct {
		actor string
		to    models.TransactionStatus
	}{
		models.StatusOfferAccepted: nil,
		models.StatusPaid:          {{buyer, models.StatusPaid}},
		models.StatusShipped:       {{buyer, models.StatusPaid}, {seller, models.StatusShipped}},
		models.StatusDelivered:     {{buyer, models.StatusPaid}, {seller, models.StatusShipped}, {buyer, models.StatusDelivered}},
		models.StatusCompleted:     {{buyer, models.StatusPaid}, {seller, models.StatusShipped}, {buyer, models.StatusDelivered}, {buyer, models.StatusCompleted}},
		models.StatusDisputed:      {{buyer, models.StatusDisputed}},
		models.StatusCancelled:     {{seller, models.StatusCancelled}},
	}
	steps, ok := path[status]
	require.True(t, ok, "no path to %s", status)
	for _, step := range steps {
		_, err := f.transactions.UpdateStatus(ctx, res.TransactionID, step.actor, step.to)
		require.NoError(t, err)
	}
	tx, err := f.transactions.Get(ctx, res.TransactionID, buyer)
	require.NoError(t, err)
	require.Equal(t, status, tx.Status)
	f.notifier.Reset()
	return tx
}
