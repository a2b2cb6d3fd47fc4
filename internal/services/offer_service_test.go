package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfferService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("pending offer notifies seller", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)

		o, err := f.offers.Create(ctx, buyer, models.CreateOfferInput{ListingID: l.ID, Amount: 95000, Message: "cash today"})
		require.NoError(t, err)
		assert.Equal(t, models.OfferPending, o.Status)
		assert.Equal(t, buyer, o.BuyerID)
		assert.NotEmpty(t, o.ID)

		got := f.notifier.For(seller)
		require.Len(t, got, 1)
		assert.Equal(t, models.NotificationNewOffer, got[0].Type)
		assert.Equal(t, "New offer of $950.00 for Road bike", got[0].Message)
		assert.Equal(t, o.ID, got[0].OfferID)
		assert.Equal(t, int64(95000), got[0].Amount)
	})

	t.Run("validation comes first", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.offers.Create(ctx, buyer, models.CreateOfferInput{ListingID: "", Amount: 100})
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidArgument)

		_, err = f.offers.Create(ctx, buyer, models.CreateOfferInput{ListingID: "missing", Amount: -1})
		assert.ErrorIs(t, err, pkgerrors.ErrNegativeAmount)
	})

	t.Run("zero amount is allowed", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 0)
		assert.Equal(t, int64(0), o.Amount)
	})

	t.Run("unknown listing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.offers.Create(ctx, buyer, models.CreateOfferInput{ListingID: "missing", Amount: 100})
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("own listing", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		_, err := f.offers.Create(ctx, seller, models.CreateOfferInput{ListingID: l.ID, Amount: 100})
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
		assert.Empty(t, f.notifier.Events())
	})

	t.Run("inactive listings reject offers", func(t *testing.T) {
		for _, status := range []models.ListingStatus{models.ListingDraft, models.ListingExpired, models.ListingSold} {
			t.Run(string(status), func(t *testing.T) {
				f := newFixture(t)
				l := f.listing(t)
				if status == models.ListingSold {
					o := f.offer(t, l.ID, buyer, 100)
					_, err := f.offers.Accept(ctx, o.ID, seller)
					require.NoError(t, err)
				} else {
					_, err := f.listings.Update(ctx, l.ID, seller, models.ListingUpdate{Status: &status})
					require.NoError(t, err)
				}

				_, err := f.offers.Create(ctx, buyer2, models.CreateOfferInput{ListingID: l.ID, Amount: 100})
				assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
			})
		}
	})

	t.Run("notifier failure does not fail the offer", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		f.notifier.Err = errors.New("broker down")

		o, err := f.offers.Create(ctx, buyer, models.CreateOfferInput{ListingID: l.ID, Amount: 100})
		require.NoError(t, err)

		stored, err := f.store.Offers().GetByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OfferPending, stored.Status)
	})
}

func TestOfferService_Accept(t *testing.T) {
	ctx := context.Background()

	t.Run("sells listing and declines competitors", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o1 := f.offer(t, l.ID, buyer, 95000)
		o2 := f.offer(t, l.ID, buyer2, 90000)
		f.notifier.Reset()

		res, err := f.offers.Accept(ctx, o1.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, models.OfferAccepted, res.Status)
		assert.NotEmpty(t, res.TransactionID)
		assert.Equal(t, models.ListingSold, res.Listing.Status)

		stored1, _ := f.store.Offers().GetByID(ctx, o1.ID)
		stored2, _ := f.store.Offers().GetByID(ctx, o2.ID)
		assert.Equal(t, models.OfferAccepted, stored1.Status)
		assert.Equal(t, models.OfferDeclined, stored2.Status)

		listing, err := f.store.Listings().GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ListingSold, listing.Status)

		txs, err := f.store.Transactions().ListByParticipant(ctx, seller)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, res.TransactionID, txs[0].ID)
		assert.Equal(t, o1.ID, txs[0].OfferID)
		assert.Equal(t, buyer, txs[0].BuyerID)
		assert.Equal(t, seller, txs[0].SellerID)
		assert.Equal(t, models.StatusOfferAccepted, txs[0].Status)
	})

	t.Run("only the winning buyer is notified", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o1 := f.offer(t, l.ID, buyer, 95000)
		f.offer(t, l.ID, buyer2, 90000)
		f.notifier.Reset()

		res, err := f.offers.Accept(ctx, o1.ID, seller)
		require.NoError(t, err)

		won := f.notifier.For(buyer)
		require.Len(t, won, 1)
		assert.Equal(t, models.NotificationOfferAccepted, won[0].Type)
		assert.Equal(t, res.TransactionID, won[0].TransactionID)
		assert.Equal(t, l.ID, won[0].ListingID)

		assert.Empty(t, f.notifier.For(buyer2))
		assert.Len(t, f.notifier.Events(), 1)
	})

	t.Run("non-owner is forbidden and offer is unchanged", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)

		for _, caller := range []string{buyer, buyer2, other} {
			_, err := f.offers.Accept(ctx, o.ID, caller)
			assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
		}
		stored, _ := f.store.Offers().GetByID(ctx, o.ID)
		assert.Equal(t, models.OfferPending, stored.Status)
	})

	t.Run("second acceptance fails", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o1 := f.offer(t, l.ID, buyer, 95000)
		o2 := f.offer(t, l.ID, buyer2, 90000)

		_, err := f.offers.Accept(ctx, o1.ID, seller)
		require.NoError(t, err)

		_, err = f.offers.Accept(ctx, o2.ID, seller)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		_, err = f.offers.Accept(ctx, o1.ID, seller)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
	})

	t.Run("unknown offer", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.offers.Accept(ctx, "missing", seller)
		assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	})

	t.Run("invalidates cached listing", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		_, err := f.listings.Get(ctx, l.ID)
		require.NoError(t, err)
		require.True(t, f.redis.Has("listing:"+l.ID))

		o := f.offer(t, l.ID, buyer, 95000)
		_, err = f.offers.Accept(ctx, o.ID, seller)
		require.NoError(t, err)
		assert.False(t, f.redis.Has("listing:"+l.ID))

		got, err := f.listings.Get(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ListingSold, got.Status)
	})

	t.Run("concurrent acceptances have one winner", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		const n = 8
		offers := make([]*models.Offer, n)
		for i := range offers {
			b := buyer
			if i%2 == 1 {
				b = buyer2
			}
			offers[i] = f.offer(t, l.ID, b, int64(1000*(i+1)))
		}

		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := range offers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.offers.Accept(ctx, offers[i].ID, seller)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		}
		assert.Equal(t, 1, wins)

		accepted := 0
		all, err := f.store.Offers().ListByListing(ctx, l.ID)
		require.NoError(t, err)
		for _, o := range all {
			if o.Status == models.OfferAccepted {
				accepted++
			} else {
				assert.Equal(t, models.OfferDeclined, o.Status)
			}
		}
		assert.Equal(t, 1, accepted)

		txs, err := f.store.Transactions().ListByParticipant(ctx, seller)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})
}

func TestOfferService_Decline(t *testing.T) {
	ctx := context.Background()

	t.Run("declines and notifies buyer", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		f.notifier.Reset()

		got, err := f.offers.Decline(ctx, o.ID, seller)
		require.NoError(t, err)
		assert.Equal(t, models.OfferDeclined, got.Status)

		n := f.notifier.For(buyer)
		require.Len(t, n, 1)
		assert.Equal(t, models.NotificationOfferDeclined, n[0].Type)
		assert.Equal(t, o.ID, n[0].OfferID)

		listing, _ := f.store.Listings().GetByID(ctx, l.ID)
		assert.Equal(t, models.ListingActive, listing.Status)
	})

	t.Run("only the seller may decline", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		_, err := f.offers.Decline(ctx, o.ID, buyer)
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	})

	t.Run("requires pending", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		_, err := f.offers.Accept(ctx, o.ID, seller)
		require.NoError(t, err)

		_, err = f.offers.Decline(ctx, o.ID, seller)
		assert.ErrorIs(t, err, pkgerrors.ErrOfferNotPending)
		stored, _ := f.store.Offers().GetByID(ctx, o.ID)
		assert.Equal(t, models.OfferAccepted, stored.Status)
	})
}

func TestOfferService_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("withdraws and notifies seller", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		f.notifier.Reset()

		got, err := f.offers.Withdraw(ctx, o.ID, buyer)
		require.NoError(t, err)
		assert.Equal(t, models.OfferWithdrawn, got.Status)

		n := f.notifier.For(seller)
		require.Len(t, n, 1)
		assert.Equal(t, models.NotificationOfferWithdrawn, n[0].Type)
	})

	t.Run("only the buyer may withdraw", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		_, err := f.offers.Withdraw(ctx, o.ID, seller)
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
		_, err = f.offers.Withdraw(ctx, o.ID, buyer2)
		assert.ErrorIs(t, err, pkgerrors.ErrForbidden)
	})

	t.Run("withdrawing twice fails", func(t *testing.T) {
		f := newFixture(t)
		l := f.listing(t)
		o := f.offer(t, l.ID, buyer, 95000)
		_, err := f.offers.Withdraw(ctx, o.ID, buyer)
		require.NoError(t, err)
		f.notifier.Reset()

		_, err = f.offers.Withdraw(ctx, o.ID, buyer)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		assert.Empty(t, f.notifier.Events())
	})
}

func TestOfferService_Lists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.listing(t)
	o1 := f.offer(t, l.ID, buyer, 100)
	o2 := f.offer(t, l.ID, buyer2, 200)

	byListing, err := f.offers.ListByListing(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, byListing, 2)
	assert.Equal(t, o2.ID, byListing[0].ID)
	assert.Equal(t, o1.ID, byListing[1].ID)
	require.NotNil(t, byListing[0].Buyer)
	assert.Equal(t, "Bo Buyer", byListing[0].Buyer.Name)

	mine, err := f.offers.ListByBuyer(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Listing)
	assert.Equal(t, "Road bike", mine[0].Listing.Title)

	incoming, err := f.offers.ListBySeller(ctx, seller)
	require.NoError(t, err)
	assert.Len(t, incoming, 2)

	none, err := f.offers.ListBySeller(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.offers.ListByListing(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

// acceptOnRead sells the listing right after the offer service has read it as
// ACTIVE, reproducing an accept that commits between check and insert.
type acceptOnRead struct {
	repository.ListingRepository
	accept func()
}

func (r *acceptOnRead) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	l, err := r.ListingRepository.GetByID(ctx, id)
	if r.accept != nil {
		r.accept()
		r.accept = nil
	}
	return l, err
}

func TestOfferService_CreateRacingAccept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.listing(t)
	first := f.offer(t, l.ID, buyer, 95000)

	listings := &acceptOnRead{
		ListingRepository: f.store.Listings(),
		accept: func() {
			_, err := f.offers.Accept(ctx, first.ID, seller)
			require.NoError(t, err)
		},
	}
	offers := NewOfferService(listings, f.store.Offers(), f.redis, f.notifier)

	_, err := offers.Create(ctx, buyer2, models.CreateOfferInput{ListingID: l.ID, Amount: 99000})
	assert.ErrorIs(t, err, pkgerrors.ErrListingNotActive)

	all, err := f.offers.ListByListing(ctx, l.ID)
	require.NoError(t, err)
	for _, o := range all {
		assert.NotEqual(t, models.OfferPending, o.Status, "offer %s left pending on a sold listing", o.ID)
	}
}
