// Package memory keeps the whole marketplace in process memory. It backs the
// service in STORAGE_DRIVER=memory mode and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/honeynil/p2p-marketplace/internal/models"
	"github.com/honeynil/p2p-marketplace/internal/repository"
	pkgerrors "github.com/honeynil/p2p-marketplace/pkg/errors"
)

// Store serialises every write behind one mutex, which makes Accept atomic
// and isolated.
type Store struct {
	mu           sync.RWMutex
	listings     map[string]*models.Listing
	offers       map[string]*models.Offer
	transactions map[string]*models.Transaction
	users        map[string]models.UserSummary
	last         time.Time
}

func NewStore() *Store {
	return &Store{
		listings:     make(map[string]*models.Listing),
		offers:       make(map[string]*models.Offer),
		transactions: make(map[string]*models.Transaction),
		users:        make(map[string]models.UserSummary),
	}
}

func (s *Store) Listings() repository.ListingRepository         { return listingRepo{s} }
func (s *Store) Offers() repository.OfferRepository             { return offerRepo{s} }
func (s *Store) Transactions() repository.TransactionRepository { return transactionRepo{s} }

// AddUser registers a user summary to be joined into views.
func (s *Store) AddUser(u models.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// now returns a strictly increasing timestamp so updated_at ordering is total.
// Callers hold the write lock.
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) user(id string) *models.UserSummary {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	return &u
}

func (s *Store) listingView(l *models.Listing) *models.Listing {
	c := *l
	c.Images = append([]string{}, l.Images...)
	c.Seller = s.user(l.SellerID)
	return &c
}

func (s *Store) offerView(o *models.Offer) *models.Offer {
	c := *o
	if l, ok := s.listings[o.ListingID]; ok {
		c.Listing = s.listingView(l)
	}
	c.Buyer = s.user(o.BuyerID)
	return &c
}

func (s *Store) transactionView(t *models.Transaction) *models.Transaction {
	c := *t
	if o, ok := s.offers[t.OfferID]; ok {
		c.Offer = s.offerView(o)
	}
	c.Buyer = s.user(t.BuyerID)
	c.Seller = s.user(t.SellerID)
	return &c
}

type listingRepo struct{ s *Store }

func (r listingRepo) Create(_ context.Context, l *models.Listing) error {
	if l == nil {
		return pkgerrors.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if l.Images == nil {
		l.Images = []string{}
	}
	now := r.s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	stored := *l
	stored.Images = append([]string{}, l.Images...)
	stored.Seller = nil
	r.s.listings[l.ID] = &stored
	return nil
}

func (r listingRepo) GetByID(_ context.Context, id string) (*models.Listing, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	l, ok := r.s.listings[id]
	if !ok {
		return nil, pkgerrors.ErrListingNotFound
	}
	return r.s.listingView(l), nil
}

func (r listingRepo) List(_ context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	f := filter.Normalize()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := make([]*models.Listing, 0, len(r.s.listings))
	for _, l := range r.s.listings {
		all = append(all, l)
	}
	less := listingOrder(f.Sort)
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	var cursor *models.Listing
	if f.Cursor != "" {
		cursor = r.s.listings[f.Cursor]
	}

	search := strings.ToLower(f.Search)
	out := []models.Listing{}
	for _, l := range all {
		if cursor != nil && !less(cursor, l) {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.SellerID != "" && l.SellerID != f.SellerID {
			continue
		}
		if f.ExcludeSellerID != "" && l.SellerID == f.ExcludeSellerID {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(l.Title), search) && !strings.Contains(strings.ToLower(l.Description), search) {
			continue
		}
		if f.MinPrice != nil && l.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && l.Price > *f.MaxPrice {
			continue
		}
		out = append(out, *r.s.listingView(l))
		if len(out) == f.Take {
			break
		}
	}
	return out, nil
}

func listingOrder(s models.ListingSort) func(a, b *models.Listing) bool {
	switch s {
	case models.SortPriceAsc:
		return func(a, b *models.Listing) bool {
			if a.Price != b.Price {
				return a.Price < b.Price
			}
			return a.ID < b.ID
		}
	case models.SortPriceDesc:
		return func(a, b *models.Listing) bool {
			if a.Price != b.Price {
				return a.Price > b.Price
			}
			return a.ID > b.ID
		}
	default:
		return func(a, b *models.Listing) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		}
	}
}

func (r listingRepo) Update(_ context.Context, l *models.Listing) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.listings[l.ID]
	if !ok {
		return pkgerrors.ErrListingNotFound
	}
	if cur.Status == models.ListingSold {
		return pkgerrors.ErrListingSold
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	l.UpdatedAt = r.s.now()
	stored := *l
	stored.Images = append([]string{}, l.Images...)
	stored.Seller = nil
	stored.CreatedAt = cur.CreatedAt
	r.s.listings[l.ID] = &stored
	return nil
}

func (r listingRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.listings[id]
	if !ok {
		return pkgerrors.ErrListingNotFound
	}
	if cur.Status == models.ListingSold {
		return pkgerrors.ErrListingSold
	}
	delete(r.s.listings, id)
	for oid, o := range r.s.offers {
		if o.ListingID == id {
			delete(r.s.offers, oid)
		}
	}
	return nil
}

type offerRepo struct{ s *Store }

func (r offerRepo) Create(_ context.Context, o *models.Offer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.listings[o.ListingID]
	if !ok {
		return pkgerrors.ErrListingNotFound
	}
	// Re-checked under the write lock so an offer never lands on a listing
	// that an accept has just sold.
	if l.Status != models.ListingActive {
		return pkgerrors.ErrListingNotActive
	}
	if l.SellerID == o.BuyerID {
		return pkgerrors.ErrOwnListing
	}
	now := r.s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	stored := *o
	stored.Listing, stored.Buyer = nil, nil
	r.s.offers[o.ID] = &stored
	return nil
}

func (r offerRepo) GetByID(_ context.Context, id string) (*models.Offer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.offers[id]
	if !ok {
		return nil, pkgerrors.ErrOfferNotFound
	}
	return r.s.offerView(o), nil
}

func (r offerRepo) UpdateStatus(_ context.Context, id string, from, to models.OfferStatus) (*models.Offer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.offers[id]
	if !ok || o.Status != from {
		return nil, pkgerrors.ErrOfferNotPending
	}
	o.Status = to
	o.UpdatedAt = r.s.now()
	c := *o
	return &c, nil
}

func (r offerRepo) Accept(_ context.Context, offerID string, txn *models.Transaction) (*models.AcceptOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.offers[offerID]
	if !ok {
		return nil, pkgerrors.ErrOfferNotFound
	}
	l, ok := r.s.listings[o.ListingID]
	if !ok {
		return nil, pkgerrors.ErrListingNotFound
	}
	if o.Status != models.OfferPending {
		return nil, pkgerrors.ErrOfferNotPending
	}
	if l.Status == models.ListingSold {
		return nil, pkgerrors.ErrListingSold
	}
	for _, t := range r.s.transactions {
		if t.OfferID == offerID {
			return nil, pkgerrors.ErrOfferNotPending
		}
	}

	now := r.s.now()
	o.Status = models.OfferAccepted
	o.UpdatedAt = now
	l.Status = models.ListingSold
	l.UpdatedAt = now

	declined := []string{}
	for _, sib := range r.s.offers {
		if sib.ListingID == o.ListingID && sib.ID != o.ID && sib.Status == models.OfferPending {
			sib.Status = models.OfferDeclined
			sib.UpdatedAt = now
			declined = append(declined, sib.ID)
		}
	}
	sort.Strings(declined)

	txn.OfferID = o.ID
	txn.BuyerID = o.BuyerID
	txn.Status = models.StatusOfferAccepted
	txn.CreatedAt, txn.UpdatedAt = now, now
	stored := *txn
	stored.Offer, stored.Buyer, stored.Seller = nil, nil, nil
	r.s.transactions[txn.ID] = &stored

	accepted := *o
	return &models.AcceptOutcome{Offer: &accepted, Transaction: txn, DeclinedOfferIDs: declined}, nil
}

func (r offerRepo) ListByListing(_ context.Context, listingID string) ([]models.Offer, error) {
	return r.list(func(o *models.Offer) bool { return o.ListingID == listingID }), nil
}

func (r offerRepo) ListByBuyer(_ context.Context, buyerID string) ([]models.Offer, error) {
	return r.list(func(o *models.Offer) bool { return o.BuyerID == buyerID }), nil
}

func (r offerRepo) ListBySeller(_ context.Context, sellerID string) ([]models.Offer, error) {
	return r.list(func(o *models.Offer) bool {
		l, ok := r.s.listings[o.ListingID]
		return ok && l.SellerID == sellerID
	}), nil
}

func (r offerRepo) list(match func(*models.Offer) bool) []models.Offer {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Offer{}
	for _, o := range r.s.offers {
		if match(o) {
			out = append(out, *r.s.offerView(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return r.s.transactionView(t), nil
}

func (r transactionRepo) ListByParticipant(_ context.Context, userID string) ([]models.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []models.Transaction{}
	for _, t := range r.s.transactions {
		if t.BuyerID == userID || t.SellerID == userID {
			out = append(out, *r.s.transactionView(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r transactionRepo) UpdateStatus(_ context.Context, id string, from, to models.TransactionStatus) (*models.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	if t.Status != from {
		return nil, pkgerrors.TransitionError(string(from), string(to))
	}
	t.Status = to
	t.UpdatedAt = r.s.now()
	c := *t
	return &c, nil
}
