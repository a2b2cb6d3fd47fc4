package models

import "time"

type ListingStatus string

const (
	ListingDraft   ListingStatus = "DRAFT"
	ListingActive  ListingStatus = "ACTIVE"
	ListingSold    ListingStatus = "SOLD"
	ListingExpired ListingStatus = "EXPIRED"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingDraft, ListingActive, ListingSold, ListingExpired:
		return true
	}
	return false
}

type Condition string

const (
	ConditionNew     Condition = "NEW"
	ConditionLikeNew Condition = "LIKE_NEW"
	ConditionGood    Condition = "GOOD"
	ConditionFair    Condition = "FAIR"
	ConditionPoor    Condition = "POOR"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// Listing is an item put up for sale. Price is in minor currency units.
type Listing struct {
	ID          string        `json:"id"`
	SellerID    string        `json:"seller_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       int64         `json:"price"`
	Category    string        `json:"category"`
	Condition   Condition     `json:"condition"`
	Images      []string      `json:"images"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Seller *UserSummary `json:"seller,omitempty"`
}

type CreateListingInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	Condition   Condition `json:"condition"`
	Images      []string  `json:"images"`
}

// ListingUpdate is a partial update; nil fields are left unchanged.
type ListingUpdate struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Price       *int64         `json:"price"`
	Category    *string        `json:"category"`
	Condition   *Condition     `json:"condition"`
	Status      *ListingStatus `json:"status"`
	Images      *[]string      `json:"images"`
}

// Apply copies the set fields of u onto l.
func (u ListingUpdate) Apply(l *Listing) {
	if u.Title != nil {
		l.Title = *u.Title
	}
	if u.Description != nil {
		l.Description = *u.Description
	}
	if u.Price != nil {
		l.Price = *u.Price
	}
	if u.Category != nil {
		l.Category = *u.Category
	}
	if u.Condition != nil {
		l.Condition = *u.Condition
	}
	if u.Status != nil {
		l.Status = *u.Status
	}
	if u.Images != nil {
		l.Images = append([]string(nil), (*u.Images)...)
	}
}

type ListingSort string

const (
	SortNewest    ListingSort = "newest"
	SortPriceAsc  ListingSort = "price_asc"
	SortPriceDesc ListingSort = "price_desc"
)

const (
	DefaultListingPage = 10
	MaxListingPage     = 100
)

// ListingFilter selects listings. An empty Status matches every status.
type ListingFilter struct {
	Status          ListingStatus
	SellerID        string
	ExcludeSellerID string
	Category        string
	Search          string
	MinPrice        *int64
	MaxPrice        *int64
	Cursor          string
	Take            int
	Sort            ListingSort
}

// Normalize clamps Take and fills the default sort order.
func (f ListingFilter) Normalize() ListingFilter {
	if f.Take <= 0 {
		f.Take = DefaultListingPage
	}
	if f.Take > MaxListingPage {
		f.Take = MaxListingPage
	}
	switch f.Sort {
	case SortPriceAsc, SortPriceDesc:
	default:
		f.Sort = SortNewest
	}
	return f
}
