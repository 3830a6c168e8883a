package models

import "time"

// User represents a registered bidder
type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	CompanyName    string    `json:"company_name"`
	CompanyAddress string    `json:"company_address"`
	Phone          string    `json:"phone"`
	AlternatePhone string    `json:"alternate_phone"`
	RCNumber       string    `json:"rc_number"`
	PostalCode     string    `json:"postal_code"`
	Email          string    `json:"email"`
	DocumentURL    string    `json:"document_url"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// CanBid reports whether the user is approved and has verified their email.
func (u User) CanBid() bool {
	return u.Active && u.Verified
}

// Public strips secret fields from the user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		CompanyName:    u.CompanyName,
		CompanyAddress: u.CompanyAddress,
		Email:          u.Email,
		Active:         u.Active,
		Verified:       u.Verified,
		CreatedAt:      u.CreatedAt,
	}
}

// PublicUser is the non-secret profile of a user
type PublicUser struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	CompanyName    string    `json:"company_name"`
	CompanyAddress string    `json:"company_address"`
	Email          string    `json:"email"`
	Active         bool      `json:"active"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// Auction represents a priced listing with an open window
type Auction struct {
	ID              string    `json:"id"`
	BidDescription  string    `json:"bid_description"`
	ItemDescription string    `json:"item_description"`
	StartingAmount  Amount    `json:"starting_amount"`
	Requirements    []string  `json:"requirements"`
	Categories      []string  `json:"categories"`
	ImageURL        string    `json:"image_url"`
	OpensAt         time.Time `json:"opens_at"`
	ClosesAt        time.Time `json:"closes_at"`
}

// IsOpen reports whether now lies within the auction window, bounds included.
func (a Auction) IsOpen(now time.Time) bool {
	return !now.Before(a.OpensAt) && !now.After(a.ClosesAt)
}

// AuctionPatch carries the mutable auction fields; nil means unchanged.
type AuctionPatch struct {
	BidDescription  *string
	ItemDescription *string
	StartingAmount  *Amount
	Requirements    []string
	Categories      []string
	ImageURL        *string
	ClosesAt        *time.Time
}

// Apply merges the patch into a copy of the auction.
func (p AuctionPatch) Apply(a Auction) Auction {
	if p.BidDescription != nil {
		a.BidDescription = *p.BidDescription
	}
	if p.ItemDescription != nil {
		a.ItemDescription = *p.ItemDescription
	}
	if p.StartingAmount != nil {
		a.StartingAmount = *p.StartingAmount
	}
	if p.Requirements != nil {
		a.Requirements = append([]string(nil), p.Requirements...)
	}
	if p.Categories != nil {
		a.Categories = append([]string(nil), p.Categories...)
	}
	if p.ImageURL != nil {
		a.ImageURL = *p.ImageURL
	}
	if p.ClosesAt != nil {
		a.ClosesAt = *p.ClosesAt
	}
	return a
}

// AuctionQuery filters and paginates auction listings
type AuctionQuery struct {
	Page   int
	Limit  int
	Search string
	From   *time.Time
	To     *time.Time
}

// Page is a paginated listing result
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	Limit    int `json:"limit"`
	LastPage int `json:"last_page"`
}

// Bid represents a user's bid on an auction
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	Amount    Amount    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BidView pairs a bid with the bidder's public profile
type BidView struct {
	Bid
	Bidder PublicUser `json:"bidder"`
}

// TokenRecord is a live single-use secret, stored only as a hash
type TokenRecord struct {
	Purpose   string
	Subject   string
	Hash      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Key identifies the record within its purpose namespace.
func (r TokenRecord) Key() string {
	return TokenKey(r.Purpose, r.Subject)
}

// TokenKey builds the storage key for a (purpose, subject) pair.
func TokenKey(purpose, subject string) string {
	return purpose + ":" + subject
}
