package repository

import (
	"context"
	"time"

	"auction-settlement/internal/models"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-settlement/internal/repository AuctionDB,UserDB,TokenDB,LedgerStore,LedgerTx

// UniqueField names a user attribute that must be unique across accounts
type UniqueField int

const (
	FieldEmail UniqueField = iota
	FieldPhone
	FieldAlternatePhone
	FieldRCNumber
)

func (f UniqueField) String() string {
	switch f {
	case FieldEmail:
		return "email"
	case FieldPhone:
		return "phone"
	case FieldAlternatePhone:
		return "alternate_phone"
	case FieldRCNumber:
		return "rc_number"
	default:
		return "unknown"
	}
}

// AuctionDB defines the auction storage interface
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction models.Auction) error
	GetAuction(ctx context.Context, id string) (models.Auction, error)
	AuctionExists(ctx context.Context, id string) (bool, error)
	ListAuctions(ctx context.Context, query models.AuctionQuery) ([]models.Auction, int, error)
}

// BidDB defines the bid reads that do not need an auction critical section
type BidDB interface {
	GetBid(ctx context.Context, id string) (models.Bid, error)
	CountBids(ctx context.Context, auctionID string) (int, error)
	ListBidViews(ctx context.Context, auctionID string, offset, limit int) ([]models.BidView, error)
}

// UserDB defines the user storage interface
type UserDB interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	UserExists(ctx context.Context, field UniqueField, value string) (bool, error)
	// Each setter writes only its own column.
	SetUserActive(ctx context.Context, id string) error
	SetUserVerified(ctx context.Context, id string) error
	SetUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
}

// TokenDB stores at most one token record per (purpose, subject).
type TokenDB interface {
	// PutToken inserts the record or replaces the live one in a single operation.
	PutToken(ctx context.Context, record models.TokenRecord) error
	// TakeToken reads and deletes the record in a single operation.
	TakeToken(ctx context.Context, purpose, subject string) (models.TokenRecord, error)
}

// LedgerTx is the storage view inside an auction critical section. Writes
// become visible to other callers only when the critical section succeeds.
type LedgerTx interface {
	GetAuction(ctx context.Context, id string) (models.Auction, error)
	SaveAuction(ctx context.Context, auction models.Auction) error
	DeleteAuction(ctx context.Context, id string) error
	GetBid(ctx context.Context, id string) (models.Bid, error)
	BidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	InsertBid(ctx context.Context, bid models.Bid) error
	UpdateBidAmount(ctx context.Context, id string, amount models.Amount, at time.Time) error
	DeleteBid(ctx context.Context, id string) error
}

// LedgerStore serializes every mutation of one auction's bid set.
type LedgerStore interface {
	BidDB
	// InAuction runs fn with exclusive access to the auction's bid set. Other
	// auctions are not blocked. A failing fn leaves no trace.
	InAuction(ctx context.Context, auctionID string, fn func(tx LedgerTx) error) error
}

// Store is the full persistence surface used by the engine
type Store interface {
	AuctionDB
	UserDB
	TokenDB
	LedgerStore
	Close() error
}
