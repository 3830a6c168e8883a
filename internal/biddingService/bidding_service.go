package bidding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/internal/repository"
	"auction-settlement/utils"
)

// DefaultMinAmount is the smallest bid accepted on any auction
var DefaultMinAmount = models.NewAmount(1000)

// BiddingService enforces the bid rules of every auction. All checks and the
// write they guard run inside the auction's critical section.
type BiddingService struct {
	repo      repository.LedgerStore
	minAmount models.Amount
	now       func() time.Time
	newID     func() string
}

// Option customizes a BiddingService
type Option func(*BiddingService)

// WithMinAmount overrides DefaultMinAmount
func WithMinAmount(amount models.Amount) Option {
	return func(s *BiddingService) { s.minAmount = amount }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.LedgerStore, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:      repo,
		minAmount: DefaultMinAmount,
		now:       time.Now,
		newID:     utils.GenerateID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid records a user's first bid on an auction. The checks run in order:
// auction exists, auction open, amount at or above the floor and the
// configured minimum, amount above every accepted bid, bidder approved and verified, bidder has no bid yet.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, userID string, amount models.Amount) (models.Bid, error) {
	if err := s.validateInput(auctionID, userID, amount); err != nil {
		return models.Bid{}, err
	}

	var bid models.Bid
	err := s.repo.InAuction(ctx, auctionID, func(tx repository.LedgerTx) error {
		auction, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !auction.IsOpen(now) {
			return fmt.Errorf("%w - window %s to %s", biddingerrors.ErrAuctionClosed,
				auction.OpensAt.Format(time.RFC3339), auction.ClosesAt.Format(time.RFC3339))
		}
		if amount < auction.StartingAmount {
			return fmt.Errorf("%w - starting amount is %s", biddingerrors.ErrBelowFloor, auction.StartingAmount)
		}
		if amount < s.minAmount {
			return fmt.Errorf("%w - minimum bid is %s", biddingerrors.ErrInvalidBid, s.minAmount)
		}

		bids, err := tx.BidsForAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if top, ok := highest(bids); ok && amount <= top.Amount {
			return fmt.Errorf("%w - current highest bid is %s", biddingerrors.ErrBidTooLow, top.Amount)
		}

		if err := checkBidder(ctx, tx, userID); err != nil {
			return err
		}
		for _, b := range bids {
			if b.UserID == userID {
				return fmt.Errorf("%w - bid %s", biddingerrors.ErrAlreadyBid, b.ID)
			}
		}

		bid = models.Bid{
			ID:        s.newID(),
			AuctionID: auctionID,
			UserID:    userID,
			Amount:    amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			if errors.Is(err, biddingerrors.ErrDuplicateKey) {
				return biddingerrors.ErrAlreadyBid
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to place bid on auction %s by user %s: %w", auctionID, userID, err)
	}

	utils.Info("bid placed", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bid.ID,
		"user_id":    userID,
		"amount":     amount.String(),
	})
	return bid, nil
}

// AmendBid replaces the amount of the owner's bid. The new amount must exceed
// every other accepted bid on the auction; the bid's own prior amount is not
// part of the comparison.
func (s *BiddingService) AmendBid(ctx context.Context, bidID, userID string, amount models.Amount) (models.Bid, error) {
	if err := s.validateInput(bidID, userID, amount); err != nil {
		return models.Bid{}, err
	}
	current, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to amend bid %s: %w", bidID, err)
	}

	var amended models.Bid
	err = s.repo.InAuction(ctx, current.AuctionID, func(tx repository.LedgerTx) error {
		// re-read under the lock; the bid may have been withdrawn meanwhile
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.UserID != userID {
			return biddingerrors.ErrNotBidOwner
		}
		auction, err := tx.GetAuction(ctx, bid.AuctionID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if !auction.IsOpen(now) {
			return fmt.Errorf("%w - closed at %s", biddingerrors.ErrAuctionClosed, auction.ClosesAt.Format(time.RFC3339))
		}
		if amount < auction.StartingAmount {
			return fmt.Errorf("%w - starting amount is %s", biddingerrors.ErrBelowFloor, auction.StartingAmount)
		}
		if amount < s.minAmount {
			return fmt.Errorf("%w - minimum bid is %s", biddingerrors.ErrInvalidBid, s.minAmount)
		}
		bids, err := tx.BidsForAuction(ctx, bid.AuctionID)
		if err != nil {
			return err
		}
		if top, ok := highest(otherBids(bids, bidID)); ok && amount <= top.Amount {
			return fmt.Errorf("%w - current highest bid is %s", biddingerrors.ErrBidTooLow, top.Amount)
		}

		if err := tx.UpdateBidAmount(ctx, bidID, amount, now); err != nil {
			return err
		}
		amended = bid
		amended.Amount = amount
		amended.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to amend bid %s by user %s: %w", bidID, userID, err)
	}

	utils.Info("bid amended", map[string]any{
		"auction_id": amended.AuctionID,
		"bid_id":     bidID,
		"user_id":    userID,
		"amount":     amount.String(),
	})
	return amended, nil
}

// WithdrawBid deletes the owner's bid, whether or not the auction is still open
func (s *BiddingService) WithdrawBid(ctx context.Context, bidID, userID string) error {
	if bidID == "" || userID == "" {
		return fmt.Errorf("service: %w - missing bidID or userID", biddingerrors.ErrInvalidInput)
	}
	current, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return fmt.Errorf("service: failed to withdraw bid %s: %w", bidID, err)
	}

	err = s.repo.InAuction(ctx, current.AuctionID, func(tx repository.LedgerTx) error {
		bid, err := tx.GetBid(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.UserID != userID {
			return biddingerrors.ErrNotBidOwner
		}
		return tx.DeleteBid(ctx, bidID)
	})
	if err != nil {
		return fmt.Errorf("service: failed to withdraw bid %s by user %s: %w", bidID, userID, err)
	}

	utils.Info("bid withdrawn", map[string]any{
		"auction_id": current.AuctionID,
		"bid_id":     bidID,
		"user_id":    userID,
	})
	return nil
}

// GetBid returns one bid
func (s *BiddingService) GetBid(ctx context.Context, bidID string) (models.Bid, error) {
	if bidID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty bid ID", biddingerrors.ErrInvalidInput)
	}
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get bid %s: %w", bidID, err)
	}
	return bid, nil
}

// GetBidsForAuction returns one page of the auction's bids, highest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string, page, limit int) (models.Page[models.BidView], error) {
	if auctionID == "" {
		return models.Page[models.BidView]{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidInput)
	}
	page, limit = models.NormalizePage(page, limit)

	total, err := s.repo.CountBids(ctx, auctionID)
	if err != nil {
		return models.Page[models.BidView]{}, fmt.Errorf("service: failed to count bids for auction %s: %w", auctionID, err)
	}
	views, err := s.repo.ListBidViews(ctx, auctionID, (page-1)*limit, limit)
	if err != nil {
		return models.Page[models.BidView]{}, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return models.NewPage(views, total, page, limit), nil
}

// GetWinningBid returns the highest bid on the auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.BidView, error) {
	if auctionID == "" {
		return models.BidView{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidInput)
	}
	views, err := s.repo.ListBidViews(ctx, auctionID, 0, 1)
	if err != nil {
		return models.BidView{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	if len(views) == 0 {
		return models.BidView{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return views[0], nil
}

// validateInput checks the request shape before any storage access. Amount
// limits that depend on configuration run inside the critical section, after
// the auction lookup.
func (s *BiddingService) validateInput(id, userID string, amount models.Amount) error {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(userID) == "" {
		return fmt.Errorf("service: %w - missing ID or userID", biddingerrors.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	return nil
}

func checkBidder(ctx context.Context, tx repository.LedgerTx, userID string) error {
	user, err := tx.GetUser(ctx, userID)
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return biddingerrors.ErrBidderIneligible
	}
	if err != nil {
		return err
	}
	if !user.CanBid() {
		return fmt.Errorf("%w - active=%t verified=%t", biddingerrors.ErrBidderIneligible, user.Active, user.Verified)
	}
	return nil
}

func highest(bids []models.Bid) (models.Bid, bool) {
	var (
		top   models.Bid
		found bool
	)
	for _, b := range bids {
		if !found || b.Amount > top.Amount {
			top = b
			found = true
		}
	}
	return top, found
}

// otherBids drops the bid with the given id
func otherBids(bids []models.Bid, bidID string) []models.Bid {
	out := make([]models.Bid, 0, len(bids))
	for _, b := range bids {
		if b.ID != bidID {
			out = append(out, b)
		}
	}
	return out
}
