package auctions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-settlement/internal/allocator"
	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/internal/repository"
	"auction-settlement/utils"
)

const (
	maxDescriptionLen = 1000
	maxCategories     = 3
	// allocation retries when a concurrent create takes the drawn id first
	maxCreateRaces = 3
)

// Repo is the storage the lifecycle service needs
type Repo interface {
	repository.AuctionDB
	repository.LedgerStore
}

// CreateRequest describes a new auction. An empty ID asks for an allocated one.
type CreateRequest struct {
	ID              string
	BidDescription  string
	ItemDescription string
	StartingAmount  models.Amount
	Requirements    []string
	Categories      []string
	ImageURL        string
	ClosesAt        time.Time
}

// Service manages the auction lifecycle
type Service struct {
	repo  Repo
	alloc *allocator.Allocator
	now   func() time.Time
}

// NewService creates a new lifecycle service. A nil clock means time.Now.
func NewService(repo Repo, alloc *allocator.Allocator, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, alloc: alloc, now: now}
}

// AllocateID draws an identifier not used by any stored auction
func (s *Service) AllocateID(ctx context.Context) (string, error) {
	id, err := s.alloc.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("service: failed to allocate auction id: %w", err)
	}
	return id, nil
}

// Create persists a new auction opening now
func (s *Service) Create(ctx context.Context, req CreateRequest) (models.Auction, error) {
	now := s.now().UTC()
	auction := models.Auction{
		ID:              strings.TrimSpace(req.ID),
		BidDescription:  strings.TrimSpace(req.BidDescription),
		ItemDescription: strings.TrimSpace(req.ItemDescription),
		StartingAmount:  req.StartingAmount,
		Requirements:    req.Requirements,
		Categories:      req.Categories,
		ImageURL:        req.ImageURL,
		OpensAt:         now,
		ClosesAt:        req.ClosesAt.UTC(),
	}
	if err := validate(auction); err != nil {
		return models.Auction{}, err
	}

	if auction.ID != "" {
		taken, err := s.repo.AuctionExists(ctx, auction.ID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: failed to check auction id %s: %w", auction.ID, err)
		}
		if taken {
			return models.Auction{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrAuctionIDTaken, auction.ID)
		}
		if err := s.repo.CreateAuction(ctx, auction); err != nil {
			if errors.Is(err, biddingerrors.ErrDuplicateKey) {
				return models.Auction{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrAuctionIDTaken, auction.ID)
			}
			return models.Auction{}, fmt.Errorf("service: failed to create auction %s: %w", auction.ID, err)
		}
		return auction, nil
	}

	for race := 0; ; race++ {
		id, err := s.AllocateID(ctx)
		if err != nil {
			return models.Auction{}, err
		}
		auction.ID = id
		err = s.repo.CreateAuction(ctx, auction)
		if err == nil {
			return auction, nil
		}
		if !errors.Is(err, biddingerrors.ErrDuplicateKey) || race+1 >= maxCreateRaces {
			return models.Auction{}, fmt.Errorf("service: failed to create auction %s: %w", id, err)
		}
		utils.Warn("allocated auction id taken concurrently, reallocating", map[string]any{
			"auction_id": id,
			"attempt":    race + 1,
		})
	}
}

// Update merges patch into a running auction. The starting amount is frozen
// once any bid exists and the closing time cannot move into the past.
func (s *Service) Update(ctx context.Context, id string, patch models.AuctionPatch) (models.Auction, error) {
	var updated models.Auction
	err := s.repo.InAuction(ctx, id, func(tx repository.LedgerTx) error {
		current, err := tx.GetAuction(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		if now.After(current.ClosesAt) {
			return fmt.Errorf("%w - closed at %s", biddingerrors.ErrAuctionEnded, current.ClosesAt.Format(time.RFC3339))
		}
		if patch.ClosesAt != nil && !patch.ClosesAt.After(now) {
			return biddingerrors.ErrCloseInPast
		}
		if patch.StartingAmount != nil && *patch.StartingAmount != current.StartingAmount {
			bids, err := tx.BidsForAuction(ctx, id)
			if err != nil {
				return err
			}
			if len(bids) > 0 {
				return fmt.Errorf("%w - %d bids placed", biddingerrors.ErrFloorFrozen, len(bids))
			}
		}

		updated = patch.Apply(current)
		updated.BidDescription = strings.TrimSpace(updated.BidDescription)
		updated.ItemDescription = strings.TrimSpace(updated.ItemDescription)
		if patch.ClosesAt != nil {
			updated.ClosesAt = updated.ClosesAt.UTC()
		}
		if err := validate(updated); err != nil {
			return err
		}
		return tx.SaveAuction(ctx, updated)
	})
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to update auction %s: %w", id, err)
	}
	return updated, nil
}

// Delete removes an auction together with its bids
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.InAuction(ctx, id, func(tx repository.LedgerTx) error {
		if _, err := tx.GetAuction(ctx, id); err != nil {
			return err
		}
		return tx.DeleteAuction(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service: failed to delete auction %s: %w", id, err)
	}
	return nil
}

// Get returns one auction
func (s *Service) Get(ctx context.Context, id string) (models.Auction, error) {
	auction, err := s.repo.GetAuction(ctx, id)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", id, err)
	}
	return auction, nil
}

// List returns one page of auctions, newest first
func (s *Service) List(ctx context.Context, query models.AuctionQuery) (models.Page[models.Auction], error) {
	query.Page, query.Limit = models.NormalizePage(query.Page, query.Limit)
	query.Search = strings.TrimSpace(query.Search)
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return models.Page[models.Auction]{}, fmt.Errorf("service: %w - date range start is after its end", biddingerrors.ErrInvalidInput)
	}

	items, total, err := s.repo.ListAuctions(ctx, query)
	if err != nil {
		return models.Page[models.Auction]{}, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return models.NewPage(items, total, query.Page, query.Limit), nil
}

func validate(a models.Auction) error {
	switch {
	case a.BidDescription == "" || a.ItemDescription == "":
		return fmt.Errorf("%w - descriptions are required", biddingerrors.ErrInvalidInput)
	case len(a.BidDescription) > maxDescriptionLen || len(a.ItemDescription) > maxDescriptionLen:
		return fmt.Errorf("%w - descriptions are limited to %d characters", biddingerrors.ErrInvalidInput, maxDescriptionLen)
	case a.StartingAmount < 0:
		return fmt.Errorf("%w - starting amount is negative", biddingerrors.ErrInvalidAmount)
	case len(a.Categories) < 1 || len(a.Categories) > maxCategories:
		return fmt.Errorf("%w - between 1 and %d categories required", biddingerrors.ErrInvalidInput, maxCategories)
	case !a.ClosesAt.After(a.OpensAt):
		return fmt.Errorf("%w - closing time must be after opening time", biddingerrors.ErrInvalidInput)
	}
	for _, c := range a.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w - empty category", biddingerrors.ErrInvalidInput)
		}
	}
	for _, r := range a.Requirements {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w - empty requirement", biddingerrors.ErrInvalidInput)
		}
	}
	return nil
}
