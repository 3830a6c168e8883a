// Package settlement is the composition root of the auction engine. It wires
// storage, the auction lifecycle, the bid ledger and the token vaults
// together and exposes every external operation with a bounded store timeout.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"auction-settlement/internal/allocator"
	"auction-settlement/internal/auctions"
	"auction-settlement/internal/auth"
	bidding "auction-settlement/internal/biddingService"
	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/metrics"
	"auction-settlement/internal/models"
	"auction-settlement/internal/notify"
	"auction-settlement/internal/objectstore"
	"auction-settlement/internal/repository"
	"auction-settlement/internal/tokenvault"
	"auction-settlement/utils"
)

// DefaultStoreTimeout bounds every operation when Options leaves it unset
const DefaultStoreTimeout = 5 * time.Second

// Deps are the collaborators of the engine. Mailer, Objects and Metrics may be nil.
type Deps struct {
	Store   repository.Store
	Tokens  auth.TokenMaker
	Mailer  notify.Mailer
	Objects objectstore.Store
	Metrics *metrics.Metrics
}

// Options tunes the engine. Zero values select defaults.
type Options struct {
	StoreTimeout         time.Duration
	TokenTTL             time.Duration
	MinAmount            models.Amount
	AllocatorPrefix      string
	AllocatorMaxAttempts int
	// HashCost is the bcrypt cost for passwords and token secrets
	HashCost int
	Now      func() time.Time
}

// Upload is a file received with a request
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Engine exposes the auction, bid, token and user operations
type Engine struct {
	store        repository.Store
	auctions     *auctions.Service
	bids         *bidding.BiddingService
	vaults       map[string]*tokenvault.Vault
	tokens       auth.TokenMaker
	hasher       auth.PasswordHasher
	mailer       notify.Mailer
	objects      objectstore.Store
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	newID        func() string
}

// New wires an engine
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("settlement: store is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("settlement: token maker is required")
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MinAmount <= 0 {
		opts.MinAmount = bidding.DefaultMinAmount
	}
	if opts.AllocatorPrefix == "" {
		opts.AllocatorPrefix = allocator.DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Mailer == nil {
		deps.Mailer = notify.LogMailer{}
	}

	alloc := allocator.New(deps.Store, opts.AllocatorPrefix, opts.AllocatorMaxAttempts)
	vaultOpts := []tokenvault.Option{tokenvault.WithClock(opts.Now)}
	if opts.HashCost != 0 {
		vaultOpts = append(vaultOpts, tokenvault.WithHashCost(opts.HashCost))
	}

	e := &Engine{
		store:    deps.Store,
		auctions: auctions.NewService(deps.Store, alloc, opts.Now),
		bids: bidding.NewBiddingService(deps.Store,
			bidding.WithMinAmount(opts.MinAmount),
			bidding.WithClock(opts.Now),
		),
		vaults: map[string]*tokenvault.Vault{
			tokenvault.PurposeVerifyEmail:   tokenvault.New(tokenvault.PurposeVerifyEmail, deps.Store, opts.TokenTTL, vaultOpts...),
			tokenvault.PurposeResetPassword: tokenvault.New(tokenvault.PurposeResetPassword, deps.Store, opts.TokenTTL, vaultOpts...),
		},
		tokens:       deps.Tokens,
		hasher:       auth.NewPasswordHasher(opts.HashCost),
		mailer:       deps.Mailer,
		objects:      deps.Objects,
		metrics:      deps.Metrics,
		storeTimeout: opts.StoreTimeout,
		newID:        utils.GenerateID,
	}
	return e, nil
}

// begin bounds ctx by the store timeout and returns the matching finish func
func (e *Engine) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	start := time.Now()
	return ctx, func(errp *error) {
		cancel()
		if *errp != nil && errors.Is(*errp, context.DeadlineExceeded) && !errors.Is(*errp, biddingerrors.ErrTimeout) {
			*errp = biddingerrors.FromContext(*errp)
		}
		e.metrics.Observe(op, start, *errp)
	}
}

// CreateAuction stores a new auction, uploading its image first when given
func (e *Engine) CreateAuction(ctx context.Context, req auctions.CreateRequest, image *Upload) (_ models.Auction, err error) {
	ctx, finish := e.begin(ctx, "create_auction")
	defer finish(&err)

	if image != nil {
		url, err := e.upload(ctx, "auctions", image)
		if err != nil {
			return models.Auction{}, err
		}
		req.ImageURL = url
	}
	auction, err := e.auctions.Create(ctx, req)
	if err != nil {
		return models.Auction{}, err
	}
	utils.Info("auction created", map[string]any{
		"auction_id":      auction.ID,
		"starting_amount": auction.StartingAmount.String(),
		"closes_at":       auction.ClosesAt.Format(time.RFC3339),
	})
	return auction, nil
}

// UpdateAuction applies patch, uploading a replacement image first when given
func (e *Engine) UpdateAuction(ctx context.Context, id string, patch models.AuctionPatch, image *Upload) (_ models.Auction, err error) {
	ctx, finish := e.begin(ctx, "update_auction")
	defer finish(&err)

	if image != nil {
		url, err := e.upload(ctx, "auctions", image)
		if err != nil {
			return models.Auction{}, err
		}
		patch.ImageURL = &url
	}
	return e.auctions.Update(ctx, id, patch)
}

// DeleteAuction removes an auction and its bids
func (e *Engine) DeleteAuction(ctx context.Context, id string) (err error) {
	ctx, finish := e.begin(ctx, "delete_auction")
	defer finish(&err)

	if err := e.auctions.Delete(ctx, id); err != nil {
		return err
	}
	utils.Info("auction deleted", map[string]any{"auction_id": id})
	return nil
}

// GetAuction returns one auction
func (e *Engine) GetAuction(ctx context.Context, id string) (_ models.Auction, err error) {
	ctx, finish := e.begin(ctx, "get_auction")
	defer finish(&err)
	return e.auctions.Get(ctx, id)
}

// ListAuctions returns one page of auctions, newest first
func (e *Engine) ListAuctions(ctx context.Context, query models.AuctionQuery) (_ models.Page[models.Auction], err error) {
	ctx, finish := e.begin(ctx, "list_auctions")
	defer finish(&err)
	return e.auctions.List(ctx, query)
}

// AllocateAuctionID draws an unused auction identifier
func (e *Engine) AllocateAuctionID(ctx context.Context) (_ string, err error) {
	ctx, finish := e.begin(ctx, "allocate_auction_id")
	defer finish(&err)
	return e.auctions.AllocateID(ctx)
}

// PlaceBid records a user's bid on an auction
func (e *Engine) PlaceBid(ctx context.Context, auctionID, userID string, amount models.Amount) (_ models.Bid, err error) {
	ctx, finish := e.begin(ctx, "place_bid")
	defer finish(&err)
	return e.bids.PlaceBid(ctx, auctionID, userID, amount)
}

// AmendBid raises the owner's bid
func (e *Engine) AmendBid(ctx context.Context, bidID, userID string, amount models.Amount) (_ models.Bid, err error) {
	ctx, finish := e.begin(ctx, "amend_bid")
	defer finish(&err)
	return e.bids.AmendBid(ctx, bidID, userID, amount)
}

// WithdrawBid deletes the owner's bid
func (e *Engine) WithdrawBid(ctx context.Context, bidID, userID string) (err error) {
	ctx, finish := e.begin(ctx, "withdraw_bid")
	defer finish(&err)
	return e.bids.WithdrawBid(ctx, bidID, userID)
}

// GetBid returns one bid
func (e *Engine) GetBid(ctx context.Context, bidID string) (_ models.Bid, err error) {
	ctx, finish := e.begin(ctx, "get_bid")
	defer finish(&err)
	return e.bids.GetBid(ctx, bidID)
}

// ListBids returns one page of an auction's bids, highest first
func (e *Engine) ListBids(ctx context.Context, auctionID string, page, limit int) (_ models.Page[models.BidView], err error) {
	ctx, finish := e.begin(ctx, "list_bids")
	defer finish(&err)

	if _, err := e.auctions.Get(ctx, auctionID); err != nil {
		return models.Page[models.BidView]{}, err
	}
	return e.bids.GetBidsForAuction(ctx, auctionID, page, limit)
}

// WinningBid returns the highest bid on an auction
func (e *Engine) WinningBid(ctx context.Context, auctionID string) (_ models.BidView, err error) {
	ctx, finish := e.begin(ctx, "winning_bid")
	defer finish(&err)

	if _, err := e.auctions.Get(ctx, auctionID); err != nil {
		return models.BidView{}, err
	}
	return e.bids.GetWinningBid(ctx, auctionID)
}

// IssueToken creates a fresh secret for (purpose, subject), replacing any live one
func (e *Engine) IssueToken(ctx context.Context, purpose, subject string) (_ string, err error) {
	ctx, finish := e.begin(ctx, "issue_token")
	defer finish(&err)

	vault, err := e.vault(purpose)
	if err != nil {
		return "", err
	}
	return vault.Issue(ctx, subject)
}

// ConsumeToken reports whether secret matched the live, unexpired token for
// (purpose, subject). The token is gone afterwards either way. Only storage
// failures are returned as errors.
func (e *Engine) ConsumeToken(ctx context.Context, purpose, subject, secret string) (_ bool, err error) {
	ctx, finish := e.begin(ctx, "consume_token")
	defer finish(&err)

	vault, err := e.vault(purpose)
	if err != nil {
		return false, err
	}
	err = vault.Consume(ctx, subject, secret)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, biddingerrors.ErrNotFound), errors.Is(err, biddingerrors.ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

func (e *Engine) vault(purpose string) (*tokenvault.Vault, error) {
	v, ok := e.vaults[purpose]
	if !ok {
		return nil, fmt.Errorf("settlement: %w - unknown token purpose %q", biddingerrors.ErrInvalidInput, purpose)
	}
	return v, nil
}

func (e *Engine) upload(ctx context.Context, dir string, file *Upload) (string, error) {
	if e.objects == nil {
		return "", fmt.Errorf("settlement: %w - uploads are not configured", biddingerrors.ErrInvalidInput)
	}
	if len(file.Data) == 0 {
		return "", fmt.Errorf("settlement: %w - empty upload", biddingerrors.ErrInvalidInput)
	}
	name := path.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	url, err := e.objects.Put(ctx, path.Join(dir, e.newID(), name), file.Data, file.ContentType)
	if err != nil {
		return "", fmt.Errorf("settlement: failed to upload %s: %w", name, err)
	}
	return url, nil
}

// send delivers msg and only logs a failure
func (e *Engine) send(ctx context.Context, msg notify.Message) {
	if err := e.mailer.Send(ctx, msg); err != nil {
		utils.Error("failed to send mail", map[string]any{
			"to":       msg.To,
			"template": msg.Template,
			"error":    err.Error(),
		})
	}
}
