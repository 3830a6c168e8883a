package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
)

// MemoryRepo is a concurrency-safe in-memory implementation of Store.
// Each auction has its own critical section; no lock is global.
type MemoryRepo struct {
	mu          sync.RWMutex
	auctions    map[string]models.Auction
	bids        map[string]models.Bid          // key: bidID -> value: bid
	auctionBids map[string]map[string]struct{} // key: auctionID -> value: set of bidIDs
	users       map[string]models.User         // key: userID -> value: user
	tokens      map[string]models.TokenRecord  // key: purpose:subject -> value: record

	locksMu sync.Mutex
	locks   map[string]*auctionLock // key: auctionID -> value: lock, present while in use
}

// auctionLock is a one-slot semaphore shared by every section on one auction.
// refs counts holders and waiters; the entry is dropped when it reaches zero.
type auctionLock struct {
	sem  chan struct{}
	refs int
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:    make(map[string]models.Auction),
		bids:        make(map[string]models.Bid),
		auctionBids: make(map[string]map[string]struct{}),
		users:       make(map[string]models.User),
		tokens:      make(map[string]models.TokenRecord),
		locks:       make(map[string]*auctionLock),
	}
}

// Close is a no-op for the in-memory store
func (r *MemoryRepo) Close() error { return nil }

func (r *MemoryRepo) acquireRef(auctionID string) *auctionLock {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l, ok := r.locks[auctionID]
	if !ok {
		l = &auctionLock{sem: make(chan struct{}, 1)}
		r.locks[auctionID] = l
	}
	l.refs++
	return l
}

func (r *MemoryRepo) releaseRef(auctionID string, l *auctionLock) {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, auctionID)
	}
}

// InAuction runs fn holding the auction's lock. Writes made through the tx are
// buffered and applied atomically only when fn succeeds.
func (r *MemoryRepo) InAuction(ctx context.Context, auctionID string, fn func(tx LedgerTx) error) error {
	lock := r.acquireRef(auctionID)
	defer r.releaseRef(auctionID, lock)
	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("acquire auction %s: %w", auctionID, biddingerrors.FromContext(ctx.Err()))
	}
	defer func() { <-lock.sem }()

	tx := &memoryTx{repo: r}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit auction %s: %w", auctionID, biddingerrors.FromContext(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range tx.pending {
		op()
	}
	return nil
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.ID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.ID, biddingerrors.ErrDuplicateKey)
	}
	r.auctions[auction.ID] = cloneAuction(auction)
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, id string) (models.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getAuction(id)
}

func (r *MemoryRepo) getAuction(id string) (models.Auction, error) {
	a, ok := r.auctions[id]
	if !ok {
		return models.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	return cloneAuction(a), nil
}

// AuctionExists reports whether an auction with the id is stored
func (r *MemoryRepo) AuctionExists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.auctions[id]
	return ok, nil
}

// ListAuctions returns one page of auctions matching the query, newest first, and the total match count
func (r *MemoryRepo) ListAuctions(_ context.Context, query models.AuctionQuery) ([]models.Auction, int, error) {
	r.mu.RLock()
	matched := make([]models.Auction, 0, len(r.auctions))
	search := strings.ToLower(query.Search)
	for _, a := range r.auctions {
		if search != "" &&
			!strings.Contains(strings.ToLower(a.ID), search) &&
			!strings.Contains(strings.ToLower(a.BidDescription), search) &&
			!strings.Contains(strings.ToLower(a.ItemDescription), search) {
			continue
		}
		if query.From != nil && a.OpensAt.Before(*query.From) {
			continue
		}
		if query.To != nil && a.OpensAt.After(*query.To) {
			continue
		}
		matched = append(matched, cloneAuction(a))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OpensAt.Equal(matched[j].OpensAt) {
			return matched[i].OpensAt.After(matched[j].OpensAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, (query.Page-1)*query.Limit, query.Limit), total, nil
}

// GetBid returns a bid by id
func (r *MemoryRepo) GetBid(_ context.Context, id string) (models.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getBid(id)
}

func (r *MemoryRepo) getBid(id string) (models.Bid, error) {
	b, ok := r.bids[id]
	if !ok {
		return models.Bid{}, fmt.Errorf("get bid %s: %w", id, biddingerrors.ErrBidNotFound)
	}
	return b, nil
}

// CountBids returns the number of bids on the auction
func (r *MemoryRepo) CountBids(_ context.Context, auctionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.auctionBids[auctionID]), nil
}

// ListBidViews returns the auction's bids ordered by amount descending, each with its bidder profile
func (r *MemoryRepo) ListBidViews(_ context.Context, auctionID string, offset, limit int) ([]models.BidView, error) {
	r.mu.RLock()
	bids := r.bidsForAuction(auctionID)
	views := make([]models.BidView, 0, len(bids))
	for _, b := range bids {
		views = append(views, models.BidView{Bid: b, Bidder: r.users[b.UserID].Public()})
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].Amount > views[j].Amount })
	return paginate(views, offset, limit), nil
}

func (r *MemoryRepo) bidsForAuction(auctionID string) []models.Bid {
	ids := r.auctionBids[auctionID]
	bids := make([]models.Bid, 0, len(ids))
	for id := range ids {
		bids = append(bids, r.bids[id])
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].CreatedAt.Before(bids[j].CreatedAt) })
	return bids
}

// CreateUser stores a new user, rejecting duplicates on any unique field
func (r *MemoryRepo) CreateUser(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return fmt.Errorf("create user %s: %w", user.ID, biddingerrors.ErrDuplicateKey)
	}
	for _, f := range []UniqueField{FieldEmail, FieldPhone, FieldAlternatePhone, FieldRCNumber} {
		if v := uniqueValue(user, f); v != "" && r.userExists(f, v) {
			return fmt.Errorf("create user %s: %s: %w", user.ID, f, biddingerrors.ErrDuplicateKey)
		}
	}
	r.users[user.ID] = user
	return nil
}

// GetUser returns a user by id
func (r *MemoryRepo) GetUser(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getUser(id)
}

func (r *MemoryRepo) getUser(id string) (models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("get user %s: %w", id, biddingerrors.ErrUserNotFound)
	}
	return u, nil
}

// GetUserByEmail returns a user by email
func (r *MemoryRepo) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("get user by email: %w", biddingerrors.ErrUserNotFound)
}

// UserExists reports whether any user already holds value in field
func (r *MemoryRepo) UserExists(_ context.Context, field UniqueField, value string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userExists(field, value), nil
}

func (r *MemoryRepo) userExists(field UniqueField, value string) bool {
	for _, u := range r.users {
		existing := uniqueValue(u, field)
		if field == FieldEmail && strings.EqualFold(existing, value) {
			return true
		}
		if field != FieldEmail && existing == value {
			return true
		}
	}
	return false
}

func uniqueValue(u models.User, field UniqueField) string {
	switch field {
	case FieldEmail:
		return u.Email
	case FieldPhone:
		return u.Phone
	case FieldAlternatePhone:
		return u.AlternatePhone
	case FieldRCNumber:
		return u.RCNumber
	default:
		return ""
	}
}

// SetUserActive marks a user approved
func (r *MemoryRepo) SetUserActive(_ context.Context, id string) error {
	return r.patchUser(id, func(u *models.User) { u.Active = true })
}

// SetUserVerified marks a user's email verified
func (r *MemoryRepo) SetUserVerified(_ context.Context, id string) error {
	return r.patchUser(id, func(u *models.User) { u.Verified = true })
}

// SetUserPassword replaces a user's password hash
func (r *MemoryRepo) SetUserPassword(_ context.Context, id, passwordHash string) error {
	return r.patchUser(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (r *MemoryRepo) patchUser(id string, apply func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("update user %s: %w", id, biddingerrors.ErrUserNotFound)
	}
	apply(&u)
	r.users[id] = u
	return nil
}

// DeleteUser removes a user
func (r *MemoryRepo) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return fmt.Errorf("delete user %s: %w", id, biddingerrors.ErrUserNotFound)
	}
	delete(r.users, id)
	return nil
}

// PutToken inserts or replaces the live token for the record's key
func (r *MemoryRepo) PutToken(_ context.Context, record models.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[record.Key()] = record
	return nil
}

// TakeToken removes and returns the live token for (purpose, subject)
func (r *MemoryRepo) TakeToken(_ context.Context, purpose, subject string) (models.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.TokenKey(purpose, subject)
	rec, ok := r.tokens[key]
	if !ok {
		return models.TokenRecord{}, fmt.Errorf("take token %s: %w", key, biddingerrors.ErrTokenNotFound)
	}
	delete(r.tokens, key)
	return rec, nil
}

// AddAuction adds an auction to the repository. This method is intended for tests and seeding only.
func (r *MemoryRepo) AddAuction(auction models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[auction.ID] = cloneAuction(auction)
}

// AddUser adds a user to the repository. This method is intended for tests and seeding only.
func (r *MemoryRepo) AddUser(user models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

// memoryTx reads through to the repo and buffers writes until commit.
type memoryTx struct {
	repo    *MemoryRepo
	pending []func()
}

func (t *memoryTx) GetAuction(_ context.Context, id string) (models.Auction, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.getAuction(id)
}

func (t *memoryTx) SaveAuction(_ context.Context, auction models.Auction) error {
	auction = cloneAuction(auction)
	t.pending = append(t.pending, func() {
		t.repo.auctions[auction.ID] = auction
	})
	return nil
}

func (t *memoryTx) DeleteAuction(_ context.Context, id string) error {
	t.pending = append(t.pending, func() {
		for bidID := range t.repo.auctionBids[id] {
			delete(t.repo.bids, bidID)
		}
		delete(t.repo.auctionBids, id)
		delete(t.repo.auctions, id)
	})
	return nil
}

func (t *memoryTx) GetBid(_ context.Context, id string) (models.Bid, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.getBid(id)
}

func (t *memoryTx) BidsForAuction(_ context.Context, auctionID string) ([]models.Bid, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.bidsForAuction(auctionID), nil
}

func (t *memoryTx) GetUser(_ context.Context, id string) (models.User, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	return t.repo.getUser(id)
}

func (t *memoryTx) InsertBid(_ context.Context, bid models.Bid) error {
	t.pending = append(t.pending, func() {
		t.repo.bids[bid.ID] = bid
		if t.repo.auctionBids[bid.AuctionID] == nil {
			t.repo.auctionBids[bid.AuctionID] = make(map[string]struct{})
		}
		t.repo.auctionBids[bid.AuctionID][bid.ID] = struct{}{}
	})
	return nil
}

func (t *memoryTx) UpdateBidAmount(_ context.Context, id string, amount models.Amount, at time.Time) error {
	t.pending = append(t.pending, func() {
		if b, ok := t.repo.bids[id]; ok {
			b.Amount = amount
			b.UpdatedAt = at
			t.repo.bids[id] = b
		}
	})
	return nil
}

func (t *memoryTx) DeleteBid(_ context.Context, id string) error {
	t.pending = append(t.pending, func() {
		if b, ok := t.repo.bids[id]; ok {
			delete(t.repo.auctionBids[b.AuctionID], id)
			delete(t.repo.bids, id)
		}
	})
	return nil
}

func cloneAuction(a models.Auction) models.Auction {
	a.Requirements = append([]string(nil), a.Requirements...)
	a.Categories = append([]string(nil), a.Categories...)
	return a
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
