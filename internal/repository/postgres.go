package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/utils"
)

// Postgres error codes the store reacts to
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const retryBaseDelay = 10 * time.Millisecond

// PostgresRepo is a Store backed by PostgreSQL. Auction critical sections run
// in transactions holding the auction row lock.
type PostgresRepo struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPostgresRepo connects to the database and verifies the connection
func NewPostgresRepo(ctx context.Context, dsn string, maxRetries int) (*PostgresRepo, error) {
	const op = "repository.NewPostgresRepo"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &PostgresRepo{pool: pool, maxRetries: maxRetries}, nil
}

// Close releases the pool
func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

// Ping checks the database connection
func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// queryer is satisfied by both the pool and a transaction
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InAuction runs fn in a transaction that first locks the auction row. The
// transaction is READ COMMITTED so reads after the lock see every bid committed
// by the previous holder. Serialization failures and deadlocks are retried
// with jittered backoff up to maxRetries times.
func (r *PostgresRepo) InAuction(ctx context.Context, auctionID string, fn func(tx LedgerTx) error) error {
	const op = "repository.InAuction"

	for attempt := 0; ; attempt++ {
		err := r.inAuctionOnce(ctx, auctionID, fn)
		if !isRetryablePgError(err) {
			return err
		}
		if attempt >= r.maxRetries {
			utils.Warn("auction transaction retries exhausted", map[string]any{
				"auction_id": auctionID,
				"attempts":   attempt + 1,
				"error":      err.Error(),
			})
			return fmt.Errorf("%s: %s: %w", op, auctionID, biddingerrors.ErrTxConflict)
		}

		delay := retryBaseDelay<<attempt + time.Duration(rand.Int63n(int64(retryBaseDelay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %s: %w", op, auctionID, biddingerrors.FromContext(ctx.Err()))
		}
	}
}

func (r *PostgresRepo) inAuctionOnce(ctx context.Context, auctionID string, fn func(tx LedgerTx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storageError("begin auction tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT 1 FROM auctions WHERE id = $1 FOR UPDATE`, auctionID); err != nil {
		return storageError("lock auction", err)
	}
	if err = fn(&pgLedgerTx{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return storageError("commit auction tx", err)
	}
	return nil
}

// CreateAuction stores a new auction
func (r *PostgresRepo) CreateAuction(ctx context.Context, auction models.Auction) error {
	const op = "repository.CreateAuction"

	_, err := r.pool.Exec(ctx, `
		INSERT INTO auctions (id, bid_description, item_description, starting_amount,
		                      requirements, categories, image_url, opens_at, closes_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		auction.ID, auction.BidDescription, auction.ItemDescription, int64(auction.StartingAmount),
		nonNil(auction.Requirements), nonNil(auction.Categories), auction.ImageURL,
		auction.OpensAt, auction.ClosesAt)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, auction.ID, storageError("insert", err))
	}
	return nil
}

// GetAuction returns an auction by id
func (r *PostgresRepo) GetAuction(ctx context.Context, id string) (models.Auction, error) {
	return getAuction(ctx, r.pool, id)
}

const auctionColumns = `id, bid_description, item_description, starting_amount,
	requirements, categories, image_url, opens_at, closes_at`

func getAuction(ctx context.Context, q queryer, id string) (models.Auction, error) {
	const op = "repository.GetAuction"

	a, err := scanAuction(q.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Auction{}, fmt.Errorf("%s: %s: %w", op, id, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return models.Auction{}, fmt.Errorf("%s: %s: %w", op, id, storageError("select", err))
	}
	return a, nil
}

func scanAuction(row pgx.Row) (models.Auction, error) {
	var (
		a      models.Auction
		amount int64
	)
	err := row.Scan(&a.ID, &a.BidDescription, &a.ItemDescription, &amount,
		&a.Requirements, &a.Categories, &a.ImageURL, &a.OpensAt, &a.ClosesAt)
	a.StartingAmount = models.Amount(amount)
	return a, err
}

// AuctionExists reports whether an auction with the id is stored
func (r *PostgresRepo) AuctionExists(ctx context.Context, id string) (bool, error) {
	const op = "repository.AuctionExists"

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	return exists, nil
}

// ListAuctions returns one page of matching auctions, newest first, and the total match count
func (r *PostgresRepo) ListAuctions(ctx context.Context, query models.AuctionQuery) ([]models.Auction, int, error) {
	const op = "repository.ListAuctions"

	var (
		conds []string
		args  []any
	)
	if query.Search != "" {
		args = append(args, "%"+query.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(id ILIKE $%d OR bid_description ILIKE $%d OR item_description ILIKE $%d)", n, n, n))
	}
	if query.From != nil {
		args = append(args, *query.From)
		conds = append(conds, fmt.Sprintf("opens_at >= $%d", len(args)))
	}
	if query.To != nil {
		args = append(args, *query.To)
		conds = append(conds, fmt.Sprintf("opens_at <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM auctions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, storageError("select", err))
	}

	offset := (query.Page - 1) * query.Limit
	if offset < 0 {
		offset = 0
	}
	args = append(args, query.Limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM auctions%s ORDER BY opens_at DESC, id LIMIT $%d OFFSET $%d`,
		auctionColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	defer rows.Close()

	auctions := []models.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", op, storageError("scan", err))
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, storageError("rows", err))
	}
	return auctions, total, nil
}

// GetBid returns a bid by id
func (r *PostgresRepo) GetBid(ctx context.Context, id string) (models.Bid, error) {
	return getBid(ctx, r.pool, id)
}

const bidColumns = `id, auction_id, user_id, amount, created_at, updated_at`

func getBid(ctx context.Context, q queryer, id string) (models.Bid, error) {
	const op = "repository.GetBid"

	b, err := scanBid(q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Bid{}, fmt.Errorf("%s: %s: %w", op, id, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return models.Bid{}, fmt.Errorf("%s: %s: %w", op, id, storageError("select", err))
	}
	return b, nil
}

func scanBid(row pgx.Row) (models.Bid, error) {
	var (
		b      models.Bid
		amount int64
	)
	err := row.Scan(&b.ID, &b.AuctionID, &b.UserID, &amount, &b.CreatedAt, &b.UpdatedAt)
	b.Amount = models.Amount(amount)
	return b, err
}

// CountBids returns the number of bids on the auction
func (r *PostgresRepo) CountBids(ctx context.Context, auctionID string) (int, error) {
	const op = "repository.CountBids"

	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	return n, nil
}

// ListBidViews returns the auction's bids ordered by amount descending, each with its bidder profile
func (r *PostgresRepo) ListBidViews(ctx context.Context, auctionID string, offset, limit int) ([]models.BidView, error) {
	const op = "repository.ListBidViews"

	if offset < 0 {
		offset = 0
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.auction_id, b.user_id, b.amount, b.created_at, b.updated_at,
		       u.first_name, u.last_name, u.company_name, u.company_address, u.email,
		       u.active, u.verified, u.created_at
		FROM bids b
		JOIN users u ON u.id = b.user_id
		WHERE b.auction_id = $1
		ORDER BY b.amount DESC
		LIMIT $2 OFFSET $3`, auctionID, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	defer rows.Close()

	views := []models.BidView{}
	for rows.Next() {
		var (
			v      models.BidView
			amount int64
		)
		if err := rows.Scan(&v.ID, &v.AuctionID, &v.UserID, &amount, &v.CreatedAt, &v.UpdatedAt,
			&v.Bidder.FirstName, &v.Bidder.LastName, &v.Bidder.CompanyName, &v.Bidder.CompanyAddress,
			&v.Bidder.Email, &v.Bidder.Active, &v.Bidder.Verified, &v.Bidder.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, storageError("scan", err))
		}
		v.Amount = models.Amount(amount)
		v.Bidder.ID = v.UserID
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, storageError("rows", err))
	}
	return views, nil
}

const userColumns = `id, first_name, last_name, company_name, company_address, phone,
	alternate_phone, rc_number, postal_code, email, document_url, password_hash,
	active, verified, created_at`

// CreateUser stores a new user. Unique indexes reject duplicate contact fields.
func (r *PostgresRepo) CreateUser(ctx context.Context, user models.User) error {
	const op = "repository.CreateUser"

	_, err := r.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		user.ID, user.FirstName, user.LastName, user.CompanyName, user.CompanyAddress, user.Phone,
		user.AlternatePhone, user.RCNumber, user.PostalCode, user.Email, user.DocumentURL,
		user.PasswordHash, user.Active, user.Verified, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, user.ID, storageError("insert", err))
	}
	return nil
}

// GetUser returns a user by id
func (r *PostgresRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	return getUser(ctx, r.pool, `id = $1`, id)
}

// GetUserByEmail returns a user by email, case-insensitively
func (r *PostgresRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return getUser(ctx, r.pool, `LOWER(email) = LOWER($1)`, email)
}

func getUser(ctx context.Context, q queryer, cond string, arg any) (models.User, error) {
	const op = "repository.GetUser"

	var u models.User
	err := q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+cond, arg).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.CompanyName, &u.CompanyAddress, &u.Phone,
		&u.AlternatePhone, &u.RCNumber, &u.PostalCode, &u.Email, &u.DocumentURL,
		&u.PasswordHash, &u.Active, &u.Verified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: %w", op, biddingerrors.ErrUserNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	return u, nil
}

// UserExists reports whether any user already holds value in field
func (r *PostgresRepo) UserExists(ctx context.Context, field UniqueField, value string) (bool, error) {
	const op = "repository.UserExists"

	var cond string
	switch field {
	case FieldEmail:
		cond = `LOWER(email) = LOWER($1)`
	case FieldPhone:
		cond = `phone = $1`
	case FieldAlternatePhone:
		cond = `alternate_phone = $1`
	case FieldRCNumber:
		cond = `rc_number = $1`
	default:
		return false, fmt.Errorf("%s: unknown field %d: %w", op, field, biddingerrors.ErrInvalidInput)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE `+cond+`)`, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	return exists, nil
}

// SetUserActive marks a user approved
func (r *PostgresRepo) SetUserActive(ctx context.Context, id string) error {
	return r.updateUserColumn(ctx, "repository.SetUserActive", id, `UPDATE users SET active = TRUE WHERE id = $1`)
}

// SetUserVerified marks a user's email verified
func (r *PostgresRepo) SetUserVerified(ctx context.Context, id string) error {
	return r.updateUserColumn(ctx, "repository.SetUserVerified", id, `UPDATE users SET verified = TRUE WHERE id = $1`)
}

// SetUserPassword replaces a user's password hash
func (r *PostgresRepo) SetUserPassword(ctx context.Context, id, passwordHash string) error {
	return r.updateUserColumn(ctx, "repository.SetUserPassword", id,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, passwordHash)
}

func (r *PostgresRepo) updateUserColumn(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, id, storageError("update", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, id, biddingerrors.ErrUserNotFound)
	}
	return nil
}

// DeleteUser removes a user
func (r *PostgresRepo) DeleteUser(ctx context.Context, id string) error {
	const op = "repository.DeleteUser"

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, id, storageError("delete", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %s: %w", op, id, biddingerrors.ErrUserNotFound)
	}
	return nil
}

// PutToken upserts the live token for the record's (purpose, subject)
func (r *PostgresRepo) PutToken(ctx context.Context, record models.TokenRecord) error {
	const op = "repository.PutToken"

	_, err := r.pool.Exec(ctx, `
		INSERT INTO tokens (purpose, subject, hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (purpose, subject)
		DO UPDATE SET hash = EXCLUDED.hash, expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`,
		record.Purpose, record.Subject, record.Hash, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, record.Key(), storageError("upsert", err))
	}
	return nil
}

// TakeToken deletes and returns the live token in one statement
func (r *PostgresRepo) TakeToken(ctx context.Context, purpose, subject string) (models.TokenRecord, error) {
	const op = "repository.TakeToken"

	rec := models.TokenRecord{Purpose: purpose, Subject: subject}
	err := r.pool.QueryRow(ctx, `
		DELETE FROM tokens WHERE purpose = $1 AND subject = $2
		RETURNING hash, expires_at, created_at`, purpose, subject).
		Scan(&rec.Hash, &rec.ExpiresAt, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TokenRecord{}, fmt.Errorf("%s: %s: %w", op, rec.Key(), biddingerrors.ErrTokenNotFound)
	}
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%s: %s: %w", op, rec.Key(), storageError("delete", err))
	}
	return rec, nil
}

// pgLedgerTx runs ledger reads and writes inside the auction transaction
type pgLedgerTx struct {
	q queryer
}

func (t *pgLedgerTx) GetAuction(ctx context.Context, id string) (models.Auction, error) {
	return getAuction(ctx, t.q, id)
}

func (t *pgLedgerTx) SaveAuction(ctx context.Context, a models.Auction) error {
	_, err := t.q.Exec(ctx, `
		UPDATE auctions SET bid_description = $2, item_description = $3, starting_amount = $4,
		       requirements = $5, categories = $6, image_url = $7, closes_at = $8
		WHERE id = $1`,
		a.ID, a.BidDescription, a.ItemDescription, int64(a.StartingAmount),
		nonNil(a.Requirements), nonNil(a.Categories), a.ImageURL, a.ClosesAt)
	if err != nil {
		return fmt.Errorf("repository.SaveAuction: %s: %w", a.ID, storageError("update", err))
	}
	return nil
}

func (t *pgLedgerTx) DeleteAuction(ctx context.Context, id string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM auctions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("repository.DeleteAuction: %s: %w", id, storageError("delete", err))
	}
	return nil
}

func (t *pgLedgerTx) GetBid(ctx context.Context, id string) (models.Bid, error) {
	return getBid(ctx, t.q, id)
}

func (t *pgLedgerTx) BidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	const op = "repository.BidsForAuction"

	rows, err := t.q.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, storageError("select", err))
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, storageError("scan", err))
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, storageError("rows", err))
	}
	return bids, nil
}

func (t *pgLedgerTx) GetUser(ctx context.Context, id string) (models.User, error) {
	return getUser(ctx, t.q, `id = $1`, id)
}

func (t *pgLedgerTx) InsertBid(ctx context.Context, b models.Bid) error {
	_, err := t.q.Exec(ctx, `INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.AuctionID, b.UserID, int64(b.Amount), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.InsertBid: %s: %w", b.ID, storageError("insert", err))
	}
	return nil
}

func (t *pgLedgerTx) UpdateBidAmount(ctx context.Context, id string, amount models.Amount, at time.Time) error {
	tag, err := t.q.Exec(ctx, `UPDATE bids SET amount = $2, updated_at = $3 WHERE id = $1`, id, int64(amount), at)
	if err != nil {
		return fmt.Errorf("repository.UpdateBidAmount: %s: %w", id, storageError("update", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.UpdateBidAmount: %s: %w", id, biddingerrors.ErrBidNotFound)
	}
	return nil
}

func (t *pgLedgerTx) DeleteBid(ctx context.Context, id string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM bids WHERE id = $1`, id); err != nil {
		return fmt.Errorf("repository.DeleteBid: %s: %w", id, storageError("delete", err))
	}
	return nil
}

// retryablePgError marks a serialization failure or deadlock the caller may replay
type retryablePgError struct{ err error }

func (e *retryablePgError) Error() string { return e.err.Error() }
func (e *retryablePgError) Unwrap() error { return e.err }

func isRetryablePgError(err error) bool {
	var r *retryablePgError
	return errors.As(err, &r)
}

// storageError maps driver errors onto the error kinds
func storageError(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, biddingerrors.FromContext(err))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", action, pgErr.ConstraintName, biddingerrors.ErrDuplicateKey)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", action, pgErr.ConstraintName, biddingerrors.ErrNotFound)
		case pgSerializationFailure, pgDeadlockDetected:
			return &retryablePgError{err: fmt.Errorf("%s: %s: %w", action, pgErr.Message, biddingerrors.ErrTxConflict)}
		}
	}
	return fmt.Errorf("%s: %v: %w", action, err, biddingerrors.ErrInternal)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
