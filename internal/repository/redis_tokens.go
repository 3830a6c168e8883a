package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
)

// tokenGrace keeps expired records around long enough for consume to report
// them as expired rather than missing.
const tokenGrace = time.Hour

const tokenKeyPrefix = "token:"

// RedisTokenStore is a TokenDB backed by Redis. Put is a single SET and take
// is a single GETDEL, so both are atomic.
type RedisTokenStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOptions holds the connection settings for NewRedisTokenStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisTokenStore connects to Redis and verifies the connection
func NewRedisTokenStore(ctx context.Context, opts RedisOptions) (*RedisTokenStore, error) {
	const op = "repository.NewRedisTokenStore"

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &RedisTokenStore{client: client, now: time.Now}, nil
}

// Close closes the client
func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

type redisToken struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// PutToken replaces any live token for the record's (purpose, subject)
func (s *RedisTokenStore) PutToken(ctx context.Context, record models.TokenRecord) error {
	const op = "repository.RedisTokenStore.PutToken"

	data, err := json.Marshal(redisToken{Hash: record.Hash, ExpiresAt: record.ExpiresAt, CreatedAt: record.CreatedAt})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ttl := record.ExpiresAt.Sub(s.now()) + tokenGrace
	if ttl <= 0 {
		ttl = tokenGrace
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+record.Key(), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, record.Key(), redisError(err))
	}
	return nil
}

// TakeToken reads and deletes the live token in one command
func (s *RedisTokenStore) TakeToken(ctx context.Context, purpose, subject string) (models.TokenRecord, error) {
	const op = "repository.RedisTokenStore.TakeToken"

	key := models.TokenKey(purpose, subject)
	val, err := s.client.GetDel(ctx, tokenKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TokenRecord{}, fmt.Errorf("%s: %s: %w", op, key, biddingerrors.ErrTokenNotFound)
	}
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%s: %s: %w", op, key, redisError(err))
	}

	var tok redisToken
	if err := json.Unmarshal(val, &tok); err != nil {
		return models.TokenRecord{}, fmt.Errorf("%s: %s: %v: %w", op, key, err, biddingerrors.ErrInternal)
	}
	return models.TokenRecord{
		Purpose:   purpose,
		Subject:   subject,
		Hash:      tok.Hash,
		ExpiresAt: tok.ExpiresAt,
		CreatedAt: tok.CreatedAt,
	}, nil
}

func redisError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return biddingerrors.FromContext(err)
	}
	return fmt.Errorf("%v: %w", err, biddingerrors.ErrInternal)
}

// TokenOverride serves tokens from a dedicated TokenDB while every other
// call goes to the wrapped Store.
type TokenOverride struct {
	Store
	Tokens TokenDB
}

// PutToken implements TokenDB
func (o TokenOverride) PutToken(ctx context.Context, record models.TokenRecord) error {
	return o.Tokens.PutToken(ctx, record)
}

// TakeToken implements TokenDB
func (o TokenOverride) TakeToken(ctx context.Context, purpose, subject string) (models.TokenRecord, error) {
	return o.Tokens.TakeToken(ctx, purpose, subject)
}
