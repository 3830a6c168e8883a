// Package objectstore keeps uploaded files (auction images, user documents)
// and hands back the URL they are served from.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"auction-settlement/internal/biddingerrors"
)

// Store saves objects
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MinioOptions configures NewMinioStore
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base returned URLs are built on. Empty means the endpoint.
	PublicURL string
}

// MinioStore wraps a MinIO client for file storage.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStore connects to MinIO and creates the bucket when missing
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	const op = "objectstore.NewMinioStore"

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: minio client: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: minio bucket check: %w", op, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%s: minio make bucket: %w", op, err)
		}
	}

	return &MinioStore{client: client, bucket: opts.Bucket, baseURL: baseURL(opts)}, nil
}

// Put stores bytes under key and returns the object URL
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	const op = "objectstore.MinioStore.Put"

	if err := checkKey(key); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrInternal, err)
	}
	return objectURL(s.baseURL, s.bucket, key), nil
}

func baseURL(opts MinioOptions) string {
	if opts.PublicURL != "" {
		return strings.TrimRight(opts.PublicURL, "/")
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + opts.Endpoint
}

func objectURL(base, bucket, key string) string {
	escaped := (&url.URL{Path: path.Join(bucket, key)}).EscapedPath()
	return base + "/" + escaped
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w - bad object key %q", biddingerrors.ErrInvalidInput, key)
	}
	return nil
}

// MemoryStore keeps objects in memory; used when no MinIO endpoint is configured
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore returns an empty store whose URLs start with baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject), baseURL: strings.TrimRight(baseURL, "/")}
}

// Put stores a copy of data
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("objectstore.MemoryStore.Put: %w", err)
	}
	if err := checkKey(key); err != nil {
		return "", fmt.Errorf("objectstore.MemoryStore.Put: %w", err)
	}
	s.mu.Lock()
	s.objects[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	s.mu.Unlock()
	return s.baseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
}

// Get returns a stored object
func (s *MemoryStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
