package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"auction-settlement/internal/biddingerrors"
)

func TestObjectURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts MinioOptions
		key  string
		want string
	}{
		{
			name: "endpoint_http",
			opts: MinioOptions{Endpoint: "localhost:9000"},
			key:  "auctions/AUC1234/image.png",
			want: "http://localhost:9000/media/auctions/AUC1234/image.png",
		},
		{
			name: "endpoint_https",
			opts: MinioOptions{Endpoint: "s3.example.com", UseSSL: true},
			key:  "users/u1/doc.pdf",
			want: "https://s3.example.com/media/users/u1/doc.pdf",
		},
		{
			name: "public_url_and_escaping",
			opts: MinioOptions{Endpoint: "minio:9000", PublicURL: "https://cdn.example.com/"},
			key:  "users/u1/my doc.pdf",
			want: "https://cdn.example.com/media/users/u1/my%20doc.pdf",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, objectURL(baseURL(tc.opts), "media", tc.key))
		})
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore("http://files.local/")

	data := []byte("png-bytes")
	url, err := store.Put(ctx, "auctions/AUC1000/image.png", data, "image/png")
	require.NoError(t, err)
	require.Equal(t, "http://files.local/auctions/AUC1000/image.png", url)

	data[0] = 'X'
	got, ct, ok := store.Get("auctions/AUC1000/image.png")
	require.True(t, ok)
	require.Equal(t, "png-bytes", string(got))
	require.Equal(t, "image/png", ct)

	for _, key := range []string{"", "/abs", "a/../b"} {
		_, err := store.Put(ctx, key, data, "image/png")
		require.ErrorIs(t, err, biddingerrors.ErrValidation, key)
	}
}
