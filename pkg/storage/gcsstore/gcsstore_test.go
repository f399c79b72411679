package gcsstore

import (
	"context"
	"testing"

	blobstore "github.com/cardpost/invite-host/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, blobstore.ErrNotConfigured)
}

func TestBlob_PublicBaseURL(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "invites", PublicBaseURL: "https://cdn.example/"}}
	b := s.blob("i/1234567/merged.png", 42)
	assert.Equal(t, "https://cdn.example/i/1234567/merged.png", b.URL)
	assert.Empty(t, b.DownloadURL)
	assert.Equal(t, int64(42), b.Size)
	assert.Equal(t, b.URL, blobstore.PreferredURL(b))
}
