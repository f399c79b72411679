// Package storage describes the blob store the invitation service publishes into.
//
// The store is a flat key/value namespace: Put writes bytes under a key, List
// returns the references whose key starts with a prefix. Existence is only ever
// discovered by listing; there is no manifest object.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("blob not found")
	ErrNotConfigured = errors.New("blob storage credentials missing")
)

// Blob is a reference to a stored object. The store owns it; callers only read it.
type Blob struct {
	Key         string `json:"pathname"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// Store is the minimal blob store contract.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (Blob, error)
	// List returns blobs whose key starts with prefix, ordered by key.
	// limit <= 0 means no limit.
	List(ctx context.Context, prefix string, limit int) ([]Blob, error)
}

// Opener is implemented by stores that can serve their own bytes (the local backends).
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, Blob, error)
}

// SignedRequest describes a pre-authorized HTTP request against the store.
type SignedRequest struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// Presigner issues short-lived upload URLs restricted to one key and content type.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (SignedRequest, error)
}

// PreferredURL returns the URL a reference should be fetched from.
func PreferredURL(b Blob) string {
	if b.DownloadURL != "" {
		return b.DownloadURL
	}
	return b.URL
}

// suffixSeparators are the characters a store may put between a key and the
// disambiguation token it appends on collision.
const suffixSeparators = "-_."

// Occupies reports whether candidate is key itself or key plus a disambiguation suffix.
func Occupies(key, candidate string) bool {
	if candidate == key {
		return true
	}
	if len(candidate) <= len(key)+1 || !strings.HasPrefix(candidate, key) {
		return false
	}
	return strings.IndexByte(suffixSeparators, candidate[len(key)]) >= 0
}

// Resolve finds the blob for key: an exact match wins, otherwise the first
// listed blob under the key prefix is accepted.
func Resolve(ctx context.Context, s Store, key string) (Blob, error) {
	blobs, err := s.List(ctx, key, 0)
	if err != nil {
		return Blob{}, err
	}
	if len(blobs) == 0 {
		return Blob{}, ErrNotFound
	}
	for _, b := range blobs {
		if b.Key == key {
			return b, nil
		}
	}
	return blobs[0], nil
}

// Unconfigured is used when no credentials were provided; every call fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) Put(context.Context, string, io.Reader, string) (Blob, error) {
	return Blob{}, ErrNotConfigured
}

func (Unconfigured) List(context.Context, string, int) ([]Blob, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) PresignPut(context.Context, string, string, time.Duration) (SignedRequest, error) {
	return SignedRequest{}, ErrNotConfigured
}
