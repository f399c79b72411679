package services_test

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cardpost/invite-host/pkg/storage"
)

// stubStore implements storage.Store for testing
type stubStore struct {
	mu   sync.Mutex
	puts []string
	list func(ctx context.Context, prefix string, limit int) ([]storage.Blob, error)
	put  func(ctx context.Context, key string, body io.Reader, contentType string) (storage.Blob, error)
}

func (s *stubStore) Put(ctx context.Context, key string, body io.Reader, contentType string) (storage.Blob, error) {
	s.mu.Lock()
	s.puts = append(s.puts, key)
	s.mu.Unlock()
	if s.put != nil {
		return s.put(ctx, key, body, contentType)
	}
	return storage.Blob{Key: key}, nil
}

func (s *stubStore) List(ctx context.Context, prefix string, limit int) ([]storage.Blob, error) {
	if s.list != nil {
		return s.list(ctx, prefix, limit)
	}
	return nil, nil
}

type stubPresigner struct {
	presign func(ctx context.Context, key, contentType string, ttl time.Duration) (storage.SignedRequest, error)
}

func (s *stubPresigner) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (storage.SignedRequest, error) {
	return s.presign(ctx, key, contentType, ttl)
}
