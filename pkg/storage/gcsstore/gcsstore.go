// Package gcsstore implements storage.Store on Google Cloud Storage.
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	blobstore "github.com/cardpost/invite-host/pkg/storage"
)

const defaultDownloadTTL = 15 * time.Minute

type Config struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

type Store struct {
	cfg    Config
	client *storage.Client
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs: bucket is required: %w", blobstore.ErrNotConfigured)
	}
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	log.Printf("[storage:gcs] bucket=%s", cfg.Bucket)
	return &Store{cfg: cfg, client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (blobstore.Blob, error) {
	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return blobstore.Blob{}, fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return blobstore.Blob{}, fmt.Errorf("failed to finalize object %q: %w", key, err)
	}
	b := s.blob(key, w.Attrs().Size)
	b.ContentType = contentType
	return b, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]blobstore.Blob, error) {
	it := s.client.Bucket(s.cfg.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []blobstore.Blob
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %q: %w", prefix, err)
		}
		b := s.blob(attrs.Name, attrs.Size)
		b.ContentType = attrs.ContentType
		out = append(out, b)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (blobstore.SignedRequest, error) {
	expires := time.Now().Add(ttl)
	u, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     expires,
	})
	if err != nil {
		return blobstore.SignedRequest{}, fmt.Errorf("failed to sign put %q: %w", key, err)
	}
	return blobstore.SignedRequest{
		URL:       u,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: expires,
	}, nil
}

func (s *Store) blob(key string, size int64) blobstore.Blob {
	b := blobstore.Blob{Key: key, Size: size}
	if s.cfg.PublicBaseURL != "" {
		b.URL = strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
		return b
	}
	b.URL = "https://storage.googleapis.com/" + s.cfg.Bucket + "/" + key
	signed, err := s.client.Bucket(s.cfg.Bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(defaultDownloadTTL),
	})
	if err != nil {
		// zonder signer (bv. user credentials) blijft de publieke URL over
		return b
	}
	b.DownloadURL = signed
	return b
}
