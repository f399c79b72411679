// Package s3store implements storage.Store on AWS S3 (and S3-compatible services).
package s3store

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cardpost/invite-host/pkg/storage"
)

const defaultDownloadTTL = 15 * time.Minute

// objectAPI is the subset of *s3.Client used by the store.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// presignAPI is the subset of *s3.PresignClient used by the store.
type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // LocalStack/MinIO
	PublicBaseURL   string // CDN or public bucket URL; when empty downloads are presigned
	AccessKeyID     string
	SecretAccessKey string
}

type Store struct {
	cfg     Config
	api     objectAPI
	presign presignAPI
}

// New loads the AWS configuration and builds the S3 client.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required: %w", storage.ErrNotConfigured)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Opts...)
	log.Printf("[storage:s3] bucket=%s region=%s endpoint=%s", cfg.Bucket, cfg.Region, cfg.Endpoint)
	return newWithClients(cfg, client, s3.NewPresignClient(client)), nil
}

func newWithClients(cfg Config, api objectAPI, presign presignAPI) *Store {
	return &Store{cfg: cfg, api: api, presign: presign}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string) (storage.Blob, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return storage.Blob{}, fmt.Errorf("failed to put object %q: %w", key, err)
	}
	b := s.blob(ctx, key, 0)
	b.ContentType = contentType
	return b, nil
}

func (s *Store) List(ctx context.Context, prefix string, limit int) ([]storage.Blob, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	}
	if limit > 0 && limit < 1000 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	var out []storage.Blob
	p := s3.NewListObjectsV2Paginator(s.api, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, s.blob(ctx, aws.ToString(obj.Key), aws.ToInt64(obj.Size)))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (storage.SignedRequest, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return storage.SignedRequest{}, fmt.Errorf("failed to presign put %q: %w", key, err)
	}
	headers := map[string]string{"Content-Type": contentType}
	for name, values := range req.SignedHeader {
		if strings.EqualFold(name, "host") || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}
	return storage.SignedRequest{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (s *Store) blob(ctx context.Context, key string, size int64) storage.Blob {
	b := storage.Blob{Key: key, URL: s.objectURL(key), Size: size}
	if s.cfg.PublicBaseURL != "" {
		return b
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(defaultDownloadTTL))
	if err != nil {
		log.Printf("[storage:s3] presign get %s failed: %v", key, err)
		return b
	}
	b.DownloadURL = req.URL
	return b
}

func (s *Store) objectURL(key string) string {
	escaped := escapeKey(key)
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + escaped
	}
	if s.cfg.Endpoint != "" {
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
