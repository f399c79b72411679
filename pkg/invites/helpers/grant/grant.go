// Package grant issues and verifies upload tokens for the local blob host.
package grant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/cardpost/invite-host/pkg/storage"
)

var (
	ErrInvalidToken = errors.New("invalid upload token")
	ErrScope        = errors.New("upload token does not cover this request")
)

// Claims binds a token to exactly one key and content type.
type Claims struct {
	Pathname    string `json:"pth"`
	ContentType string `json:"ct"`
	jwt.RegisteredClaims
}

// Signer mints HS256 upload tokens redeemable at <baseURL>/blob/<key>.
type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// PresignPut implements storage.Presigner.
func (s *Signer) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (storage.SignedRequest, error) {
	if len(s.secret) == 0 {
		return storage.SignedRequest{}, storage.ErrNotConfigured
	}
	expires := s.now().Add(ttl)
	claims := Claims{
		Pathname:    key,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
			Subject:   key,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return storage.SignedRequest{}, fmt.Errorf("sign upload token: %w", err)
	}
	return storage.SignedRequest{
		URL:       s.baseURL + "/blob/" + key + "?token=" + url.QueryEscape(token),
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: expires,
	}, nil
}

// Verify checks signature, expiry and that the token covers key and contentType.
func (s *Signer) Verify(token, key, contentType string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret", ErrInvalidToken)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Pathname != key {
		return nil, fmt.Errorf("%w: key %s", ErrScope, key)
	}
	if !sameMediaType(claims.ContentType, contentType) {
		return nil, fmt.Errorf("%w: content type %s", ErrScope, contentType)
	}
	return claims, nil
}

func sameMediaType(a, b string) bool {
	return mediaType(a) == mediaType(b)
}

func mediaType(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
