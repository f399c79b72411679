package services

import (
	"context"
	"log"
	"mime"
	"strings"
	"time"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/google/uuid"
)

const (
	DefaultGrantTTL = 5 * time.Minute
	ProbeGrantTTL   = 60 * time.Second
	probePrefix     = "probe/"
)

// GrantService authorizes direct client-to-storage uploads for canonical keys.
type GrantService struct {
	presigner storage.Presigner
	ttl       time.Duration
}

func NewGrantService(presigner storage.Presigner, ttl time.Duration) *GrantService {
	if ttl <= 0 {
		ttl = DefaultGrantTTL
	}
	return &GrantService{presigner: presigner, ttl: ttl}
}

func (s *GrantService) Authorize(ctx context.Context, req *models.GrantRequest) (*models.UploadGrant, error) {
	if !models.ValidMemberKey(req.Pathname) {
		return nil, problem.NewBadRequest("pathname not allowed", problem.InvalidParam{
			Name:   "pathname",
			Reason: "must be i/<id>/index.html, i/<id>/merged.(png|jpg|jpeg) or i/<id>/thumb_1200x630.(jpg|jpeg)",
		})
	}
	contentType := models.MemberContentType(models.BaseName(req.Pathname))
	if req.ContentType != "" && mediaType(req.ContentType) != mediaType(contentType) {
		return nil, problem.NewBadRequest("content type not allowed", problem.InvalidParam{
			Name:   "contentType",
			Reason: "must be " + contentType,
		})
	}
	return s.issue(ctx, req.Pathname, contentType, s.ttl)
}

// AuthorizeProbe grants a throwaway upload outside the invitation namespace, used by
// clients to test whether direct uploads work from where they are.
func (s *GrantService) AuthorizeProbe(ctx context.Context) (*models.UploadGrant, error) {
	key := probePrefix + uuid.NewString() + ".txt"
	return s.issue(ctx, key, "text/plain", ProbeGrantTTL)
}

func (s *GrantService) issue(ctx context.Context, key, contentType string, ttl time.Duration) (*models.UploadGrant, error) {
	signed, err := s.presigner.PresignPut(ctx, key, contentType, ttl)
	if err != nil {
		log.Printf("[grant] presign %s failed: %v", key, err)
		return nil, storageProblem(err, "could not authorize upload")
	}
	return &models.UploadGrant{
		Pathname:    key,
		URL:         signed.URL,
		Method:      signed.Method,
		Headers:     signed.Headers,
		ContentType: contentType,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

func mediaType(v string) string {
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}
