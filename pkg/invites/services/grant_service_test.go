package services_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/helpers/grant"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrantService_Authorize(t *testing.T) {
	var gotKey, gotType string
	var gotTTL time.Duration
	presigner := &stubPresigner{presign: func(_ context.Context, key, ct string, ttl time.Duration) (storage.SignedRequest, error) {
		gotKey, gotType, gotTTL = key, ct, ttl
		return storage.SignedRequest{URL: "https://store/" + key, Method: "PUT", Headers: map[string]string{"Content-Type": ct}}, nil
	}}
	svc := services.NewGrantService(presigner, 0)

	g, err := svc.Authorize(context.Background(), &models.GrantRequest{Pathname: "i/1234567/merged.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "i/1234567/merged.png", gotKey)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, services.DefaultGrantTTL, gotTTL)
	assert.Equal(t, "https://store/i/1234567/merged.png", g.URL)
	assert.Equal(t, "PUT", g.Method)

	// parameters on the requested type are ignored
	g, err = svc.Authorize(context.Background(), &models.GrantRequest{Pathname: "i/1234567/index.html", ContentType: "text/html"})
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", g.ContentType)
}

func TestGrantService_RejectsOutsideAllowlist(t *testing.T) {
	svc := services.NewGrantService(storage.Unconfigured{}, 0)
	for _, p := range []string{
		"i/1234567/other.html",
		"i/12/index.html",
		"x/1234567/index.html",
		"i/1234567/../index.html",
		"i/1234567/thumb_1200x630.png",
	} {
		_, err := svc.Authorize(context.Background(), &models.GrantRequest{Pathname: p})
		assert.Equal(t, http.StatusBadRequest, asProblem(t, err).Status, p)
	}

	_, err := svc.Authorize(context.Background(), &models.GrantRequest{Pathname: "i/1234567/merged.png", ContentType: "text/html"})
	apiErr := asProblem(t, err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "contentType", apiErr.InvalidParams[0].Name)
}

func TestGrantService_UnconfiguredIsConfigurationError(t *testing.T) {
	svc := services.NewGrantService(storage.Unconfigured{}, 0)
	_, err := svc.Authorize(context.Background(), &models.GrantRequest{Pathname: "i/1234567/index.html"})
	assert.Equal(t, http.StatusInternalServerError, asProblem(t, err).Status)
}

func TestGrantService_ProbeUsesSignerOutsideNamespace(t *testing.T) {
	signer := grant.NewSigner("secret", "http://localhost:1337")
	svc := services.NewGrantService(signer, time.Minute)

	g, err := svc.AuthorizeProbe(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(g.Pathname, "probe/"))
	assert.True(t, strings.HasSuffix(g.Pathname, ".txt"))
	assert.Equal(t, "text/plain", g.ContentType)
	assert.True(t, strings.HasPrefix(g.URL, "http://localhost:1337/blob/probe/"))
	assert.WithinDuration(t, time.Now().Add(services.ProbeGrantTTL), g.ExpiresAt, 5*time.Second)
}
