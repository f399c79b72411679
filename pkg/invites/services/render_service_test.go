package services_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/cardpost/invite-host/pkg/invites/helpers/rewrite"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/cardpost/invite-host/pkg/invites/testutil"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://invites.example"

func seeded(t *testing.T, page string) *storage.Memory {
	t.Helper()
	mem := storage.NewMemory("https://blobs.example")
	ctx := context.Background()
	_, err := mem.Put(ctx, "i/1234567/index.html", strings.NewReader(page), "text/html")
	require.NoError(t, err)
	_, err = mem.Put(ctx, "i/1234567/thumb_1200x630.jpg", strings.NewReader("thumb"), "image/jpeg")
	require.NoError(t, err)
	_, err = mem.Put(ctx, "i/1234567/merged.png", strings.NewReader("merged"), "image/png")
	require.NoError(t, err)
	return mem
}

func readBody(t *testing.T, r *services.Rendered) string {
	t.Helper()
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return string(b)
}

func TestRenderer_Page(t *testing.T) {
	for _, name := range []string{"pattern", "document"} {
		t.Run(name, func(t *testing.T) {
			rw, err := rewrite.New(name)
			require.NoError(t, err)
			r := services.NewRenderer(seeded(t, `<html><head><title>Party</title></head><body>hi</body></html>`), rw, nil, nil)

			out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Origin: origin})
			require.NoError(t, err)
			assert.True(t, out.Page)
			assert.Equal(t, "text/html; charset=utf-8", out.ContentType)
			assert.Equal(t, services.PageCacheControl, out.CacheControl)

			body := readBody(t, out)
			assert.Equal(t, 1, strings.Count(body, `<base href="/i/1234567/"`))
			assert.Contains(t, body, `content="https://blobs.example/blob/i/1234567/thumb_1200x630.jpg"`)
			assert.Contains(t, body, `content="Party"`)
			assert.Contains(t, body, `href="https://invites.example/i/1234567/"`)
			assert.Contains(t, body, "hi")
		})
	}
}

func TestRenderer_PageWithoutThumbnailFallsBackToOrigin(t *testing.T) {
	mem := storage.NewMemory("https://blobs.example")
	_, err := mem.Put(context.Background(), "i/7654321/index.html", strings.NewReader("<html><head></head></html>"), "text/html")
	require.NoError(t, err)

	out, err := services.NewRenderer(mem, nil, nil, nil).Resolve(context.Background(), services.ViewRequest{ID: "7654321", Origin: origin})
	require.NoError(t, err)
	body := readBody(t, out)
	assert.Contains(t, body, `content="https://invites.example/i/7654321/thumb_1200x630.jpg"`)
	assert.Contains(t, body, `content="`+rewrite.DefaultTitle+`"`)
}

func TestRenderer_Asset(t *testing.T) {
	r := services.NewRenderer(seeded(t, "<html></html>"), nil, nil, nil)
	out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Path: "merged.png", Origin: origin})
	require.NoError(t, err)
	assert.False(t, out.Page)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, services.AssetCacheControl, out.CacheControl)
	assert.Equal(t, int64(6), out.ContentLength)
	assert.Equal(t, "merged", readBody(t, out))
}

func TestRenderer_Errors(t *testing.T) {
	r := services.NewRenderer(seeded(t, "<html></html>"), nil, nil, nil)
	tests := []struct {
		name   string
		req    services.ViewRequest
		status int
	}{
		{"bad id", services.ViewRequest{ID: "12x"}, http.StatusBadRequest},
		{"dot segment", services.ViewRequest{ID: "1234567", Path: "../7654321/index.html"}, http.StatusBadRequest},
		{"empty segment", services.ViewRequest{ID: "1234567", Path: "a//b.png"}, http.StatusBadRequest},
		{"unknown id", services.ViewRequest{ID: "7654321"}, http.StatusNotFound},
		{"unknown asset", services.ViewRequest{ID: "1234567", Path: "missing.png"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), tt.req)
			assert.Equal(t, tt.status, asProblem(t, err).Status)
		})
	}
}

func TestRenderer_RemoteFetch(t *testing.T) {
	srv := testutil.NewTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download/i/1234567/index.html":
			_, _ = w.Write([]byte("<html><head></head><body>remote</body></html>"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	store := &stubStore{list: func(_ context.Context, prefix string, _ int) ([]storage.Blob, error) {
		if strings.HasPrefix("i/1234567/index.html", prefix) || prefix == "i/1234567/merged.png" {
			return []storage.Blob{{
				Key:         prefix,
				URL:         srv.URL + "/public/" + prefix,
				DownloadURL: srv.URL + "/download/" + prefix,
			}}, nil
		}
		return nil, nil
	}}
	r := services.NewRenderer(store, nil, srv.Client(), nil)

	out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Origin: origin})
	require.NoError(t, err)
	assert.Contains(t, readBody(t, out), "remote")

	_, err = r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Path: "merged.png"})
	assert.Equal(t, http.StatusBadGateway, asProblem(t, err).Status)
}

func TestRenderer_IndexPathIsPage(t *testing.T) {
	r := services.NewRenderer(seeded(t, `<html><head></head><body>hi</body></html>`), nil, nil, nil)
	out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Path: "index.html", Origin: origin})
	require.NoError(t, err)
	assert.True(t, out.Page)
	assert.Equal(t, "text/html; charset=utf-8", out.ContentType)
	assert.Equal(t, services.PageCacheControl, out.CacheControl)
	assert.Contains(t, readBody(t, out), `<base href="/i/1234567/"`)
}

// remoteStore lists fixed blobs served by srv; signed blobs carry a DownloadURL.
func remoteStore(srvURL string, signed bool, sizes map[string]int64) *stubStore {
	return &stubStore{list: func(_ context.Context, prefix string, _ int) ([]storage.Blob, error) {
		size, ok := sizes[prefix]
		if !ok {
			return nil, nil
		}
		b := storage.Blob{Key: prefix, URL: srvURL + "/public/" + prefix, Size: size}
		if signed {
			b.DownloadURL = srvURL + "/download/" + prefix
		}
		return []storage.Blob{b}, nil
	}}
}

func TestRenderer_ThumbnailURL(t *testing.T) {
	srv := testutil.NewTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head></head><body>remote</body></html>"))
	}))
	sizes := map[string]int64{
		"i/1234567/index.html":          45,
		"i/1234567/thumb_1200x630.jpeg": 5,
	}

	t.Run("signed store links through the origin", func(t *testing.T) {
		r := services.NewRenderer(remoteStore(srv.URL, true, sizes), nil, srv.Client(), nil)
		out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Origin: origin})
		require.NoError(t, err)
		body := readBody(t, out)
		assert.Contains(t, body, `content="https://invites.example/i/1234567/thumb_1200x630.jpeg"`)
		assert.NotContains(t, body, "/public/")
		assert.NotContains(t, body, "/download/")
	})

	t.Run("public store links the blob", func(t *testing.T) {
		r := services.NewRenderer(remoteStore(srv.URL, false, sizes), nil, srv.Client(), nil)
		out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Origin: origin})
		require.NoError(t, err)
		assert.Contains(t, readBody(t, out), `content="`+srv.URL+`/public/i/1234567/thumb_1200x630.jpeg"`)
	})
}

func TestRenderer_RemoteAssetUsesResponseLength(t *testing.T) {
	srv := testutil.NewTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("merged"))
	}))
	// listed before a republish replaced the object
	store := remoteStore(srv.URL, true, map[string]int64{"i/1234567/merged.png": 999})
	r := services.NewRenderer(store, nil, srv.Client(), nil)

	out, err := r.Resolve(context.Background(), services.ViewRequest{ID: "1234567", Path: "merged.png", Origin: origin})
	require.NoError(t, err)
	assert.Equal(t, int64(6), out.ContentLength)
	assert.Equal(t, "merged", readBody(t, out))
}
