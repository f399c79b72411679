package services

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	httpclient "github.com/cardpost/invite-host/pkg/invites/helpers/httpclient"
	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/helpers/rewrite"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
)

const (
	PageCacheControl  = "public, max-age=600, s-maxage=3600"
	AssetCacheControl = "public, max-age=31536000, immutable"
)

// ViewRequest is one visitor request for /i/<id>/<path>. An empty Path, or index.html,
// is the page.
type ViewRequest struct {
	ID     string
	Path   string
	Origin string
}

// Rendered is a resolved artifact. The caller must close Body.
type Rendered struct {
	Key           string
	Page          bool
	ContentType   string
	CacheControl  string
	ContentLength int64
	Body          io.ReadCloser
}

// Renderer resolves invitation artifacts and rewrites pages for delivery.
type Renderer struct {
	store    storage.Store
	rewriter rewrite.Rewriter
	client   *http.Client
	observer metrics.Observer
}

func NewRenderer(store storage.Store, rewriter rewrite.Rewriter, client *http.Client, observer metrics.Observer) *Renderer {
	if rewriter == nil {
		rewriter = rewrite.Pattern{}
	}
	if client == nil {
		client = httpclient.HTTPClient
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Renderer{store: store, rewriter: rewriter, client: client, observer: observer}
}

func (r *Renderer) Resolve(ctx context.Context, req ViewRequest) (out *Rendered, err error) {
	start := time.Now()
	isPage := req.Path == "" || req.Path == models.PageName
	kind := "asset"
	if isPage {
		kind = "page"
	}
	defer func() {
		status := http.StatusOK
		var apiErr problem.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Status
		} else if err != nil {
			status = http.StatusInternalServerError
		}
		r.observer.RecordDelivery(kind, status, time.Since(start))
	}()

	if !models.ValidID(req.ID) {
		return nil, problem.NewBadRequest("Bad id")
	}
	if req.Path != "" && !validRelativePath(req.Path) {
		return nil, problem.NewBadRequest("Bad path")
	}

	if isPage {
		return r.page(ctx, req)
	}
	return r.asset(ctx, req)
}

func (r *Renderer) page(ctx context.Context, req ViewRequest) (*Rendered, error) {
	blob, body, err := r.fetch(ctx, models.PageKey(req.ID))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		log.Printf("[render] read %s: %v", blob.Key, err)
		return nil, problem.NewUpstreamError("Fetch failed")
	}

	page := string(raw)
	meta := rewrite.Meta{
		BaseHref:     "/" + models.Prefix(req.ID),
		CanonicalURL: req.Origin + "/" + models.Prefix(req.ID),
		Title:        r.rewriter.Title(page),
		Description:  r.rewriter.Description(page),
		ImageURL:     r.thumbnailURL(ctx, req),
		ImageWidth:   models.ThumbnailWidth,
		ImageHeight:  models.ThumbnailHeight,
	}
	if meta.Title == "" {
		meta.Title = rewrite.DefaultTitle
	}
	if meta.Description == "" {
		meta.Description = rewrite.DefaultDescription
	}
	rewritten := r.rewriter.Rewrite(page, meta)

	return &Rendered{
		Key:           blob.Key,
		Page:          true,
		ContentType:   "text/html; charset=utf-8",
		CacheControl:  PageCacheControl,
		ContentLength: int64(len(rewritten)),
		Body:          io.NopCloser(strings.NewReader(rewritten)),
	}, nil
}

func (r *Renderer) asset(ctx context.Context, req ViewRequest) (*Rendered, error) {
	blob, body, err := r.fetch(ctx, models.Key(req.ID, req.Path))
	if err != nil {
		return nil, err
	}
	length := int64(-1)
	if blob.Size > 0 {
		length = blob.Size
	}
	return &Rendered{
		Key:           blob.Key,
		ContentType:   models.AssetContentType(req.Path),
		CacheControl:  AssetCacheControl,
		ContentLength: length,
		Body:          body,
	}, nil
}

// thumbnailURL returns the stored thumbnail's public URL. Stores that only hand out
// signed download URLs are not publicly readable, so their thumbnail is linked through
// this service's own /i/<id>/ path, as is a thumbnail that cannot be resolved.
func (r *Renderer) thumbnailURL(ctx context.Context, req ViewRequest) string {
	for _, name := range models.SlotThumbnail.Candidates() {
		b, err := storage.Resolve(ctx, r.store, models.Key(req.ID, name))
		if err != nil {
			continue
		}
		if b.URL != "" && b.DownloadURL == "" {
			return b.URL
		}
		return req.Origin + "/" + models.Key(req.ID, name)
	}
	return req.Origin + "/" + models.Key(req.ID, models.ThumbnailStem+".jpg")
}

// fetch resolves key and opens its bytes. Local backends are read directly, remote
// ones are downloaded from the reference's preferred URL.
func (r *Renderer) fetch(ctx context.Context, key string) (storage.Blob, io.ReadCloser, error) {
	blob, err := storage.Resolve(ctx, r.store, key)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Blob{}, nil, problem.NewNotFound("Not found")
	}
	if err != nil {
		log.Printf("[render] resolve %s: %v", key, err)
		return storage.Blob{}, nil, storageProblem(err, "Lookup failed")
	}

	if opener, ok := r.store.(storage.Opener); ok {
		rc, opened, err := opener.Open(ctx, blob.Key)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Blob{}, nil, problem.NewNotFound("Not found")
		}
		if err != nil {
			log.Printf("[render] open %s: %v", blob.Key, err)
			return storage.Blob{}, nil, problem.NewUpstreamError("Fetch failed")
		}
		blob.Size = opened.Size
		return blob, rc, nil
	}

	resp, err := httpclient.Get(ctx, r.client, storage.PreferredURL(blob))
	if err != nil {
		log.Printf("[render] fetch %s: %v", blob.Key, err)
		return storage.Blob{}, nil, problem.NewUpstreamError("Fetch failed")
	}
	// the object may have been replaced since it was listed
	blob.Size = resp.ContentLength
	return blob, resp.Body, nil
}

// validRelativePath rejects empty segments and dot segments.
func validRelativePath(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
