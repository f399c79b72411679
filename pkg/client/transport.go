package client

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// ProgressFunc receives the bytes sent so far out of total.
type ProgressFunc func(sent, total int64)

// DirectTransport writes bytes straight to storage under a server-issued grant.
type DirectTransport interface {
	Upload(ctx context.Context, key, contentType string, body []byte, progress ProgressFunc) error
	// Probe pushes a throwaway object to test whether direct uploads work at all.
	Probe(ctx context.Context, body []byte, progress ProgressFunc) error
}

// RelayTransport hands bytes to the server, which writes them to storage.
type RelayTransport interface {
	UploadArchive(ctx context.Context, id string, data []byte) ([]string, error)
	UploadMember(ctx context.Context, id, name string, data []byte) (string, error)
}

type httpDirect struct {
	api *API
}

// NewHTTPDirect returns a DirectTransport that asks api for grants and PUTs to them.
func NewHTTPDirect(api *API) DirectTransport {
	return &httpDirect{api: api}
}

func (d *httpDirect) Upload(ctx context.Context, key, contentType string, body []byte, progress ProgressFunc) error {
	g, err := d.api.Authorize(ctx, key, contentType)
	if err != nil {
		return err
	}
	return d.api.Put(ctx, g, newProgressReader(body, progress), int64(len(body)))
}

func (d *httpDirect) Probe(ctx context.Context, body []byte, progress ProgressFunc) error {
	g, err := d.api.AuthorizeProbe(ctx)
	if err != nil {
		return err
	}
	return d.api.Put(ctx, g, newProgressReader(body, progress), int64(len(body)))
}

type httpRelay struct {
	api *API
}

func NewHTTPRelay(api *API) RelayTransport {
	return &httpRelay{api: api}
}

func (r *httpRelay) UploadArchive(ctx context.Context, id string, data []byte) ([]string, error) {
	res, err := r.api.UploadArchive(ctx, id, data)
	if err != nil {
		return nil, err
	}
	return res.Uploaded, nil
}

func (r *httpRelay) UploadMember(ctx context.Context, id, name string, data []byte) (string, error) {
	res, err := r.api.UploadMember(ctx, id, name, data)
	if err != nil {
		return "", err
	}
	return res.Pathname, nil
}

// progressReader reports every read as upload progress.
type progressReader struct {
	mu       sync.Mutex
	r        *bytes.Reader
	total    int64
	sent     int64
	progress ProgressFunc
}

func newProgressReader(body []byte, progress ProgressFunc) io.Reader {
	return &progressReader{r: bytes.NewReader(body), total: int64(len(body)), progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil {
		p.mu.Lock()
		p.sent += int64(n)
		sent := p.sent
		p.mu.Unlock()
		p.progress(sent, p.total)
	}
	return n, err
}
