package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/middleware"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/gin-gonic/gin"
)

// ViewController serves invitation pages and assets to visitors. Errors are plain text.
type ViewController struct {
	Renderer *services.Renderer
	// PublicOrigin overrides the origin derived from the request when set.
	PublicOrigin string
}

func NewViewController(r *services.Renderer, publicOrigin string) *ViewController {
	return &ViewController{Renderer: r, PublicOrigin: strings.TrimRight(publicOrigin, "/")}
}

// Page handles GET|HEAD /i/:id
func (v *ViewController) Page(c *gin.Context) {
	v.serve(c, "")
}

// Asset handles GET|HEAD /i/:id/*file; an empty file is the page.
func (v *ViewController) Asset(c *gin.Context) {
	v.serve(c, strings.TrimPrefix(c.Param("file"), "/"))
}

func (v *ViewController) serve(c *gin.Context, path string) {
	out, err := v.Renderer.Resolve(c.Request.Context(), services.ViewRequest{
		ID:     c.Param("id"),
		Path:   path,
		Origin: v.origin(c.Request),
	})
	if err != nil {
		writeText(c, err)
		return
	}
	defer out.Body.Close()

	c.Header("Cache-Control", out.CacheControl)
	if out.Page {
		c.Header("X-Robots-Tag", "all")
	}
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", out.ContentType)
		if out.ContentLength >= 0 {
			c.Header("Content-Length", strconv.FormatInt(out.ContentLength, 10))
		}
		c.Status(http.StatusOK)
		return
	}
	c.DataFromReader(http.StatusOK, out.ContentLength, out.ContentType, out.Body, nil)
}

// origin is the scheme://host visitors reached us on.
func (v *ViewController) origin(r *http.Request) string {
	if v.PublicOrigin != "" {
		return v.PublicOrigin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := firstValue(r.Header.Get("X-Forwarded-Proto")); p != "" {
		scheme = p
	}
	host := r.Host
	if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
		host = h
	}
	return scheme + "://" + host
}

func firstValue(h string) string {
	if i := strings.IndexByte(h, ','); i >= 0 {
		h = h[:i]
	}
	return strings.TrimSpace(h)
}

func writeText(c *gin.Context, err error) {
	var apiErr problem.APIError
	if !errors.As(err, &apiErr) {
		log.Printf("[render] %s unexpected error: %v", middleware.GetRequestID(c), err)
		apiErr = problem.NewInternalServerError("Internal error")
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(apiErr.Status)
	if c.Request.Method != http.MethodHead {
		_, _ = io.WriteString(c.Writer, apiErr.Message)
	}
}
