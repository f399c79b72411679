package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardpost/invite-host/pkg/invites/helpers/grant"
	"github.com/cardpost/invite-host/pkg/invites/middleware"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/gin-gonic/gin"
)

// maxDirectUpload bounds a single PUT to the local blob host.
const maxDirectUpload = 64 << 20

// LocalStore is a store that can also serve its own bytes.
type LocalStore interface {
	storage.Store
	storage.Opener
}

// BlobController exposes a local store over HTTP, standing in for a blob service's public URLs.
type BlobController struct {
	Store LocalStore
}

func NewBlobController(s LocalStore) *BlobController {
	return &BlobController{Store: s}
}

// Get handles GET|HEAD /blob/*key
func (b *BlobController) Get(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, blob, err := b.Store.Open(c.Request.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		c.String(http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		log.Printf("[blob] open %s: %v", key, err)
		c.String(http.StatusBadGateway, "Fetch failed")
		return
	}
	defer rc.Close()

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Type", contentType)
		c.Header("Content-Length", strconv.FormatInt(blob.Size, 10))
		c.Status(http.StatusOK)
		return
	}
	c.DataFromReader(http.StatusOK, blob.Size, contentType, rc, nil)
}

// Put handles PUT /blob/*key; RequireUploadGrant has already checked the token.
func (b *BlobController) Put(c *gin.Context) {
	claims := c.MustGet(middleware.GrantClaimsKey).(*grant.Claims)
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxDirectUpload)

	blob, err := b.Store.Put(c.Request.Context(), claims.Pathname, body, claims.ContentType)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	if err != nil {
		log.Printf("[blob] %s put %s: %v", middleware.GetRequestID(c), claims.Pathname, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "store failed"})
		return
	}
	c.JSON(http.StatusOK, blob)
}
