package handler

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/middleware"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/gin-gonic/gin"
)

// multipartOverhead is the room left for form fields and boundaries on top of the relay ceiling.
const multipartOverhead = 1 << 20

// InviteController binds the JSON/multipart API to the invitation services.
type InviteController struct {
	Allocator *services.Allocator
	Publisher *services.PublishService
	Grants    *services.GrantService
}

func NewInviteController(a *services.Allocator, p *services.PublishService, g *services.GrantService) *InviteController {
	return &InviteController{Allocator: a, Publisher: p, Grants: g}
}

// NewID handles GET /api/invites/new-id
func (c *InviteController) NewID(ctx *gin.Context) (*models.NewIDResponse, error) {
	return c.Allocator.NewID(ctx.Request.Context())
}

// UploadZip handles POST /api/upload-zip (multipart: id, zip)
func (c *InviteController) UploadZip(ctx *gin.Context) (*models.PublishResult, error) {
	c.limitBody(ctx)
	id := ctx.PostForm("id")
	fh, err := ctx.FormFile("zip")
	if err != nil {
		return nil, c.formError(ctx, err, "archive", "zip")
	}
	data, err := readFormFile(fh)
	if err != nil {
		return nil, problem.NewBadRequest("unreadable zip")
	}

	res, err := c.Publisher.PublishArchive(ctx.Request.Context(), id, data)
	if err != nil {
		log.Printf("[publish] %s upload-zip %s: %v", middleware.GetRequestID(ctx), id, err)
		return nil, err
	}
	return res, nil
}

// UploadOne handles POST /api/upload-one (multipart: id, name, file)
func (c *InviteController) UploadOne(ctx *gin.Context) (*models.MemberResult, error) {
	c.limitBody(ctx)
	id := ctx.PostForm("id")
	name := ctx.PostForm("name")
	fh, err := ctx.FormFile("file")
	if err != nil {
		slot := "file"
		if s, ok := models.SlotForName(name); ok {
			slot = s.String()
		}
		return nil, c.formError(ctx, err, slot, "file")
	}
	if name == "" {
		name = models.BaseName(fh.Filename)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, problem.NewBadRequest("unreadable file")
	}
	defer f.Close()

	res, err := c.Publisher.PublishMember(ctx.Request.Context(), id, name, f, fh.Size)
	if err != nil {
		log.Printf("[publish] %s upload-one %s/%s: %v", middleware.GetRequestID(ctx), id, name, err)
		return nil, err
	}
	return res, nil
}

// AuthorizeUpload handles POST /api/blob/upload
func (c *InviteController) AuthorizeUpload(ctx *gin.Context, body *models.GrantRequest) (*models.UploadGrant, error) {
	return c.Grants.Authorize(ctx.Request.Context(), body)
}

// AuthorizeProbe handles POST /api/blob/probe
func (c *InviteController) AuthorizeProbe(ctx *gin.Context) (*models.UploadGrant, error) {
	return c.Grants.AuthorizeProbe(ctx.Request.Context())
}

func (c *InviteController) limitBody(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.Publisher.Ceiling()+multipartOverhead)
}

// formError turns a multipart read failure into a size or validation problem.
func (c *InviteController) formError(ctx *gin.Context, err error, slot, field string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		size := ctx.Request.ContentLength
		if size <= 0 {
			size = tooLarge.Limit
		}
		return problem.NewSizeExceeded(slot, megabytes(size), megabytes(c.Publisher.Ceiling()))
	}
	return problem.NewBadRequest("missing "+field, problem.InvalidParam{Name: field, Reason: "is required"})
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
