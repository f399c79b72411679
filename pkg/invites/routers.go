package invites

import (
	"errors"
	"reflect"
	"strings"

	"github.com/cardpost/invite-host/pkg/invites/handler"
	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"API version of the response",
		"",
	)

	problemResponses = []fizz.OperationOption{
		fizz.Response("400", "Bad Request", problem.APIError{}, nil, nil),
		fizz.Response("500", "Configuration or internal error", problem.APIError{}, nil, nil),
		fizz.Response("502", "Storage error", problem.APIError{}, nil, nil),
	}
)

// Controllers groups everything the router mounts. Blobs is nil for remote backends.
type Controllers struct {
	Invites *handler.InviteController
	Views   *handler.ViewController
	Blobs   *handler.BlobController
	// Grants verifies tokens for PUT /blob; required when Blobs is set.
	Grants middleware.GrantVerifier
	// Gatherer backs /metrics; defaults to the Prometheus default registry.
	Gatherer prometheus.Gatherer
}

func operation(summary string, extra ...fizz.OperationOption) []fizz.OperationOption {
	opts := []fizz.OperationOption{fizz.Summary(summary), apiVersionHeader}
	opts = append(opts, problemResponses...)
	return append(opts, extra...)
}

func NewRouter(apiVersion string, ctrl Controllers) *fizz.Fizz {
	g := gin.Default()
	g.Use(middleware.RequestID(), APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	gen := f.Generator()
	gen.API().Components.Headers["API-Version"] = &openapi.HeaderOrRef{
		Header: &openapi.Header{
			Description: "API version of the response",
			Schema: &openapi.SchemaOrRef{
				Schema: &openapi.Schema{
					Type: "string",
				},
			},
		},
	}

	info := &openapi.Info{
		Title:       "Invitation host API",
		Description: "Allocates invitation ids, accepts invitation uploads and authorizes direct uploads.",
		Version:     apiVersion,
	}

	// upload endpoints are open to any origin; preflight answers 204
	corsConfig := cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:   []string{"API-Version", "X-Request-ID"},
	}
	api := f.Group("/api", "invites", "Invitation upload API", cors.New(corsConfig))
	g.OPTIONS("/api/*path", cors.New(corsConfig))

	api.GET("/invites/new-id",
		operation("Allocate a free invitation id",
			fizz.Response("503", "No free id found", problem.APIError{}, nil, nil)),
		tonic.Handler(ctrl.Invites.NewID, 200),
	)
	api.POST("/upload-zip",
		operation("Publish a whole invitation archive (multipart: id, zip)",
			fizz.Response("413", "Archive above the relay ceiling", problem.APIError{}, nil, nil)),
		tonic.Handler(ctrl.Invites.UploadZip, 200),
	)
	api.POST("/upload-one",
		operation("Publish one invitation file (multipart: id, name, file)",
			fizz.Response("413", "File above the relay ceiling", problem.APIError{}, nil, nil)),
		tonic.Handler(ctrl.Invites.UploadOne, 200),
	)
	api.POST("/blob/upload",
		operation("Authorize a direct upload of one invitation file"),
		tonic.Handler(ctrl.Invites.AuthorizeUpload, 200),
	)
	api.POST("/blob/probe",
		operation("Authorize a throwaway upload to test direct uploads"),
		tonic.Handler(ctrl.Invites.AuthorizeProbe, 200),
	)

	g.GET("/i/:id", ctrl.Views.Page)
	g.HEAD("/i/:id", ctrl.Views.Page)
	g.GET("/i/:id/*file", ctrl.Views.Asset)
	g.HEAD("/i/:id/*file", ctrl.Views.Asset)

	if ctrl.Blobs != nil {
		g.GET("/blob/*key", ctrl.Blobs.Get)
		g.HEAD("/blob/*key", ctrl.Blobs.Get)
		g.PUT("/blob/*key", cors.New(corsConfig), middleware.RequireUploadGrant(ctrl.Grants), ctrl.Blobs.Put)
		g.OPTIONS("/blob/*key", cors.New(corsConfig))
	}

	gatherer := ctrl.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	g.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	f.GET("/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}

func init() {
	// validation errors name the JSON field, not the Go field
	tonic.RegisterTagNameFunc(jsonFieldName)
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.Split(f.Tag.Get("json"), ",")[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// ErrorHook renders every tonic handler error as problem JSON.
func ErrorHook(c *gin.Context, err error) (int, interface{}) {
	c.Header("Content-Type", "application/problem+json")

	// 1) bind/validate errors → 400 met invalidParams
	var be tonic.BindError
	if errors.As(err, &be) || isValidationErr(err) {
		apiErr := problem.NewBadRequest("invalid request body", invalidParamsFromBinding(err)...)
		return apiErr.Status, apiErr
	}

	// 2) APIError → pass-through
	var apiErr problem.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr
	}

	// 3) alles anders → 500
	internal := problem.NewInternalServerError(err.Error())
	return internal.Status, internal
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func invalidParamsFromBinding(err error) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		var be tonic.BindError
		if errors.As(err, &be) {
			verrs = be.ValidationErrors()
		}
	}
	if len(verrs) == 0 {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, problem.InvalidParam{
			Name:   fe.Field(),
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	default:
		return fe.Error()
	}
}
