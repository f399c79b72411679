package invites

import (
	"net/http"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/handler"
	"github.com/cardpost/invite-host/pkg/invites/helpers/grant"
	"github.com/cardpost/invite-host/pkg/invites/helpers/rewrite"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Options carries the process-wide dependencies of the HTTP surface.
type Options struct {
	Store storage.Store
	// BaseURL is where this service is reachable; local backends and grants point at it.
	BaseURL      string
	PublicOrigin string
	GrantSecret  string
	GrantTTL     time.Duration
	RelayCeiling int64
	Rewriter     rewrite.Rewriter
	HTTPClient   *http.Client
	Observer     metrics.Observer
	Gatherer     prometheus.Gatherer
}

// Build wires services and controllers over one store.
func Build(o Options) (Controllers, *services.AuditService) {
	var presigner storage.Presigner
	var verifier *grant.Signer
	if p, ok := o.Store.(storage.Presigner); ok {
		presigner = p
	} else {
		verifier = grant.NewSigner(o.GrantSecret, o.BaseURL)
		presigner = verifier
	}

	ctrl := Controllers{
		Invites: handler.NewInviteController(
			services.NewAllocator(o.Store, o.Observer),
			services.NewPublishService(o.Store, o.RelayCeiling, o.Observer),
			services.NewGrantService(presigner, o.GrantTTL),
		),
		Views: handler.NewViewController(
			services.NewRenderer(o.Store, o.Rewriter, o.HTTPClient, o.Observer),
			o.PublicOrigin,
		),
		Gatherer: o.Gatherer,
	}
	if local, ok := o.Store.(handler.LocalStore); ok && verifier != nil {
		ctrl.Blobs = handler.NewBlobController(local)
		ctrl.Grants = verifier
	}
	return ctrl, services.NewAuditService(o.Store, o.Observer)
}
