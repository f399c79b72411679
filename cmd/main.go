package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cardpost/invite-host/pkg/config"
	"github.com/cardpost/invite-host/pkg/invites"
	"github.com/cardpost/invite-host/pkg/invites/database"
	"github.com/cardpost/invite-host/pkg/invites/helpers/rewrite"
	"github.com/cardpost/invite-host/pkg/invites/repositories"
	"github.com/cardpost/invite-host/pkg/jobs"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/cardpost/invite-host/pkg/storage/gcsstore"
	"github.com/cardpost/invite-host/pkg/storage/s3store"
	"github.com/google/uuid"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/prometheus/client_golang/prometheus"
)

const apiVersion = "1.0.0"

func init() {
	tonic.SetErrorHook(invites.ErrorHook)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseURL := cfg.PublicOrigin
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	store := openStore(ctx, cfg, baseURL)

	secret := cfg.Token()
	if secret == "" {
		// lokale backends: tokens gelden alleen voor dit proces
		secret = uuid.NewString()
		log.Println("[INFO] Geen BLOB_READ_WRITE_TOKEN; upload-tokens worden met een tijdelijke sleutel getekend")
	}

	rewriter, err := rewrite.New(cfg.HTMLRewriter)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	observer, err := metrics.NewPrometheus(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	ctrl, audit := invites.Build(invites.Options{
		Store:        store,
		BaseURL:      baseURL,
		PublicOrigin: cfg.PublicOrigin,
		GrantSecret:  secret,
		GrantTTL:     cfg.GrantTTL,
		RelayCeiling: cfg.RelayCeiling,
		Rewriter:     rewriter,
		Observer:     observer,
	})
	if _, err := jobs.ScheduleAudit(ctx, audit, cfg.AuditSchedule); err != nil {
		log.Fatalf("audit job: %v", err)
	}

	router := invites.NewRouter(apiVersion, ctrl)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: router}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("Server is running on port %d (storage: %s)", cfg.Port, cfg.StorageBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// openStore connects the configured backend. Without credentials the service still
// starts; storage-backed endpoints then answer with a configuration error.
func openStore(ctx context.Context, cfg config.Config, baseURL string) storage.Store {
	if !cfg.StorageConfigured() {
		log.Printf("[WARN] Geen opslag geconfigureerd voor backend %q", cfg.StorageBackend)
		log.Println("[INFO] API wordt gestart zonder opslagfunctionaliteit")
		return storage.Unconfigured{}
	}

	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemory(baseURL)
	case config.BackendS3:
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Printf("[WARN] S3 niet beschikbaar: %v", err)
			return storage.Unconfigured{}
		}
		return s
	case config.BackendGCS:
		s, err := gcsstore.New(ctx, gcsstore.Config{
			Bucket:          cfg.GCS.Bucket,
			CredentialsFile: cfg.GCS.CredentialsFile,
			PublicBaseURL:   cfg.GCS.PublicBaseURL,
		})
		if err != nil {
			log.Printf("[WARN] GCS niet beschikbaar: %v", err)
			return storage.Unconfigured{}
		}
		return s
	default:
		db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN())
		if err != nil {
			log.Printf("[WARN] Geen databaseverbinding: %v", err)
			log.Println("[INFO] API wordt gestart zonder databasefunctionaliteit")
			return storage.Unconfigured{}
		}
		return repositories.NewBlobRepository(db, baseURL)
	}
}
