package services

import (
	"errors"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/storage"
)

// storageProblem maps a failing storage call onto the error taxonomy.
func storageProblem(err error, detail string) error {
	var apiErr problem.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, storage.ErrNotConfigured) {
		return problem.NewConfigurationError("blob storage is not configured")
	}
	return problem.NewUpstreamError(detail + ": " + err.Error())
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
