package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strconv"
	"time"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
)

const (
	idMin = 1_000_000
	idMax = 9_999_999

	// MaxAllocationAttempts bounds the number of storage probes per allocation.
	MaxAllocationAttempts = 8
)

var ErrAllocationExhausted = errors.New("no free invitation id after 8 attempts")

// Allocator hands out 7-digit invitation ids that are not yet taken in storage.
// Availability is only checked, never reserved: two callers may get the same id.
type Allocator struct {
	store    storage.Store
	observer metrics.Observer
	intN     func(n int) int
}

func NewAllocator(store storage.Store, observer metrics.Observer) *Allocator {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &Allocator{store: store, observer: observer, intN: rand.IntN}
}

// WithRandom replaces the random source; intN must return a value in [0, n).
func (a *Allocator) WithRandom(intN func(n int) int) *Allocator {
	a.intN = intN
	return a
}

// Allocate probes up to MaxAllocationAttempts random candidates and returns the first free one.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	attempts := 0
	for attempts < MaxAllocationAttempts {
		attempts++
		id := strconv.Itoa(idMin + a.intN(idMax-idMin+1))
		taken, err := a.taken(ctx, id)
		if err != nil {
			a.observer.RecordAllocation(attempts, err)
			return "", fmt.Errorf("probe id %s: %w", id, err)
		}
		if !taken {
			a.observer.RecordAllocation(attempts, nil)
			return id, nil
		}
		log.Printf("[alloc] id %s bezet, nieuwe poging (%d/%d)", id, attempts, MaxAllocationAttempts)
	}
	a.observer.RecordAllocation(attempts, ErrAllocationExhausted)
	return "", ErrAllocationExhausted
}

func (a *Allocator) taken(ctx context.Context, id string) (bool, error) {
	key := models.PageKey(id)
	blobs, err := a.store.List(ctx, key, 0)
	if err != nil {
		return false, err
	}
	for _, b := range blobs {
		if storage.Occupies(key, b.Key) {
			return true, nil
		}
	}
	return false, nil
}

// NewID is the API-facing form of Allocate.
func (a *Allocator) NewID(ctx context.Context) (*models.NewIDResponse, error) {
	start := time.Now()
	id, err := a.Allocate(ctx)
	switch {
	case errors.Is(err, ErrAllocationExhausted):
		log.Printf("[alloc] geen vrij id na %d pogingen", MaxAllocationAttempts)
		return nil, problem.NewAllocationExhausted("could not find a free invitation id, please retry")
	case err != nil:
		log.Printf("[alloc] probe failed: %v", err)
		return nil, storageProblem(err, "id probe failed")
	}
	log.Printf("[alloc] allocated %s in %s", id, time.Since(start))
	return &models.NewIDResponse{Id: id}, nil
}
