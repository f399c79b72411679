package services_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns the given offsets in order, one per call.
func sequence(offsets ...int) func(int) int {
	i := 0
	return func(int) int {
		v := offsets[i%len(offsets)]
		i++
		return v
	}
}

func TestAllocator_SkipsTakenIDs(t *testing.T) {
	taken := map[string]bool{
		"i/1000000/index.html": true,
		"i/1000001/index.html": true,
	}
	var probes []string
	store := &stubStore{list: func(_ context.Context, prefix string, _ int) ([]storage.Blob, error) {
		probes = append(probes, prefix)
		if taken[prefix] {
			return []storage.Blob{{Key: prefix}}, nil
		}
		return nil, nil
	}}

	id, err := services.NewAllocator(store, nil).WithRandom(sequence(0, 1, 2)).Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000002", id)
	assert.Equal(t, []string{"i/1000000/index.html", "i/1000001/index.html", "i/1000002/index.html"}, probes)
}

func TestAllocator_SuffixedKeyCountsAsTaken(t *testing.T) {
	store := &stubStore{list: func(_ context.Context, prefix string, _ int) ([]storage.Blob, error) {
		if prefix == "i/1000000/index.html" {
			return []storage.Blob{{Key: prefix + "-Ab12Cd"}}, nil
		}
		// a longer sibling key is not a collision
		return []storage.Blob{{Key: prefix + "x"}}, nil
	}}

	id, err := services.NewAllocator(store, nil).WithRandom(sequence(0, 5)).Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000005", id)
}

func TestAllocator_ExhaustsAfterEightProbes(t *testing.T) {
	calls := 0
	store := &stubStore{list: func(_ context.Context, prefix string, _ int) ([]storage.Blob, error) {
		calls++
		return []storage.Blob{{Key: prefix}}, nil
	}}

	_, err := services.NewAllocator(store, nil).Allocate(context.Background())
	assert.ErrorIs(t, err, services.ErrAllocationExhausted)
	assert.Equal(t, services.MaxAllocationAttempts, calls)
}

func TestAllocator_IDsAreSevenDigits(t *testing.T) {
	store := &stubStore{}
	a := services.NewAllocator(store, nil)
	for i := 0; i < 50; i++ {
		id, err := a.Allocate(context.Background())
		require.NoError(t, err)
		assert.Len(t, id, 7)
		assert.NotEqual(t, "0", id[:1])
	}
	hi, err := services.NewAllocator(store, nil).WithRandom(func(n int) int { return n - 1 }).Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9999999", hi)
}

func TestAllocator_NewIDMapsErrors(t *testing.T) {
	tests := []struct {
		name   string
		list   func(context.Context, string, int) ([]storage.Blob, error)
		status int
	}{
		{
			name: "exhausted",
			list: func(_ context.Context, p string, _ int) ([]storage.Blob, error) {
				return []storage.Blob{{Key: p}}, nil
			},
			status: http.StatusServiceUnavailable,
		},
		{
			name: "upstream",
			list: func(context.Context, string, int) ([]storage.Blob, error) {
				return nil, errors.New("connection reset")
			},
			status: http.StatusBadGateway,
		},
		{
			name: "unconfigured",
			list: func(context.Context, string, int) ([]storage.Blob, error) {
				return nil, storage.ErrNotConfigured
			},
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.NewAllocator(&stubStore{list: tt.list}, nil).NewID(context.Background())
			var apiErr problem.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestAllocator_NewIDReturnsID(t *testing.T) {
	res, err := services.NewAllocator(storage.NewMemory("http://h"), nil).NewID(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.TrimSpace(res.Id) != "")
}
