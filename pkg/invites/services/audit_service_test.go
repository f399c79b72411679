package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cardpost/invite-host/pkg/invites/services"
	"github.com/cardpost/invite-host/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Incomplete(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory("http://h")
	for _, k := range []string{
		"i/1111111/index.html",
		"i/1111111/merged.jpg",
		"i/1111111/thumb_1200x630.jpeg",
		"i/2222222/merged.png",
		"i/2222222/thumb_1200x630.jpg",
		"probe/x.txt",
	} {
		_, err := mem.Put(ctx, k, strings.NewReader("x"), "application/octet-stream")
		require.NoError(t, err)
	}

	out, err := services.NewAuditService(mem, nil).Incomplete(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2222222", out[0].Id)
	assert.Equal(t, []string{"page"}, out[0].Missing)
	assert.Equal(t, []string{"merged", "thumbnail"}, out[0].Present)
}

func TestAuditService_ListError(t *testing.T) {
	store := &stubStore{list: func(context.Context, string, int) ([]storage.Blob, error) {
		return nil, errors.New("boom")
	}}
	_, err := services.NewAuditService(store, nil).Incomplete(context.Background())
	assert.Error(t, err)
}
