package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDispatch_RunsAsync(t *testing.T) {
	done := make(chan struct{})
	Dispatch(context.Background(), "test", func(ctx context.Context) error {
		close(done)
		return errors.New("logged, not returned")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tool did not run")
	}
}
