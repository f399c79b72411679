package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/helpers/archive"
	"github.com/cardpost/invite-host/pkg/invites/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDirect implements DirectTransport for testing
type stubDirect struct {
	mu     sync.Mutex
	keys   []string
	upload func(ctx context.Context, key string, body []byte, progress ProgressFunc) error
	probe  func(ctx context.Context) error
}

func (s *stubDirect) Upload(ctx context.Context, key, _ string, body []byte, progress ProgressFunc) error {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	if s.upload != nil {
		return s.upload(ctx, key, body, progress)
	}
	progress(int64(len(body)), int64(len(body)))
	return nil
}

func (s *stubDirect) Probe(ctx context.Context, _ []byte, _ ProgressFunc) error {
	if s.probe != nil {
		return s.probe(ctx)
	}
	return nil
}

// stubRelay implements RelayTransport for testing
type stubRelay struct {
	archives int
	members  []string
	failOn   string
}

func (s *stubRelay) UploadArchive(_ context.Context, id string, _ []byte) ([]string, error) {
	s.archives++
	return []string{"i/" + id + "/merged.png", "i/" + id + "/thumb_1200x630.jpg", "i/" + id + "/index.html"}, nil
}

func (s *stubRelay) UploadMember(_ context.Context, id, name string, _ []byte) (string, error) {
	if name == s.failOn {
		return "", errors.New("502 from relay")
	}
	s.members = append(s.members, name)
	return "i/" + id + "/" + name, nil
}

func quietConfig(cfg Config) Config {
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func TestPublish_ServerModeSmallArchiveGoesWhole(t *testing.T) {
	relay := &stubRelay{}
	o := New(quietConfig(Config{Mode: ModeServer}), &stubDirect{}, relay)

	page := string(bytes.Repeat([]byte("a"), 3<<20))
	res, err := o.Publish(context.Background(), "1234567", testutil.Zip(t,
		testutil.Entry{Name: "index.html", Body: []byte(page), Store: true},
		testutil.Entry{Name: "merged.png", Body: []byte("m")},
		testutil.Entry{Name: "thumb_1200x630.jpg", Body: []byte("t")},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, relay.archives)
	assert.Empty(t, relay.members)
	assert.Equal(t, ModeServer, res.Mode)
	assert.Len(t, res.Uploaded, 3)
}

func TestPublish_OversizedMemberRejectedBeforeUpload(t *testing.T) {
	relay := &stubRelay{}
	o := New(quietConfig(Config{Mode: ModeServer}), &stubDirect{}, relay)

	merged := bytes.Repeat([]byte{0xAB}, 5<<20)
	data := testutil.Zip(t,
		testutil.Entry{Name: "index.html", Body: []byte("<html></html>")},
		testutil.Entry{Name: "merged.png", Body: merged, Store: true},
		testutil.Entry{Name: "thumb_1200x630.jpg", Body: []byte("t")},
	)

	_, err := o.Publish(context.Background(), "1234567", data)
	var sizeErr *SizeExceededError
	require.True(t, errors.As(err, &sizeErr), "got %v", err)
	assert.Equal(t, "merged", sizeErr.Slot)
	assert.InDelta(t, 5.0, sizeErr.SizeMB, 0.01)
	assert.Contains(t, err.Error(), "merged is 5.0 MB")
	assert.Zero(t, relay.archives)
	assert.Empty(t, relay.members)
}

func TestPublish_LargeArchiveRelaysMembersPageLast(t *testing.T) {
	relay := &stubRelay{}
	o := New(quietConfig(Config{Mode: ModeServer, RelayCeiling: 1 << 20}), &stubDirect{}, relay)

	data := testutil.Zip(t,
		testutil.Entry{Name: "index.html", Body: bytes.Repeat([]byte("p"), 900<<10), Store: true},
		testutil.Entry{Name: "merged.jpg", Body: bytes.Repeat([]byte("m"), 900<<10), Store: true},
		testutil.Entry{Name: "thumb_1200x630.jpg", Body: []byte("t")},
	)
	res, err := o.Publish(context.Background(), "1234567", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"merged.jpg", "thumb_1200x630.jpg", "index.html"}, relay.members)
	assert.Equal(t, "i/1234567/index.html", res.Uploaded[2])
}

func TestPublish_RelayMemberFailureStops(t *testing.T) {
	relay := &stubRelay{failOn: "thumb_1200x630.jpg"}
	o := New(quietConfig(Config{Mode: ModeServer, RelayCeiling: 1 << 20}), &stubDirect{}, relay)

	data := testutil.Zip(t,
		testutil.Entry{Name: "index.html", Body: bytes.Repeat([]byte("p"), 900<<10), Store: true},
		testutil.Entry{Name: "merged.jpg", Body: bytes.Repeat([]byte("m"), 900<<10), Store: true},
		testutil.Entry{Name: "thumb_1200x630.jpg", Body: []byte("t")},
	)
	_, err := o.Publish(context.Background(), "1234567", data)
	require.Error(t, err)
	assert.Equal(t, []string{"merged.jpg"}, relay.members)
}

func TestPublish_DirectUploadsPageLast(t *testing.T) {
	var mu sync.Mutex
	imagesDone := 0
	direct := &stubDirect{}
	direct.upload = func(_ context.Context, key string, body []byte, progress ProgressFunc) error {
		progress(int64(len(body)), int64(len(body)))
		mu.Lock()
		defer mu.Unlock()
		if key == "i/1234567/index.html" {
			assert.Equal(t, 2, imagesDone, "page written before images")
		} else {
			imagesDone++
		}
		return nil
	}
	relay := &stubRelay{}
	o := New(quietConfig(Config{Mode: ModeDirect}), direct, relay)

	res, err := o.Publish(context.Background(), "1234567", testutil.Invitation(t, "<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, res.Mode)
	assert.False(t, res.FellBack)
	assert.Equal(t, "i/1234567/index.html", direct.keys[2])
	assert.Zero(t, relay.archives)
}

// stallingUpload reports 10% and then never progresses again.
func stallingUpload(ctx context.Context, _ string, body []byte, progress ProgressFunc) error {
	progress(int64(len(body))/10, int64(len(body)))
	<-ctx.Done()
	return ctx.Err()
}

func TestPublish_StallFallsBackToServer(t *testing.T) {
	relay := &stubRelay{}
	direct := &stubDirect{upload: stallingUpload}
	o := New(quietConfig(Config{Mode: ModeDirect, Fallback: true, StallWindow: 50 * time.Millisecond}), direct, relay)

	start := time.Now()
	res, err := o.Publish(context.Background(), "1234567", testutil.Invitation(t, "<html></html>"))
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	assert.Equal(t, ModeServer, res.Mode)
	assert.Equal(t, 1, relay.archives)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPublish_StallWithoutFallback(t *testing.T) {
	relay := &stubRelay{}
	direct := &stubDirect{upload: stallingUpload}
	o := New(quietConfig(Config{Mode: ModeDirect, StallWindow: 50 * time.Millisecond}), direct, relay)

	_, err := o.Publish(context.Background(), "1234567", testutil.Invitation(t, "<html></html>"))
	var te *TransferError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, TransferStalled, te.Kind)
	assert.ErrorIs(t, err, ErrTransferStalled)
	assert.Contains(t, err.Error(), "server upload mode")
	assert.Zero(t, relay.archives)
}

func TestPublish_DirectErrorFallsBack(t *testing.T) {
	relay := &stubRelay{}
	direct := &stubDirect{upload: func(context.Context, string, []byte, ProgressFunc) error {
		return errors.New("connection reset")
	}}
	o := New(quietConfig(Config{Mode: ModeDirect, Fallback: true}), direct, relay)

	res, err := o.Publish(context.Background(), "1234567", testutil.Invitation(t, "<html></html>"))
	require.NoError(t, err)
	assert.True(t, res.FellBack)
	// the page never left the client
	assert.NotContains(t, direct.keys, "i/1234567/index.html")
}

func TestPublish_ValidationFailsFast(t *testing.T) {
	relay := &stubRelay{}
	direct := &stubDirect{}
	o := New(quietConfig(Config{Mode: ModeDirect, Fallback: true}), direct, relay)

	_, err := o.Publish(context.Background(), "12", testutil.Invitation(t, "x"))
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = o.Publish(context.Background(), "1234567", []byte("not a zip"))
	assert.ErrorIs(t, err, archive.ErrInvalidArchive)

	_, err = o.Publish(context.Background(), "1234567", testutil.Zip(t, testutil.Entry{Name: "index.html", Body: []byte("x")}))
	var missing *archive.MissingMemberError
	assert.True(t, errors.As(err, &missing))

	assert.Empty(t, direct.keys)
	assert.Zero(t, relay.archives)
}

func TestSelfTest(t *testing.T) {
	o := New(quietConfig(Config{}), &stubDirect{}, &stubRelay{})
	res := o.SelfTest(context.Background())
	assert.True(t, res.Viable)
	assert.NoError(t, res.Err)

	o = New(quietConfig(Config{}), &stubDirect{probe: func(context.Context) error { return errors.New("blocked") }}, &stubRelay{})
	res = o.SelfTest(context.Background())
	assert.False(t, res.Viable)
	assert.Error(t, res.Err)
}
