package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/helpers/archive"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type Mode string

const (
	ModeServer Mode = "server"
	ModeDirect Mode = "direct"
)

const (
	DefaultRelayCeiling int64 = 4718592
	DefaultStallWindow        = 20 * time.Second
	DefaultConcurrency        = 2
	SelfTestTimeout           = 15 * time.Second
)

var ErrInvalidID = errors.New("invitation id must be 6 to 10 digits")

// SizeExceededError rejects a member too large to relay. Nothing was uploaded.
type SizeExceededError struct {
	Slot    string
	SizeMB  float64
	LimitMB float64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("%s is %.1f MB, above the %.1f MB upload limit; re-encode it (lower resolution or JPEG quality) and try again",
		e.Slot, e.SizeMB, e.LimitMB)
}

type TransferKind string

const (
	TransferStalled TransferKind = "stalled"
	TransferAborted TransferKind = "aborted"
)

// TransferError is a failed direct upload. It is a local classification, not an HTTP status.
type TransferError struct {
	Kind TransferKind
	Err  error
}

func (e *TransferError) Error() string {
	msg := "direct upload " + string(e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (switch to server upload mode and try again)"
}

func (e *TransferError) Unwrap() error { return e.Err }

type Config struct {
	Mode         Mode
	Fallback     bool
	RelayCeiling int64
	StallWindow  time.Duration
	Concurrency  int
	Logger       *log.Logger
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeServer
	}
	if c.RelayCeiling <= 0 {
		c.RelayCeiling = DefaultRelayCeiling
	}
	if c.StallWindow <= 0 {
		c.StallWindow = DefaultStallWindow
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

type Result struct {
	ID       string
	Mode     Mode
	Uploaded []string
	FellBack bool
}

type ProbeResult struct {
	Viable  bool
	Elapsed time.Duration
	Err     error
}

// Orchestrator runs one publish at a time per call; it holds no per-upload state.
type Orchestrator struct {
	cfg    Config
	direct DirectTransport
	relay  RelayTransport
}

func New(cfg Config, direct DirectTransport, relay RelayTransport) *Orchestrator {
	return &Orchestrator{cfg: cfg.withDefaults(), direct: direct, relay: relay}
}

// NewHTTP builds an orchestrator talking to the invite host at baseURL.
func NewHTTP(baseURL string, client *http.Client, cfg Config) *Orchestrator {
	api := NewAPI(baseURL, client)
	return New(cfg, NewHTTPDirect(api), NewHTTPRelay(api))
}

// Publish validates the archive and uploads it in the configured mode. In direct
// mode a failed or stalled transfer is retried once through the server when
// Fallback is set.
func (o *Orchestrator) Publish(ctx context.Context, id string, data []byte) (*Result, error) {
	if !models.ValidID(id) {
		return nil, ErrInvalidID
	}
	zr, err := archive.Open(data)
	if err != nil {
		return nil, err
	}
	members, err := archive.LocateSlots(zr.File)
	if err != nil {
		return nil, err
	}

	if o.cfg.Mode == ModeDirect {
		uploaded, err := o.publishDirect(ctx, id, members)
		if err == nil {
			return &Result{ID: id, Mode: ModeDirect, Uploaded: uploaded}, nil
		}
		var te *TransferError
		if !errors.As(err, &te) || !o.cfg.Fallback {
			return nil, err
		}
		o.cfg.Logger.Printf("[client] %v; falling back to server upload", err)
		uploaded, err = o.publishRelay(ctx, id, data, members)
		if err != nil {
			return nil, err
		}
		return &Result{ID: id, Mode: ModeServer, Uploaded: uploaded, FellBack: true}, nil
	}

	uploaded, err := o.publishRelay(ctx, id, data, members)
	if err != nil {
		return nil, err
	}
	return &Result{ID: id, Mode: ModeServer, Uploaded: uploaded}, nil
}

func (o *Orchestrator) publishRelay(ctx context.Context, id string, data []byte, members map[models.Slot]archive.Member) ([]string, error) {
	if int64(len(data)) <= o.cfg.RelayCeiling {
		return o.relay.UploadArchive(ctx, id, data)
	}

	// too big as a whole: every member must fit on its own before anything is sent
	for _, slot := range models.UploadOrder {
		size := int64(members[slot].File.UncompressedSize64)
		if size > o.cfg.RelayCeiling {
			return nil, &SizeExceededError{Slot: slot.String(), SizeMB: megabytes(size), LimitMB: megabytes(o.cfg.RelayCeiling)}
		}
	}
	bodies, err := readMembers(members)
	if err != nil {
		return nil, err
	}

	uploaded := make([]string, 0, len(models.UploadOrder))
	for _, slot := range models.UploadOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := members[slot]
		key, err := o.relay.UploadMember(ctx, id, m.Base, bodies[slot])
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", m.Base, err)
		}
		uploaded = append(uploaded, key)
	}
	return uploaded, nil
}

func (o *Orchestrator) publishDirect(ctx context.Context, id string, members map[models.Slot]archive.Member) ([]string, error) {
	bodies, err := readMembers(members)
	if err != nil {
		return nil, err
	}

	wd := NewWatchdog(o.cfg.StallWindow)
	batchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go wd.Watch(batchCtx, cancel)
	progress := func(int64, int64) { wd.Progress() }

	upload := func(ctx context.Context, slot models.Slot) error {
		m := members[slot]
		return o.direct.Upload(ctx, models.Key(id, m.Base), models.MemberContentType(m.Base), bodies[slot], progress)
	}

	// images in parallel, the page only after both landed
	g, gctx := errgroup.WithContext(batchCtx)
	sem := semaphore.NewWeighted(int64(o.cfg.Concurrency))
	for _, slot := range []models.Slot{models.SlotMerged, models.SlotThumbnail} {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			return upload(gctx, slot)
		})
	}
	err = g.Wait()
	if err == nil {
		err = upload(batchCtx, models.SlotPage)
	}

	if err != nil {
		if errors.Is(context.Cause(batchCtx), ErrTransferStalled) {
			return nil, &TransferError{Kind: TransferStalled, Err: ErrTransferStalled}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		wd.Abort()
		return nil, &TransferError{Kind: TransferAborted, Err: err}
	}
	wd.Complete()

	uploaded := make([]string, 0, len(models.UploadOrder))
	for _, slot := range models.UploadOrder {
		uploaded = append(uploaded, models.Key(id, members[slot].Base))
	}
	return uploaded, nil
}

// SelfTest pushes a small object through the direct path. The answer only informs
// which mode to pick; it never blocks a publish.
func (o *Orchestrator) SelfTest(ctx context.Context) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, SelfTestTimeout)
	defer cancel()

	start := time.Now()
	payload := []byte("invite-host direct upload probe " + start.UTC().Format(time.RFC3339Nano))
	err := o.direct.Probe(ctx, payload, nil)
	res := ProbeResult{Viable: err == nil, Elapsed: time.Since(start), Err: err}
	if err != nil {
		o.cfg.Logger.Printf("[client] direct upload self-test failed after %s: %v", res.Elapsed, err)
	}
	return res
}

func readMembers(members map[models.Slot]archive.Member) (map[models.Slot][]byte, error) {
	out := make(map[models.Slot][]byte, len(members))
	for slot, m := range members {
		data, err := archive.ReadMember(m)
		if err != nil {
			return nil, err
		}
		out[slot] = data
	}
	return out, nil
}

func megabytes(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
