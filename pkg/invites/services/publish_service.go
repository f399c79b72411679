package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/helpers/archive"
	problem "github.com/cardpost/invite-host/pkg/invites/helpers/problem"
	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
)

// DefaultRelayCeiling is the largest body the relay accepts (4.5 MiB).
const DefaultRelayCeiling int64 = 4718592

// PublishService writes invitation artifacts on behalf of a client (server relay mode).
type PublishService struct {
	store    storage.Store
	ceiling  int64
	observer metrics.Observer
}

func NewPublishService(store storage.Store, ceiling int64, observer metrics.Observer) *PublishService {
	if ceiling <= 0 {
		ceiling = DefaultRelayCeiling
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &PublishService{store: store, ceiling: ceiling, observer: observer}
}

// Ceiling returns the relay size limit in bytes.
func (s *PublishService) Ceiling() int64 {
	return s.ceiling
}

// PublishArchive extracts the three members of a zip and stores them, page last.
func (s *PublishService) PublishArchive(ctx context.Context, id string, data []byte) (res *models.PublishResult, err error) {
	start := time.Now()
	defer func() { s.observer.RecordPublish("archive", time.Since(start), err) }()

	if !models.ValidID(id) {
		return nil, problem.NewBadRequest("invalid id", problem.InvalidParam{Name: "id", Reason: "must be 6 to 10 digits"})
	}
	if int64(len(data)) > s.ceiling {
		return nil, problem.NewSizeExceeded("archive", megabytes(int64(len(data))), megabytes(s.ceiling))
	}
	zr, err := archive.Open(data)
	if err != nil {
		return nil, problem.NewBadRequest(err.Error())
	}
	members, err := archive.LocateSlots(zr.File)
	if err != nil {
		var missing *archive.MissingMemberError
		if errors.As(err, &missing) {
			return nil, problem.NewBadRequest(missing.Error())
		}
		return nil, err
	}

	// every member must fit the ceiling once decompressed, checked before anything is written
	for _, slot := range models.UploadOrder {
		if size := members[slot].File.UncompressedSize64; size > uint64(s.ceiling) {
			return nil, problem.NewSizeExceeded(slot.String(), megabytes(int64(size)), megabytes(s.ceiling))
		}
	}

	uploaded := make([]string, 0, len(models.UploadOrder))
	for _, slot := range models.UploadOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := members[slot]
		body, err := archive.ReadMemberLimit(m, s.ceiling)
		if errors.Is(err, archive.ErrMemberTooLarge) {
			return nil, problem.NewSizeExceeded(slot.String(), megabytes(s.ceiling+1), megabytes(s.ceiling))
		}
		if err != nil {
			return nil, problem.NewBadRequest(fmt.Sprintf("unreadable %s: %v", m.Base, err))
		}
		key := models.Key(id, m.Base)
		if _, err := s.store.Put(ctx, key, bytes.NewReader(body), models.MemberContentType(m.Base)); err != nil {
			log.Printf("[publish] %s upload failed after %v: %v", key, uploaded, err)
			return nil, storageProblem(err, "upload of "+m.Base+" failed")
		}
		uploaded = append(uploaded, key)
	}
	log.Printf("[publish] archive for %s stored (%d bytes)", id, len(data))
	return &models.PublishResult{Ok: true, Id: id, Uploaded: uploaded}, nil
}

// PublishMember stores one artifact under its canonical key. size is the declared
// body length; the body is read at most up to the ceiling.
func (s *PublishService) PublishMember(ctx context.Context, id, name string, body io.Reader, size int64) (res *models.MemberResult, err error) {
	start := time.Now()
	defer func() { s.observer.RecordPublish("member", time.Since(start), err) }()

	if !models.ValidID(id) {
		return nil, problem.NewBadRequest("invalid id", problem.InvalidParam{Name: "id", Reason: "must be 6 to 10 digits"})
	}
	if !models.ValidMemberName(name) {
		return nil, problem.NewBadRequest("invalid name", problem.InvalidParam{Name: "name", Reason: "must be index.html, merged.(png|jpg|jpeg) or thumb_1200x630.(jpg|jpeg)"})
	}
	slot, _ := models.SlotForName(name)
	if size > s.ceiling {
		return nil, problem.NewSizeExceeded(slot.String(), megabytes(size), megabytes(s.ceiling))
	}
	data, err := io.ReadAll(io.LimitReader(body, s.ceiling+1))
	if err != nil {
		return nil, problem.NewBadRequest("unreadable file: " + err.Error())
	}
	if int64(len(data)) > s.ceiling {
		return nil, problem.NewSizeExceeded(slot.String(), megabytes(int64(len(data))), megabytes(s.ceiling))
	}

	key := models.Key(id, name)
	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), models.MemberContentType(name)); err != nil {
		log.Printf("[publish] %s upload failed: %v", key, err)
		return nil, storageProblem(err, "upload of "+name+" failed")
	}
	return &models.MemberResult{Ok: true, Pathname: key}, nil
}
