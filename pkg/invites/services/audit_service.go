package services

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/metrics"
	"github.com/cardpost/invite-host/pkg/storage"
)

// AuditService reports invitations left incomplete by interrupted publishes. It never deletes.
type AuditService struct {
	store    storage.Store
	observer metrics.Observer
}

func NewAuditService(store storage.Store, observer metrics.Observer) *AuditService {
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &AuditService{store: store, observer: observer}
}

func (s *AuditService) Incomplete(ctx context.Context) ([]models.IncompleteInvite, error) {
	blobs, err := s.store.List(ctx, models.KeyPrefix, 0)
	if err != nil {
		return nil, err
	}

	present := make(map[string]map[models.Slot]bool)
	for _, b := range blobs {
		rest := strings.TrimPrefix(b.Key, models.KeyPrefix)
		id, name, ok := strings.Cut(rest, "/")
		if !ok || !models.ValidID(id) {
			continue
		}
		if present[id] == nil {
			present[id] = make(map[models.Slot]bool)
		}
		if slot, ok := models.SlotForName(name); ok {
			present[id][slot] = true
		}
	}

	ids := make([]string, 0, len(present))
	for id := range present {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.IncompleteInvite
	for _, id := range ids {
		inv := models.IncompleteInvite{Id: id, Present: []string{}, Missing: []string{}}
		for _, slot := range models.Slots {
			if present[id][slot] {
				inv.Present = append(inv.Present, slot.String())
			} else {
				inv.Missing = append(inv.Missing, slot.String())
			}
		}
		if len(inv.Missing) > 0 {
			out = append(out, inv)
		}
	}
	s.observer.SetIncomplete(len(out))
	log.Printf("[audit] %d uitnodigingen gecontroleerd, %d onvolledig", len(ids), len(out))
	return out, nil
}
