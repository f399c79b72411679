package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/tools"
	"github.com/robfig/cron/v3"
)

// Auditor reports invitations missing one or more artifacts.
type Auditor interface {
	Incomplete(ctx context.Context) ([]models.IncompleteInvite, error)
}

// ScheduleAudit runs the namespace audit on schedule (cron syntax or descriptors like @daily).
func ScheduleAudit(ctx context.Context, svc Auditor, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		tools.Dispatch(ctx, "audit", func(ctx context.Context) error {
			return RunAudit(ctx, svc)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c, nil
}

// RunAudit performs one audit pass and logs every incomplete invitation.
func RunAudit(ctx context.Context, svc Auditor) error {
	incomplete, err := svc.Incomplete(ctx)
	if err != nil {
		return err
	}
	for _, inv := range incomplete {
		log.Printf("[audit] %s onvolledig: mist %v", inv.Id, inv.Missing)
	}
	return nil
}
