package service

import (
	"context"
	"errors"

	"announcement_relay/internal/domain"
)

// Dispatcher pushes new announcements to a Publisher. It is what the
// scheduler runs.
type Dispatcher struct {
	announcements *AnnouncementService
	publisher     Publisher
}

func NewDispatcher(announcements *AnnouncementService, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		announcements: announcements,
		publisher:     publisher,
	}
}

func (d *Dispatcher) Sync(ctx context.Context) (*domain.SyncStats, error) {
	if d.publisher == nil {
		return nil, errors.New("dispatcher has no publisher")
	}
	return d.announcements.NewAnnouncements(ctx, "publisher", d.publisher.Publish)
}
