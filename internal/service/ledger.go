package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/event-admission/internal/model"
)

// confirmedCount is the capacity ledger: the number of REGISTERED rows for
// the event. It is derived, never stored, and only trustworthy when ctx
// carries a transaction that already holds the lock from LockEvent.
func (s *AdmissionService) confirmedCount(ctx context.Context, eventID string) (int, error) {
	n, err := s.registrations.CountByStatus(ctx, eventID, model.StatusRegistered)
	if err != nil {
		return 0, fmt.Errorf("count registered: %w", err)
	}
	return n, nil
}

// lockEvent takes the per-event admission lock and returns the current
// capacity configuration.
func (s *AdmissionService) lockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	ev, err := s.events.LockEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, model.NotFoundf("event %s not found", eventID)
	}
	return ev, nil
}
