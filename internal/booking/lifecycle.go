package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StatusUpdate is the full set of columns a status change writes together.
type StatusUpdate struct {
	Status       Status
	OccupiesSlot bool
	CompletedAt  *time.Time
}

// PlanTransition computes the row state for moving b to target. The returned
// update always keeps status, completedAt and occupiesSlot consistent with each
// other; changed is false when the stored row already matches it.
func PlanTransition(b *Booking, target Status, now time.Time) (StatusUpdate, bool, error) {
	to := target.Canonical()
	if to == StatusUnknown {
		return StatusUpdate{}, false, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	from := b.Status.Canonical()
	switch from {
	case StatusUnknown:
		return StatusUpdate{}, false, fmt.Errorf("%w: stored status %q is not recognised", ErrInvalidTransition, b.Status)
	case StatusCompleted:
		if to == StatusCancelled {
			return StatusUpdate{}, false, ErrCannotCancelCompleted
		}
		if to != StatusCompleted {
			return StatusUpdate{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
	case StatusCancelled:
		if to != StatusCancelled {
			return StatusUpdate{}, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
	}

	next := StatusUpdate{Status: to, OccupiesSlot: to.Occupies()}
	if to == StatusCompleted {
		if b.CompletedAt != nil {
			next.CompletedAt = b.CompletedAt
		} else {
			t := now.UTC()
			next.CompletedAt = &t
		}
	}

	changed := b.Status != next.Status ||
		b.OccupiesSlot != next.OccupiesSlot ||
		!sameInstant(b.CompletedAt, next.CompletedAt)
	return next, changed, nil
}

type StatusResult struct {
	Changed bool
	Booking *Booking
}

// SetStatus moves a booking to the status named by raw, which may be any
// accepted spelling. Repeating the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, raw string) (*StatusResult, error) {
	target := CanonicalStatus(raw)
	if target == StatusUnknown {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s.transition(ctx, id, target)
}

// Cancel releases the booking's slot. Cancelling a completed booking fails.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*StatusResult, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// Complete marks the booking done and stamps completedAt once.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*StatusResult, error) {
	return s.transition(ctx, id, StatusCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target Status) (*StatusResult, error) {
	var (
		result *StatusResult
		event  pendingEvent
	)

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return wrapLookup("load booking", err, ErrBookingNotFound)
		}

		next, changed, err := PlanTransition(b, target, s.clock.Now())
		if err != nil {
			return err
		}
		if !changed {
			result = &StatusResult{Changed: false, Booking: b}
			return nil
		}

		updated, err := tx.UpdateBookingStatus(ctx, id, next.Status, next.OccupiesSlot, next.CompletedAt)
		if err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}

		ev, err := logEvent(ctx, tx, id, EventBookingStatusChanged, map[string]any{
			"from":          b.Status,
			"to":            next.Status,
			"occupies_slot": next.OccupiesSlot,
			"completed_at":  next.CompletedAt,
		})
		if err != nil {
			return err
		}

		result = &StatusResult{Changed: true, Booking: updated}
		event = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(target), result.Changed)
	s.publish(ctx, event)
	return result, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
