package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const maintenanceBatch = 100

type MaintenanceReport struct {
	Normalized int
	Repaired   int
	Settled    int
}

// RunMaintenance normalizes legacy statuses, repairs missing completion stamps
// and, when autoSettleAfter is positive, settles bookings completed before
// now-autoSettleAfter. Failures on single rows are logged and skipped.
func (s *Service) RunMaintenance(ctx context.Context, autoSettleAfter time.Duration) (MaintenanceReport, error) {
	var report MaintenanceReport

	n, err := s.NormalizeLegacyStatuses(ctx)
	if err != nil {
		return report, err
	}
	report.Normalized = n

	n, err = s.RepairMissingCompletedAt(ctx)
	if err != nil {
		return report, err
	}
	report.Repaired = n

	if autoSettleAfter > 0 {
		n, err = s.AutoSettle(ctx, s.clock.Now().Add(-autoSettleAfter))
		if err != nil {
			return report, err
		}
		report.Settled = n
	}

	return report, nil
}

// NormalizeLegacyStatuses rewrites historical status spellings to the canonical
// enum and brings occupiesSlot and completedAt in line with it.
func (s *Service) NormalizeLegacyStatuses(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindNonCanonicalStatus(ctx, maintenanceBatch)
	if err != nil {
		return 0, fmt.Errorf("find non-canonical statuses: %w", err)
	}

	fixed := 0
	for _, b := range candidates {
		target := b.Status.Canonical()
		if target == StatusUnknown {
			log.Printf("booking %s has unrecognised status %q, leaving it for manual review", b.ID, b.Status)
			continue
		}

		err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
			cur, err := tx.GetBookingForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			if cur.Status == cur.Status.Canonical() {
				return nil
			}

			next := StatusUpdate{Status: target, OccupiesSlot: target.Occupies()}
			if target == StatusCompleted {
				next.CompletedAt = completionStamp(cur, s.clock.Now())
			}

			if _, err := tx.UpdateBookingStatus(ctx, cur.ID, next.Status, next.OccupiesSlot, next.CompletedAt); err != nil {
				return err
			}
			_, err = logEvent(ctx, tx, cur.ID, EventBookingStatusChanged, map[string]any{
				"from":   cur.Status,
				"to":     next.Status,
				"reason": "normalize_legacy_status",
			})
			return err
		})
		if err != nil {
			if errors.Is(err, ErrUniqueViolation) {
				log.Printf("booking %s collides with another occupying booking, leaving status %q", b.ID, b.Status)
			} else {
				log.Printf("failed to normalize status of booking %s: %v", b.ID, err)
			}
			continue
		}
		fixed++
	}

	return fixed, nil
}

// RepairMissingCompletedAt stamps completed bookings that lack a completion time.
func (s *Service) RepairMissingCompletedAt(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindCompletedMissingCompletedAt(ctx, maintenanceBatch)
	if err != nil {
		return 0, fmt.Errorf("find completed bookings without completed_at: %w", err)
	}

	repaired := 0
	for _, b := range candidates {
		err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
			cur, err := tx.GetBookingForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			if cur.Status.Canonical() != StatusCompleted || cur.CompletedAt != nil {
				return nil
			}

			stamp := completionStamp(cur, s.clock.Now())
			if _, err := tx.UpdateBookingStatus(ctx, cur.ID, StatusCompleted, false, stamp); err != nil {
				return err
			}
			_, err = logEvent(ctx, tx, cur.ID, EventBookingStatusChanged, map[string]any{
				"from":         cur.Status,
				"to":           StatusCompleted,
				"completed_at": stamp,
				"reason":       "repair_completed_at",
			})
			return err
		})
		if err != nil {
			log.Printf("failed to repair completed_at of booking %s: %v", b.ID, err)
			continue
		}
		repaired++
	}

	return repaired, nil
}

// AutoSettle settles completed bookings whose completion is older than before.
func (s *Service) AutoSettle(ctx context.Context, before time.Time) (int, error) {
	candidates, err := s.repo.FindUnsettledCompleted(ctx, before, maintenanceBatch)
	if err != nil {
		return 0, fmt.Errorf("find unsettled completed bookings: %w", err)
	}

	settled := 0
	for _, b := range candidates {
		res, err := s.Settle(ctx, b.ID)
		if err != nil {
			log.Printf("failed to auto-settle booking %s: %v", b.ID, err)
			continue
		}
		if !res.AlreadySettled {
			settled++
		}
	}

	return settled, nil
}

// completionStamp keeps an existing stamp, otherwise uses the scheduled end
// when it has already passed.
func completionStamp(b *Booking, now time.Time) *time.Time {
	if b.CompletedAt != nil {
		return b.CompletedAt
	}
	t := now.UTC()
	if b.EndAt.Before(t) {
		t = b.EndAt.UTC()
	}
	return &t
}
