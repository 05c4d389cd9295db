package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

const bpsDenominator = 10000

type FeeSplit struct {
	Total       int64
	PlatformFee int64
	StaffFee    int64
	ShopAmount  int64
}

// SplitFees divides total (minor units) by basis points. Each fee is rounded
// down and the shop receives the remainder, so the parts always sum to total.
func SplitFees(total int64, platformBps, staffBps int) FeeSplit {
	platformBps = clampBps(platformBps)
	staffBps = clampBps(min(staffBps, bpsDenominator-platformBps))

	platform := bpsOf(total, platformBps)
	staff := bpsOf(total, staffBps)
	return FeeSplit{
		Total:       total,
		PlatformFee: platform,
		StaffFee:    staff,
		ShopAmount:  total - platform - staff,
	}
}

// bpsOf is floor(total*bps/10000) without overflowing for large totals.
func bpsOf(total int64, bps int) int64 {
	if total <= 0 || bps <= 0 {
		return 0
	}
	b := int64(bps)
	return (total/bpsDenominator)*b + (total%bpsDenominator)*b/bpsDenominator
}

func clampBps(bps int) int {
	return min(max(bps, 0), bpsDenominator)
}

type SettleResult struct {
	AlreadySettled bool
	Entry          *Settlement
	Booking        *Booking
}

// Settle writes the booking's single ledger entry, completing the booking
// first when needed. Settling twice returns the existing entry.
func (s *Service) Settle(ctx context.Context, id uuid.UUID) (*SettleResult, error) {
	res, err := s.settle(ctx, id)
	if errors.Is(err, ErrUniqueViolation) {
		// a concurrent settle committed first
		res, err = s.existingSettlement(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Settlement(res.AlreadySettled)
	return res, nil
}

func (s *Service) settle(ctx context.Context, id uuid.UUID) (*SettleResult, error) {
	var (
		result *SettleResult
		events []pendingEvent
	)

	err := s.repo.InTx(ctx, func(ctx context.Context, tx Repository) error {
		b, err := tx.GetBookingForUpdate(ctx, id)
		if err != nil {
			return wrapLookup("load booking", err, ErrBookingNotFound)
		}

		existing, err := tx.GetSettlementByBookingID(ctx, id)
		switch {
		case err == nil:
			result = &SettleResult{AlreadySettled: true, Entry: existing, Booking: b}
			return nil
		case !errors.Is(err, ErrSettlementNotFound):
			return fmt.Errorf("load settlement: %w", err)
		}

		if b.Status.Canonical() == StatusCancelled {
			return ErrCannotSettleCancelled
		}

		if b.Status.Canonical() != StatusCompleted || b.CompletedAt == nil {
			next, changed, err := PlanTransition(b, StatusCompleted, s.clock.Now())
			if err != nil {
				return err
			}
			if changed {
				updated, err := tx.UpdateBookingStatus(ctx, id, next.Status, next.OccupiesSlot, next.CompletedAt)
				if err != nil {
					return fmt.Errorf("complete booking: %w", err)
				}
				ev, err := logEvent(ctx, tx, id, EventBookingStatusChanged, map[string]any{
					"from":          b.Status,
					"to":            next.Status,
					"occupies_slot": next.OccupiesSlot,
					"completed_at":  next.CompletedAt,
					"reason":        "settlement",
				})
				if err != nil {
					return err
				}
				events = append(events, ev)
				b = updated
			}
		}

		platformBps, staffBps, err := s.feeRates(ctx, tx, b.ShopID)
		if err != nil {
			return err
		}
		split := SplitFees(b.Price, platformBps, staffBps)

		entry, err := tx.InsertSettlement(ctx, &Settlement{
			BookingID:         id,
			TotalAmount:       split.Total,
			PlatformFeeAmount: split.PlatformFee,
			StaffFeeAmount:    split.StaffFee,
			ShopAmount:        split.ShopAmount,
			PlatformFeeBps:    platformBps,
			StaffFeeBps:       staffBps,
		})
		if err != nil {
			return err
		}
		b.SettlementID = &entry.ID

		ev, err := logEvent(ctx, tx, id, EventBookingSettled, map[string]any{
			"settlement_id":       entry.ID.String(),
			"total_amount":        split.Total,
			"platform_fee_amount": split.PlatformFee,
			"staff_fee_amount":    split.StaffFee,
			"shop_amount":         split.ShopAmount,
		})
		if err != nil {
			return err
		}
		events = append(events, ev)

		result = &SettleResult{Entry: entry, Booking: b}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events...)
	return result, nil
}

func (s *Service) existingSettlement(ctx context.Context, id uuid.UUID) (*SettleResult, error) {
	entry, err := s.repo.GetSettlementByBookingID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload settlement: %w", err)
	}
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload booking: %w", err)
	}
	log.Printf("settlement for booking %s was written concurrently, returning existing entry %s", id, entry.ID)
	return &SettleResult{AlreadySettled: true, Entry: entry, Booking: b}, nil
}

// feeRates reads the shop's rates, falling back to the configured defaults.
func (s *Service) feeRates(ctx context.Context, tx Repository, shopID uuid.UUID) (int, int, error) {
	platformBps, staffBps := s.cfg.PlatformFeeBps, s.cfg.StaffFeeBps

	shop, err := tx.GetShopByID(ctx, shopID)
	if err != nil {
		return 0, 0, wrapLookup("load shop", err, ErrShopNotFound)
	}
	if shop.PlatformFeeBps != nil {
		platformBps = *shop.PlatformFeeBps
	}
	if shop.StaffFeeBps != nil {
		staffBps = *shop.StaffFeeBps
	}

	platformBps = clampBps(platformBps)
	staffBps = clampBps(min(staffBps, bpsDenominator-platformBps))
	return platformBps, staffBps, nil
}
