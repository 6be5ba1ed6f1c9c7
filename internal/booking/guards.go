package booking

import (
	"fmt"
	"time"
)

const (
	// CancelLeadTime is the minimum time before start at which a booking can
	// still be cancelled.
	CancelLeadTime = 36 * time.Hour
	// RescheduleLeadTime is the minimum time before the original start at
	// which a booking can still be moved.
	RescheduleLeadTime = 24 * time.Hour
)

func requireOpen(b *Booking, action string) error {
	if !b.Status.Open() {
		return InvalidState(fmt.Sprintf("cannot %s a %s booking", action, b.Status))
	}
	return nil
}

// CanConfirm allows pending bookings whose session has not started yet.
func CanConfirm(b *Booking, now time.Time, loc *time.Location) error {
	if b.Status != StatusPending {
		return InvalidState(fmt.Sprintf("cannot confirm a %s booking", b.Status))
	}
	if !now.Before(b.StartsAt(loc)) {
		return InvalidState("cannot confirm a booking whose session has started")
	}
	return nil
}

func CanReschedule(b *Booking, now time.Time, loc *time.Location) error {
	if err := requireOpen(b, "reschedule"); err != nil {
		return err
	}
	if b.StartsAt(loc).Sub(now) < RescheduleLeadTime {
		return LeadTimeViolation("bookings can only be rescheduled at least 24 hours before the session")
	}
	return nil
}

func CanCancel(b *Booking, now time.Time, loc *time.Location) error {
	if err := requireOpen(b, "cancel"); err != nil {
		return err
	}
	if b.StartsAt(loc).Sub(now) < CancelLeadTime {
		return LeadTimeViolation("bookings can only be cancelled at least 36 hours before the session")
	}
	return nil
}

// CanJoin accepts open bookings. A completed booking is accepted too so a
// late or repeated join stays a no-op.
func CanJoin(b *Booking, party Party) error {
	if !party.Valid() {
		return Validation(fmt.Sprintf("unknown party %q", party))
	}
	if b.Status.Open() || b.Status == StatusCompleted {
		return nil
	}
	return InvalidState(fmt.Sprintf("cannot join a %s booking", b.Status))
}

// CanMarkMissed requires an open booking whose whole slot has elapsed.
func CanMarkMissed(b *Booking, now time.Time, loc *time.Location) error {
	if err := requireOpen(b, "mark missed"); err != nil {
		return err
	}
	if now.Before(b.EndsAt(loc)) {
		return InvalidState("session has not ended yet")
	}
	return nil
}
