package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func guardBooking(status Status) *Booking {
	return &Booking{
		Date:   Date{Year: 2025, Month: time.March, Day: 10},
		Time:   NewClockTime(9, 0),
		Status: status,
	}
}

func TestCanCancelLeadTimeBoundary(t *testing.T) {
	b := guardBooking(StatusConfirmed)
	start := b.StartsAt(testLoc)

	assert.NoError(t, CanCancel(b, start.Add(-36*time.Hour), testLoc))
	assert.NoError(t, CanCancel(b, start.Add(-72*time.Hour), testLoc))

	err := CanCancel(b, start.Add(-36*time.Hour+time.Minute), testLoc)
	assert.ErrorIs(t, err, ErrLeadTimeViolation)
}

func TestCanRescheduleLeadTimeBoundary(t *testing.T) {
	b := guardBooking(StatusPending)
	start := b.StartsAt(testLoc)

	assert.NoError(t, CanReschedule(b, start.Add(-24*time.Hour), testLoc))

	err := CanReschedule(b, start.Add(-24*time.Hour+time.Minute), testLoc)
	assert.ErrorIs(t, err, ErrLeadTimeViolation)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusCancelled, StatusMissed} {
		b := guardBooking(status)
		early := b.StartsAt(testLoc).Add(-30 * 24 * time.Hour)
		late := b.EndsAt(testLoc).Add(time.Hour)

		assert.ErrorIs(t, CanCancel(b, early, testLoc), ErrInvalidStateForTransition, status)
		assert.ErrorIs(t, CanReschedule(b, early, testLoc), ErrInvalidStateForTransition, status)
		assert.ErrorIs(t, CanConfirm(b, early, testLoc), ErrInvalidStateForTransition, status)
		assert.ErrorIs(t, CanMarkMissed(b, late, testLoc), ErrInvalidStateForTransition, status)
	}
}

func TestCanJoin(t *testing.T) {
	assert.NoError(t, CanJoin(guardBooking(StatusPending), PartyPatient))
	assert.NoError(t, CanJoin(guardBooking(StatusConfirmed), PartyPractitioner))
	assert.NoError(t, CanJoin(guardBooking(StatusCompleted), PartyPatient))

	assert.ErrorIs(t, CanJoin(guardBooking(StatusCancelled), PartyPatient), ErrInvalidStateForTransition)
	assert.ErrorIs(t, CanJoin(guardBooking(StatusMissed), PartyPatient), ErrInvalidStateForTransition)
	assert.ErrorIs(t, CanJoin(guardBooking(StatusPending), Party("observer")), ErrValidation)
}

func TestCanMarkMissedNeedsElapsedSlot(t *testing.T) {
	b := guardBooking(StatusPending)
	start := b.StartsAt(testLoc)

	assert.ErrorIs(t, CanMarkMissed(b, start.Add(5*time.Minute), testLoc), ErrInvalidStateForTransition)
	assert.NoError(t, CanMarkMissed(b, start.Add(time.Hour), testLoc))
}

func TestCanConfirm(t *testing.T) {
	b := guardBooking(StatusPending)
	start := b.StartsAt(testLoc)

	assert.NoError(t, CanConfirm(b, start.Add(-time.Minute), testLoc))
	assert.ErrorIs(t, CanConfirm(b, start, testLoc), ErrInvalidStateForTransition)
	assert.ErrorIs(t, CanConfirm(guardBooking(StatusConfirmed), start.Add(-time.Hour), testLoc), ErrInvalidStateForTransition)
}
