package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the resolver, the
// state machine and the scheduler.
//
// Time arguments named "wall" are local wall-clock values in the practice
// time zone with the zone dropped (see WallClock); bookings store date and
// time without a zone.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)

	// Availability
	ListWindows(ctx context.Context, practitionerID uuid.UUID) ([]Window, error)
	AddWindow(ctx context.Context, w Window) (*Window, error)
	DeleteWindow(ctx context.Context, practitionerID, windowID uuid.UUID) error
	ListBlackouts(ctx context.Context, practitionerID uuid.UUID) ([]Blackout, error)
	AddBlackout(ctx context.Context, b Blackout) (*Blackout, error)
	DeleteBlackout(ctx context.Context, practitionerID, blackoutID uuid.UUID) error

	// Conflict checks
	ListActiveBookingsForDay(ctx context.Context, practitionerID uuid.UUID, date Date) ([]Booking, error)
	HasBookingWith(ctx context.Context, patientID, practitionerID uuid.UUID) (bool, error)

	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error)

	// Creation and updates. CreateBooking and RescheduleBooking return
	// ErrSlotTaken when the store's active-slot constraint rejects the row.
	CreateBooking(ctx context.Context, b Booking) (*Booking, error)
	RescheduleBooking(ctx context.Context, id uuid.UUID, date Date, t ClockTime) (*Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error)
	StampJoin(ctx context.Context, id uuid.UUID, party Party, at time.Time) (*Booking, error)
	PromoteCompleted(ctx context.Context, id uuid.UUID) (*Booking, bool, error)

	// Scheduler scans
	ListOpenStartedBefore(ctx context.Context, wall time.Time) ([]Booking, error)
	ListDueReminders(ctx context.Context, fromWall, toWall time.Time) ([]Booking, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListLatestCompleted(ctx context.Context) ([]Booking, error)
	HasUpcomingBooking(ctx context.Context, patientID, practitionerID uuid.UUID, afterWall time.Time) (bool, error)
	EnsureFollowup(ctx context.Context, patientID, practitionerID, bookingID uuid.UUID) (*FollowupState, error)
	MarkFollowupSent(ctx context.Context, id uuid.UUID, m Milestone, at time.Time) (bool, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
