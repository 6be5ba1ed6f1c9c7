package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/logging"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

const (
	EventBookingCreated     = "BOOKING_CREATED"
	EventBookingConfirmed   = "BOOKING_CONFIRMED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingJoined      = "BOOKING_JOINED"
	EventBookingCompleted   = "BOOKING_COMPLETED"
	EventBookingMissed      = "BOOKING_MISSED"
)

var (
	ErrSlotBeingBooked  = newError(KindSlotUnavailable, "slot is currently being booked, please retry")
	errChangedMeanwhile = InvalidState("booking changed while the request was processed")
)

// Event names a lifecycle notification.
type Event string

const (
	NotifyCreated     Event = "created"
	NotifyRescheduled Event = "rescheduled"
	NotifyCancelled   Event = "cancelled"
	NotifyReminder    Event = "reminder"
	NotifyFollowup15  Event = "followup-15"
	NotifyFollowup30  Event = "followup-30"
	NotifyFollowup60  Event = "followup-60"
)

// FollowupEvent returns the notification for a re-engagement milestone.
func FollowupEvent(m Milestone) Event {
	return Event(fmt.Sprintf("followup-%d", int(m)))
}

// Notifier receives lifecycle notifications. Implementations must not block
// the caller on delivery and never report failures back.
type Notifier interface {
	Notify(ctx context.Context, event Event, b Booking, parties Parties)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event, Booking, Parties) {}

type CreateInput struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Date           Date
	Time           ClockTime
	Note           *string
	Motive         *string
	Source         Source
}

type RescheduleInput struct {
	BookingID uuid.UUID
	// PatientID, when set, must own the booking.
	PatientID uuid.UUID
	Date      Date
	Time      ClockTime
}

type CancelInput struct {
	BookingID uuid.UUID
	PatientID uuid.UUID
}

type JoinResult struct {
	Booking  *Booking
	Promoted bool
}

// Service is the booking state machine.
type Service struct {
	repo     Repository
	resolver *Resolver
	locker   redisclient.Locker
	notifier Notifier
}

func NewService(repo Repository, resolver *Resolver, locker redisclient.Locker, notifier Notifier) *Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		notifier: notifier,
	}
}

func (s *Service) now() time.Time { return s.resolver.now() }

func (s *Service) loc() *time.Location { return s.resolver.loc }

func (s *Service) Resolver() *Resolver { return s.resolver }

func slotKey(practitionerID uuid.UUID, date Date, t ClockTime) string {
	return fmt.Sprintf("%s:%s:%s", practitionerID, date, t)
}

// Create books a slot for a patient. The availability re-check and the insert
// run under a distributed lock for the slot; the store's active-slot index
// rejects anything that still slips through.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Booking, error) {
	if in.PatientID == uuid.Nil || in.PractitionerID == uuid.Nil {
		return nil, Validation("patient and practitioner are required")
	}
	if in.Date.IsZero() {
		return nil, Validation("date is required")
	}
	if in.Source == "" {
		in.Source = SourcePatient
	}

	patient, err := s.repo.GetPatientByID(ctx, in.PatientID)
	if err != nil {
		if IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	practitioner, err := s.repo.GetPractitionerByID(ctx, in.PractitionerID)
	if err != nil {
		if IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	var created *Booking

	err = s.locker.WithSlotLock(ctx, slotKey(in.PractitionerID, in.Date, in.Time), func(lockCtx context.Context) error {
		ok, reason, err := s.resolver.IsSlotBookable(lockCtx, in.PractitionerID, in.Date, in.Time, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if !ok {
			return SlotUnavailable(reason)
		}

		motive := in.Motive
		if motive != nil {
			returning, err := s.repo.HasBookingWith(lockCtx, in.PatientID, in.PractitionerID)
			if err != nil {
				return fmt.Errorf("check previous bookings: %w", err)
			}
			if returning {
				motive = nil
			}
		}

		b, err := s.repo.CreateBooking(lockCtx, Booking{
			PatientID:      in.PatientID,
			PractitionerID: in.PractitionerID,
			Date:           in.Date,
			Time:           in.Time,
			Note:           in.Note,
			Motive:         motive,
		})
		if err != nil {
			if IsDomain(err) {
				return err
			}
			return fmt.Errorf("create booking: %w", err)
		}
		created = b

		s.logEvent(lockCtx, b.ID, EventBookingCreated, map[string]any{
			"patient_id":      in.PatientID.String(),
			"practitioner_id": in.PractitionerID.String(),
			"date":            in.Date.String(),
			"time":            in.Time.String(),
			"source":          string(in.Source),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notifier.Notify(ctx, NotifyCreated, *created, Parties{Patient: patient, Practitioner: practitioner})
	return created, nil
}

// Confirm moves a pending booking to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanConfirm(b, s.now(), s.loc()); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, []Status{StatusPending}, StatusConfirmed)
	if err != nil {
		return nil, s.transitionErr("confirm booking", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingConfirmed, map[string]any{})
	return updated, nil
}

func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (*Booking, error) {
	if in.Date.IsZero() {
		return nil, Validation("date is required")
	}

	b, err := s.loadOwned(ctx, in.BookingID, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := CanReschedule(b, s.now(), s.loc()); err != nil {
		return nil, err
	}

	var updated *Booking

	err = s.locker.WithSlotLock(ctx, slotKey(b.PractitionerID, in.Date, in.Time), func(lockCtx context.Context) error {
		ok, reason, err := s.resolver.IsSlotBookable(lockCtx, b.PractitionerID, in.Date, in.Time, b.ID)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if !ok {
			return SlotUnavailable(reason)
		}

		u, err := s.repo.RescheduleBooking(lockCtx, b.ID, in.Date, in.Time)
		if err != nil {
			return s.transitionErr("reschedule booking", err)
		}
		updated = u

		s.logEvent(lockCtx, b.ID, EventBookingRescheduled, map[string]any{
			"from_date": b.Date.String(),
			"from_time": b.Time.String(),
			"to_date":   in.Date.String(),
			"to_time":   in.Time.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.notifyAsync(ctx, NotifyRescheduled, updated)
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, in CancelInput) (*Booking, error) {
	b, err := s.loadOwned(ctx, in.BookingID, in.PatientID)
	if err != nil {
		return nil, err
	}
	if err := CanCancel(b, s.now(), s.loc()); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, []Status{StatusPending, StatusConfirmed}, StatusCancelled)
	if err != nil {
		return nil, s.transitionErr("cancel booking", err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
		"previous_status": string(b.Status),
	})
	s.notifyAsync(ctx, NotifyCancelled, updated)
	return updated, nil
}

// RegisterJoin records that a party entered the session. Each timestamp is
// written once; the call that sees both set promotes the booking to
// completed.
func (s *Service) RegisterJoin(ctx context.Context, id uuid.UUID, party Party) (*JoinResult, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanJoin(b, party); err != nil {
		return nil, err
	}
	if b.Status == StatusCompleted {
		return &JoinResult{Booking: b}, nil
	}

	stamped, err := s.repo.StampJoin(ctx, id, party, s.now())
	if err != nil {
		if !errors.Is(err, ErrBookingNotFound) {
			return nil, fmt.Errorf("stamp join: %w", err)
		}
		// The booking left the open states meanwhile.
		current, getErr := s.load(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == StatusCompleted {
			return &JoinResult{Booking: current}, nil
		}
		return nil, InvalidState(fmt.Sprintf("cannot join a %s booking", current.Status))
	}

	if joinedAt(b, party) == nil {
		s.logEvent(ctx, id, EventBookingJoined, map[string]any{"party": string(party)})
	}

	if !stamped.BothJoined() {
		return &JoinResult{Booking: stamped}, nil
	}

	promotedBooking, promoted, err := s.repo.PromoteCompleted(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("promote booking: %w", err)
	}
	if promoted {
		s.logEvent(ctx, id, EventBookingCompleted, map[string]any{})
	}
	return &JoinResult{Booking: promotedBooking, Promoted: promoted}, nil
}

// MarkMissed closes an open booking whose session elapsed without both
// parties joining. Only the reconciliation task calls it.
func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanMarkMissed(b, s.now(), s.loc()); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, []Status{StatusPending, StatusConfirmed}, StatusMissed)
	if err != nil {
		return nil, s.transitionErr("mark booking missed", err)
	}

	s.logEvent(ctx, id, EventBookingMissed, map[string]any{
		"patient_joined":      b.PatientJoinedAt != nil,
		"practitioner_joined": b.PractitionerJoinedAt != nil,
	})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.load(ctx, id)
}

// ListByPatient returns a patient's bookings, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.repo.ListBookingsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by patient: %w", err)
	}
	return bookings, nil
}

// Parties loads the patient and practitioner of b.
func (s *Service) Parties(ctx context.Context, b *Booking) (Parties, error) {
	patient, err := s.repo.GetPatientByID(ctx, b.PatientID)
	if err != nil {
		return Parties{}, fmt.Errorf("load patient: %w", err)
	}
	practitioner, err := s.repo.GetPractitionerByID(ctx, b.PractitionerID)
	if err != nil {
		return Parties{}, fmt.Errorf("load practitioner: %w", err)
	}
	return Parties{Patient: patient, Practitioner: practitioner}, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if IsDomain(err) {
			return nil, err
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}
	return b, nil
}

// loadOwned hides bookings of other patients behind NotFound.
func (s *Service) loadOwned(ctx context.Context, id, patientID uuid.UUID) (*Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if patientID != uuid.Nil && b.PatientID != patientID {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// transitionErr maps a conditional UPDATE that matched no row to a state
// error; the guard passed on a row that changed before the write.
func (s *Service) transitionErr(op string, err error) error {
	if errors.Is(err, ErrBookingNotFound) {
		return errChangedMeanwhile
	}
	if IsDomain(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Service) notifyAsync(ctx context.Context, event Event, b *Booking) {
	parties, err := s.Parties(ctx, b)
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).
			Str("booking_id", b.ID.String()).
			Str("event", string(event)).
			Msg("skipping notification, parties not loaded")
		return
	}
	s.notifier.Notify(ctx, event, *b, parties)
}

func joinedAt(b *Booking, party Party) *time.Time {
	if party == PartyPatient {
		return b.PatientJoinedAt
	}
	return b.PractitionerJoinedAt
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	logger := logging.FromContext(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		logger.Error().Err(err).
			Str("event_type", eventType).
			Str("booking_id", bookingID.String()).
			Msg("failed to insert event log")
	}
}
