package booking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Availability is the result of GenerateSlots. When Available is false,
// Reason explains why and Slots is empty.
type Availability struct {
	Date      Date        `json:"date"`
	Available bool        `json:"available"`
	Reason    string      `json:"reason,omitempty"`
	Slots     []ClockTime `json:"slots"`
}

// Resolver computes bookable slots from weekly windows, blackout ranges and
// the bookings already holding a slot.
type Resolver struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

func NewResolver(repo Repository, loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{repo: repo, loc: loc, now: now}
}

// Location returns the practice time zone used for "today" and "now".
func (r *Resolver) Location() *time.Location {
	return r.loc
}

func (r *Resolver) GenerateSlots(ctx context.Context, practitionerID uuid.UUID, date Date) (Availability, error) {
	result := Availability{Date: date, Slots: []ClockTime{}}

	if _, err := r.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return result, err
	}

	blocked, err := r.blackedOut(ctx, practitionerID, date)
	if err != nil {
		return result, err
	}
	if blocked {
		result.Reason = ReasonBlackout
		return result, nil
	}

	windows, err := r.windowsFor(ctx, practitionerID, date)
	if err != nil {
		return result, err
	}
	if len(windows) == 0 {
		result.Reason = ReasonNonWorkingDay
		return result, nil
	}

	taken, err := r.takenSlots(ctx, practitionerID, date, uuid.Nil)
	if err != nil {
		return result, err
	}

	now := r.now().In(r.loc)
	today := DateOf(now)
	nowClock := NewClockTime(now.Hour(), now.Minute())

	for _, slot := range expandWindows(windows) {
		if taken[slot] {
			continue
		}
		if date == today && slot <= nowClock {
			continue
		}
		if date.Before(today) {
			continue
		}
		result.Slots = append(result.Slots, slot)
	}

	result.Available = true
	return result, nil
}

// IsSlotBookable re-checks a single slot at write time. excludeBookingID lets
// a reschedule ignore the slot its own booking currently holds.
func (r *Resolver) IsSlotBookable(ctx context.Context, practitionerID uuid.UUID, date Date, t ClockTime, excludeBookingID uuid.UUID) (bool, string, error) {
	if !t.OnHour() {
		return false, ReasonNotOnHour, nil
	}
	if !date.At(t, r.loc).After(r.now()) {
		return false, ReasonInPast, nil
	}

	blocked, err := r.blackedOut(ctx, practitionerID, date)
	if err != nil {
		return false, "", err
	}
	if blocked {
		return false, ReasonBlackout, nil
	}

	windows, err := r.windowsFor(ctx, practitionerID, date)
	if err != nil {
		return false, "", err
	}
	inWindow := false
	for _, slot := range expandWindows(windows) {
		if slot == t {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false, ReasonOutsideWindow, nil
	}

	taken, err := r.takenSlots(ctx, practitionerID, date, excludeBookingID)
	if err != nil {
		return false, "", err
	}
	if taken[t] {
		return false, ReasonAlreadyBooked, nil
	}

	return true, "", nil
}

func (r *Resolver) ListWindows(ctx context.Context, practitionerID uuid.UUID) ([]Window, error) {
	if _, err := r.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	windows, err := r.repo.ListWindows(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	return windows, nil
}

func (r *Resolver) AddWindow(ctx context.Context, w Window) (*Window, error) {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return nil, Validation("weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	if w.Start < 0 || w.End > NewClockTime(24, 0) || w.Start >= w.End {
		return nil, Validation("window start must be before its end")
	}
	if _, err := r.repo.GetPractitionerByID(ctx, w.PractitionerID); err != nil {
		return nil, err
	}
	created, err := r.repo.AddWindow(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("add window: %w", err)
	}
	return created, nil
}

func (r *Resolver) RemoveWindow(ctx context.Context, practitionerID, windowID uuid.UUID) error {
	return r.repo.DeleteWindow(ctx, practitionerID, windowID)
}

func (r *Resolver) ListBlackouts(ctx context.Context, practitionerID uuid.UUID) ([]Blackout, error) {
	if _, err := r.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	blackouts, err := r.repo.ListBlackouts(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	return blackouts, nil
}

// AddBlackout stores a vacation range. A zero EndDate means a single day.
func (r *Resolver) AddBlackout(ctx context.Context, b Blackout) (*Blackout, error) {
	if b.StartDate.IsZero() {
		return nil, Validation("blackout start date is required")
	}
	if b.EndDate.IsZero() {
		b.EndDate = b.StartDate
	}
	if b.EndDate.Before(b.StartDate) {
		return nil, Validation("blackout end date must not be before its start date")
	}
	if _, err := r.repo.GetPractitionerByID(ctx, b.PractitionerID); err != nil {
		return nil, err
	}
	created, err := r.repo.AddBlackout(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("add blackout: %w", err)
	}
	return created, nil
}

func (r *Resolver) RemoveBlackout(ctx context.Context, practitionerID, blackoutID uuid.UUID) error {
	return r.repo.DeleteBlackout(ctx, practitionerID, blackoutID)
}

func (r *Resolver) blackedOut(ctx context.Context, practitionerID uuid.UUID, date Date) (bool, error) {
	blackouts, err := r.repo.ListBlackouts(ctx, practitionerID)
	if err != nil {
		return false, fmt.Errorf("list blackouts: %w", err)
	}
	for _, b := range blackouts {
		if b.Covers(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) windowsFor(ctx context.Context, practitionerID uuid.UUID, date Date) ([]Window, error) {
	all, err := r.repo.ListWindows(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	weekday := date.Weekday()
	var out []Window
	for _, w := range all {
		if w.Weekday == weekday {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *Resolver) takenSlots(ctx context.Context, practitionerID uuid.UUID, date Date, exclude uuid.UUID) (map[ClockTime]bool, error) {
	bookings, err := r.repo.ListActiveBookingsForDay(ctx, practitionerID, date)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	taken := make(map[ClockTime]bool, len(bookings))
	for _, b := range bookings {
		if b.ID == exclude || !b.Status.Active() {
			continue
		}
		taken[b.Time] = true
	}
	return taken, nil
}

// expandWindows turns windows into whole-hour slot starts, merged and sorted.
// A window's first slot is its start rounded up to the hour; a trailing
// partial hour is dropped.
func expandWindows(windows []Window) []ClockTime {
	seen := make(map[ClockTime]bool)
	var slots []ClockTime
	step := ClockTime(SlotDuration / time.Minute)

	for _, w := range windows {
		slot := w.Start
		if !slot.OnHour() {
			slot = NewClockTime(slot.Hour()+1, 0)
		}
		for ; slot+step <= w.End; slot += step {
			if !seen[slot] {
				seen[slot] = true
				slots = append(slots, slot)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}
