package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. It applies the same
// active-slot uniqueness rule as the bookings_active_slot_uniq index.
type MemoryRepository struct {
	mu            sync.Mutex
	patients      map[uuid.UUID]Patient
	practitioners map[uuid.UUID]Practitioner
	windows       map[uuid.UUID]Window
	blackouts     map[uuid.UUID]Blackout
	bookings      map[uuid.UUID]Booking
	followups     map[uuid.UUID]FollowupState
	events        []EventLog
	nextEventID   int64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:      make(map[uuid.UUID]Patient),
		practitioners: make(map[uuid.UUID]Practitioner),
		windows:       make(map[uuid.UUID]Window),
		blackouts:     make(map[uuid.UUID]Blackout),
		bookings:      make(map[uuid.UUID]Booking),
		followups:     make(map[uuid.UUID]FollowupState),
	}
}

// AddPatient registers a patient. Patients are managed by other services;
// this is used for seeding and tests.
func (r *MemoryRepository) AddPatient(p Patient) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = p
	return &p
}

func (r *MemoryRepository) AddPractitioner(p Practitioner) *Practitioner {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.practitioners[p.ID] = p
	return &p
}

// PutBooking stores b as is, bypassing every check. Tests use it to set up
// bookings in the past or in terminal states.
func (r *MemoryRepository) PutBooking(b Booking) *Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
		b.UpdatedAt = b.CreatedAt
	}
	r.bookings[b.ID] = b
	return &b
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPractitionerByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListWindows(_ context.Context, practitionerID uuid.UUID) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, w := range r.windows {
		if w.PractitionerID == practitionerID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (r *MemoryRepository) AddWindow(_ context.Context, w Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	r.windows[w.ID] = w
	return &w, nil
}

func (r *MemoryRepository) DeleteWindow(_ context.Context, practitionerID, windowID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[windowID]
	if !ok || w.PractitionerID != practitionerID {
		return ErrWindowNotFound
	}
	delete(r.windows, windowID)
	return nil
}

func (r *MemoryRepository) ListBlackouts(_ context.Context, practitionerID uuid.UUID) ([]Blackout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Blackout
	for _, b := range r.blackouts {
		if b.PractitionerID == practitionerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *MemoryRepository) AddBlackout(_ context.Context, b Blackout) (*Blackout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now()
	r.blackouts[b.ID] = b
	return &b, nil
}

func (r *MemoryRepository) DeleteBlackout(_ context.Context, practitionerID, blackoutID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blackouts[blackoutID]
	if !ok || b.PractitionerID != practitionerID {
		return ErrBlackoutNotFound
	}
	delete(r.blackouts, blackoutID)
	return nil
}

func (r *MemoryRepository) ListActiveBookingsForDay(_ context.Context, practitionerID uuid.UUID, date Date) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(func(b Booking) bool {
		return b.PractitionerID == practitionerID && b.Date == date && b.Status.Active()
	}), nil
}

func (r *MemoryRepository) HasBookingWith(_ context.Context, patientID, practitionerID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.PatientID == patientID && b.PractitionerID == practitionerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) ListBookingsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.filterLocked(func(b Booking) bool { return b.PatientID == patientID })
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) CreateBooking(_ context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if r.slotTakenLocked(b.PractitionerID, b.Date, b.Time, uuid.Nil) {
		return nil, ErrSlotTaken
	}
	now := time.Now()
	b.Status = StatusPending
	b.PatientJoinedAt, b.PractitionerJoinedAt, b.ReminderSentAt = nil, nil, nil
	b.CreatedAt, b.UpdatedAt = now, now
	r.bookings[b.ID] = b
	return &b, nil
}

func (r *MemoryRepository) RescheduleBooking(_ context.Context, id uuid.UUID, date Date, t ClockTime) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || !b.Status.Open() {
		return nil, ErrBookingNotFound
	}
	if r.slotTakenLocked(b.PractitionerID, date, t, id) {
		return nil, ErrSlotTaken
	}
	b.Date, b.Time = date, t
	b.Status = StatusPending
	b.ReminderSentAt = nil
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) UpdateBookingStatus(_ context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || !statusIn(b.Status, from) {
		return nil, ErrBookingNotFound
	}
	if to.Active() && !b.Status.Active() && r.slotTakenLocked(b.PractitionerID, b.Date, b.Time, id) {
		return nil, ErrSlotTaken
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) StampJoin(_ context.Context, id uuid.UUID, party Party, at time.Time) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || !b.Status.Open() {
		return nil, ErrBookingNotFound
	}
	stamp := at
	switch party {
	case PartyPatient:
		if b.PatientJoinedAt == nil {
			b.PatientJoinedAt = &stamp
		}
	case PartyPractitioner:
		if b.PractitionerJoinedAt == nil {
			b.PractitionerJoinedAt = &stamp
		}
	default:
		return nil, fmt.Errorf("unknown party %q", party)
	}
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) PromoteCompleted(_ context.Context, id uuid.UUID) (*Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, false, ErrBookingNotFound
	}
	if !b.Status.Open() || !b.BothJoined() {
		return &b, false, nil
	}
	b.Status = StatusCompleted
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	return &b, true, nil
}

func (r *MemoryRepository) ListOpenStartedBefore(_ context.Context, wall time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(func(b Booking) bool {
		return b.Status.Open() && !b.StartsAt(time.UTC).After(wall)
	}), nil
}

func (r *MemoryRepository) ListDueReminders(_ context.Context, fromWall, toWall time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(func(b Booking) bool {
		start := b.StartsAt(time.UTC)
		return b.Status.Open() && b.ReminderSentAt == nil &&
			!start.Before(fromWall) && !start.After(toWall)
	}), nil
}

func (r *MemoryRepository) MarkReminderSent(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.ReminderSentAt != nil {
		return false, nil
	}
	stamp := at
	b.ReminderSentAt = &stamp
	r.bookings[id] = b
	return true, nil
}

func (r *MemoryRepository) ListLatestCompleted(_ context.Context) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type pair struct{ patient, practitioner uuid.UUID }
	latest := make(map[pair]Booking)
	for _, b := range r.bookings {
		if b.Status != StatusCompleted {
			continue
		}
		k := pair{b.PatientID, b.PractitionerID}
		cur, ok := latest[k]
		if !ok || cur.StartsAt(time.UTC).Before(b.StartsAt(time.UTC)) {
			latest[k] = b
		}
	}
	out := make([]Booking, 0, len(latest))
	for _, b := range latest {
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (r *MemoryRepository) HasUpcomingBooking(_ context.Context, patientID, practitionerID uuid.UUID, afterWall time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.PatientID == patientID && b.PractitionerID == practitionerID &&
			b.Status.Open() && b.StartsAt(time.UTC).After(afterWall) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) EnsureFollowup(_ context.Context, patientID, practitionerID, bookingID uuid.UUID) (*FollowupState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.followups {
		if f.PatientID == patientID && f.BookingID == bookingID {
			return &f, nil
		}
	}
	f := FollowupState{
		ID:             uuid.New(),
		PatientID:      patientID,
		PractitionerID: practitionerID,
		BookingID:      bookingID,
		CreatedAt:      time.Now(),
	}
	r.followups[f.ID] = f
	return &f, nil
}

func (r *MemoryRepository) MarkFollowupSent(_ context.Context, id uuid.UUID, m Milestone, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.followups[id]
	if !ok {
		return false, ErrFollowupNotFound
	}
	stamp := at
	var marker **time.Time
	switch m {
	case Milestone15:
		marker = &f.Sent15At
	case Milestone30:
		marker = &f.Sent30At
	case Milestone60:
		marker = &f.Sent60At
	default:
		return false, fmt.Errorf("unknown follow-up milestone %d", m)
	}
	if *marker != nil {
		return false, nil
	}
	*marker = &stamp
	r.followups[id] = f
	return true, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) slotTakenLocked(practitionerID uuid.UUID, date Date, t ClockTime, exclude uuid.UUID) bool {
	for id, b := range r.bookings {
		if id == exclude {
			continue
		}
		if b.PractitionerID == practitionerID && b.Date == date && b.Time == t && b.Status.Active() {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) filterLocked(keep func(Booking) bool) []Booking {
	var out []Booking
	for _, b := range r.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

func sortBookings(bs []Booking) {
	sort.Slice(bs, func(i, j int) bool {
		si, sj := bs[i].StartsAt(time.UTC), bs[j].StartsAt(time.UTC)
		if !si.Equal(sj) {
			return si.Before(sj)
		}
		return bs[i].ID.String() < bs[j].ID.String()
	})
}

func statusIn(s Status, set []Status) bool {
	for _, c := range set {
		if s == c {
			return true
		}
	}
	return false
}
