package booking

import (
	"time"

	"github.com/google/uuid"
)

// SlotDuration is the fixed length of every bookable slot.
const SlotDuration = time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusMissed    Status = "missed"
)

// Active reports whether a booking in this status still holds its slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusMissed
}

// Open reports whether the booking is still waiting for its session.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Party string

const (
	PartyPatient      Party = "patient"
	PartyPractitioner Party = "practitioner"
)

func (p Party) Valid() bool {
	return p == PartyPatient || p == PartyPractitioner
}

type Source string

const (
	SourcePatient Source = "patient"
	SourcePayment Source = "payment"
)

// Person holds the contact data notifications are addressed to.
type Person struct {
	ID    uuid.UUID
	Name  string
	Email *string
	Phone *string
}

type Patient struct {
	Person
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Practitioner struct {
	Person
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Window is one recurring weekly availability range. A practitioner may have
// several windows on the same weekday.
type Window struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Weekday        time.Weekday
	Start          ClockTime
	End            ClockTime
	CreatedAt      time.Time
}

// Blackout is an inclusive date range during which no slots are offered.
type Blackout struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	StartDate      Date
	EndDate        Date
	Reason         *string
	CreatedAt      time.Time
}

// Covers reports whether d falls inside the blackout range.
func (b Blackout) Covers(d Date) bool {
	return !d.Before(b.StartDate) && !b.EndDate.Before(d)
}

type Booking struct {
	ID                   uuid.UUID
	PatientID            uuid.UUID
	PractitionerID       uuid.UUID
	Date                 Date
	Time                 ClockTime
	Status               Status
	Note                 *string
	Motive               *string
	PatientJoinedAt      *time.Time
	PractitionerJoinedAt *time.Time
	ReminderSentAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// StartsAt returns the session start in loc.
func (b Booking) StartsAt(loc *time.Location) time.Time {
	return b.Date.At(b.Time, loc)
}

// EndsAt returns the session end in loc.
func (b Booking) EndsAt(loc *time.Location) time.Time {
	return b.StartsAt(loc).Add(SlotDuration)
}

// BothJoined reports whether both parties have entered the session.
func (b Booking) BothJoined() bool {
	return b.PatientJoinedAt != nil && b.PractitionerJoinedAt != nil
}

// Milestone is a re-engagement threshold in days after the last session.
type Milestone int

const (
	Milestone15 Milestone = 15
	Milestone30 Milestone = 30
	Milestone60 Milestone = 60
)

// Milestones lists the follow-up thresholds in ascending order.
var Milestones = []Milestone{Milestone15, Milestone30, Milestone60}

// FollowupState tracks the re-engagement markers for one patient's most
// recent completed session with a practitioner.
type FollowupState struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	BookingID      uuid.UUID
	Sent15At       *time.Time
	Sent30At       *time.Time
	Sent60At       *time.Time
	CreatedAt      time.Time
}

// SentAt returns the marker for m.
func (f FollowupState) SentAt(m Milestone) *time.Time {
	switch m {
	case Milestone15:
		return f.Sent15At
	case Milestone30:
		return f.Sent30At
	case Milestone60:
		return f.Sent60At
	}
	return nil
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Parties bundles the two people a booking notifies.
type Parties struct {
	Patient      *Patient
	Practitioner *Practitioner
}
