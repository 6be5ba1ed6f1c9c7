package booking

import "errors"

// Kind classifies domain rejections. Anything that is not an *Error is an
// infrastructure failure.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindSlotUnavailable Kind = "slot_unavailable"
	KindLeadTime        Kind = "lead_time_violation"
	KindInvalidState    Kind = "invalid_state"
	KindValidation      Kind = "validation"
)

// Error is an expected domain rejection carrying a human readable reason.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return string(e.Kind)
}

// Is matches any *Error of the same kind when the target carries no reason,
// so the kind sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == ""
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

var (
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrSlotUnavailable           = &Error{Kind: KindSlotUnavailable}
	ErrLeadTimeViolation         = &Error{Kind: KindLeadTime}
	ErrInvalidStateForTransition = &Error{Kind: KindInvalidState}
	ErrValidation                = &Error{Kind: KindValidation}
)

var (
	ErrPatientNotFound      = newError(KindNotFound, "patient not found")
	ErrPractitionerNotFound = newError(KindNotFound, "practitioner not found")
	ErrBookingNotFound      = newError(KindNotFound, "booking not found")
	ErrWindowNotFound       = newError(KindNotFound, "availability window not found")
	ErrBlackoutNotFound     = newError(KindNotFound, "blackout not found")
	ErrFollowupNotFound     = newError(KindNotFound, "followup state not found")

	// ErrSlotTaken is returned by repositories when the store rejects a second
	// active booking for the same practitioner, date and time.
	ErrSlotTaken = newError(KindSlotUnavailable, "slot already booked")
)

// Reasons reported by availability checks.
const (
	ReasonBlackout      = "blackout"
	ReasonNonWorkingDay = "non_working_day"
	ReasonOutsideWindow = "outside_window"
	ReasonAlreadyBooked = "already_booked"
	ReasonInPast        = "in_past"
	ReasonNotOnHour     = "not_on_hour"
)

// SlotUnavailable builds a rejection for an availability reason.
func SlotUnavailable(reason string) error {
	return newError(KindSlotUnavailable, "slot unavailable: "+reason)
}

func LeadTimeViolation(reason string) error {
	return newError(KindLeadTime, reason)
}

func InvalidState(reason string) error {
	return newError(KindInvalidState, reason)
}

func Validation(reason string) error {
	return newError(KindValidation, reason)
}

// IsDomain reports whether err is an expected rejection rather than an
// infrastructure failure.
func IsDomain(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// KindOf returns the kind of a domain error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
