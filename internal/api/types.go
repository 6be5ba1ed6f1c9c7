package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/booking"
)

type CreateBookingRequest struct {
	PractitionerID string  `json:"practitioner_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Note           *string `json:"note,omitempty"`
	Motive         *string `json:"motive,omitempty"`
}

type RescheduleBookingRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type JoinBookingRequest struct {
	Party string `json:"party"`
}

// PaymentCompletedRequest is the data a completed checkout produces.
type PaymentCompletedRequest struct {
	PaymentID      string  `json:"payment_id"`
	PatientID      string  `json:"patient_id"`
	PractitionerID string  `json:"practitioner_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Note           *string `json:"note,omitempty"`
	Motive         *string `json:"motive,omitempty"`
}

type WindowRequest struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type BlackoutRequest struct {
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}

type BookingResponse struct {
	ID                   uuid.UUID  `json:"id"`
	PatientID            uuid.UUID  `json:"patient_id"`
	PractitionerID       uuid.UUID  `json:"practitioner_id"`
	Date                 string     `json:"date"`
	Time                 string     `json:"time"`
	Status               string     `json:"status"`
	Note                 *string    `json:"note,omitempty"`
	Motive               *string    `json:"motive,omitempty"`
	PatientJoinedAt      *time.Time `json:"patient_joined_at,omitempty"`
	PractitionerJoinedAt *time.Time `json:"practitioner_joined_at,omitempty"`
	ReminderSentAt       *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type JoinBookingResponse struct {
	Booking  BookingResponse `json:"booking"`
	Promoted bool            `json:"promoted"`
}

type ListBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

type WindowResponse struct {
	ID        uuid.UUID `json:"id"`
	Weekday   int       `json:"weekday"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	CreatedAt time.Time `json:"created_at"`
}

type BlackoutResponse struct {
	ID        uuid.UUID `json:"id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:                   b.ID,
		PatientID:            b.PatientID,
		PractitionerID:       b.PractitionerID,
		Date:                 b.Date.String(),
		Time:                 b.Time.String(),
		Status:               string(b.Status),
		Note:                 b.Note,
		Motive:               b.Motive,
		PatientJoinedAt:      b.PatientJoinedAt,
		PractitionerJoinedAt: b.PractitionerJoinedAt,
		ReminderSentAt:       b.ReminderSentAt,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func toWindowResponse(w *booking.Window) WindowResponse {
	return WindowResponse{
		ID:        w.ID,
		Weekday:   int(w.Weekday),
		Start:     w.Start.String(),
		End:       w.End.String(),
		CreatedAt: w.CreatedAt,
	}
}

func toBlackoutResponse(b *booking.Blackout) BlackoutResponse {
	return BlackoutResponse{
		ID:        b.ID,
		StartDate: b.StartDate.String(),
		EndDate:   b.EndDate.String(),
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
	}
}
