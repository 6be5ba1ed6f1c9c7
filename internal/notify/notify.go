// Package notify delivers booking lifecycle notifications over email and
// WhatsApp. Every (channel, recipient) send is independent: failures are
// logged and counted, never returned to the booking operation.
package notify

import (
	"context"
	"errors"

	"github.com/hackgods/therapy-booking/internal/booking"
)

// ErrNoAddress is returned by a channel when the recipient has no usable
// address for it. The dispatcher treats it as a silent skip.
var ErrNoAddress = errors.New("notify: recipient has no address for channel")

type Role string

const (
	RolePatient      Role = "patient"
	RolePractitioner Role = "practitioner"
)

type Recipient struct {
	Role  Role
	Name  string
	Email string
	Phone string
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is the rendered copy for one recipient.
type Message struct {
	Event   booking.Event
	Subject string
	Text    string
	HTML    string
	// Short is the body for text messaging channels.
	Short      string
	Attachment *Attachment
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Send(ctx context.Context, to Recipient, msg Message) error
}

// Notification is a lifecycle event for one booking.
type Notification struct {
	Event   booking.Event
	Booking booking.Booking
	Parties booking.Parties
}

// Report summarizes a Deliver call. Attempted counts sends that reached a
// gateway, successful or not.
type Report struct {
	Attempted int
	Delivered int
	Skipped   int
	Failed    int
}

// AllFailed reports whether at least one send was attempted and none
// succeeded.
func (r Report) AllFailed() bool {
	return r.Attempted > 0 && r.Delivered == 0
}

func recipientsOf(p booking.Parties) []Recipient {
	var out []Recipient
	if p.Patient != nil {
		out = append(out, recipientFrom(RolePatient, p.Patient.Person))
	}
	if p.Practitioner != nil {
		out = append(out, recipientFrom(RolePractitioner, p.Practitioner.Person))
	}
	return out
}

func recipientFrom(role Role, p booking.Person) Recipient {
	r := Recipient{Role: role, Name: p.Name}
	if p.Email != nil {
		r.Email = *p.Email
	}
	if p.Phone != nil {
		r.Phone = *p.Phone
	}
	return r
}
