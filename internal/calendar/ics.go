// Package calendar renders iCalendar (RFC 5545) invites for bookings.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	ics "github.com/arran4/golang-ical"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionCancel Action = "cancel"
)

const (
	defaultDomain   = "therapy-booking.local"
	defaultProdID   = "-//therapy-booking//booking invites//EN"
	defaultDuration = time.Hour
)

// Invite carries the booking facts an invite is rendered from.
type Invite struct {
	Action Action

	// BookingID identifies the event. When empty, the UID is built from the
	// patient, practitioner and slot instead.
	BookingID      string
	PatientID      string
	PractitionerID string

	Start    time.Time
	Duration time.Duration

	Title       string
	Description string
	Location    string
	URL         string

	OrganizerName  string
	OrganizerEmail string

	// Sequence must grow with every revision of the same event.
	Sequence int

	Domain string
	ProdID string
	Now    time.Time
}

// UID returns the stable event identifier for inv.
func UID(inv Invite) string {
	domain := inv.Domain
	if domain == "" {
		domain = defaultDomain
	}
	if inv.BookingID != "" {
		return fmt.Sprintf("booking-%s@%s", inv.BookingID, domain)
	}
	return fmt.Sprintf("booking-%s-%s-%s@%s",
		inv.PatientID, inv.PractitionerID, inv.Start.Format("2006-01-02-1504"), domain)
}

// Generate renders inv as a VCALENDAR document with CRLF line endings.
func Generate(inv Invite) ([]byte, error) {
	if inv.Start.IsZero() {
		return nil, errors.New("calendar: invite start is required")
	}
	if inv.BookingID == "" && (inv.PatientID == "" || inv.PractitionerID == "") {
		return nil, errors.New("calendar: booking id or patient and practitioner ids are required")
	}

	method := ics.MethodPublish
	status := ics.ObjectStatusConfirmed
	switch inv.Action {
	case ActionCreate, ActionUpdate, "":
	case ActionCancel:
		method = ics.MethodCancel
		status = ics.ObjectStatusCancelled
	default:
		return nil, fmt.Errorf("calendar: unknown action %q", inv.Action)
	}

	duration := inv.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	now := inv.Now
	if now.IsZero() {
		now = time.Now()
	}
	prodID := stripControl(inv.ProdID)
	if prodID == "" {
		prodID = defaultProdID
	}

	cal := ics.NewCalendar()
	cal.SetProductId(prodID)
	cal.SetMethod(method)

	event := cal.AddEvent(UID(inv))
	event.SetDtStampTime(now)
	event.SetStartAt(inv.Start)
	event.SetEndAt(inv.Start.Add(duration))
	event.SetProperty(ics.ComponentPropertySequence, strconv.Itoa(inv.Sequence))
	event.SetStatus(status)
	event.SetSummary(normalizeNewlines(inv.Title))
	if inv.Description != "" {
		event.SetDescription(normalizeNewlines(inv.Description))
	}
	if inv.Location != "" {
		event.SetLocation(normalizeNewlines(inv.Location))
	}
	if u := stripControl(inv.URL); u != "" {
		event.SetURL(u)
	}
	if email := stripControl(inv.OrganizerEmail); email != "" {
		var params []ics.PropertyParameter
		if name := paramValue(inv.OrganizerName); name != "" {
			params = append(params, ics.WithCN(name))
		}
		event.SetProperty(ics.ComponentPropertyOrganizer, "mailto:"+email, params...)
	}

	return []byte(cal.Serialize()), nil
}

// EscapeText escapes a TEXT property value (RFC 5545 section 3.3.11).
func EscapeText(s string) string {
	return ics.ToText(normalizeNewlines(s))
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// stripControl removes control characters, so a stored address can never
// break out of its content line.
func stripControl(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}

// paramValue drops characters a parameter value cannot carry, even quoted.
func paramValue(s string) string {
	return strings.ReplaceAll(stripControl(s), `"`, "")
}
