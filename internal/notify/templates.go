package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/calendar"
)

type RendererConfig struct {
	Brand          string
	BaseURL        string
	CalendarDomain string
	Location       *time.Location
	// Now stamps generated invites; defaults to time.Now.
	Now func() time.Time
}

// Renderer turns a notification into per-role copy.
type Renderer struct {
	cfg RendererConfig
}

func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.Brand == "" {
		cfg.Brand = "Therapy Booking"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Renderer{cfg: cfg}
}

type emailView struct {
	Brand      string
	Headline   string
	Paragraphs []string
	Link       string
	LinkLabel  string
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333333;">
<h2>{{.Headline}}</h2>
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{if .Link}}<p><a href="{{.Link}}">{{.LinkLabel}}</a></p>
{{end}}<p style="color: #888888;">{{.Brand}}</p>
</body>
</html>
`))

type content struct {
	subject    string
	headline   string
	paragraphs []string
	link       string
	linkLabel  string
	invite     calendar.Action
}

// Render builds the message for role. ok is false when the event has no
// copy for that role.
func (r *Renderer) Render(n Notification, role Role) (Message, bool) {
	c, ok := r.content(n, role)
	if !ok {
		return Message{}, false
	}

	view := emailView{
		Brand:      r.cfg.Brand,
		Headline:   c.headline,
		Paragraphs: c.paragraphs,
		Link:       c.link,
		LinkLabel:  c.linkLabel,
	}
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, view); err != nil {
		return Message{}, false
	}

	msg := Message{
		Event:   n.Event,
		Subject: c.subject,
		Text:    plainText(c, r.cfg.Brand),
		HTML:    html.String(),
		Short:   shortText(c),
	}

	if c.invite != "" {
		ics, err := r.Invite(n.Booking, n.Parties, c.invite, role)
		if err == nil {
			msg.Attachment = &Attachment{
				Filename:    "session.ics",
				ContentType: inviteContentType(c.invite),
				Content:     ics,
			}
		}
	}

	return msg, true
}

// Invite renders the calendar invite of b as seen by role.
func (r *Renderer) Invite(b booking.Booking, parties booking.Parties, action calendar.Action, role Role) ([]byte, error) {
	title := fmt.Sprintf("%s session", r.cfg.Brand)
	switch {
	case role == RolePatient && parties.Practitioner != nil:
		title = fmt.Sprintf("Therapy session with %s", parties.Practitioner.Name)
	case role == RolePractitioner && parties.Patient != nil:
		title = fmt.Sprintf("Session with %s", parties.Patient.Name)
	}
	if action == calendar.ActionCancel {
		title = "Cancelled: " + title
	}

	var bookingID string
	if b.ID != uuid.Nil {
		bookingID = b.ID.String()
	}

	inv := calendar.Invite{
		Action:         action,
		BookingID:      bookingID,
		PatientID:      b.PatientID.String(),
		PractitionerID: b.PractitionerID.String(),
		Start:          b.StartsAt(r.cfg.Location),
		Duration:       booking.SlotDuration,
		Title:          title,
		Description:    fmt.Sprintf("Online session booked through %s.", r.cfg.Brand),
		Sequence:       inviteSequence(b, action),
		Domain:         r.cfg.CalendarDomain,
		Now:            r.cfg.Now(),
	}
	if r.cfg.BaseURL != "" && bookingID != "" {
		inv.URL = r.cfg.BaseURL + "/bookings/" + b.ID.String()
	}
	if parties.Practitioner != nil && parties.Practitioner.Email != nil {
		inv.OrganizerName = parties.Practitioner.Name
		inv.OrganizerEmail = *parties.Practitioner.Email
	}
	return calendar.Generate(inv)
}

// inviteSequence grows with every update of the booking row. Updates and
// cancellations always supersede the original invite, which is sequence 0.
func inviteSequence(b booking.Booking, action calendar.Action) int {
	seq := 0
	if !b.CreatedAt.IsZero() && b.UpdatedAt.After(b.CreatedAt) {
		seq = int(b.UpdatedAt.Sub(b.CreatedAt) / time.Second)
	}
	if action == calendar.ActionUpdate || action == calendar.ActionCancel {
		seq = max(seq, 1)
	}
	return seq
}

func inviteContentType(action calendar.Action) string {
	if action == calendar.ActionCancel {
		return "text/calendar; charset=utf-8; method=CANCEL"
	}
	return "text/calendar; charset=utf-8; method=PUBLISH"
}

func (r *Renderer) content(n Notification, role Role) (content, bool) {
	b := n.Booking
	start := b.StartsAt(r.cfg.Location)
	when := fmt.Sprintf("%s at %s", start.Format("Monday, January 2, 2006"), start.Format("15:04 MST"))

	patientName, practitionerName := "your patient", "your therapist"
	if n.Parties.Patient != nil {
		patientName = n.Parties.Patient.Name
	}
	if n.Parties.Practitioner != nil {
		practitionerName = n.Parties.Practitioner.Name
	}

	switch n.Event {
	case booking.NotifyCreated:
		if role == RolePatient {
			return content{
				subject:  "Your session is booked",
				headline: "Your session is booked",
				paragraphs: []string{
					fmt.Sprintf("Your session with %s is scheduled for %s.", practitionerName, when),
					"The calendar invite attached to this email keeps the time in your calendar.",
				},
				link:      r.url("/bookings/" + b.ID.String()),
				linkLabel: "View booking",
				invite:    calendar.ActionCreate,
			}, true
		}
		paragraphs := []string{fmt.Sprintf("%s booked a session for %s.", patientName, when)}
		if b.Motive != nil && *b.Motive != "" {
			paragraphs = append(paragraphs, "Reason for consultation: "+*b.Motive)
		}
		if b.Note != nil && *b.Note != "" {
			paragraphs = append(paragraphs, "Note from the patient: "+*b.Note)
		}
		return content{
			subject:    "New session booked",
			headline:   "New session booked",
			paragraphs: paragraphs,
			link:       r.url("/bookings/" + b.ID.String()),
			linkLabel:  "View booking",
			invite:     calendar.ActionCreate,
		}, true

	case booking.NotifyRescheduled:
		who := fmt.Sprintf("Your session with %s", practitionerName)
		if role == RolePractitioner {
			who = fmt.Sprintf("The session with %s", patientName)
		}
		return content{
			subject:    "Session rescheduled",
			headline:   "Session rescheduled",
			paragraphs: []string{fmt.Sprintf("%s has moved to %s.", who, when)},
			link:       r.url("/bookings/" + b.ID.String()),
			linkLabel:  "View booking",
			invite:     calendar.ActionUpdate,
		}, true

	case booking.NotifyCancelled:
		if role == RolePractitioner {
			return content{
				subject:  "Session cancelled",
				headline: "Session cancelled",
				paragraphs: []string{
					fmt.Sprintf("%s cancelled the session scheduled for %s.", patientName, when),
					"The slot is available for new bookings again.",
				},
				invite: calendar.ActionCancel,
			}, true
		}
		return content{
			subject:  "Your session was cancelled",
			headline: "Your session was cancelled",
			paragraphs: []string{
				fmt.Sprintf("Your session with %s on %s has been cancelled.", practitionerName, when),
				"If you paid for this session, the refund is processed to your original payment method.",
				"Whenever you are ready, you can book a new session with any of our therapists.",
			},
			link:      r.url("/practitioners"),
			linkLabel: "Find a therapist",
			invite:    calendar.ActionCancel,
		}, true

	case booking.NotifyReminder:
		who := fmt.Sprintf("Your session with %s", practitionerName)
		if role == RolePractitioner {
			who = fmt.Sprintf("Your session with %s", patientName)
		}
		return content{
			subject:    "Your session starts in 30 minutes",
			headline:   "Your session starts in 30 minutes",
			paragraphs: []string{fmt.Sprintf("%s starts at %s.", who, start.Format("15:04 MST"))},
			link:       r.url("/login"),
			linkLabel:  "Sign in to join",
		}, true

	case booking.NotifyFollowup15, booking.NotifyFollowup30, booking.NotifyFollowup60:
		if role != RolePatient {
			return content{}, false
		}
		days := strings.TrimPrefix(string(n.Event), "followup-")
		return content{
			subject:  fmt.Sprintf("How are you doing? It has been %s days", days),
			headline: "We hope you are doing well",
			paragraphs: []string{
				fmt.Sprintf("It has been %s days since your last session with %s.", days, practitionerName),
				"Continuing regularly helps you keep the progress you have made. Book your next session when it suits you.",
			},
			link:      r.url("/practitioners/" + b.PractitionerID.String()),
			linkLabel: "Book a session",
		}, true
	}

	return content{}, false
}

func (r *Renderer) url(path string) string {
	if r.cfg.BaseURL == "" {
		return ""
	}
	return r.cfg.BaseURL + path
}

func plainText(c content, brand string) string {
	var sb strings.Builder
	sb.WriteString(c.headline)
	sb.WriteString("\n\n")
	for _, p := range c.paragraphs {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	if c.link != "" {
		sb.WriteString(c.linkLabel)
		sb.WriteString(": ")
		sb.WriteString(c.link)
		sb.WriteString("\n\n")
	}
	sb.WriteString(brand)
	return sb.String()
}

func shortText(c content) string {
	parts := []string{c.headline + "."}
	if len(c.paragraphs) > 0 {
		parts = append(parts, c.paragraphs[0])
	}
	if c.link != "" {
		parts = append(parts, c.link)
	}
	return strings.Join(parts, " ")
}
