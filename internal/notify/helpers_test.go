package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/booking"
)

var testLoc = time.FixedZone("CST", -6*60*60)

func strPtr(s string) *string { return &s }

func testNotification(event booking.Event) Notification {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return Notification{
		Event: event,
		Booking: booking.Booking{
			ID:             uuid.MustParse("7c1f2a9e-0000-4000-8000-000000000001"),
			PatientID:      uuid.MustParse("7c1f2a9e-0000-4000-8000-0000000000aa"),
			PractitionerID: uuid.MustParse("7c1f2a9e-0000-4000-8000-0000000000bb"),
			Date:           booking.Date{Year: 2025, Month: time.March, Day: 10},
			Time:           booking.NewClockTime(9, 0),
			Status:         booking.StatusPending,
			Motive:         strPtr("anxiety"),
			CreatedAt:      created,
			UpdatedAt:      created,
		},
		Parties: booking.Parties{
			Patient: &booking.Patient{Person: booking.Person{
				Name:  "Ana Torres",
				Email: strPtr("ana@example.com"),
				Phone: strPtr("55 1234 5678"),
			}},
			Practitioner: &booking.Practitioner{Person: booking.Person{
				Name:  "Dr. Luis Vega",
				Email: strPtr("luis@example.com"),
			}},
		},
	}
}

func testRenderer() *Renderer {
	return NewRenderer(RendererConfig{
		Brand:          "Red de Terapia",
		BaseURL:        "https://app.example.com/",
		CalendarDomain: "example.com",
		Location:       testLoc,
		Now:            func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
}

type sentMessage struct {
	To  Recipient
	Msg Message
}

// fakeChannel records sends and returns err for every call.
type fakeChannel struct {
	name  string
	err   error
	panic bool

	mu   sync.Mutex
	sent []sentMessage
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, to Recipient, msg Message) error {
	if c.panic {
		panic("gateway exploded")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{To: to, Msg: msg})
	return c.err
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var errGatewayDown = errors.New("gateway down")

type recordingEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (s *recordingEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

type recordingWhatsAppSender struct {
	mu   sync.Mutex
	to   []string
	body []string
}

func (s *recordingWhatsAppSender) SendWhatsApp(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.to = append(s.to, to)
	s.body = append(s.body, body)
	return nil
}
