package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

var testLoc = time.FixedZone("CST", -6*60*60)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type sentNotification struct {
	Event   Event
	Booking Booking
	Parties Parties
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, event Event, b Booking, parties Parties) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Event: event, Booking: b, Parties: parties})
}

func (n *recordingNotifier) events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Event)
	}
	return out
}

type fixture struct {
	repo         *MemoryRepository
	clock        *testClock
	resolver     *Resolver
	svc          *Service
	notifier     *recordingNotifier
	patient      *Patient
	practitioner *Practitioner
}

func strPtr(s string) *string { return &s }

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func at(date string, hour, minute int) time.Time {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return d.At(NewClockTime(hour, minute), testLoc)
}

// newFixture builds a service over the memory store with a practitioner who
// works Mondays 09:00-12:00. The clock starts on Monday 2025-03-03 08:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	clock := newTestClock(at("2025-03-03", 8, 0))
	resolver := NewResolver(repo, testLoc, clock.Now)
	notifier := &recordingNotifier{}
	svc := NewService(repo, resolver, redisclient.NewLocalLocker(), notifier)

	patient := repo.AddPatient(Patient{Person: Person{Name: "Ana Torres", Email: strPtr("ana@example.com"), Phone: strPtr("5512345678")}})
	practitioner := repo.AddPractitioner(Practitioner{Person: Person{Name: "Dr. Luis Vega", Email: strPtr("luis@example.com")}})

	_, err := resolver.AddWindow(context.Background(), Window{
		PractitionerID: practitioner.ID,
		Weekday:        time.Monday,
		Start:          NewClockTime(9, 0),
		End:            NewClockTime(12, 0),
	})
	require.NoError(t, err)

	return &fixture{
		repo:         repo,
		clock:        clock,
		resolver:     resolver,
		svc:          svc,
		notifier:     notifier,
		patient:      patient,
		practitioner: practitioner,
	}
}

func (f *fixture) book(t *testing.T, date string, hour int) *Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), CreateInput{
		PatientID:      f.patient.ID,
		PractitionerID: f.practitioner.ID,
		Date:           mustDate(t, date),
		Time:           NewClockTime(hour, 0),
	})
	require.NoError(t, err)
	return b
}
