package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/metrics"
	"github.com/hackgods/therapy-booking/internal/notify"
	redisclient "github.com/hackgods/therapy-booking/internal/redis"
)

var testLoc = time.FixedZone("CST", -6*60*60)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

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

type fakeDeliverer struct {
	mu     sync.Mutex
	sent   []notify.Notification
	report notify.Report
}

func (d *fakeDeliverer) Deliver(_ context.Context, n notify.Notification) notify.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	if d.report == (notify.Report{}) {
		return notify.Report{Attempted: 1, Delivered: 1}
	}
	return d.report
}

func (d *fakeDeliverer) events() []booking.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]booking.Event, 0, len(d.sent))
	for _, n := range d.sent {
		out = append(out, n.Event)
	}
	return out
}

func (d *fakeDeliverer) failAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = notify.Report{Attempted: 2, Failed: 2}
}

func (d *fakeDeliverer) succeed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = notify.Report{}
}

type fixture struct {
	repo         *booking.MemoryRepository
	clock        *testClock
	deliverer    *fakeDeliverer
	sched        *Scheduler
	patient      *booking.Patient
	practitioner *booking.Practitioner
}

func at(date string, hour, minute int) time.Time {
	d, err := booking.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return d.At(booking.NewClockTime(hour, minute), testLoc)
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T, leaser redisclient.Leaser) *fixture {
	t.Helper()

	repo := booking.NewMemoryRepository()
	clock := &testClock{t: at("2025-03-03", 8, 0)}
	resolver := booking.NewResolver(repo, testLoc, clock.Now)
	svc := booking.NewService(repo, resolver, redisclient.NewLocalLocker(), nil)
	deliverer := &fakeDeliverer{}
	if leaser == nil {
		leaser = redisclient.NewLocalLocker()
	}

	sched := New(repo, svc, deliverer, leaser,
		metrics.NewSchedulerMetrics(prometheus.NewRegistry()), zerolog.Nop(),
		Config{Location: testLoc, Now: clock.Now})

	return &fixture{
		repo:      repo,
		clock:     clock,
		deliverer: deliverer,
		sched:     sched,
		patient: repo.AddPatient(booking.Patient{Person: booking.Person{
			Name: "Ana Torres", Email: strPtr("ana@example.com"),
		}}),
		practitioner: repo.AddPractitioner(booking.Practitioner{Person: booking.Person{
			Name: "Dr. Luis Vega", Email: strPtr("luis@example.com"),
		}}),
	}
}

func (f *fixture) put(t *testing.T, date string, hour int, status booking.Status) *booking.Booking {
	t.Helper()
	d, err := booking.ParseDate(date)
	require.NoError(t, err)
	return f.repo.PutBooking(booking.Booking{
		PatientID:      f.patient.ID,
		PractitionerID: f.practitioner.ID,
		Date:           d,
		Time:           booking.NewClockTime(hour, 0),
		Status:         status,
	})
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *booking.Booking {
	t.Helper()
	b, err := f.repo.GetBookingByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestReconciliationWaitsForSlotEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.put(t, "2025-03-03", 9, booking.StatusConfirmed)

	f.clock.Set(at("2025-03-03", 9, 5))
	n, err := f.sched.RunReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, booking.StatusConfirmed, f.get(t, b.ID).Status, "still inside its slot")

	f.clock.Set(at("2025-03-03", 10, 0))
	n, err = f.sched.RunReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, booking.StatusMissed, f.get(t, b.ID).Status)

	n, err = f.sched.RunReconciliation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.deliverer.events(), "missed bookings are not notified")
}

func TestReconciliationLeavesClosedBookings(t *testing.T) {
	f := newFixture(t, nil)
	completed := f.put(t, "2025-03-03", 9, booking.StatusCompleted)
	cancelled := f.put(t, "2025-03-03", 10, booking.StatusCancelled)

	f.clock.Set(at("2025-03-04", 8, 0))
	n, err := f.sched.RunReconciliation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, booking.StatusCompleted, f.get(t, completed.ID).Status)
	assert.Equal(t, booking.StatusCancelled, f.get(t, cancelled.ID).Status)
}

func TestRemindersSentOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.put(t, "2025-03-03", 9, booking.StatusPending)

	f.clock.Set(at("2025-03-03", 8, 30))
	n, err := f.sched.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []booking.Event{booking.NotifyReminder}, f.deliverer.events())
	assert.NotNil(t, f.get(t, b.ID).ReminderSentAt)

	f.clock.Set(at("2025-03-03", 8, 32))
	n, err = f.sched.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.deliverer.events(), 1)
}

func TestRemindersWindow(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "an hour before", now: at("2025-03-03", 8, 0), want: 0},
		{name: "36 minutes before", now: at("2025-03-03", 8, 24), want: 0},
		{name: "35 minutes before", now: at("2025-03-03", 8, 25), want: 1},
		{name: "25 minutes before", now: at("2025-03-03", 8, 35), want: 1},
		{name: "20 minutes before", now: at("2025-03-03", 8, 40), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.put(t, "2025-03-03", 9, booking.StatusConfirmed)
			f.put(t, "2025-03-03", 9, booking.StatusCancelled)

			f.clock.Set(tt.now)
			n, err := f.sched.RunReminders(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestReminderRetriedWhenEverySendFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.put(t, "2025-03-03", 9, booking.StatusConfirmed)
	f.clock.Set(at("2025-03-03", 8, 30))

	f.deliverer.failAll()
	n, err := f.sched.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Nil(t, f.get(t, b.ID).ReminderSentAt)

	f.deliverer.succeed()
	f.clock.Set(at("2025-03-03", 8, 35))
	n, err = f.sched.RunReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, f.get(t, b.ID).ReminderSentAt)
}

func TestFollowupDay15SentOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b := f.put(t, "2025-03-03", 9, booking.StatusCompleted)

	f.clock.Set(at("2025-03-17", 10, 0))
	n, err := f.sched.RunFollowups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "only 14 days elapsed")

	f.clock.Set(at("2025-03-18", 10, 0))
	n, err = f.sched.RunFollowups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Equal(t, []booking.Event{booking.NotifyFollowup15}, f.deliverer.events())
	assert.Equal(t, b.ID, f.deliverer.sent[0].Booking.ID)

	f.clock.Set(at("2025-03-18", 18, 0))
	n, err = f.sched.RunFollowups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.deliverer.events(), 1)

	state, err := f.repo.EnsureFollowup(ctx, f.patient.ID, f.practitioner.ID, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, state.Sent15At)
	assert.Nil(t, state.Sent30At)
}

func TestFollowupUsesLatestCompletedSession(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "2025-01-06", 9, booking.StatusCompleted)
	latest := f.put(t, "2025-03-03", 9, booking.StatusCompleted)

	f.clock.Set(at("2025-03-18", 10, 0))
	n, err := f.sched.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.deliverer.sent, 1)
	assert.Equal(t, latest.ID, f.deliverer.sent[0].Booking.ID)
}

func TestFollowupSuppressedByUpcomingBooking(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "2025-03-03", 9, booking.StatusCompleted)
	f.put(t, "2025-03-24", 9, booking.StatusPending)

	f.clock.Set(at("2025-03-18", 10, 0))
	n, err := f.sched.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.deliverer.events())
}

func TestFollowupSendsEveryCrossedMilestone(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "2025-03-03", 9, booking.StatusCompleted)

	f.clock.Set(at("2025-05-03", 10, 0))
	n, err := f.sched.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []booking.Event{
		booking.NotifyFollowup15,
		booking.NotifyFollowup30,
		booking.NotifyFollowup60,
	}, f.deliverer.events())
}

func TestFollowupRetriedWhenEverySendFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.put(t, "2025-03-03", 9, booking.StatusCompleted)
	f.clock.Set(at("2025-03-18", 10, 0))

	f.deliverer.failAll()
	n, err := f.sched.RunFollowups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.deliverer.succeed()
	n, err = f.sched.RunFollowups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFollowupTracksPractitionersIndependently(t *testing.T) {
	f := newFixture(t, nil)
	other := f.repo.AddPractitioner(booking.Practitioner{Person: booking.Person{Name: "Dra. Marta Ruiz"}})
	f.put(t, "2025-03-03", 9, booking.StatusCompleted)
	d, err := booking.ParseDate("2025-03-03")
	require.NoError(t, err)
	f.repo.PutBooking(booking.Booking{
		PatientID:      f.patient.ID,
		PractitionerID: other.ID,
		Date:           d,
		Time:           booking.NewClockTime(11, 0),
		Status:         booking.StatusCompleted,
	})

	f.clock.Set(at("2025-03-18", 10, 0))
	n, err := f.sched.RunFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBusyLeaseSkipsRun(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := newFixture(t, redisclient.NewRedisLocker(rdb, time.Second, time.Minute))
	b := f.put(t, "2025-03-03", 9, booking.StatusConfirmed)
	f.clock.Set(at("2025-03-03", 8, 30))

	require.NoError(t, mr.Set("lease:scheduler:"+TaskReminders, "another-instance"))
	n, err := f.sched.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.deliverer.events())
	assert.Nil(t, f.get(t, b.ID).ReminderSentAt)

	mr.Del("lease:scheduler:" + TaskReminders)
	n, err = f.sched.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists("lease:scheduler:"+TaskReminders), "lease released after the run")
}

func TestRunOnce(t *testing.T) {
	f := newFixture(t, nil)
	missed := f.put(t, "2025-03-03", 7, booking.StatusPending)
	f.put(t, "2025-03-03", 9, booking.StatusConfirmed)
	f.clock.Set(at("2025-03-03", 8, 30))

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, booking.StatusMissed, f.get(t, missed.ID).Status)
	assert.Equal(t, []booking.Event{booking.NotifyReminder}, f.deliverer.events())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, nil)
	f.sched.cfg.Interval = 10 * time.Millisecond
	b := f.put(t, "2025-03-03", 9, booking.StatusConfirmed)
	f.clock.Set(at("2025-03-03", 8, 30))

	f.sched.Start(context.Background())
	f.sched.Start(context.Background())

	assert.Eventually(t, func() bool {
		got, err := f.repo.GetBookingByID(context.Background(), b.ID)
		return err == nil && got.ReminderSentAt != nil
	}, time.Second, 5*time.Millisecond)

	f.sched.Stop()
	f.sched.Stop()
	assert.Len(t, f.deliverer.events(), 1)
}
