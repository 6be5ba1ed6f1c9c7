package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/calendar"
)

func TestRenderCreated(t *testing.T) {
	r := testRenderer()
	n := testNotification(booking.NotifyCreated)

	patient, ok := r.Render(n, RolePatient)
	require.True(t, ok)
	assert.Equal(t, "Your session is booked", patient.Subject)
	assert.Contains(t, patient.Text, "Dr. Luis Vega")
	assert.Contains(t, patient.Text, "Monday, March 10, 2025 at 09:00 CST")
	require.NotNil(t, patient.Attachment)
	assert.Equal(t, "session.ics", patient.Attachment.Filename)
	assert.Contains(t, string(patient.Attachment.Content), "METHOD:PUBLISH")
	assert.Contains(t, string(patient.Attachment.Content), "DTSTART:20250310T150000Z")

	practitioner, ok := r.Render(n, RolePractitioner)
	require.True(t, ok)
	assert.Contains(t, practitioner.Text, "Ana Torres booked a session")
	assert.Contains(t, practitioner.Text, "Reason for consultation: anxiety")
	assert.NotContains(t, patient.Text, "Reason for consultation")
}

func TestRenderCancelledDiffersPerRole(t *testing.T) {
	r := testRenderer()
	n := testNotification(booking.NotifyCancelled)

	patient, ok := r.Render(n, RolePatient)
	require.True(t, ok)
	practitioner, ok := r.Render(n, RolePractitioner)
	require.True(t, ok)

	assert.NotEqual(t, patient.Subject, practitioner.Subject)
	assert.Contains(t, patient.Text, "refund")
	assert.Contains(t, patient.Text, "https://app.example.com/practitioners")
	assert.Contains(t, practitioner.Text, "available for new bookings")
	assert.NotContains(t, practitioner.Text, "refund")

	require.NotNil(t, patient.Attachment)
	assert.Contains(t, string(patient.Attachment.Content), "METHOD:CANCEL")
	assert.Contains(t, patient.Attachment.ContentType, "method=CANCEL")
}

func TestRenderReminder(t *testing.T) {
	r := testRenderer()
	msg, ok := r.Render(testNotification(booking.NotifyReminder), RolePatient)
	require.True(t, ok)

	assert.Equal(t, "Your session starts in 30 minutes", msg.Subject)
	assert.Contains(t, msg.Text, "https://app.example.com/login")
	assert.Nil(t, msg.Attachment)
	assert.True(t, strings.HasPrefix(msg.Short, "Your session starts in 30 minutes."))
}

func TestRenderFollowups(t *testing.T) {
	r := testRenderer()

	for _, m := range booking.Milestones {
		n := testNotification(booking.FollowupEvent(m))

		msg, ok := r.Render(n, RolePatient)
		require.True(t, ok)
		assert.Contains(t, msg.Subject, "days")
		assert.Contains(t, msg.Text, "https://app.example.com/practitioners/"+n.Booking.PractitionerID.String())

		_, ok = r.Render(n, RolePractitioner)
		assert.False(t, ok, "follow-ups are never sent to practitioners")
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	r := testRenderer()
	n := testNotification(booking.NotifyCreated)
	n.Parties.Patient.Name = `<script>alert("x")</script>`

	msg, ok := r.Render(n, RolePractitioner)
	require.True(t, ok)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestRenderUnknownEvent(t *testing.T) {
	_, ok := testRenderer().Render(testNotification(booking.Event("bogus")), RolePatient)
	assert.False(t, ok)
}

func TestInviteSequenceGrowsWithUpdates(t *testing.T) {
	n := testNotification(booking.NotifyRescheduled)
	assert.Equal(t, 0, inviteSequence(n.Booking, calendar.ActionCreate))

	n.Booking.UpdatedAt = n.Booking.CreatedAt.Add(90 * time.Second)
	assert.Equal(t, 90, inviteSequence(n.Booking, calendar.ActionUpdate))

	ics, err := testRenderer().Invite(n.Booking, n.Parties, calendar.ActionUpdate, RolePractitioner)
	require.NoError(t, err)
	assert.Contains(t, string(ics), "SEQUENCE:90")
	assert.Contains(t, string(ics), "SUMMARY:Session with Ana Torres")
}

func TestInviteSequenceSupersedesCreateWithinASecond(t *testing.T) {
	n := testNotification(booking.NotifyRescheduled)
	n.Booking.UpdatedAt = n.Booking.CreatedAt.Add(300 * time.Millisecond)

	assert.Equal(t, 0, inviteSequence(n.Booking, calendar.ActionCreate))
	assert.Equal(t, 1, inviteSequence(n.Booking, calendar.ActionUpdate))
	assert.Equal(t, 1, inviteSequence(n.Booking, calendar.ActionCancel))

	created, err := testRenderer().Invite(n.Booking, n.Parties, calendar.ActionCreate, RolePatient)
	require.NoError(t, err)
	updated, err := testRenderer().Invite(n.Booking, n.Parties, calendar.ActionUpdate, RolePatient)
	require.NoError(t, err)
	assert.Contains(t, string(created), "SEQUENCE:0\r\n")
	assert.Contains(t, string(updated), "SEQUENCE:1\r\n")
}

func TestInviteWithoutBookingIDUsesCompositeUID(t *testing.T) {
	n := testNotification(booking.NotifyCreated)
	n.Booking.ID = uuid.Nil

	ics, err := testRenderer().Invite(n.Booking, n.Parties, calendar.ActionCreate, RolePatient)
	require.NoError(t, err)

	doc := strings.ReplaceAll(string(ics), "\r\n ", "")
	want := "UID:booking-" + n.Booking.PatientID.String() + "-" + n.Booking.PractitionerID.String() + "-2025-03-10-0900@example.com"
	assert.Contains(t, doc, want)
	assert.NotContains(t, doc, uuid.Nil.String())
	assert.NotContains(t, doc, "URL:")
}
