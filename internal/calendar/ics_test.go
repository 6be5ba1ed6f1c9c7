package calendar

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cst = time.FixedZone("CST", -6*60*60)

func baseInvite() Invite {
	return Invite{
		Action:         ActionCreate,
		BookingID:      "7c1f2a9e-0000-4000-8000-000000000001",
		PatientID:      "patient-1",
		PractitionerID: "practitioner-1",
		Start:          time.Date(2025, 3, 10, 9, 0, 0, 0, cst),
		Title:          "Therapy session",
		Description:    "Session with Dr. Vega",
		Domain:         "example.com",
		Now:            time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func lines(t *testing.T, doc []byte) []string {
	t.Helper()
	s := string(doc)
	require.True(t, strings.HasSuffix(s, "\r\n"))
	// unfold continuation lines
	s = strings.ReplaceAll(s, "\r\n ", "")
	return strings.Split(strings.TrimSuffix(s, "\r\n"), "\r\n")
}

func TestGenerateCreate(t *testing.T) {
	doc, err := Generate(baseInvite())
	require.NoError(t, err)

	got := lines(t, doc)
	assert.Equal(t, "BEGIN:VCALENDAR", got[0])
	assert.Equal(t, "END:VCALENDAR", got[len(got)-1])
	assert.Contains(t, got, "METHOD:PUBLISH")
	assert.Contains(t, got, "UID:booking-7c1f2a9e-0000-4000-8000-000000000001@example.com")
	assert.Contains(t, got, "DTSTART:20250310T150000Z")
	assert.Contains(t, got, "DTEND:20250310T160000Z")
	assert.Contains(t, got, "DTSTAMP:20250301T120000Z")
	assert.Contains(t, got, "STATUS:CONFIRMED")
	assert.Contains(t, got, "SEQUENCE:0")
	assert.NotContains(t, strings.ReplaceAll(string(doc), "\r\n", ""), "\n")
}

func TestGenerateCancelKeepsUID(t *testing.T) {
	created, err := Generate(baseInvite())
	require.NoError(t, err)

	inv := baseInvite()
	inv.Action = ActionCancel
	inv.Sequence = 3
	cancelled, err := Generate(inv)
	require.NoError(t, err)

	got := lines(t, cancelled)
	assert.Contains(t, got, "METHOD:CANCEL")
	assert.Contains(t, got, "STATUS:CANCELLED")
	assert.Contains(t, got, "SEQUENCE:3")

	uid := func(ls []string) string {
		for _, l := range ls {
			if strings.HasPrefix(l, "UID:") {
				return l
			}
		}
		return ""
	}
	assert.Equal(t, uid(lines(t, created)), uid(got))
}

func TestUIDFallsBackToComposite(t *testing.T) {
	inv := baseInvite()
	inv.BookingID = ""

	assert.Equal(t, "booking-patient-1-practitioner-1-2025-03-10-0900@example.com", UID(inv))

	inv.Domain = ""
	assert.True(t, strings.HasSuffix(UID(inv), "@"+defaultDomain))
}

func TestEscapeText(t *testing.T) {
	tests := map[string]string{
		"plain":                 "plain",
		"a,b;c":                 `a\,b\;c`,
		`back\slash`:            `back\\slash`,
		"line1\r\nline2\nline3": `line1\nline2\nline3`,
		"lone\rcr":              `lone\ncr`,
	}
	for in, want := range tests {
		assert.Equal(t, want, EscapeText(in), in)
	}
}

func TestGenerateEscapesFreeText(t *testing.T) {
	inv := baseInvite()
	inv.Title = "Session; follow-up, part 2"
	inv.Description = "Bring notes\nand questions"

	doc, err := Generate(inv)
	require.NoError(t, err)

	got := lines(t, doc)
	assert.Contains(t, got, `SUMMARY:Session\; follow-up\, part 2`)
	assert.Contains(t, got, `DESCRIPTION:Bring notes\nand questions`)
}

func TestGenerateFoldsLongLines(t *testing.T) {
	inv := baseInvite()
	inv.Description = strings.Repeat("sesión de terapia ", 20)

	doc, err := Generate(inv)
	require.NoError(t, err)

	for _, raw := range strings.Split(strings.TrimSuffix(string(doc), "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(raw), 75, raw)
		assert.True(t, utf8.ValidString(raw), raw)
	}
	assert.Contains(t, lines(t, doc), "DESCRIPTION:"+EscapeText(inv.Description))
}

func TestGenerateValidation(t *testing.T) {
	inv := baseInvite()
	inv.Start = time.Time{}
	_, err := Generate(inv)
	assert.Error(t, err)

	inv = baseInvite()
	inv.BookingID, inv.PatientID = "", ""
	_, err = Generate(inv)
	assert.Error(t, err)

	inv = baseInvite()
	inv.Action = "reschedule"
	_, err = Generate(inv)
	assert.Error(t, err)
}

func TestGenerateOrganizer(t *testing.T) {
	inv := baseInvite()
	inv.OrganizerName = "Vega, Luis"
	inv.OrganizerEmail = "luis@example.com"

	doc, err := Generate(inv)
	require.NoError(t, err)
	assert.Contains(t, lines(t, doc), `ORGANIZER;CN="Vega, Luis":mailto:luis@example.com`)
}

func TestGenerateStripsLineBreaksFromAddresses(t *testing.T) {
	inv := baseInvite()
	inv.OrganizerName = "Luis\r\nATTENDEE:mailto:x@evil.test"
	inv.OrganizerEmail = "luis@example.com\r\nATTENDEE:mailto:x@evil.test"
	inv.URL = "https://app.example.com/bookings/1\nX-INJECTED:1"

	doc, err := Generate(inv)
	require.NoError(t, err)

	got := lines(t, doc)
	for _, l := range got {
		assert.False(t, strings.HasPrefix(l, "ATTENDEE"), l)
		assert.False(t, strings.HasPrefix(l, "X-INJECTED"), l)
	}

	var organizer string
	for _, l := range got {
		if strings.HasPrefix(l, "ORGANIZER") {
			organizer = l
		}
	}
	assert.True(t, strings.HasSuffix(organizer, ":mailto:luis@example.comATTENDEE:mailto:x@evil.test"), organizer)
	assert.Contains(t, got, "URL:https://app.example.com/bookings/1X-INJECTED:1")
}
