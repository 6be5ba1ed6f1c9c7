package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const pgUniqueViolation = "23505"

type PgRepository struct {
	db DBTX
}

func NewPgRepository(db DBTX) *PgRepository {
	return &PgRepository{db: db}
}

var _ Repository = (*PgRepository)(nil)

const bookingColumns = `id, patient_id, practitioner_id, to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'),
	status, note, motive, patient_joined_at, practitioner_joined_at, reminder_sent_at, created_at, updated_at`

// Helpers

func scanPerson(row pgx.Row, p *Person, extra ...any) error {
	dest := append([]any{&p.ID, &p.Name, &p.Email, &p.Phone}, extra...)
	return row.Scan(dest...)
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var date, clock, status string

	err := row.Scan(
		&b.ID,
		&b.PatientID,
		&b.PractitionerID,
		&date,
		&clock,
		&status,
		&b.Note,
		&b.Motive,
		&b.PatientJoinedAt,
		&b.PractitionerJoinedAt,
		&b.ReminderSentAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	if b.Date, err = ParseDate(date); err != nil {
		return nil, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	if b.Time, err = ParseClockTime(clock); err != nil {
		return nil, fmt.Errorf("scan booking %s: %w", b.ID, err)
	}
	b.Status = Status(status)
	return &b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var weekday int
	var start, end string

	if err := row.Scan(&w.ID, &w.PractitionerID, &weekday, &start, &end, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	var err error
	w.Weekday = time.Weekday(weekday)
	if w.Start, err = ParseClockTime(start); err != nil {
		return nil, err
	}
	if w.End, err = ParseClockTime(end); err != nil {
		return nil, err
	}
	return &w, nil
}

func scanBlackout(row pgx.Row) (*Blackout, error) {
	var b Blackout
	var start, end string

	if err := row.Scan(&b.ID, &b.PractitionerID, &start, &end, &b.Reason, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlackoutNotFound
		}
		return nil, err
	}

	var err error
	if b.StartDate, err = ParseDate(start); err != nil {
		return nil, err
	}
	if b.EndDate, err = ParseDate(end); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanFollowup(row pgx.Row) (*FollowupState, error) {
	var f FollowupState
	err := row.Scan(&f.ID, &f.PatientID, &f.PractitionerID, &f.BookingID,
		&f.Sent15At, &f.Sent30At, &f.Sent60At, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFollowupNotFound
		}
		return nil, err
	}
	return &f, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	if err := scanPerson(row, &p.Person, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	var p Practitioner
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, specialty, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	if err := scanPerson(row, &p.Person, &p.Specialty, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) ListWindows(ctx context.Context, practitionerID uuid.UUID) ([]Window, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, practitioner_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), created_at
		FROM availability_windows
		WHERE practitioner_id = $1
		ORDER BY weekday, start_time
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

func (r *PgRepository) AddWindow(ctx context.Context, w Window) (*Window, error) {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_windows (id, practitioner_id, weekday, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4::time, $5::time, now())
		RETURNING id, practitioner_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), created_at
	`, w.ID, w.PractitionerID, int(w.Weekday), w.Start.String(), w.End.String())
	return scanWindow(row)
}

func (r *PgRepository) DeleteWindow(ctx context.Context, practitionerID, windowID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM availability_windows
		WHERE id = $1 AND practitioner_id = $2
	`, windowID, practitionerID)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListBlackouts(ctx context.Context, practitionerID uuid.UUID) ([]Blackout, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, practitioner_id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason, created_at
		FROM blackouts
		WHERE practitioner_id = $1
		ORDER BY start_date
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Blackout
	for rows.Next() {
		b, err := scanBlackout(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) AddBlackout(ctx context.Context, b Blackout) (*Blackout, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO blackouts (id, practitioner_id, start_date, end_date, reason, created_at)
		VALUES ($1, $2, $3::date, $4::date, $5, now())
		RETURNING id, practitioner_id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason, created_at
	`, b.ID, b.PractitionerID, b.StartDate.String(), b.EndDate.String(), b.Reason)
	return scanBlackout(row)
}

func (r *PgRepository) DeleteBlackout(ctx context.Context, practitionerID, blackoutID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM blackouts
		WHERE id = $1 AND practitioner_id = $2
	`, blackoutID, practitionerID)
	if err != nil {
		return fmt.Errorf("delete blackout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlackoutNotFound
	}
	return nil
}

func (r *PgRepository) ListActiveBookingsForDay(ctx context.Context, practitionerID uuid.UUID, date Date) ([]Booking, error) {
	return collectBookings(r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE practitioner_id = $1
		  AND date = $2::date
		  AND status <> 'cancelled'
		ORDER BY time
	`, practitionerID, date.String()))
}

func (r *PgRepository) HasBookingWith(ctx context.Context, patientID, practitionerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM bookings WHERE patient_id = $1 AND practitioner_id = $2)
	`, patientID, practitionerID).Scan(&exists)
	return exists, err
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookingsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	return collectBookings(r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE patient_id = $1
		ORDER BY date DESC, time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset))
}

func (r *PgRepository) CreateBooking(ctx context.Context, b Booking) (*Booking, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO bookings (id, patient_id, practitioner_id, date, time, status, note, motive, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::time, 'pending', $6, $7, now(), now())
		RETURNING `+bookingColumns,
		b.ID, b.PatientID, b.PractitionerID, b.Date.String(), b.Time.String(), b.Note, b.Motive)

	created, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) RescheduleBooking(ctx context.Context, id uuid.UUID, date Date, t ClockTime) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET date = $2::date,
		    time = $3::time,
		    status = 'pending',
		    reminder_sent_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+bookingColumns,
		id, date.String(), t.String())

	updated, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+bookingColumns,
		id, string(to), statusStrings(from))
	return scanBooking(row)
}

func (r *PgRepository) StampJoin(ctx context.Context, id uuid.UUID, party Party, at time.Time) (*Booking, error) {
	column := "patient_joined_at"
	if party == PartyPractitioner {
		column = "practitioner_joined_at"
	}

	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET `+column+` = COALESCE(`+column+`, $2),
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		RETURNING `+bookingColumns,
		id, at)
	return scanBooking(row)
}

func (r *PgRepository) PromoteCompleted(ctx context.Context, id uuid.UUID) (*Booking, bool, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'confirmed')
		  AND patient_joined_at IS NOT NULL
		  AND practitioner_joined_at IS NOT NULL
		RETURNING `+bookingColumns,
		id)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Someone else promoted it, or a join is still missing.
			current, getErr := r.GetBookingByID(ctx, id)
			return current, false, getErr
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *PgRepository) ListOpenStartedBefore(ctx context.Context, wall time.Time) ([]Booking, error) {
	return collectBookings(r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		  AND (date + time) <= $1::timestamp
		ORDER BY date, time
	`, wall))
}

func (r *PgRepository) ListDueReminders(ctx context.Context, fromWall, toWall time.Time) ([]Booking, error) {
	return collectBookings(r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status IN ('pending', 'confirmed')
		  AND reminder_sent_at IS NULL
		  AND (date + time) >= $1::timestamp
		  AND (date + time) <= $2::timestamp
		ORDER BY date, time
	`, fromWall, toWall))
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND reminder_sent_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) ListLatestCompleted(ctx context.Context) ([]Booking, error) {
	return collectBookings(r.db.Query(ctx, `
		SELECT DISTINCT ON (patient_id, practitioner_id) `+bookingColumns+`
		FROM bookings
		WHERE status = 'completed'
		ORDER BY patient_id, practitioner_id, date DESC, time DESC
	`))
}

func (r *PgRepository) HasUpcomingBooking(ctx context.Context, patientID, practitionerID uuid.UUID, afterWall time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE patient_id = $1
			  AND practitioner_id = $2
			  AND status IN ('pending', 'confirmed')
			  AND (date + time) > $3::timestamp
		)
	`, patientID, practitionerID, afterWall).Scan(&exists)
	return exists, err
}

const followupColumns = `id, patient_id, practitioner_id, booking_id, sent_15_at, sent_30_at, sent_60_at, created_at`

func (r *PgRepository) EnsureFollowup(ctx context.Context, patientID, practitionerID, bookingID uuid.UUID) (*FollowupState, error) {
	_, err := r.db.Exec(ctx, `
		INSERT INTO followup_states (id, patient_id, practitioner_id, booking_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (patient_id, booking_id) DO NOTHING
	`, uuid.New(), patientID, practitionerID, bookingID)
	if err != nil {
		return nil, fmt.Errorf("insert followup state: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+followupColumns+`
		FROM followup_states
		WHERE patient_id = $1 AND booking_id = $2
	`, patientID, bookingID)
	return scanFollowup(row)
}

func (r *PgRepository) MarkFollowupSent(ctx context.Context, id uuid.UUID, m Milestone, at time.Time) (bool, error) {
	var column string
	switch m {
	case Milestone15:
		column = "sent_15_at"
	case Milestone30:
		column = "sent_30_at"
	case Milestone60:
		column = "sent_60_at"
	default:
		return false, fmt.Errorf("unknown follow-up milestone %d", m)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE followup_states
		SET `+column+` = $2
		WHERE id = $1
		  AND `+column+` IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark followup sent: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
