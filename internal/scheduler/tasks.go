package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/notify"
)

func (s *Scheduler) reconcile(ctx context.Context, logger zerolog.Logger) (int, error) {
	now := s.cfg.Now()
	cutoff := booking.WallClock(now.Add(-booking.SlotDuration), s.cfg.Location)

	due, err := s.repo.ListOpenStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list elapsed bookings: %w", err)
	}

	closed := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if _, err := s.svc.MarkMissed(ctx, b.ID); err != nil {
			if booking.IsDomain(err) {
				logger.Debug().Str("booking_id", b.ID.String()).Str("reason", err.Error()).Msg("booking not marked missed")
				continue
			}
			logger.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to mark booking missed")
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *Scheduler) remind(ctx context.Context, logger zerolog.Logger) (int, error) {
	now := s.cfg.Now()
	from := booking.WallClock(now.Add(reminderFrom), s.cfg.Location)
	to := booking.WallClock(now.Add(reminderTo), s.cfg.Location)

	due, err := s.repo.ListDueReminders(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, b := range due {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		blog := logger.With().Str("booking_id", b.ID.String()).Logger()

		parties, err := s.svc.Parties(ctx, &b)
		if err != nil {
			blog.Error().Err(err).Msg("skipping reminder, parties not loaded")
			continue
		}

		report := s.notifier.Deliver(ctx, notify.Notification{Event: booking.NotifyReminder, Booking: b, Parties: parties})
		if report.AllFailed() {
			blog.Warn().Stringer("report", report).Msg("every reminder send failed, retrying next tick")
			continue
		}

		marked, err := s.repo.MarkReminderSent(ctx, b.ID, now)
		if err != nil {
			blog.Error().Err(err).Msg("failed to mark reminder sent")
			continue
		}
		if marked {
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) followUp(ctx context.Context, logger zerolog.Logger) (int, error) {
	now := s.cfg.Now()
	today := booking.DateOf(now.In(s.cfg.Location))
	nowWall := booking.WallClock(now, s.cfg.Location)

	latest, err := s.repo.ListLatestCompleted(ctx)
	if err != nil {
		return 0, fmt.Errorf("list latest completed bookings: %w", err)
	}

	sent := 0
	for _, b := range latest {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		days := today.DaysSince(b.Date)
		if days < int(booking.Milestones[0]) {
			continue
		}

		blog := logger.With().
			Str("booking_id", b.ID.String()).
			Str("patient_id", b.PatientID.String()).
			Str("practitioner_id", b.PractitionerID.String()).
			Logger()

		upcoming, err := s.repo.HasUpcomingBooking(ctx, b.PatientID, b.PractitionerID, nowWall)
		if err != nil {
			blog.Error().Err(err).Msg("failed to check upcoming bookings")
			continue
		}
		if upcoming {
			continue
		}

		n, err := s.followUpBooking(ctx, blog, b, days, now)
		sent += n
		if err != nil {
			blog.Error().Err(err).Msg("follow-up failed")
		}
	}
	return sent, nil
}

func (s *Scheduler) followUpBooking(ctx context.Context, logger zerolog.Logger, b booking.Booking, days int, now time.Time) (int, error) {
	state, err := s.repo.EnsureFollowup(ctx, b.PatientID, b.PractitionerID, b.ID)
	if err != nil {
		return 0, fmt.Errorf("ensure follow-up state: %w", err)
	}

	var parties *booking.Parties
	sent := 0
	for _, m := range booking.Milestones {
		if days < int(m) {
			break
		}
		if state.SentAt(m) != nil {
			continue
		}

		if parties == nil {
			p, err := s.svc.Parties(ctx, &b)
			if err != nil {
				return sent, fmt.Errorf("load parties: %w", err)
			}
			parties = &p
		}

		event := booking.FollowupEvent(m)
		report := s.notifier.Deliver(ctx, notify.Notification{Event: event, Booking: b, Parties: *parties})
		if report.AllFailed() {
			logger.Warn().Str("event", string(event)).Stringer("report", report).Msg("every follow-up send failed, retrying next run")
			return sent, nil
		}

		marked, err := s.repo.MarkFollowupSent(ctx, state.ID, m, now)
		if err != nil {
			return sent, fmt.Errorf("mark %s sent: %w", event, err)
		}
		if marked {
			sent++
		}
	}
	return sent, nil
}
