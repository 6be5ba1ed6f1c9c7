package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/booking"
)

func availabilityHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := uuidParam(w, chi.URLParam(r, "id"), "practitioner_id")
		if !ok {
			return
		}
		date, err := booking.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
			return
		}

		result, err := resolver.GenerateSlots(r.Context(), practitionerID, date)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func listWindowsHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := uuidParam(w, chi.URLParam(r, "id"), "practitioner_id")
		if !ok {
			return
		}

		windows, err := resolver.ListWindows(r.Context(), practitionerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]WindowResponse, 0, len(windows))
		for i := range windows {
			resp = append(resp, toWindowResponse(&windows[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addWindowHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := practitionerSelf(w, r)
		if !ok {
			return
		}

		var req WindowRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, err := booking.ParseClockTime(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "start must be HH:MM")
			return
		}
		end, err := booking.ParseClockTime(req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "end must be HH:MM")
			return
		}

		created, err := resolver.AddWindow(r.Context(), booking.Window{
			PractitionerID: practitionerID,
			Weekday:        time.Weekday(req.Weekday),
			Start:          start,
			End:            end,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWindowResponse(created))
	}
}

func removeWindowHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := practitionerSelf(w, r)
		if !ok {
			return
		}
		windowID, ok := uuidParam(w, chi.URLParam(r, "windowID"), "window_id")
		if !ok {
			return
		}

		if err := resolver.RemoveWindow(r.Context(), practitionerID, windowID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listBlackoutsHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := uuidParam(w, chi.URLParam(r, "id"), "practitioner_id")
		if !ok {
			return
		}

		blackouts, err := resolver.ListBlackouts(r.Context(), practitionerID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		resp := make([]BlackoutResponse, 0, len(blackouts))
		for i := range blackouts {
			resp = append(resp, toBlackoutResponse(&blackouts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addBlackoutHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := practitionerSelf(w, r)
		if !ok {
			return
		}

		var req BlackoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start, err := booking.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD")
			return
		}
		var end booking.Date
		if req.EndDate != "" {
			if end, err = booking.ParseDate(req.EndDate); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD")
				return
			}
		}

		created, err := resolver.AddBlackout(r.Context(), booking.Blackout{
			PractitionerID: practitionerID,
			StartDate:      start,
			EndDate:        end,
			Reason:         req.Reason,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBlackoutResponse(created))
	}
}

func removeBlackoutHandler(resolver *booking.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, ok := practitionerSelf(w, r)
		if !ok {
			return
		}
		blackoutID, ok := uuidParam(w, chi.URLParam(r, "blackoutID"), "blackout_id")
		if !ok {
			return
		}

		if err := resolver.RemoveBlackout(r.Context(), practitionerID, blackoutID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// practitionerSelf returns the {id} practitioner when the caller is that
// practitioner. Only practitioners change their own availability.
func practitionerSelf(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	practitionerID, ok := uuidParam(w, chi.URLParam(r, "id"), "practitioner_id")
	if !ok {
		return uuid.Nil, false
	}
	caller, ok := requireCaller(w, r, headerPractitionerID)
	if !ok {
		return uuid.Nil, false
	}
	if caller != practitionerID {
		writeError(w, http.StatusForbidden, "forbidden", "practitioners can only change their own availability")
		return uuid.Nil, false
	}
	return practitionerID, true
}
