package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/logging"
)

const (
	headerPatientID      = "X-Patient-ID"
	headerPractitionerID = "X-Practitioner-ID"
)

var errMissingIdentity = errors.New("missing caller identity")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleError maps domain rejections to 4xx responses. Anything else is an
// infrastructure failure: logged and reported as 500 without details.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch booking.KindOf(err) {
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindSlotUnavailable, booking.KindInvalidState:
		status = http.StatusConflict
	case booking.KindLeadTime:
		status = http.StatusForbidden
	case booking.KindValidation:
		status = http.StatusBadRequest
	default:
		logging.FromContext(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeError(w, status, string(booking.KindOf(err)), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// callerID reads an identity header set by the upstream auth layer.
// A missing header yields uuid.Nil and errMissingIdentity.
func callerID(r *http.Request, header string) (uuid.UUID, error) {
	raw := r.Header.Get(header)
	if raw == "" {
		return uuid.Nil, errMissingIdentity
	}
	return uuid.Parse(raw)
}

func requireCaller(w http.ResponseWriter, r *http.Request, header string) (uuid.UUID, bool) {
	id, err := callerID(r, header)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", header+" header with a valid UUID is required")
		return uuid.Nil, false
	}
	return id, true
}

func parseSlot(w http.ResponseWriter, date, clock string) (booking.Date, booking.ClockTime, bool) {
	d, err := booking.ParseDate(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return booking.Date{}, 0, false
	}
	t, err := booking.ParseClockTime(clock)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return booking.Date{}, 0, false
	}
	return d, t, true
}
