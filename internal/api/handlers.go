package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/calendar"
	"github.com/hackgods/therapy-booking/internal/notify"
)

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireCaller(w, r, headerPatientID)
		if !ok {
			return
		}

		var req CreateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		practitionerID, ok := uuidParam(w, req.PractitionerID, "practitioner_id")
		if !ok {
			return
		}
		date, t, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		b, err := svc.Create(r.Context(), booking.CreateInput{
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Date:           date,
			Time:           t,
			Note:           req.Note,
			Motive:         req.Motive,
			Source:         booking.SourcePatient,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireCaller(w, r, headerPatientID)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		if offset < 0 {
			offset = 0
		}

		bookings, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := ListBookingsResponse{Bookings: make([]BookingResponse, 0, len(bookings)), Limit: limit, Offset: offset}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadVisibleBooking(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func confirmBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, ok := loadVisibleBooking(w, r, svc)
		if !ok {
			return
		}

		b, err := svc.Confirm(r.Context(), current.ID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func rescheduleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireCaller(w, r, headerPatientID)
		if !ok {
			return
		}
		id, ok := uuidParam(w, chi.URLParam(r, "id"), "booking_id")
		if !ok {
			return
		}

		var req RescheduleBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, t, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		b, err := svc.Reschedule(r.Context(), booking.RescheduleInput{
			BookingID: id,
			PatientID: patientID,
			Date:      date,
			Time:      t,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := requireCaller(w, r, headerPatientID)
		if !ok {
			return
		}
		id, ok := uuidParam(w, chi.URLParam(r, "id"), "booking_id")
		if !ok {
			return
		}

		b, err := svc.Cancel(r.Context(), booking.CancelInput{BookingID: id, PatientID: patientID})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func joinBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		party := booking.Party(req.Party)

		b, ok := loadVisibleBooking(w, r, svc)
		if !ok {
			return
		}
		if !callerIs(r, b, party) {
			writeError(w, http.StatusForbidden, "forbidden", "caller cannot join as "+req.Party)
			return
		}

		result, err := svc.RegisterJoin(r.Context(), b.ID, party)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, JoinBookingResponse{
			Booking:  toBookingResponse(result.Booking),
			Promoted: result.Promoted,
		})
	}
}

// calendarHandler serves the current invite of a booking as seen by the
// caller.
func calendarHandler(svc *booking.Service, renderer *notify.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := loadVisibleBooking(w, r, svc)
		if !ok {
			return
		}

		role := notify.RolePatient
		if _, err := callerID(r, headerPatientID); err != nil {
			role = notify.RolePractitioner
		}

		action := calendar.ActionCreate
		switch {
		case b.Status == booking.StatusCancelled:
			action = calendar.ActionCancel
		case b.UpdatedAt.After(b.CreatedAt):
			action = calendar.ActionUpdate
		}

		parties, err := svc.Parties(r.Context(), b)
		if err != nil {
			handleError(w, r, err)
			return
		}
		ics, err := renderer.Invite(*b, parties, action, role)
		if err != nil {
			handleError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="session.ics"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(ics)
	}
}

// loadVisibleBooking loads the {id} booking when one of the identity headers
// names its patient or practitioner. Bookings of other people are reported
// as not found.
func loadVisibleBooking(w http.ResponseWriter, r *http.Request, svc *booking.Service) (*booking.Booking, bool) {
	id, ok := uuidParam(w, chi.URLParam(r, "id"), "booking_id")
	if !ok {
		return nil, false
	}

	patientID, perr := callerID(r, headerPatientID)
	practitionerID, pracErr := callerID(r, headerPractitionerID)
	if perr != nil && pracErr != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "an identity header with a valid UUID is required")
		return nil, false
	}

	b, err := svc.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}

	if (perr == nil && b.PatientID == patientID) || (pracErr == nil && b.PractitionerID == practitionerID) {
		return b, true
	}
	handleError(w, r, booking.ErrBookingNotFound)
	return nil, false
}

func callerIs(r *http.Request, b *booking.Booking, party booking.Party) bool {
	switch party {
	case booking.PartyPatient:
		id, err := callerID(r, headerPatientID)
		return err == nil && id == b.PatientID
	case booking.PartyPractitioner:
		id, err := callerID(r, headerPractitionerID)
		return err == nil && id == b.PractitionerID
	}
	// Unknown parties are rejected by the service with a validation error.
	return true
}
