package api

import (
	"net/http"

	"github.com/hackgods/therapy-booking/internal/booking"
	"github.com/hackgods/therapy-booking/internal/logging"
)

// paymentCompletedHandler books the slot a completed checkout paid for. The
// gateway protocol itself is handled upstream; this only consumes the
// resulting data.
func paymentCompletedHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentCompletedRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, ok := uuidParam(w, req.PatientID, "patient_id")
		if !ok {
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
			Source:         booking.SourcePayment,
		})
		if err != nil {
			if booking.IsDomain(err) {
				logging.FromContext(r.Context()).Warn().
					Str("payment_id", req.PaymentID).
					Str("reason", err.Error()).
					Msg("paid slot could not be booked")
			}
			handleError(w, r, err)
			return
		}

		logging.FromContext(r.Context()).Info().
			Str("payment_id", req.PaymentID).
			Str("booking_id", b.ID.String()).
			Msg("booking created from payment")
		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}
