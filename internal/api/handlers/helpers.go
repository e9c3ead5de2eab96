package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"venue-pickup-service/internal/api/dto"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"
	"venue-pickup-service/internal/services"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obs.Logger(r.Context()).WithError(err).Warn("encode response failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, dto.ErrorResponse{Error: msg})
}

// decodeJSON reads exactly one JSON object with no unknown fields into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, r, http.StatusBadRequest, "body must contain only one JSON object")
		return false
	}
	return true
}

// validate runs struct validation and answers 422 with the failing fields.
func validate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	err := v.Struct(dst)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return false
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	writeJSON(w, r, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: "validation failed", Fields: fields})
	return false
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pathTrip(w http.ResponseWriter, r *http.Request) (int, bool) {
	trip, err := strconv.Atoi(mux.Vars(r)["trip"])
	if err != nil || trip < 1 {
		writeError(w, r, http.StatusBadRequest, "invalid trip")
		return 0, false
	}
	return trip, true
}

// scope reads the venue from the path and the optional ?date=YYYY-MM-DD.
func scope(w http.ResponseWriter, r *http.Request) (services.Scope, bool) {
	venueID, ok := pathUUID(w, r, "venueID")
	if !ok {
		return services.Scope{}, false
	}

	sc := services.Scope{VenueID: venueID}
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		date, err := domain.ParseBusinessDate(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return services.Scope{}, false
		}
		sc.Date = date
	}
	return sc, true
}

// writeServiceError maps domain and storage failures onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *domain.AssignmentError
	if errors.As(err, &ae) {
		res := dto.ErrorResponse{Error: ae.Error(), Kind: string(ae.Kind)}
		switch ae.Kind {
		case domain.KindAlreadyAssignedElsewhere:
			conflicting := ae.ConflictingRouteID
			res.ConflictingRouteID = &conflicting
			writeJSON(w, r, http.StatusConflict, res)
		case domain.KindRouteNotFound, domain.KindPassengerNotFound:
			writeJSON(w, r, http.StatusNotFound, res)
		case domain.KindInvalidPermutation, domain.KindTripNumberOutOfRange, domain.KindInvalidRoute:
			writeJSON(w, r, http.StatusUnprocessableEntity, res)
		default:
			obs.Logger(r.Context()).WithError(err).Error("ledger snapshot is inconsistent")
			writeError(w, r, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	switch {
	case errors.Is(err, ports.ErrLedgerConflict):
		writeJSON(w, r, http.StatusConflict, dto.ErrorResponse{Error: ports.ErrLedgerConflict.Error(), Kind: "ledger_conflict"})
	case errors.Is(err, ports.ErrVenueNotFound):
		writeError(w, r, http.StatusNotFound, ports.ErrVenueNotFound.Error())
	case errors.Is(err, services.ErrAttendeeNotEligible):
		writeJSON(w, r, http.StatusUnprocessableEntity, dto.ErrorResponse{Error: services.ErrAttendeeNotEligible.Error(), Kind: "attendee_not_eligible"})
	case errors.Is(err, services.ErrPlanningUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, services.ErrPlanningUnavailable.Error())
	default:
		obs.Logger(r.Context()).WithError(err).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
