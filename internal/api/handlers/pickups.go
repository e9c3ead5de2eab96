package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venue-pickup-service/internal/adapters/export"
	"venue-pickup-service/internal/api/dto"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/services"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PickupHandler exposes the pickup board and every ledger operation of one venue's
// business date.
type PickupHandler struct {
	Service  *services.PickupService
	Validate *validator.Validate
}

func NewPickupHandler(svc *services.PickupService) *PickupHandler {
	return &PickupHandler{Service: svc, Validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (h *PickupHandler) BusinessDate(w http.ResponseWriter, r *http.Request) {
	venueID, ok := pathUUID(w, r, "venueID")
	if !ok {
		return
	}

	var at time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "at must be an RFC3339 timestamp")
			return
		}
		at = parsed
	}

	bd, err := h.Service.ResolveBusinessDate(r.Context(), venueID, at)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.BusinessDateResponse{
		VenueID:      bd.Venue.ID,
		Timezone:     bd.Venue.Location.String(),
		DaySwitch:    bd.Venue.DaySwitch.String(),
		At:           bd.At,
		BusinessDate: bd.Date.String(),
		SpanStart:    bd.Span.Start.String(),
		SpanEnd:      bd.Span.End.String(),
		WindowStart:  bd.WindowStart,
		WindowEnd:    bd.WindowEnd,
	})
}

func (h *PickupHandler) Board(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	board, err := h.Service.Board(r.Context(), sc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.BoardResponse{
		VenueName:  board.Venue.Name,
		Ledger:     ledgerResponse(board.Ledger, board.Attendees),
		Attendees:  attendeeResponses(board.Ledger, board.Attendees),
		Unassigned: attendeeResponses(board.Ledger, board.Unassigned),
	})
}

// Manifest downloads the day's driver sheet. Arrival times are included when leg
// timing is available; a timing failure only leaves them blank.
func (h *PickupHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	board, err := h.Service.Board(r.Context(), sc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sc.Date = board.Date

	plans := make(map[export.LegRef]*domain.LegPlan)
routes:
	for _, rt := range board.Ledger.Routes() {
		for trip := 1; trip <= rt.TripCount(); trip++ {
			if len(board.Ledger.Leg(rt.ID, trip)) == 0 {
				continue
			}
			plan, err := h.Service.TimeLeg(r.Context(), sc, rt.ID, trip)
			if errors.Is(err, services.ErrPlanningUnavailable) {
				break routes
			}
			if err != nil {
				obs.Logger(r.Context()).WithError(err).Warn("manifest: leg timing unavailable")
				continue
			}
			plans[export.LegRef{RouteID: rt.ID, TripNumber: trip}] = plan
		}
	}

	var buf bytes.Buffer
	m := export.NewManifest(board.Venue, board.Ledger, board.Attendees, plans)
	if err := export.WriteManifest(&buf, m); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="pickups-`+board.Date.String()+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		obs.Logger(r.Context()).WithError(err).Warn("manifest: write response failed")
	}
}

func (h *PickupHandler) routeFromRequest(w http.ResponseWriter, r *http.Request) (domain.Route, bool) {
	var req dto.RouteRequest
	if !decodeJSON(w, r, &req) {
		return domain.Route{}, false
	}
	req.Normalize()
	if !validate(w, r, h.Validate, &req) {
		return domain.Route{}, false
	}

	return domain.Route{
		Label:          req.Label,
		DriverID:       req.DriverID,
		RoundTrips:     req.RoundTrips,
		Capacity:       req.Capacity,
		DepartAt:       *req.DepartAt,
		ReturnDepartAt: req.ReturnDepartAt,
		AvoidHighways:  req.AvoidHighways,
		AvoidTolls:     req.AvoidTolls,
	}, true
}

func (h *PickupHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	rt, ok := h.routeFromRequest(w, r)
	if !ok {
		return
	}

	_, l, err := h.Service.CreateRoute(r.Context(), sc, rt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ledgerResponse(l, nil))
}

func (h *PickupHandler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	rt, ok := h.routeFromRequest(w, r)
	if !ok {
		return
	}
	rt.ID = routeID

	dropped, l, err := h.Service.UpdateRoute(r.Context(), sc, rt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := dto.UpdateRouteResponse{Dropped: make([]dto.PassengerResponse, 0, len(dropped)), Ledger: ledgerResponse(l, nil)}
	for _, p := range dropped {
		res.Dropped = append(res.Dropped, passengerResponse(p, nil))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *PickupHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}

	l, err := h.Service.DeleteRoute(r.Context(), sc, routeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

func (h *PickupHandler) AddPassenger(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}

	var req dto.AddPassengerRequest
	if !decodeJSON(w, r, &req) || !validate(w, r, h.Validate, &req) {
		return
	}
	if req.TripNumber == 0 {
		req.TripNumber = 1
	}

	l, err := h.Service.AddPassenger(r.Context(), sc, routeID, req.AttendeeID, req.TripNumber)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

func (h *PickupHandler) RemovePassenger(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	attendeeID, ok := pathUUID(w, r, "attendeeID")
	if !ok {
		return
	}

	l, err := h.Service.RemovePassenger(r.Context(), sc, routeID, attendeeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

func (h *PickupHandler) FindAssignment(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	attendeeID, ok := pathUUID(w, r, "attendeeID")
	if !ok {
		return
	}

	routeID, assigned, err := h.Service.FindAssignment(r.Context(), sc, attendeeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := dto.AssignmentResponse{AttendeeID: attendeeID, Assigned: assigned}
	if assigned {
		res.RouteID = &routeID
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *PickupHandler) MoveAttendee(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	attendeeID, ok := pathUUID(w, r, "attendeeID")
	if !ok {
		return
	}

	var req dto.MoveAttendeeRequest
	if !decodeJSON(w, r, &req) || !validate(w, r, h.Validate, &req) {
		return
	}
	if req.TripNumber == 0 {
		req.TripNumber = 1
	}

	l, err := h.Service.MoveAttendee(r.Context(), sc, attendeeID, req.RouteID, req.TripNumber)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

func (h *PickupHandler) CapacityWarnings(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}

	trips, err := h.Service.CapacityWarnings(r.Context(), sc, routeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if trips == nil {
		trips = []int{}
	}
	writeJSON(w, r, http.StatusOK, dto.CapacityWarningsResponse{RouteID: routeID, Trips: trips})
}

func (h *PickupHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	trip, ok := pathTrip(w, r)
	if !ok {
		return
	}

	var req dto.ReorderRequest
	if !decodeJSON(w, r, &req) || !validate(w, r, h.Validate, &req) {
		return
	}

	l, err := h.Service.Reorder(r.Context(), sc, routeID, trip, req.AttendeeIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

func (h *PickupHandler) MoveOneStep(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	trip, ok := pathTrip(w, r)
	if !ok {
		return
	}
	attendeeID, ok := pathUUID(w, r, "attendeeID")
	if !ok {
		return
	}

	var req dto.StepRequest
	if !decodeJSON(w, r, &req) || !validate(w, r, h.Validate, &req) {
		return
	}
	dir, _ := domain.ParseDirection(req.Direction)

	l, err := h.Service.MoveOneStep(r.Context(), sc, routeID, trip, attendeeID, dir)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ledgerResponse(l, nil))
}

// Plan returns a proposed drop-off order for a leg, or with ?order=current the
// arrival times of the leg as it stands.
func (h *PickupHandler) Plan(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	trip, ok := pathTrip(w, r)
	if !ok {
		return
	}

	plan := h.Service.PlanLeg
	if r.URL.Query().Get("order") == "current" {
		plan = h.Service.TimeLeg
	}

	p, err := plan(r.Context(), sc, routeID, trip)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, planResponse(p))
}

func (h *PickupHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}
	routeID, ok := pathUUID(w, r, "routeID")
	if !ok {
		return
	}
	trip, ok := pathTrip(w, r)
	if !ok {
		return
	}

	p, l, err := h.Service.OptimizeLeg(r.Context(), sc, routeID, trip)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.OptimizeResponse{Plan: planResponse(p), Ledger: ledgerResponse(l, nil)})
}

func (h *PickupHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	suggestions, source, err := h.Service.Suggest(r.Context(), sc)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.SuggestionsResponse{Source: source, Suggestions: suggestionDTOs(suggestions)})
}

func (h *PickupHandler) ApplySuggestions(w http.ResponseWriter, r *http.Request) {
	sc, ok := scope(w, r)
	if !ok {
		return
	}

	var req dto.ApplySuggestionsRequest
	if !decodeJSON(w, r, &req) || !validate(w, r, h.Validate, &req) {
		return
	}

	suggestions := make([]domain.Suggestion, 0, len(req.Suggestions))
	for _, s := range req.Suggestions {
		suggestions = append(suggestions, domain.Suggestion{
			AttendeeID: s.AttendeeID,
			RouteID:    s.RouteID,
			TripNumber: s.TripNumber,
			Reason:     s.Reason,
		})
	}

	report, l, err := h.Service.ApplySuggestions(r.Context(), sc, suggestions, req.ConfirmMoves)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, applyResponse(report, l))
}

// Routes registers the pickup endpoints under /venues/{venueID}.
func (h *PickupHandler) Routes(r *mux.Router) {
	v := r.PathPrefix("/venues/{venueID}").Subrouter()
	v.HandleFunc("/business-date", h.BusinessDate).Methods(http.MethodGet)

	p := v.PathPrefix("/pickups").Subrouter()
	p.HandleFunc("", h.Board).Methods(http.MethodGet)
	p.HandleFunc("/manifest.xlsx", h.Manifest).Methods(http.MethodGet)

	p.HandleFunc("/routes", h.CreateRoute).Methods(http.MethodPost)
	p.HandleFunc("/routes/{routeID}", h.UpdateRoute).Methods(http.MethodPut)
	p.HandleFunc("/routes/{routeID}", h.DeleteRoute).Methods(http.MethodDelete)
	p.HandleFunc("/routes/{routeID}/warnings", h.CapacityWarnings).Methods(http.MethodGet)
	p.HandleFunc("/routes/{routeID}/passengers", h.AddPassenger).Methods(http.MethodPost)
	p.HandleFunc("/routes/{routeID}/passengers/{attendeeID}", h.RemovePassenger).Methods(http.MethodDelete)

	p.HandleFunc("/routes/{routeID}/trips/{trip:[0-9]+}/order", h.Reorder).Methods(http.MethodPut)
	p.HandleFunc("/routes/{routeID}/trips/{trip:[0-9]+}/passengers/{attendeeID}/step", h.MoveOneStep).Methods(http.MethodPost)
	p.HandleFunc("/routes/{routeID}/trips/{trip:[0-9]+}/plan", h.Plan).Methods(http.MethodGet)
	p.HandleFunc("/routes/{routeID}/trips/{trip:[0-9]+}/optimize", h.Optimize).Methods(http.MethodPost)

	p.HandleFunc("/assignments/{attendeeID}", h.FindAssignment).Methods(http.MethodGet)
	p.HandleFunc("/assignments/{attendeeID}/move", h.MoveAttendee).Methods(http.MethodPost)

	p.HandleFunc("/suggestions", h.Suggest).Methods(http.MethodPost)
	p.HandleFunc("/suggestions/apply", h.ApplySuggestions).Methods(http.MethodPost)
}
