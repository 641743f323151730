package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/quickmeet/internal/application"
)

type directoryService interface {
	Rooms(ctx context.Context, caller application.Caller) ([]application.ConferenceRoom, error)
	Floors(ctx context.Context, caller application.Caller) ([]string, error)
	HighestSeatCapacity(ctx context.Context, caller application.Caller) (int, error)
	SearchPeople(ctx context.Context, caller application.Caller, emailQuery string) ([]application.Person, error)
}

type availabilityService interface {
	ResolveAvailability(ctx context.Context, caller application.Caller, params application.ResolveAvailabilityParams) (application.AvailabilityPartition, error)
}

type RoomHandler struct {
	directory    directoryService
	availability availabilityService
	responder    responder
	logger       *slog.Logger
}

func NewRoomHandler(directory directoryService, availability availabilityService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{
		directory:    directory,
		availability: availability,
		responder:    newResponder(base),
		logger:       base,
	}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

// List returns the full room directory, seat count ascending.
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, _ := CallerFromContext(r.Context())

	rooms, err := h.directory.Rooms(r.Context(), caller)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "room listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, rooms)
}

// Available resolves the free rooms for the requested window, partitioned
// by the floor preference.
func (h *RoomHandler) Available(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.availability == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := buildAvailabilityParams(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "Available", "min_seats", params.MinSeats, "floor", params.Floor)

	partition, err := h.availability.ResolveAvailability(r.Context(), caller, params)
	if err != nil {
		logger.ErrorContext(r.Context(), "availability resolution failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, partition)
}

// Floors returns the distinct floor labels, ordered by numeric suffix.
func (h *RoomHandler) Floors(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, _ := CallerFromContext(r.Context())

	floors, err := h.directory.Floors(r.Context(), caller)
	if err != nil {
		h.log(r.Context(), "Floors").ErrorContext(r.Context(), "floor listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, floorsResponse{Floors: floors})
}

// HighestSeatCount returns the largest seat capacity in the directory, so
// clients can bound their seat filters.
func (h *RoomHandler) HighestSeatCount(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, _ := CallerFromContext(r.Context())

	seats, err := h.directory.HighestSeatCapacity(r.Context(), caller)
	if err != nil {
		h.log(r.Context(), "HighestSeatCount").ErrorContext(r.Context(), "capacity lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, seatCountResponse{MaxSeats: seats})
}

// SearchPeople matches directory people by email substring.
func (h *RoomHandler) SearchPeople(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.directory == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	query := strings.TrimSpace(r.URL.Query().Get("email"))

	people, err := h.directory.SearchPeople(r.Context(), caller, query)
	if err != nil {
		h.log(r.Context(), "SearchPeople").ErrorContext(r.Context(), "people search failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, people)
}

func buildAvailabilityParams(values url.Values) (application.ResolveAvailabilityParams, error) {
	start := parseTimestamp(values.Get("start"))
	end := parseTimestamp(values.Get("end"))
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return application.ResolveAvailabilityParams{}, errInvalidTimeWindow
	}

	params := application.ResolveAvailabilityParams{
		Start:          start,
		End:            end,
		TimeZone:       strings.TrimSpace(values.Get("timeZone")),
		Floor:          strings.TrimSpace(values.Get("floor")),
		EditingEventID: strings.TrimSpace(values.Get("eventId")),
	}
	if seats := strings.TrimSpace(values.Get("minSeats")); seats != "" {
		parsed, err := strconv.Atoi(seats)
		if err != nil || parsed < 0 {
			return application.ResolveAvailabilityParams{}, errInvalidSeatCount
		}
		params.MinSeats = parsed
	}
	return params, nil
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	return time.Time{}
}

type floorsResponse struct {
	Floors []string `json:"floors"`
}

type seatCountResponse struct {
	MaxSeats int `json:"maxSeats"`
}
