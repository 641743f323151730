package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/quickmeet/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, caller application.Caller, params application.CreateEventParams) (application.EventResponse, error)
	UpdateEvent(ctx context.Context, caller application.Caller, params application.UpdateEventParams) (application.EventResponse, error)
	UpdateEventResponse(ctx context.Context, caller application.Caller, eventID, responseStatus string) error
	DeleteEvent(ctx context.Context, caller application.Caller, eventID string) (application.DeleteResponse, error)
	ListEvents(ctx context.Context, caller application.Caller, params application.ListEventsParams) ([]application.EventResponse, error)
}

type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	start := parseTimestamp(req.Start)
	end := parseTimestamp(req.End)
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimeWindow)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "room_email", req.RoomEmail)

	response, err := h.service.CreateEvent(r.Context(), caller, application.CreateEventParams{
		Start:            start,
		End:              end,
		TimeZone:         strings.TrimSpace(req.TimeZone),
		RoomEmail:        strings.TrimSpace(req.RoomEmail),
		Title:            strings.TrimSpace(req.Title),
		CreateConference: req.CreateConference,
		Attendees:        req.toPeople(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, response)
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	start := parseTimestamp(req.Start)
	end := parseTimestamp(req.End)
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimeWindow)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "Update", "event_id", eventID, "room_email", req.RoomEmail)

	response, err := h.service.UpdateEvent(r.Context(), caller, application.UpdateEventParams{
		EventID:          eventID,
		Start:            start,
		End:              end,
		TimeZone:         strings.TrimSpace(req.TimeZone),
		RoomEmail:        strings.TrimSpace(req.RoomEmail),
		Title:            strings.TrimSpace(req.Title),
		CreateConference: req.CreateConference,
		Attendees:        req.toPeople(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *EventHandler) UpdateResponse(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req responseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	status := strings.TrimSpace(req.Response)
	switch status {
	case "accepted", "declined", "tentative", "needsAction":
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResponseStatus)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "UpdateResponse", "event_id", eventID, "response_status", status)

	if err := h.service.UpdateEventResponse(r.Context(), caller, eventID, status); err != nil {
		logger.ErrorContext(r.Context(), "response update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "Delete", "event_id", eventID)

	response, err := h.service.DeleteEvent(r.Context(), caller, eventID)
	if err != nil {
		logger.ErrorContext(r.Context(), "event deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	start := parseTimestamp(query.Get("start"))
	end := parseTimestamp(query.Get("end"))
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTimeWindow)
		return
	}

	params := application.ListEventsParams{
		Start:    start,
		End:      end,
		TimeZone: strings.TrimSpace(query.Get("timeZone")),
	}
	if limit := strings.TrimSpace(query.Get("limit")); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			params.Limit = parsed
		}
	}

	caller, _ := CallerFromContext(r.Context())
	logger := h.log(r.Context(), "List")

	responses, err := h.service.ListEvents(r.Context(), caller, params)
	if err != nil {
		logger.ErrorContext(r.Context(), "event listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, responses)
}

type eventRequest struct {
	Title            string   `json:"title"`
	Start            string   `json:"start"`
	End              string   `json:"end"`
	TimeZone         string   `json:"timeZone"`
	RoomEmail        string   `json:"roomEmail"`
	CreateConference bool     `json:"createConference"`
	Attendees        []string `json:"attendees"`
}

func (r eventRequest) toPeople() []application.Person {
	if len(r.Attendees) == 0 {
		return nil
	}
	people := make([]application.Person, 0, len(r.Attendees))
	for _, email := range r.Attendees {
		if trimmed := strings.TrimSpace(email); trimmed != "" {
			people = append(people, application.Person{Email: trimmed})
		}
	}
	return people
}

type responseStatusRequest struct {
	Response string `json:"response"`
}
