package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/quickmeet/internal/gateway"
)

const (
	eventDescription       = "A quick meeting created by Quick Meet"
	eventColorID           = "3"
	conferenceSolutionType = "hangoutsMeet"
	defaultSummary         = "-"
)

// EventService orchestrates bookings against the calendar provider. It
// never books without an availability check, and it defers the event's
// authoritative state to the provider: every read goes back to the
// gateway.
type EventService struct {
	gateways     gateway.Selector
	directory    *DirectoryService
	availability *AvailabilityService
	logger       *slog.Logger

	now          func() time.Time
	conferenceID func() string
}

// NewEventService wires the orchestrator with its collaborators.
func NewEventService(gateways gateway.Selector, directory *DirectoryService, availability *AvailabilityService, logger *slog.Logger) *EventService {
	return &EventService{
		gateways:     gateways,
		directory:    directory,
		availability: availability,
		logger:       defaultLogger(logger),
		now:          time.Now,
		conferenceID: uuid.NewString,
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent books a room. Attendee emails are validated before any
// provider call; an occupied room rejects the whole operation with
// ErrConflict, which the caller corrects by picking another slot.
func (s *EventService) CreateEvent(ctx context.Context, caller Caller, params CreateEventParams) (response EventResponse, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent",
		"room_email", params.RoomEmail,
		"start", params.Start,
		"end", params.End,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event created", "event_id", response.EventID)
	}()

	if err = validateAttendeeEmails(params.Attendees); err != nil {
		return
	}

	var room ConferenceRoom
	room, err = s.directory.RoomByEmail(ctx, caller, params.RoomEmail)
	if err != nil {
		return
	}

	var free bool
	free, err = s.availability.CheckRoomAvailable(ctx, caller, params.Start, params.End, params.TimeZone, room.Email)
	if err != nil {
		return
	}
	if !free {
		err = fmt.Errorf("%s is not available for the requested window: %w", room.Name, ErrConflict)
		return
	}

	event := gateway.Event{
		Summary:     params.Title,
		Description: eventDescription,
		ColorID:     eventColorID,
		Start:       params.Start,
		End:         params.End,
		TimeZone:    params.TimeZone,
		Attendees:   buildAttendees(caller.Email, room.Email, params.Attendees, nil),
		CreatedAt:   s.now(),
	}
	if event.Summary == "" {
		event.Summary = defaultSummary
	}
	if params.CreateConference {
		event.Conference = &gateway.ConferenceRequest{
			RequestID:    s.conferenceID(),
			SolutionType: conferenceSolutionType,
		}
	}

	var created gateway.Event
	created, err = s.gateways.Pick(caller.UseMock).CreateEvent(ctx, caller.Credential, event)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	response = s.buildResponse(ctx, caller, created, room)
	response.IsEditable = true
	return
}

// UpdateEvent edits a booking. Only the organizer may edit. When the new
// room is the event's own current room the delta check applies, so the
// event never conflicts with itself; a changed room gets a plain full
// check. The whole event is resubmitted: repeat attendees keep their RSVP
// state, and conference data is recreated or stripped per the flag.
func (s *EventService) UpdateEvent(ctx context.Context, caller Caller, params UpdateEventParams) (response EventResponse, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent",
		"event_id", params.EventID,
		"room_email", params.RoomEmail,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated", "event_id", response.EventID)
	}()

	if err = validateAttendeeEmails(params.Attendees); err != nil {
		return
	}

	gw := s.gateways.Pick(caller.UseMock)

	var current gateway.Event
	current, err = gw.Event(ctx, caller.Credential, params.EventID)
	if err != nil {
		err = mapGatewayError(err)
		return
	}
	if !strings.EqualFold(current.Organizer, caller.Email) {
		err = fmt.Errorf("only the organizer can edit this event: %w", ErrUnauthorized)
		return
	}

	var room ConferenceRoom
	room, err = s.directory.RoomByEmail(ctx, caller, params.RoomEmail)
	if err != nil {
		return
	}

	var free bool
	currentRoom, hasRoom := current.RoomAttendee()
	if hasRoom && currentRoom.Email == room.Email {
		free, err = s.availability.checkEditedWindow(ctx, caller, current, params.Start, params.End, params.TimeZone)
	} else {
		free, err = s.availability.CheckRoomAvailable(ctx, caller, params.Start, params.End, params.TimeZone, room.Email)
	}
	if err != nil {
		return
	}
	if !free {
		err = fmt.Errorf("%s is not available for the requested window: %w", room.Name, ErrConflict)
		return
	}

	event := gateway.Event{
		ID:          current.ID,
		Summary:     params.Title,
		Description: current.Description,
		ColorID:     current.ColorID,
		Start:       params.Start,
		End:         params.End,
		TimeZone:    params.TimeZone,
		Attendees:   buildAttendees(caller.Email, room.Email, params.Attendees, current.Attendees),
		Organizer:   current.Organizer,
		CreatedAt:   current.CreatedAt,
	}
	if event.Summary == "" {
		event.Summary = defaultSummary
	}
	if params.CreateConference {
		event.Conference = &gateway.ConferenceRequest{
			RequestID:    s.conferenceID(),
			SolutionType: conferenceSolutionType,
		}
	}

	var updated gateway.Event
	updated, err = gw.UpdateEvent(ctx, caller.Credential, params.EventID, event)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	response = s.buildResponse(ctx, caller, updated, room)
	response.IsEditable = true
	return
}

// UpdateEventResponse records the caller's own RSVP on an event. The
// caller must already be a non-room, non-organizer attendee; the event is
// resubmitted whole with just that attendee's status changed.
func (s *EventService) UpdateEventResponse(ctx context.Context, caller Caller, eventID, responseStatus string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "UpdateEventResponse", "event_id", eventID, "response_status", responseStatus)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "response update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "response updated")
	}()

	gw := s.gateways.Pick(caller.UseMock)

	event, err := gw.Event(ctx, caller.Credential, eventID)
	if err != nil {
		return mapGatewayError(err)
	}

	found := false
	for i := range event.Attendees {
		attendee := event.Attendees[i]
		if attendee.IsRoom() || attendee.Organizer {
			continue
		}
		if strings.EqualFold(attendee.Email, caller.Email) {
			event.Attendees[i].ResponseStatus = responseStatus
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%s is not an attendee of this event: %w", caller.Email, ErrUnauthorized)
	}

	if _, err := gw.UpdateEvent(ctx, caller.Credential, eventID, event); err != nil {
		return mapGatewayError(err)
	}
	return nil
}

// DeleteEvent removes a booking unconditionally.
func (s *EventService) DeleteEvent(ctx context.Context, caller Caller, eventID string) (response DeleteResponse, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", eventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event deletion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if err = s.gateways.Pick(caller.UseMock).DeleteEvent(ctx, caller.Credential, eventID); err != nil {
		err = mapGatewayError(err)
		return
	}
	response = DeleteResponse{Deleted: true}
	return
}

// ListEvents returns the caller's bookings in the window, newest bookings
// first inside equal start times. Attendee identities are reconciled
// against the people directory; unknown addresses get a name synthesized
// from the email's local part.
func (s *EventService) ListEvents(ctx context.Context, caller Caller, params ListEventsParams) (responses []EventResponse, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListEvents", "start", params.Start, "end", params.End)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event listing failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "events listed", "result_count", len(responses))
	}()

	var events []gateway.Event
	events, err = s.gateways.Pick(caller.UseMock).Events(ctx, caller.Credential, params.Start, params.End, params.TimeZone, params.Limit)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	responses = make([]EventResponse, 0, len(events))
	for _, event := range events {
		var room ConferenceRoom
		if attendee, ok := event.RoomAttendee(); ok {
			room, _ = s.directory.RoomByEmail(ctx, caller, attendee.Email)
			if room.Email == "" {
				room = ConferenceRoom{Email: attendee.Email}
			}
		}
		response := s.buildResponse(ctx, caller, event, room)
		response.IsEditable = strings.EqualFold(event.Organizer, caller.Email)
		responses = append(responses, response)
	}

	sort.SliceStable(responses, func(i, j int) bool {
		if !responses[i].Start.Equal(responses[j].Start) {
			return responses[i].Start.Before(responses[j].Start)
		}
		return responses[i].CreatedAt.After(responses[j].CreatedAt)
	})
	return
}

// buildResponse normalizes a provider event. Room fields come from the
// directory record; when the event carries no web conference, a plain
// location string stands in for the meet link.
func (s *EventService) buildResponse(ctx context.Context, caller Caller, event gateway.Event, room ConferenceRoom) EventResponse {
	response := EventResponse{
		EventID:   event.ID,
		Summary:   event.Summary,
		Start:     event.Start,
		End:       event.End,
		Room:      room.Name,
		RoomEmail: room.Email,
		RoomID:    room.ID,
		Floor:     room.Floor,
		Seats:     room.Seats,
		Meet:      event.MeetLink,
		CreatedAt: event.CreatedAt,
	}
	if response.Meet == "" {
		response.Meet = event.Location
	}

	people := s.peopleIndex(ctx, caller)
	for _, attendee := range event.Attendees {
		if attendee.IsRoom() {
			continue
		}
		if strings.EqualFold(attendee.Email, caller.Email) {
			response.ResponseStatus = attendee.ResponseStatus
		}
		person, ok := people[strings.ToLower(attendee.Email)]
		if !ok {
			person = synthesizePerson(attendee.Email)
		}
		response.Attendees = append(response.Attendees, Attendee{
			Person:         person,
			ResponseStatus: attendee.ResponseStatus,
		})
	}
	return response
}

func (s *EventService) peopleIndex(ctx context.Context, caller Caller) map[string]Person {
	people, err := s.directory.People(ctx, caller)
	if err != nil {
		// Directory trouble must not sink an event read; names degrade
		// to synthesized ones.
		s.loggerWith(ctx, "peopleIndex").WarnContext(ctx, "people lookup failed", "error", err)
		return nil
	}
	index := make(map[string]Person, len(people))
	for _, person := range people {
		index[strings.ToLower(person.Email)] = person
	}
	return index
}

// synthesizePerson derives a display name from the email's local part.
// Synthesized records never reach the cache.
func synthesizePerson(email string) Person {
	local, _, _ := strings.Cut(email, "@")
	return Person{Email: email, Name: local}
}

// validateAttendeeEmails fails the whole operation on the first
// syntactically invalid address, before any provider call.
func validateAttendeeEmails(attendees []Person) error {
	for _, attendee := range attendees {
		if _, err := mail.ParseAddress(attendee.Email); err != nil {
			validation := &ValidationError{}
			validation.add("attendees", fmt.Sprintf("invalid attendee email: %s", attendee.Email))
			return validation
		}
	}
	return nil
}

// buildAttendees assembles the provider attendee list: the requested
// people, the room resource, and always the organizer. When a previous
// attendee list is given, repeat attendees keep their response status.
func buildAttendees(organizerEmail, roomEmail string, people []Person, previous []gateway.Attendee) []gateway.Attendee {
	existing := make(map[string]string, len(previous))
	for _, attendee := range previous {
		existing[strings.ToLower(attendee.Email)] = attendee.ResponseStatus
	}

	attendees := make([]gateway.Attendee, 0, len(people)+2)
	seen := make(map[string]struct{}, len(people)+2)
	add := func(attendee gateway.Attendee) {
		key := strings.ToLower(attendee.Email)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		attendees = append(attendees, attendee)
	}

	for _, person := range people {
		if strings.EqualFold(person.Email, organizerEmail) {
			continue
		}
		add(gateway.Attendee{
			Email:          person.Email,
			ResponseStatus: existing[strings.ToLower(person.Email)],
		})
	}
	add(gateway.Attendee{Email: roomEmail, Resource: true})
	add(gateway.Attendee{
		Email:          organizerEmail,
		Organizer:      true,
		ResponseStatus: "accepted",
	})
	return attendees
}
