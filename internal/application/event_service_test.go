package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/quickmeet/internal/gateway"
)

func newTestEventService(t *testing.T, stub *calendarGatewayStub) *EventService {
	t.Helper()
	directory := newTestDirectory(t, stub)
	availability := NewAvailabilityService(gateway.Selector{Real: stub}, directory, nil)
	svc := NewEventService(gateway.Selector{Real: stub}, directory, availability, nil)
	svc.now = func() time.Time { return windowAt(8, 0) }
	svc.conferenceID = func() string { return "conf-request-1" }
	return svc
}

func TestEventService_CreateEvent_RejectsInvalidAttendeeEmailBeforeProviderCall(t *testing.T) {
	t.Parallel()

	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", "a@resource.calendar.google.com", "A", "F1", 6),
		},
	}
	svc := newTestEventService(t, stub)

	_, err := svc.CreateEvent(context.Background(), Caller{Email: "user@example.com"}, CreateEventParams{
		Start:     windowAt(10, 0),
		End:       windowAt(11, 0),
		RoomEmail: "a@resource.calendar.google.com",
		Attendees: []Person{{Email: "not-an-email"}},
	})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(stub.scheduleCalls) != 0 {
		t.Fatal("validation must fail before any provider call")
	}
	if stub.created.ID != "" {
		t.Fatal("no event may be created after a validation failure")
	}
}

func TestEventService_CreateEvent_RejectsOccupiedRoom(t *testing.T) {
	t.Parallel()

	roomEmail := "a@resource.calendar.google.com"
	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", roomEmail, "A", "F1", 6),
		},
		busyByEmail: map[string][]gateway.BusyInterval{
			roomEmail: {{Start: windowAt(10, 0), End: windowAt(11, 0)}},
		},
	}
	svc := newTestEventService(t, stub)

	_, err := svc.CreateEvent(context.Background(), Caller{Email: "user@example.com"}, CreateEventParams{
		Start:     windowAt(10, 30),
		End:       windowAt(11, 30),
		RoomEmail: roomEmail,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if stub.created.ID != "" {
		t.Fatal("no event may be created for an occupied room")
	}
}

func TestEventService_CreateEvent_BuildsProviderEvent(t *testing.T) {
	t.Parallel()

	roomEmail := "a@resource.calendar.google.com"
	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", roomEmail, "A", "F1", 6),
		},
	}
	svc := newTestEventService(t, stub)

	response, err := svc.CreateEvent(context.Background(), Caller{Email: "user@example.com"}, CreateEventParams{
		Start:            windowAt(10, 0),
		End:              windowAt(11, 0),
		TimeZone:         "UTC",
		RoomEmail:        roomEmail,
		CreateConference: true,
		Attendees:        []Person{{Email: "colleague@example.com"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created := stub.created
	if created.Summary != "-" {
		t.Fatalf("summary = %q, want the placeholder dash", created.Summary)
	}
	if created.Description != eventDescription {
		t.Fatalf("description = %q", created.Description)
	}
	if created.ColorID != eventColorID {
		t.Fatalf("colorId = %q", created.ColorID)
	}
	if created.Conference == nil || created.Conference.RequestID != "conf-request-1" || created.Conference.SolutionType != conferenceSolutionType {
		t.Fatalf("conference request = %+v", created.Conference)
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("createdAt must be stamped")
	}

	var haveRoom, haveOrganizer, haveColleague bool
	for _, attendee := range created.Attendees {
		switch {
		case attendee.Email == roomEmail && attendee.Resource:
			haveRoom = true
		case attendee.Email == "user@example.com" && attendee.Organizer && attendee.ResponseStatus == "accepted":
			haveOrganizer = true
		case attendee.Email == "colleague@example.com":
			haveColleague = true
		}
	}
	if !haveRoom || !haveOrganizer || !haveColleague {
		t.Fatalf("attendee list incomplete: %+v", created.Attendees)
	}

	if !response.IsEditable {
		t.Fatal("creator must always be able to edit the new event")
	}
	if response.Room != "A" || response.RoomEmail != roomEmail {
		t.Fatalf("room fields = %q %q", response.Room, response.RoomEmail)
	}
}

func TestEventService_UpdateEvent_RejectsNonOrganizer(t *testing.T) {
	t.Parallel()

	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", "a@resource.calendar.google.com", "A", "F1", 6),
		},
		event: gateway.Event{
			ID:        "event-1",
			Start:     windowAt(10, 0),
			End:       windowAt(11, 0),
			Organizer: "owner@example.com",
		},
	}
	svc := newTestEventService(t, stub)

	_, err := svc.UpdateEvent(context.Background(), Caller{Email: "intruder@example.com"}, UpdateEventParams{
		EventID:   "event-1",
		Start:     windowAt(10, 0),
		End:       windowAt(11, 0),
		RoomEmail: "a@resource.calendar.google.com",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if stub.updatedID != "" {
		t.Fatal("no update may reach the provider")
	}
}

func TestEventService_UpdateEvent_PreservesRepeatAttendeeResponse(t *testing.T) {
	t.Parallel()

	roomEmail := "a@resource.calendar.google.com"
	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", roomEmail, "A", "F1", 6),
		},
		busyByEmail: map[string][]gateway.BusyInterval{
			roomEmail: {{Start: windowAt(10, 0), End: windowAt(11, 0)}},
		},
		event: gateway.Event{
			ID:    "event-1",
			Start: windowAt(10, 0),
			End:   windowAt(11, 0),
			Attendees: []gateway.Attendee{
				{Email: "user@example.com", Organizer: true, ResponseStatus: "accepted"},
				{Email: "repeat@example.com", ResponseStatus: "declined"},
				{Email: roomEmail, Resource: true, ResponseStatus: "accepted"},
			},
			Organizer: "user@example.com",
		},
	}
	svc := newTestEventService(t, stub)

	// Same room, same-day shrink: delta logic keeps the event from
	// conflicting with its own occupancy.
	_, err := svc.UpdateEvent(context.Background(), Caller{Email: "user@example.com"}, UpdateEventParams{
		EventID:   "event-1",
		Start:     windowAt(10, 0),
		End:       windowAt(10, 30),
		RoomEmail: roomEmail,
		Attendees: []Person{
			{Email: "repeat@example.com"},
			{Email: "newcomer@example.com"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	statuses := make(map[string]string, len(stub.updated.Attendees))
	for _, attendee := range stub.updated.Attendees {
		statuses[attendee.Email] = attendee.ResponseStatus
	}
	if statuses["repeat@example.com"] != "declined" {
		t.Fatalf("repeat attendee status = %q, want preserved decline", statuses["repeat@example.com"])
	}
	if statuses["newcomer@example.com"] != "" {
		t.Fatalf("new attendee status = %q, want empty", statuses["newcomer@example.com"])
	}
	if statuses["user@example.com"] != "accepted" {
		t.Fatal("organizer must be appended as an accepted attendee")
	}
}

func TestEventService_UpdateEvent_ChangedRoomUsesPlainCheck(t *testing.T) {
	t.Parallel()

	oldRoom := "a@resource.calendar.google.com"
	newRoom := "b@resource.calendar.google.com"
	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", oldRoom, "A", "F1", 6),
			testRoomResource("r2", newRoom, "B", "F1", 8),
		},
		busyByEmail: map[string][]gateway.BusyInterval{
			newRoom: {{Start: windowAt(10, 0), End: windowAt(11, 0)}},
		},
		event: gateway.Event{
			ID:    "event-1",
			Start: windowAt(10, 0),
			End:   windowAt(11, 0),
			Attendees: []gateway.Attendee{
				{Email: oldRoom, Resource: true},
			},
			Organizer: "user@example.com",
		},
	}
	svc := newTestEventService(t, stub)

	_, err := svc.UpdateEvent(context.Background(), Caller{Email: "user@example.com"}, UpdateEventParams{
		EventID:   "event-1",
		Start:     windowAt(10, 0),
		End:       windowAt(11, 0),
		RoomEmail: newRoom,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for the occupied new room, got %v", err)
	}
}

func TestEventService_UpdateEventResponse(t *testing.T) {
	t.Parallel()

	roomEmail := "a@resource.calendar.google.com"
	baseEvent := gateway.Event{
		ID:    "event-1",
		Start: windowAt(10, 0),
		End:   windowAt(11, 0),
		Attendees: []gateway.Attendee{
			{Email: "owner@example.com", Organizer: true, ResponseStatus: "accepted"},
			{Email: "guest@example.com", ResponseStatus: "needsAction"},
			{Email: roomEmail, Resource: true, ResponseStatus: "accepted"},
		},
		Organizer: "owner@example.com",
	}

	t.Run("attendee can record an RSVP", func(t *testing.T) {
		t.Parallel()

		stub := &calendarGatewayStub{event: baseEvent}
		svc := newTestEventService(t, stub)

		if err := svc.UpdateEventResponse(context.Background(), Caller{Email: "guest@example.com"}, "event-1", "accepted"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if stub.updatedID != "event-1" {
			t.Fatalf("updated id = %q", stub.updatedID)
		}
		for _, attendee := range stub.updated.Attendees {
			if attendee.Email == "guest@example.com" && attendee.ResponseStatus != "accepted" {
				t.Fatalf("guest status = %q", attendee.ResponseStatus)
			}
			if attendee.Email == "owner@example.com" && attendee.ResponseStatus != "accepted" {
				t.Fatal("other attendees must be untouched")
			}
		}
	})

	t.Run("non-attendee is rejected", func(t *testing.T) {
		t.Parallel()

		stub := &calendarGatewayStub{event: baseEvent}
		svc := newTestEventService(t, stub)

		err := svc.UpdateEventResponse(context.Background(), Caller{Email: "stranger@example.com"}, "event-1", "accepted")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if stub.updatedID != "" {
			t.Fatal("no update may reach the provider")
		}
	})

	t.Run("organizer cannot use the RSVP path", func(t *testing.T) {
		t.Parallel()

		stub := &calendarGatewayStub{event: baseEvent}
		svc := newTestEventService(t, stub)

		err := svc.UpdateEventResponse(context.Background(), Caller{Email: "owner@example.com"}, "event-1", "declined")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestEventService_DeleteEvent(t *testing.T) {
	t.Parallel()

	stub := &calendarGatewayStub{}
	svc := newTestEventService(t, stub)

	response, err := svc.DeleteEvent(context.Background(), Caller{Email: "user@example.com"}, "event-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !response.Deleted {
		t.Fatal("expected the deletion to be acknowledged")
	}
}

func TestEventService_ListEvents(t *testing.T) {
	t.Parallel()

	roomEmail := "a@resource.calendar.google.com"
	stub := &calendarGatewayStub{
		resources: []gateway.CalendarResource{
			testRoomResource("r1", roomEmail, "A", "F1", 6),
		},
		people: []gateway.DirectoryPerson{
			{
				EmailAddresses: []gateway.PersonEmail{{Value: "known@example.com", Primary: true, Verified: true}},
				Names:          []gateway.PersonName{{DisplayName: "Known Person", Primary: true}},
			},
		},
		events: []gateway.Event{
			{
				ID:    "event-late",
				Start: windowAt(10, 0),
				End:   windowAt(11, 0),
				Attendees: []gateway.Attendee{
					{Email: "user@example.com", Organizer: true, ResponseStatus: "accepted"},
					{Email: "known@example.com", ResponseStatus: "tentative"},
					{Email: "unknown@example.com"},
					{Email: roomEmail, Resource: true},
				},
				Organizer: "user@example.com",
				CreatedAt: windowAt(7, 0),
			},
			{
				ID:    "event-early",
				Start: windowAt(10, 0),
				End:   windowAt(10, 30),
				Attendees: []gateway.Attendee{
					{Email: "owner@example.com", Organizer: true},
					{Email: "user@example.com", ResponseStatus: "needsAction"},
				},
				Organizer: "owner@example.com",
				Location:  "Offsite cafe",
				CreatedAt: windowAt(9, 0),
			},
		},
	}
	svc := newTestEventService(t, stub)

	responses, err := svc.ListEvents(context.Background(), Caller{Email: "user@example.com"}, ListEventsParams{
		Start: windowAt(0, 0),
		End:   windowAt(23, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("result count = %d, want 2", len(responses))
	}

	// Equal start times break the tie by newest creation first.
	if responses[0].EventID != "event-early" || responses[1].EventID != "event-late" {
		t.Fatalf("order = %s, %s", responses[0].EventID, responses[1].EventID)
	}

	owned := responses[1]
	if !owned.IsEditable {
		t.Fatal("the organizer's own event must be editable")
	}
	if owned.Room != "A" || owned.RoomEmail != roomEmail {
		t.Fatalf("room fields = %q %q", owned.Room, owned.RoomEmail)
	}
	if owned.ResponseStatus != "accepted" {
		t.Fatalf("requester response = %q", owned.ResponseStatus)
	}

	names := make(map[string]string)
	for _, attendee := range owned.Attendees {
		names[attendee.Email] = attendee.Name
	}
	if names["known@example.com"] != "Known Person" {
		t.Fatalf("directory name = %q", names["known@example.com"])
	}
	if names["unknown@example.com"] != "unknown" {
		t.Fatalf("synthesized name = %q", names["unknown@example.com"])
	}

	foreign := responses[0]
	if foreign.IsEditable {
		t.Fatal("another organizer's event must not be editable")
	}
	if foreign.Meet != "Offsite cafe" {
		t.Fatalf("location fallback = %q", foreign.Meet)
	}
}
