package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/quickmeet/internal/cache"
)

// mockEventTTL keeps the mock event store alive long enough for demos
// without growing forever.
const mockEventTTL = 15 * 24 * time.Hour

// MockGateway is a provider stand-in with a seeded room and people
// directory. Events live in the shared cache store so they survive as long
// as the cache does and free/busy data can be derived from them.
type MockGateway struct {
	store  cache.Store
	now    func() time.Time
	logger *slog.Logger
	serial atomic.Uint64

	rooms  []CalendarResource
	people []DirectoryPerson
}

// NewMockGateway constructs a mock gateway backed by the given cache store.
func NewMockGateway(store cache.Store, now func() time.Time, logger *slog.Logger) *MockGateway {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MockGateway{
		store:  store,
		now:    now,
		logger: logger,
		rooms:  seedRooms(),
		people: seedPeople(),
	}
}

func (m *MockGateway) AuthURL(platform string) string {
	return "/oauthcallback?code=mock_code&state=" + platform
}

func (m *MockGateway) ExchangeCode(ctx context.Context, code string) (Token, error) {
	m.logger.InfoContext(ctx, "mock token exchange", "code", code)
	return Token{
		AccessToken:  "mockAccessToken",
		RefreshToken: "mockRefreshToken",
		Email:        "john.doe@example.com",
		Domain:       "example.com",
		ExpiresAt:    m.now().Add(time.Hour),
	}, nil
}

func (m *MockGateway) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrUnauthenticated
	}
	return "mockAccessToken", nil
}

func (m *MockGateway) RevokeCredential(ctx context.Context, cred Credential) error {
	return nil
}

func (m *MockGateway) CalendarResources(ctx context.Context, cred Credential) ([]CalendarResource, error) {
	rooms := make([]CalendarResource, len(m.rooms))
	copy(rooms, m.rooms)
	return rooms, nil
}

func (m *MockGateway) Schedule(ctx context.Context, cred Credential, start, end time.Time, timeZone string, roomEmails []string) ([]RoomSchedule, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return nil, err
	}

	schedules := make([]RoomSchedule, 0, len(roomEmails))
	for _, email := range roomEmails {
		schedule := RoomSchedule{Email: email}
		for _, event := range events {
			for _, attendee := range event.Attendees {
				if attendee.Email == email {
					schedule.Busy = append(schedule.Busy, BusyInterval{Start: event.Start, End: event.End})
					break
				}
			}
		}
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

func (m *MockGateway) Events(ctx context.Context, cred Credential, start, end time.Time, timeZone string, limit int) ([]Event, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 30
	}

	// Widen the window slightly so events straddling its edges still show.
	const edgeSlack = 15 * time.Minute

	filtered := make([]Event, 0, len(events))
	for _, event := range events {
		if event.End.Add(edgeSlack).Before(start) || event.Start.Add(-edgeSlack).After(end) {
			continue
		}
		for i := range event.Attendees {
			if strings.HasSuffix(event.Attendees[i].Email, ResourceEmailSuffix) {
				event.Attendees[i].Resource = true
			}
		}
		filtered = append(filtered, event)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Start.Before(filtered[j].Start)
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *MockGateway) Event(ctx context.Context, cred Credential, id string) (Event, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return Event{}, err
	}
	for _, event := range events {
		if event.ID == id {
			return event, nil
		}
	}
	return Event{}, ErrNotFound
}

func (m *MockGateway) CreateEvent(ctx context.Context, cred Credential, event Event) (Event, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return Event{}, err
	}

	event.ID = fmt.Sprintf("event-%d-%d", m.now().UnixMilli(), m.serial.Add(1))
	if event.Conference != nil {
		event.MeetLink = "https://meet.example.com/mock-" + event.Conference.RequestID
	}
	if event.Organizer == "" {
		for _, attendee := range event.Attendees {
			if attendee.Organizer {
				event.Organizer = attendee.Email
				break
			}
		}
	}
	for i := range event.Attendees {
		if strings.HasSuffix(event.Attendees[i].Email, ResourceEmailSuffix) {
			event.Attendees[i].Resource = true
		}
	}

	events = append(events, event)
	if err := m.saveEvents(ctx, events); err != nil {
		return Event{}, err
	}
	m.logger.InfoContext(ctx, "mock event created", "event_id", event.ID)
	return event, nil
}

func (m *MockGateway) UpdateEvent(ctx context.Context, cred Credential, id string, event Event) (Event, error) {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return Event{}, err
	}

	for i := range events {
		if events[i].ID != id {
			continue
		}
		event.ID = id
		if event.Organizer == "" {
			event.Organizer = events[i].Organizer
		}
		if event.Conference != nil {
			event.MeetLink = "https://meet.example.com/mock-" + event.Conference.RequestID
		} else {
			event.MeetLink = ""
		}
		for j := range event.Attendees {
			if strings.HasSuffix(event.Attendees[j].Email, ResourceEmailSuffix) {
				event.Attendees[j].Resource = true
			}
		}
		events[i] = event
		if err := m.saveEvents(ctx, events); err != nil {
			return Event{}, err
		}
		return event, nil
	}
	return Event{}, ErrNotFound
}

func (m *MockGateway) DeleteEvent(ctx context.Context, cred Credential, id string) error {
	events, err := m.loadEvents(ctx)
	if err != nil {
		return err
	}
	for i := range events {
		if events[i].ID == id {
			events = append(events[:i], events[i+1:]...)
			return m.saveEvents(ctx, events)
		}
	}
	return ErrNotFound
}

func (m *MockGateway) ListPeople(ctx context.Context, cred Credential) ([]DirectoryPerson, error) {
	people := make([]DirectoryPerson, len(m.people))
	copy(people, m.people)
	return people, nil
}

func (m *MockGateway) loadEvents(ctx context.Context) ([]Event, error) {
	raw, ok, err := m.store.Get(ctx, cache.KeyMockEvents)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("corrupt mock event store: %w", err)
	}
	return events, nil
}

func (m *MockGateway) saveEvents(ctx context.Context, events []Event) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, cache.KeyMockEvents, raw, mockEventTTL)
}

func seedRooms() []CalendarResource {
	return []CalendarResource{
		{
			ResourceID:    "room102",
			ResourceName:  "Cedar",
			ResourceEmail: "cedar.room@resource.calendar.google.com",
			Description:   "A cozy room with wooden accents and a large display screen.",
			FloorName:     "F1",
			Capacity:      8,
		},
		{
			ResourceID:    "room112",
			ResourceName:  "Aurora",
			ResourceEmail: "aurora.room@resource.calendar.google.com",
			Description:   "A high-tech room with smart lighting and advanced video conferencing equipment.",
			FloorName:     "F1",
			Capacity:      12,
		},
		{
			ResourceID:    "room203",
			ResourceName:  "Oasis",
			ResourceEmail: "oasis.room@resource.calendar.google.com",
			Description:   "A relaxing room with plants and a calming atmosphere, ideal for creative sessions.",
			FloorName:     "F2",
			Capacity:      7,
		},
		{
			ResourceID:    "room306",
			ResourceName:  "Summit",
			ResourceEmail: "summit.room@resource.calendar.google.com",
			Description:   "An executive boardroom with premium furnishings and a city skyline view.",
			FloorName:     "F3",
			Capacity:      18,
		},
		{
			ResourceID:    "room207",
			ResourceName:  "Cascade",
			ResourceEmail: "cascade.room@resource.calendar.google.com",
			Description:   "A quiet room with comfortable seating and a large whiteboard for brainstorming.",
			FloorName:     "F2",
			Capacity:      6,
		},
		{
			ResourceID:    "room307",
			ResourceName:  "Zen Conference",
			ResourceEmail: "zen.room@resource.calendar.google.com",
			Description:   "A minimalist room with natural lighting and a video wall for presentations.",
			FloorName:     "F3",
			Capacity:      10,
		},
		{
			ResourceID:    "room108",
			ResourceName:  "Galaxy",
			ResourceEmail: "galaxy.room@resource.calendar.google.com",
			Description:   "A futuristic room with interactive displays and advanced connectivity options.",
			FloorName:     "F1",
			Capacity:      12,
		},
		{
			ResourceID:    "room401",
			ResourceName:  "Nebula Boardroom",
			ResourceEmail: "nebula.room@resource.calendar.google.com",
			Description:   "A top-floor boardroom with a stunning view and high-end presentation tools.",
			FloorName:     "F4",
			Capacity:      20,
		},
	}
}

func seedPeople() []DirectoryPerson {
	person := func(name, email string, verified bool) DirectoryPerson {
		return DirectoryPerson{
			Names:          []PersonName{{DisplayName: name, Primary: true}},
			Photos:         []PersonPhoto{{URL: "https://example.com/photo.jpg", Primary: true}},
			EmailAddresses: []PersonEmail{{Value: email, Primary: true, Verified: verified}},
		}
	}
	return []DirectoryPerson{
		person("Example User", "example@org.com", true),
		person("John Doe", "john.doe@org.com", true),
		person("Jane Doe", "jane.doe@org.com", true),
		person("Sam Lee", "unverified@org.com", false),
		person("Test User", "test.user@org.com", true),
	}
}
