// Package gateway wraps the external calendar, directory, and people
// provider. The core services depend only on the CalendarGateway interface;
// the concrete implementation (real or mock) is picked per request.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ResourceEmailSuffix marks calendar attendees that are bookable rooms
// rather than people.
const ResourceEmailSuffix = "resource.calendar.google.com"

var (
	// ErrUnauthenticated is returned when the provider rejects the
	// credential, including after the single reactive token refresh.
	ErrUnauthenticated = errors.New("gateway: unauthenticated")
	// ErrNotFound is returned for unknown events or a directory without
	// resources (typically a non-organizational account).
	ErrNotFound = errors.New("gateway: not found")
	// ErrConflict is returned when the provider rejects a mutation due to
	// the resource's current state.
	ErrConflict = errors.New("gateway: conflict")
)

// Credential carries the bearer material injected into every provider call.
// It is request-scoped; the gateway holds no ambient credential state.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// Token is the result of an OAuth code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	Email        string
	Domain       string
	ExpiresAt    time.Time
}

// CalendarResource is a room entry from the provider directory.
type CalendarResource struct {
	ResourceID    string
	ResourceName  string
	ResourceEmail string
	Description   string
	FloorName     string
	Capacity      int
}

// BusyInterval is a half-open [Start, End) occupancy slot.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// RoomSchedule carries the busy intervals for one room. The slice order of
// a Schedule response preserves the provider's iteration order.
type RoomSchedule struct {
	Email string
	Busy  []BusyInterval
}

// Attendee is a provider event attendee, person or room resource.
type Attendee struct {
	Email          string
	Organizer      bool
	Resource       bool
	ResponseStatus string
}

// IsRoom reports whether the attendee represents a bookable room.
func (a Attendee) IsRoom() bool {
	return a.Resource || strings.HasSuffix(a.Email, ResourceEmailSuffix)
}

// ConferenceRequest asks the provider to attach a web conference to an
// event. RequestID makes the creation idempotent on the provider side.
type ConferenceRequest struct {
	RequestID    string
	SolutionType string
}

// Event is the normalized provider event consumed and produced by the core.
type Event struct {
	ID          string
	Summary     string
	Description string
	Location    string
	ColorID     string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []Attendee
	Organizer   string
	MeetLink    string
	CreatedAt   time.Time
	Conference  *ConferenceRequest
}

// RoomAttendee returns the event's current room: a resource attendee that
// has not declined. The second result is false when the event has none.
func (e Event) RoomAttendee() (Attendee, bool) {
	for _, attendee := range e.Attendees {
		if attendee.IsRoom() && attendee.ResponseStatus != "declined" {
			return attendee, true
		}
	}
	return Attendee{}, false
}

// PersonEmail is one address of a directory person.
type PersonEmail struct {
	Value    string
	Primary  bool
	Verified bool
}

// PersonName is one display name of a directory person.
type PersonName struct {
	DisplayName string
	Primary     bool
}

// PersonPhoto is one photo of a directory person.
type PersonPhoto struct {
	URL     string
	Primary bool
}

// DirectoryPerson is a raw people-directory entry before normalization.
type DirectoryPerson struct {
	EmailAddresses []PersonEmail
	Names          []PersonName
	Photos         []PersonPhoto
}

// CalendarGateway is the collaborator contract the core consumes.
type CalendarGateway interface {
	// AuthURL produces the provider consent URL for the given platform.
	AuthURL(platform string) string
	// ExchangeCode trades an authorization code for tokens and identity.
	ExchangeCode(ctx context.Context, code string) (Token, error)
	// RefreshAccessToken rotates an access token using the refresh token.
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
	// RevokeCredential invalidates the credential with the provider.
	RevokeCredential(ctx context.Context, cred Credential) error

	// CalendarResources lists the organization's room directory.
	CalendarResources(ctx context.Context, cred Credential) ([]CalendarResource, error)
	// Schedule returns free/busy data for the given rooms in one batched
	// call. Rooms the provider omits from its response are absent from the
	// result; callers decide how to treat them.
	Schedule(ctx context.Context, cred Credential, start, end time.Time, timeZone string, roomEmails []string) ([]RoomSchedule, error)
	// Events lists the requester's events inside the window.
	Events(ctx context.Context, cred Credential, start, end time.Time, timeZone string, limit int) ([]Event, error)
	// Event fetches a single event by id.
	Event(ctx context.Context, cred Credential, id string) (Event, error)
	// CreateEvent inserts a new event. A nil Conference leaves the event
	// without conference data.
	CreateEvent(ctx context.Context, cred Credential, event Event) (Event, error)
	// UpdateEvent resubmits the whole event. A nil Conference strips any
	// existing conference data.
	UpdateEvent(ctx context.Context, cred Credential, id string, event Event) (Event, error)
	// DeleteEvent removes the event unconditionally.
	DeleteEvent(ctx context.Context, cred Credential, id string) error
	// ListPeople lists the organization's people directory.
	ListPeople(ctx context.Context, cred Credential) ([]DirectoryPerson, error)
}

// Selector picks between the real and mock gateway per request.
type Selector struct {
	Real CalendarGateway
	Mock CalendarGateway
}

// Pick returns the gateway matching the request-scoped flag.
func (s Selector) Pick(useMock bool) CalendarGateway {
	if useMock && s.Mock != nil {
		return s.Mock
	}
	return s.Real
}
