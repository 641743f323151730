package application

import (
	"time"

	"github.com/example/quickmeet/internal/gateway"
)

// Caller identifies the authenticated user behind a request. The credential
// is request-scoped and injected into every provider call; UseMock selects
// the gateway implementation for this request.
type Caller struct {
	Email      string
	Credential gateway.Credential
	UseMock    bool
}

// ConferenceRoom is an immutable directory snapshot of a bookable room.
type ConferenceRoom struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Floor       string `json:"floor"`
	Seats       int    `json:"seats"`
	Description string `json:"description,omitempty"`
}

// Person is a directory entry. A directory miss synthesizes a minimal
// Person from the email's local part; synthesized records are never written
// back to the cache.
type Person struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Photo string `json:"photo,omitempty"`
}

// Attendee is a person plus their RSVP state on a specific event.
type Attendee struct {
	Person
	ResponseStatus string `json:"responseStatus,omitempty"`
}

// RoomOption is a room offered by the availability resolver. IsBusy is set
// only on an edit's current room when it conflicts outside the event's own
// occupancy, so the caller can render it as selectable but busy.
type RoomOption struct {
	ConferenceRoom
	IsBusy bool `json:"isBusy,omitempty"`
}

// AvailabilityPartition splits available rooms by floor preference. The two
// sequences are disjoint; each holds rooms in gateway iteration order.
type AvailabilityPartition struct {
	Preferred []RoomOption `json:"preferred"`
	Others    []RoomOption `json:"others"`
}

// ResolveAvailabilityParams narrows the candidate rooms for a resolution.
type ResolveAvailabilityParams struct {
	Start    time.Time
	End      time.Time
	TimeZone string
	MinSeats int
	// Floor filters the preferred partition; empty means every
	// seat-eligible room is preferred.
	Floor string
	// EditingEventID enables edit-time self-conflict resolution for the
	// event's current room.
	EditingEventID string
}

// CreateEventParams carries a booking intent.
type CreateEventParams struct {
	Start            time.Time
	End              time.Time
	TimeZone         string
	RoomEmail        string
	Title            string
	CreateConference bool
	Attendees        []Person
}

// UpdateEventParams carries an edit to an existing booking.
type UpdateEventParams struct {
	EventID          string
	Start            time.Time
	End              time.Time
	TimeZone         string
	RoomEmail        string
	Title            string
	CreateConference bool
	Attendees        []Person
}

// ListEventsParams bounds an event listing.
type ListEventsParams struct {
	Start    time.Time
	End      time.Time
	TimeZone string
	Limit    int
}

// EventResponse is the normalized event subset returned to callers. The
// provider owns the event; this system holds no independent copy.
type EventResponse struct {
	EventID        string     `json:"eventId"`
	Summary        string     `json:"summary,omitempty"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	Room           string     `json:"room,omitempty"`
	RoomEmail      string     `json:"roomEmail,omitempty"`
	RoomID         string     `json:"roomId,omitempty"`
	Floor          string     `json:"floor,omitempty"`
	Seats          int        `json:"seats,omitempty"`
	Meet           string     `json:"meet,omitempty"`
	Attendees      []Attendee `json:"attendees,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitzero"`
	IsEditable     bool       `json:"isEditable"`
	ResponseStatus string     `json:"responseStatus,omitempty"`
}

// DeleteResponse acknowledges an event removal.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// LoginResult carries the encrypted session material issued on login.
type LoginResult struct {
	AccessToken    string
	AccessTokenIV  string
	RefreshToken   string
	RefreshTokenIV string
	Email          string
	Domain         string
}
