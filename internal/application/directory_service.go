package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/example/quickmeet/internal/cache"
	"github.com/example/quickmeet/internal/gateway"
)

// DirectoryService caches the organization's room and people directory.
// The cache is shared across all users under static keys; a write always
// replaces the whole collection. Concurrent misses may both fetch and
// redundantly overwrite, which is harmless because the data is idempotently
// derived from the provider.
type DirectoryService struct {
	gateways  gateway.Selector
	store     cache.Store
	roomsTTL  time.Duration
	peopleTTL time.Duration
	logger    *slog.Logger
}

// NewDirectoryService wires the directory cache. Non-positive TTLs fall
// back to 15 days for rooms and 30 days for people.
func NewDirectoryService(gateways gateway.Selector, store cache.Store, roomsTTL, peopleTTL time.Duration, logger *slog.Logger) *DirectoryService {
	if roomsTTL <= 0 {
		roomsTTL = 15 * 24 * time.Hour
	}
	if peopleTTL <= 0 {
		peopleTTL = 30 * 24 * time.Hour
	}
	return &DirectoryService{
		gateways:  gateways,
		store:     store,
		roomsTTL:  roomsTTL,
		peopleTTL: peopleTTL,
		logger:    defaultLogger(logger),
	}
}

func (s *DirectoryService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DirectoryService", operation, attrs...)
}

// Rooms returns the room inventory sorted ascending by seat count,
// refreshing the cache wholesale on a miss.
func (s *DirectoryService) Rooms(ctx context.Context, caller Caller) ([]ConferenceRoom, error) {
	if s == nil {
		return nil, fmt.Errorf("DirectoryService is nil")
	}

	var rooms []ConferenceRoom
	if raw, ok, err := s.store.Get(ctx, cache.KeyConferenceRooms); err == nil && ok {
		if err := json.Unmarshal(raw, &rooms); err != nil {
			s.loggerWith(ctx, "Rooms").WarnContext(ctx, "dropping corrupt room cache entry", "error", err)
			rooms = nil
		}
	}

	if rooms == nil {
		refreshed, err := s.refreshRooms(ctx, caller)
		if err != nil {
			return nil, err
		}
		rooms = refreshed
	}

	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].Seats < rooms[j].Seats
	})
	return rooms, nil
}

// RefreshRooms fetches the directory and replaces the cached inventory.
func (s *DirectoryService) RefreshRooms(ctx context.Context, caller Caller) error {
	if s == nil {
		return fmt.Errorf("DirectoryService is nil")
	}
	_, err := s.refreshRooms(ctx, caller)
	return err
}

func (s *DirectoryService) refreshRooms(ctx context.Context, caller Caller) ([]ConferenceRoom, error) {
	logger := s.loggerWith(ctx, "refreshRooms")

	resources, err := s.gateways.Pick(caller.UseMock).CalendarResources(ctx, caller.Credential)
	if err != nil {
		err = mapGatewayError(err)
		logger.ErrorContext(ctx, "failed to fetch directory resources", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	rooms := make([]ConferenceRoom, 0, len(resources))
	for _, resource := range resources {
		rooms = append(rooms, ConferenceRoom{
			ID:          resource.ResourceID,
			Email:       resource.ResourceEmail,
			Name:        resource.ResourceName,
			Floor:       resource.FloorName,
			Seats:       resource.Capacity,
			Description: resource.Description,
		})
	}

	raw, err := json.Marshal(rooms)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, cache.KeyConferenceRooms, raw, s.roomsTTL); err != nil {
		logger.ErrorContext(ctx, "failed to cache rooms", "error", err)
	}

	logger.With("result_count", len(rooms)).InfoContext(ctx, "conference rooms refreshed")
	return rooms, nil
}

// People returns the people directory, refreshing the cache wholesale on a
// miss. Each entry keeps the primary-and-verified email, primary name, and
// primary photo.
func (s *DirectoryService) People(ctx context.Context, caller Caller) ([]Person, error) {
	if s == nil {
		return nil, fmt.Errorf("DirectoryService is nil")
	}

	if raw, ok, err := s.store.Get(ctx, cache.KeyPeople); err == nil && ok {
		var people []Person
		if err := json.Unmarshal(raw, &people); err == nil {
			return people, nil
		}
		s.loggerWith(ctx, "People").WarnContext(ctx, "dropping corrupt people cache entry", "error", err)
	}

	return s.refreshPeople(ctx, caller)
}

// RefreshPeople fetches the people directory and replaces the cached copy.
func (s *DirectoryService) RefreshPeople(ctx context.Context, caller Caller) error {
	if s == nil {
		return fmt.Errorf("DirectoryService is nil")
	}
	_, err := s.refreshPeople(ctx, caller)
	return err
}

func (s *DirectoryService) refreshPeople(ctx context.Context, caller Caller) ([]Person, error) {
	logger := s.loggerWith(ctx, "refreshPeople")

	entries, err := s.gateways.Pick(caller.UseMock).ListPeople(ctx, caller.Credential)
	if err != nil {
		err = mapGatewayError(err)
		logger.ErrorContext(ctx, "failed to list directory people", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}

	people := make([]Person, 0, len(entries))
	for _, entry := range entries {
		person := Person{}
		for _, email := range entry.EmailAddresses {
			if email.Primary && email.Verified {
				person.Email = email.Value
				break
			}
		}
		for _, name := range entry.Names {
			if name.Primary {
				person.Name = name.DisplayName
				break
			}
		}
		for _, photo := range entry.Photos {
			if photo.Primary {
				person.Photo = photo.URL
				break
			}
		}
		if person.Email == "" {
			continue
		}
		people = append(people, person)
	}

	raw, err := json.Marshal(people)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, cache.KeyPeople, raw, s.peopleTTL); err != nil {
		logger.ErrorContext(ctx, "failed to cache people", "error", err)
	}

	logger.With("result_count", len(people)).InfoContext(ctx, "people directory refreshed")
	return people, nil
}

// Floors lists the distinct floor labels sorted ascending by their numeric
// suffix, so "F2" sorts before "F10".
func (s *DirectoryService) Floors(ctx context.Context, caller Caller) ([]string, error) {
	rooms, err := s.Rooms(ctx, caller)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rooms))
	floors := make([]string, 0, len(rooms))
	for _, room := range rooms {
		if _, ok := seen[room.Floor]; ok {
			continue
		}
		seen[room.Floor] = struct{}{}
		floors = append(floors, room.Floor)
	}

	sort.SliceStable(floors, func(i, j int) bool {
		return floorNumber(floors[i]) < floorNumber(floors[j])
	})
	return floors, nil
}

// RoomByEmail finds a room in the inventory. A miss is ErrNotFound.
func (s *DirectoryService) RoomByEmail(ctx context.Context, caller Caller, email string) (ConferenceRoom, error) {
	rooms, err := s.Rooms(ctx, caller)
	if err != nil {
		return ConferenceRoom{}, err
	}
	for _, room := range rooms {
		if room.Email == email {
			return room, nil
		}
	}
	return ConferenceRoom{}, fmt.Errorf("room %q: %w", email, ErrNotFound)
}

// HighestSeatCapacity returns the largest seat count in the inventory, or
// -1 when the directory is empty.
func (s *DirectoryService) HighestSeatCapacity(ctx context.Context, caller Caller) (int, error) {
	rooms, err := s.Rooms(ctx, caller)
	if err != nil {
		return 0, err
	}
	max := -1
	for _, room := range rooms {
		if room.Seats > max {
			max = room.Seats
		}
	}
	return max, nil
}

// SearchPeople filters the directory by a case-insensitive email fragment.
func (s *DirectoryService) SearchPeople(ctx context.Context, caller Caller, emailQuery string) ([]Person, error) {
	people, err := s.People(ctx, caller)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(emailQuery)
	matched := make([]Person, 0, len(people))
	for _, person := range people {
		if strings.Contains(strings.ToLower(person.Email), query) {
			matched = append(matched, person)
		}
	}
	return matched, nil
}

// floorNumber extracts the trailing numeric suffix of a floor label.
// Labels without one sort first.
func floorNumber(floor string) int {
	start := len(floor)
	for start > 0 && floor[start-1] >= '0' && floor[start-1] <= '9' {
		start--
	}
	if start == len(floor) {
		return -1
	}
	n, err := strconv.Atoi(floor[start:])
	if err != nil {
		return -1
	}
	return n
}

// mapGatewayError converts gateway and context failures into the service
// error taxonomy. Cancellation maps to the distinct ignored outcome.
func mapGatewayError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrAborted
	case errors.Is(err, gateway.ErrUnauthenticated):
		return ErrUnauthenticated
	case errors.Is(err, gateway.ErrNotFound):
		return rewrapSentinel(err, gateway.ErrNotFound, ErrNotFound)
	case errors.Is(err, gateway.ErrConflict):
		return rewrapSentinel(err, gateway.ErrConflict, ErrConflict)
	}
	return err
}

// rewrapSentinel swaps a gateway sentinel for the application one while
// keeping any detail text the gateway attached, such as the
// organization-account hint on a missing room directory.
func rewrapSentinel(err, from, to error) error {
	detail := strings.TrimSpace(strings.TrimSuffix(err.Error(), from.Error()))
	detail = strings.TrimSpace(strings.TrimSuffix(detail, ":"))
	if detail == "" {
		return to
	}
	return fmt.Errorf("%s: %w", detail, to)
}
