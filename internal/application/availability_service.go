package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/quickmeet/internal/gateway"
)

// AvailabilityService decides which rooms are free for a window and ranks
// them by floor preference. When the caller is editing an existing event it
// also resolves self-conflicts: the event's own occupancy must not make its
// current room look unavailable.
type AvailabilityService struct {
	gateways  gateway.Selector
	directory *DirectoryService
	logger    *slog.Logger
}

// NewAvailabilityService wires the resolver.
func NewAvailabilityService(gateways gateway.Selector, directory *DirectoryService, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{
		gateways:  gateways,
		directory: directory,
		logger:    defaultLogger(logger),
	}
}

func (s *AvailabilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AvailabilityService", operation, attrs...)
}

// ResolveAvailability returns the free rooms for the window, partitioned
// into preferred (matching the floor filter, or all rooms when the filter
// is empty) and others. Candidates are filtered to seats >= MinSeats before
// a single batched free/busy query; rooms the provider omits from its
// response count as having no busy intervals.
func (s *AvailabilityService) ResolveAvailability(ctx context.Context, caller Caller, params ResolveAvailabilityParams) (partition AvailabilityPartition, err error) {
	if s == nil {
		err = fmt.Errorf("AvailabilityService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ResolveAvailability",
		"start", params.Start,
		"end", params.End,
		"min_seats", params.MinSeats,
		"floor", params.Floor,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "availability resolution failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"preferred_count", len(partition.Preferred),
			"other_count", len(partition.Others),
		).InfoContext(ctx, "availability resolved")
	}()

	partition = AvailabilityPartition{Preferred: []RoomOption{}, Others: []RoomOption{}}

	var rooms []ConferenceRoom
	rooms, err = s.directory.Rooms(ctx, caller)
	if err != nil {
		return
	}

	byEmail := make(map[string]ConferenceRoom, len(rooms))
	isPreferred := make(map[string]bool, len(rooms))
	preferredEmails := make([]string, 0, len(rooms))
	otherEmails := make([]string, 0)

	for _, room := range rooms {
		byEmail[room.Email] = room
		if room.Seats < params.MinSeats {
			continue
		}
		if params.Floor == "" || room.Floor == params.Floor {
			preferredEmails = append(preferredEmails, room.Email)
			isPreferred[room.Email] = true
		} else {
			otherEmails = append(otherEmails, room.Email)
			isPreferred[room.Email] = false
		}
	}

	candidates := append(preferredEmails, otherEmails...)
	if len(candidates) == 0 {
		return
	}

	var schedules []gateway.RoomSchedule
	schedules, err = s.gateways.Pick(caller.UseMock).Schedule(ctx, caller.Credential, params.Start, params.End, params.TimeZone, candidates)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	answered := make(map[string]struct{}, len(schedules))
	place := func(email string, busy []gateway.BusyInterval) {
		if overlapsAny(busy, params.Start, params.End) {
			return
		}
		room, ok := byEmail[email]
		if !ok {
			return
		}
		if isPreferred[email] {
			partition.Preferred = append(partition.Preferred, RoomOption{ConferenceRoom: room})
		} else {
			partition.Others = append(partition.Others, RoomOption{ConferenceRoom: room})
		}
	}

	for _, schedule := range schedules {
		if _, ok := isPreferred[schedule.Email]; !ok {
			continue
		}
		answered[schedule.Email] = struct{}{}
		place(schedule.Email, schedule.Busy)
	}

	// Rooms the provider omitted entirely are resolved as free. This is a
	// trust-the-gateway policy: an omitted room is indistinguishable from
	// one with an empty busy list.
	for _, email := range candidates {
		if _, ok := answered[email]; !ok {
			place(email, nil)
		}
	}

	if params.EditingEventID != "" {
		err = s.resolveEditingRoom(ctx, caller, params, byEmail, isPreferred, &partition)
		if err != nil {
			return
		}
	}

	return
}

// resolveEditingRoom re-checks the edited event's current room against only
// the parts of the new window that fall outside the event's existing
// occupancy, then prepends it to its partition. If the room failed the
// general check it is prepended anyway, flagged busy, because it is still a
// legitimate choice for the event that already holds it.
func (s *AvailabilityService) resolveEditingRoom(
	ctx context.Context,
	caller Caller,
	params ResolveAvailabilityParams,
	byEmail map[string]ConferenceRoom,
	isPreferred map[string]bool,
	partition *AvailabilityPartition,
) error {
	gw := s.gateways.Pick(caller.UseMock)

	event, err := gw.Event(ctx, caller.Credential, params.EditingEventID)
	if err != nil {
		return mapGatewayError(err)
	}

	roomAttendee, ok := event.RoomAttendee()
	if !ok {
		return nil
	}
	room, ok := byEmail[roomAttendee.Email]
	if !ok {
		return nil
	}

	timeZone := event.TimeZone
	if timeZone == "" {
		timeZone = params.TimeZone
	}

	free, err := s.checkEditedWindow(ctx, caller, event, params.Start, params.End, timeZone)
	if err != nil {
		return err
	}
	if !free {
		return nil
	}

	generallyFree, err := s.roomFree(ctx, caller, params.Start, params.End, timeZone, room.Email)
	if err != nil {
		return err
	}

	option := RoomOption{ConferenceRoom: room, IsBusy: !generallyFree}
	partition.Preferred = removeRoom(partition.Preferred, room.Email)
	partition.Others = removeRoom(partition.Others, room.Email)
	if preferred, known := isPreferred[room.Email]; !known {
		// The room was excluded on seats; rank it by the floor filter.
		preferred = params.Floor == "" || room.Floor == params.Floor
		prependRoom(partition, option, preferred)
	} else {
		prependRoom(partition, option, preferred)
	}
	return nil
}

// checkEditedWindow applies the delta rule. A move to a different calendar
// day cannot self-overlap, so the full new window is checked. On the same
// day only the sub-intervals that extend beyond the current occupancy are
// checked: [newStart, currentStart) and [currentEnd, newEnd).
func (s *AvailabilityService) checkEditedWindow(ctx context.Context, caller Caller, event gateway.Event, newStart, newEnd time.Time, timeZone string) (bool, error) {
	roomAttendee, _ := event.RoomAttendee()

	if !sameCalendarDay(event.Start, newStart, timeZone) {
		return s.roomFree(ctx, caller, newStart, newEnd, timeZone, roomAttendee.Email)
	}

	if newStart.Before(event.Start) {
		free, err := s.roomFree(ctx, caller, newStart, event.Start, timeZone, roomAttendee.Email)
		if err != nil || !free {
			return false, err
		}
	}
	if newEnd.After(event.End) {
		free, err := s.roomFree(ctx, caller, event.End, newEnd, timeZone, roomAttendee.Email)
		if err != nil || !free {
			return false, err
		}
	}
	return true, nil
}

// CheckRoomAvailable reports whether a single room is free for the window.
// It is the plain (non-delta) check used by event mutations.
func (s *AvailabilityService) CheckRoomAvailable(ctx context.Context, caller Caller, start, end time.Time, timeZone, roomEmail string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("AvailabilityService is nil")
	}
	return s.roomFree(ctx, caller, start, end, timeZone, roomEmail)
}

func (s *AvailabilityService) roomFree(ctx context.Context, caller Caller, start, end time.Time, timeZone, roomEmail string) (bool, error) {
	schedules, err := s.gateways.Pick(caller.UseMock).Schedule(ctx, caller.Credential, start, end, timeZone, []string{roomEmail})
	if err != nil {
		return false, mapGatewayError(err)
	}

	for _, schedule := range schedules {
		if schedule.Email != roomEmail {
			continue
		}
		return !overlapsAny(schedule.Busy, start, end), nil
	}
	// Missing from the response: same trust-the-gateway policy as the
	// batched path.
	return true, nil
}

// overlapsAny applies the half-open interval rule: a busy slot conflicts
// only when start < busyEnd and end > busyStart, so touching boundaries do
// not collide.
func overlapsAny(busy []gateway.BusyInterval, start, end time.Time) bool {
	for _, slot := range busy {
		if start.Before(slot.End) && end.After(slot.Start) {
			return true
		}
	}
	return false
}

func sameCalendarDay(a, b time.Time, timeZone string) bool {
	loc := time.UTC
	if timeZone != "" {
		if parsed, err := time.LoadLocation(timeZone); err == nil {
			loc = parsed
		}
	}
	aYear, aMonth, aDay := a.In(loc).Date()
	bYear, bMonth, bDay := b.In(loc).Date()
	return aYear == bYear && aMonth == bMonth && aDay == bDay
}

func removeRoom(options []RoomOption, email string) []RoomOption {
	for i := range options {
		if options[i].Email == email {
			return append(options[:i], options[i+1:]...)
		}
	}
	return options
}

func prependRoom(partition *AvailabilityPartition, option RoomOption, preferred bool) {
	if preferred {
		partition.Preferred = append([]RoomOption{option}, partition.Preferred...)
	} else {
		partition.Others = append([]RoomOption{option}, partition.Others...)
	}
}
