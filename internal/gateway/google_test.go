package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestGoogleGateway(t *testing.T, handler http.Handler) *GoogleGateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := GoogleConfig{
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURL:      "https://app.example.com/callback",
		AuthEndpoint:     server.URL + "/auth",
		TokenEndpoint:    server.URL + "/token",
		RevokeEndpoint:   server.URL + "/revoke",
		CalendarEndpoint: server.URL + "/calendar/v3",
		AdminEndpoint:    server.URL + "/admin/directory/v1",
		PeopleEndpoint:   server.URL + "/people/v1",
	}
	return NewGoogleGateway(cfg, server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGoogleGateway_SchedulePreservesRequestedOrder(t *testing.T) {
	t.Parallel()

	var capturedBody map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendar/v3/freeBusy" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&capturedBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		// Calendars deliberately keyed in a different order than requested,
		// with one room missing entirely.
		io.WriteString(w, `{"calendars":{
			"hall@resource.calendar.google.com":{"busy":[]},
			"board@resource.calendar.google.com":{"busy":[
				{"start":"2026-04-15T10:00:00Z","end":"2026-04-15T11:00:00Z"}
			]}
		}}`)
	})
	g := newTestGoogleGateway(t, handler)

	start := time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)
	requested := []string{
		"board@resource.calendar.google.com",
		"missing@resource.calendar.google.com",
		"hall@resource.calendar.google.com",
	}
	schedules, err := g.Schedule(context.Background(), Credential{AccessToken: "access-1"}, start, start.Add(2*time.Hour), "UTC", requested)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	gotOrder := make([]string, 0, len(schedules))
	for _, schedule := range schedules {
		gotOrder = append(gotOrder, schedule.Email)
	}
	wantOrder := []string{"board@resource.calendar.google.com", "hall@resource.calendar.google.com"}
	if !reflect.DeepEqual(gotOrder, wantOrder) {
		t.Fatalf("schedule order = %v, want %v", gotOrder, wantOrder)
	}
	if len(schedules[0].Busy) != 1 || !schedules[0].Busy[0].Start.Equal(start.Add(time.Hour)) {
		t.Fatalf("board busy intervals = %+v", schedules[0].Busy)
	}

	items, ok := capturedBody["items"].([]any)
	if !ok || len(items) != 3 {
		t.Fatalf("freeBusy items = %v", capturedBody["items"])
	}
}

func TestGoogleGateway_RefreshesOnceAfterUnauthorized(t *testing.T) {
	t.Parallel()

	t.Run("retry succeeds with rotated token", func(t *testing.T) {
		t.Parallel()

		var calendarCalls, tokenCalls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/token":
				tokenCalls.Add(1)
				if err := r.ParseForm(); err != nil {
					t.Errorf("parse token form: %v", err)
				}
				if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
					t.Errorf("grant_type = %q", got)
				}
				io.WriteString(w, `{"access_token":"rotated-access"}`)
			case strings.HasPrefix(r.URL.Path, "/calendar/v3/calendars/primary/events/"):
				calendarCalls.Add(1)
				if r.Header.Get("Authorization") == "Bearer stale-access" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				io.WriteString(w, `{"id":"event-42","start":{"dateTime":"2026-04-15T10:00:00Z"},"end":{"dateTime":"2026-04-15T11:00:00Z"}}`)
			default:
				t.Errorf("unexpected path %q", r.URL.Path)
				w.WriteHeader(http.StatusNotFound)
			}
		})
		g := newTestGoogleGateway(t, handler)

		cred := Credential{AccessToken: "stale-access", RefreshToken: "refresh-1"}
		event, err := g.Event(context.Background(), cred, "event-42")
		if err != nil {
			t.Fatalf("Event: %v", err)
		}
		if event.ID != "event-42" {
			t.Fatalf("event id = %q", event.ID)
		}
		if got := tokenCalls.Load(); got != 1 {
			t.Fatalf("token endpoint called %d times", got)
		}
		if got := calendarCalls.Load(); got != 2 {
			t.Fatalf("calendar endpoint called %d times", got)
		}
	})

	t.Run("second 401 is terminal", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/token" {
				io.WriteString(w, `{"access_token":"rotated-access"}`)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		})
		g := newTestGoogleGateway(t, handler)

		cred := Credential{AccessToken: "stale-access", RefreshToken: "refresh-1"}
		if _, err := g.Event(context.Background(), cred, "event-42"); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("err = %v, want ErrUnauthenticated", err)
		}
	})

	t.Run("no refresh token skips the retry", func(t *testing.T) {
		t.Parallel()

		var tokenCalls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/token" {
				tokenCalls.Add(1)
			}
			w.WriteHeader(http.StatusUnauthorized)
		})
		g := newTestGoogleGateway(t, handler)

		if _, err := g.Event(context.Background(), Credential{AccessToken: "stale-access"}, "event-42"); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("err = %v, want ErrUnauthenticated", err)
		}
		if got := tokenCalls.Load(); got != 0 {
			t.Fatalf("token endpoint called %d times", got)
		}
	})
}

func TestGoogleGateway_MapsErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "missing event", status: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "stale mutation", status: http.StatusConflict, wantErr: ErrConflict},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			g := newTestGoogleGateway(t, handler)

			if _, err := g.Event(context.Background(), Credential{AccessToken: "access"}, "event-1"); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestGoogleGateway_CalendarResourcesExplainsPersonalAccounts(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	g := newTestGoogleGateway(t, handler)

	_, err := g.CalendarResources(context.Background(), Credential{AccessToken: "access"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "organization account") {
		t.Fatalf("error text = %q", err.Error())
	}
}

func TestGoogleGateway_UpdateEventStripsConferenceWithNull(t *testing.T) {
	t.Parallel()

	var rawBody []byte
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		rawBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if got := r.URL.Query().Get("conferenceDataVersion"); got != "1" {
			t.Errorf("conferenceDataVersion = %q", got)
		}
		if got := r.URL.Query().Get("sendUpdates"); got != "all" {
			t.Errorf("sendUpdates = %q", got)
		}
		io.WriteString(w, `{"id":"event-9","start":{"dateTime":"2026-04-15T10:00:00Z"},"end":{"dateTime":"2026-04-15T11:00:00Z"}}`)
	})
	g := newTestGoogleGateway(t, handler)

	event := Event{
		Summary:  "Sync",
		Start:    time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 4, 15, 11, 0, 0, 0, time.UTC),
		TimeZone: "UTC",
	}
	if _, err := g.UpdateEvent(context.Background(), Credential{AccessToken: "access"}, "event-9", event); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}

	if !strings.Contains(string(rawBody), `"conferenceData":null`) {
		t.Fatalf("request body %s does not null out conferenceData", rawBody)
	}
}

func TestGoogleGateway_CreateEventCarriesConferenceRequest(t *testing.T) {
	t.Parallel()

	var payload struct {
		ConferenceData *struct {
			CreateRequest struct {
				RequestID             string `json:"requestId"`
				ConferenceSolutionKey struct {
					Type string `json:"type"`
				} `json:"conferenceSolutionKey"`
			} `json:"createRequest"`
		} `json:"conferenceData"`
		ExtendedProperties struct {
			Private map[string]string `json:"private"`
		} `json:"extendedProperties"`
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"id":"event-10","hangoutLink":"https://meet.example.com/abc",
			"start":{"dateTime":"2026-04-15T10:00:00Z"},"end":{"dateTime":"2026-04-15T11:00:00Z"}}`)
	})
	g := newTestGoogleGateway(t, handler)

	event := Event{
		Summary:    "Sync",
		Start:      time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 4, 15, 11, 0, 0, 0, time.UTC),
		TimeZone:   "UTC",
		CreatedAt:  time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC),
		Conference: &ConferenceRequest{RequestID: "conf-1", SolutionType: "hangoutsMeet"},
	}
	created, err := g.CreateEvent(context.Background(), Credential{AccessToken: "access"}, event)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	if payload.ConferenceData == nil {
		t.Fatal("conferenceData missing from request body")
	}
	if got := payload.ConferenceData.CreateRequest.RequestID; got != "conf-1" {
		t.Errorf("requestId = %q", got)
	}
	if got := payload.ConferenceData.CreateRequest.ConferenceSolutionKey.Type; got != "hangoutsMeet" {
		t.Errorf("solution type = %q", got)
	}
	if got := payload.ExtendedProperties.Private["createdAt"]; got != "2026-04-15T09:30:00Z" {
		t.Errorf("createdAt property = %q", got)
	}
	if created.MeetLink != "https://meet.example.com/abc" {
		t.Errorf("meet link = %q", created.MeetLink)
	}
}

func TestGoogleGateway_ExchangeCodeDecodesIdentity(t *testing.T) {
	t.Parallel()

	claims := base64.RawURLEncoding.EncodeToString([]byte(`{"email":"jane.doe@example.com","hd":"example.com"}`))
	idToken := "header." + claims + ".signature"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code-1" {
			t.Errorf("code = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"id_token":      idToken,
			"expires_in":    3600,
		})
	})
	g := newTestGoogleGateway(t, handler)

	token, err := g.ExchangeCode(context.Background(), "auth-code-1")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if token.AccessToken != "access-1" || token.RefreshToken != "refresh-1" {
		t.Fatalf("token = %+v", token)
	}
	if token.Email != "jane.doe@example.com" || token.Domain != "example.com" {
		t.Fatalf("identity = %q / %q", token.Email, token.Domain)
	}
}

func TestGoogleGateway_ListPeopleIsLenient(t *testing.T) {
	t.Parallel()

	t.Run("server failure collapses to empty list", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		g := newTestGoogleGateway(t, handler)

		people, err := g.ListPeople(context.Background(), Credential{AccessToken: "access"})
		if err != nil {
			t.Fatalf("ListPeople: %v", err)
		}
		if people != nil {
			t.Fatalf("people = %v, want nil", people)
		}
	})

	t.Run("unauthenticated still surfaces", func(t *testing.T) {
		t.Parallel()

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		g := newTestGoogleGateway(t, handler)

		if _, err := g.ListPeople(context.Background(), Credential{AccessToken: "access"}); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("err = %v, want ErrUnauthenticated", err)
		}
	})
}

func TestDecodeIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		wantEmail  string
		wantDomain string
	}{
		{
			name:       "valid payload",
			token:      "h." + base64.RawURLEncoding.EncodeToString([]byte(`{"email":"a@b.com","hd":"b.com"}`)) + ".s",
			wantEmail:  "a@b.com",
			wantDomain: "b.com",
		},
		{name: "wrong segment count", token: "just-one-part"},
		{name: "payload not base64", token: "h.!!!.s"},
		{name: "payload not json", token: "h." + base64.RawURLEncoding.EncodeToString([]byte(`{{`)) + ".s"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			email, domain := decodeIdentity(tc.token)
			if email != tc.wantEmail || domain != tc.wantDomain {
				t.Fatalf("decodeIdentity = %q / %q, want %q / %q", email, domain, tc.wantEmail, tc.wantDomain)
			}
		})
	}
}
