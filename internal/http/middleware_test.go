package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/quickmeet/internal/application"
	"github.com/example/quickmeet/internal/tokencipher"
)

func newSessionCipher(t *testing.T) *tokencipher.Cipher {
	t.Helper()

	cipher, err := tokencipher.New("session-test-passphrase")
	if err != nil {
		t.Fatalf("tokencipher.New: %v", err)
	}
	return cipher
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionCookies(t *testing.T, cipher *tokencipher.Cipher, email, accessToken, refreshToken string) []*http.Cookie {
	t.Helper()

	access, err := cipher.Encrypt(accessToken)
	if err != nil {
		t.Fatalf("encrypt access token: %v", err)
	}
	cookies := []*http.Cookie{
		{Name: cookieAccessToken, Value: access.Data},
		{Name: cookieAccessTokenIV, Value: access.IV},
		{Name: cookieEmail, Value: email},
	}
	if refreshToken != "" {
		refresh, err := cipher.Encrypt(refreshToken)
		if err != nil {
			t.Fatalf("encrypt refresh token: %v", err)
		}
		cookies = append(cookies,
			&http.Cookie{Name: cookieRefreshToken, Value: refresh.Data},
			&http.Cookie{Name: cookieRefreshTokenIV, Value: refresh.IV},
		)
	}
	return cookies
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	cipher := newSessionCipher(t)

	t.Run("rejects requests without session cookies", func(t *testing.T) {
		t.Parallel()

		handler := RequireSession(cipher, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler must not run without a session")
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/rooms", nil))

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", recorder.Code)
		}
		var body errorResponse
		if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !strings.Contains(body.Message, "sign in") {
			t.Fatalf("message = %q", body.Message)
		}
	})

	t.Run("rejects tampered ciphertext", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
		req.AddCookie(&http.Cookie{Name: cookieAccessToken, Value: "not-hex-at-all"})
		req.AddCookie(&http.Cookie{Name: cookieAccessTokenIV, Value: "also-not-hex"})
		req.AddCookie(&http.Cookie{Name: cookieEmail, Value: "jane.doe@example.com"})

		handler := RequireSession(cipher, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler must not run with a broken session")
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", recorder.Code)
		}
	})

	t.Run("injects the decrypted caller", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
		for _, cookie := range sessionCookies(t, cipher, "jane.doe@example.com", "access-token-1", "refresh-token-1") {
			req.AddCookie(cookie)
		}

		var captured application.Caller
		handler := RequireSession(cipher, true, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				t.Fatal("caller missing from context")
			}
			captured = caller
			w.WriteHeader(http.StatusOK)
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", recorder.Code)
		}
		if captured.Email != "jane.doe@example.com" {
			t.Errorf("caller email = %q", captured.Email)
		}
		if captured.Credential.AccessToken != "access-token-1" {
			t.Errorf("access token = %q", captured.Credential.AccessToken)
		}
		if captured.Credential.RefreshToken != "refresh-token-1" {
			t.Errorf("refresh token = %q", captured.Credential.RefreshToken)
		}
		if !captured.UseMock {
			t.Error("UseMock flag not carried into the caller")
		}
	})

	t.Run("refresh pair is optional", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
		for _, cookie := range sessionCookies(t, cipher, "jane.doe@example.com", "access-token-1", "") {
			req.AddCookie(cookie)
		}

		var captured application.Caller
		handler := RequireSession(cipher, false, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured, _ = CallerFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", recorder.Code)
		}
		if captured.Credential.RefreshToken != "" {
			t.Errorf("refresh token = %q, want empty", captured.Credential.RefreshToken)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var sawContextLogger bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawContextLogger = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/rooms/available?floor=F2", nil))

	if !sawContextLogger {
		t.Fatal("request logger missing from handler context")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("unmarshal log line: %v", err)
		}
		if entry["method"] != http.MethodGet {
			t.Errorf("method attr = %v", entry["method"])
		}
		if entry["path"] != "/rooms/available" {
			t.Errorf("path attr = %v", entry["path"])
		}
		if _, ok := entry["request_id"]; !ok {
			t.Error("request_id attr missing")
		}
	}
	if !strings.Contains(lines[0], "request started") || !strings.Contains(lines[1], "request completed") {
		t.Fatalf("unexpected log sequence:\n%s", buf.String())
	}
}
