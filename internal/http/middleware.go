package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/example/quickmeet/internal/application"
	"github.com/example/quickmeet/internal/gateway"
	"github.com/example/quickmeet/internal/tokencipher"
)

// Session cookie names. Tokens are stored client-side, encrypted, together
// with the IV used for each encryption; the server keeps no session state.
const (
	cookieAccessToken    = "access_token"
	cookieAccessTokenIV  = "access_token_iv"
	cookieRefreshToken   = "refresh_token"
	cookieRefreshTokenIV = "refresh_token_iv"
	cookieEmail          = "email"
)

// RequireSession decrypts the session cookies into an application.Caller
// and injects it into the request context. Missing cookies or a failed
// decryption end the request with 401; the tokens never reach handlers in
// encrypted form.
func RequireSession(cipher *tokencipher.Cipher, useMock bool, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := callerFromCookies(r, cipher, useMock)
			if !ok {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSession)
				return
			}

			ctx := ContextWithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFromCookies(r *http.Request, cipher *tokencipher.Cipher, useMock bool) (application.Caller, bool) {
	data := cookieValue(r, cookieAccessToken)
	iv := cookieValue(r, cookieAccessTokenIV)
	email := cookieValue(r, cookieEmail)
	if data == "" || iv == "" || email == "" {
		return application.Caller{}, false
	}

	accessToken, err := cipher.Decrypt(data, iv)
	if err != nil {
		return application.Caller{}, false
	}

	caller := application.Caller{
		Email:      email,
		UseMock:    useMock,
		Credential: gateway.Credential{AccessToken: accessToken},
	}

	// The refresh token is optional: the provider issues it only on the
	// first consent.
	refreshData := cookieValue(r, cookieRefreshToken)
	refreshIV := cookieValue(r, cookieRefreshTokenIV)
	if refreshData != "" && refreshIV != "" {
		if refreshToken, err := cipher.Decrypt(refreshData, refreshIV); err == nil {
			caller.Credential.RefreshToken = refreshToken
		}
	}
	return caller, true
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RequestLogger attaches a per-request logger to the context. When the
// request carries an active trace span, its trace id is included so log
// lines correlate with traces.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			if span := trace.SpanContextFromContext(r.Context()); span.HasTraceID() {
				logger = logger.With("trace_id", span.TraceID().String())
			}

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}
