package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/quickmeet/internal/application"
)

const sessionCookieLifetime = 30 * 24 * time.Hour

type authService interface {
	AuthURL(useMock bool, platform string) string
	Login(ctx context.Context, useMock bool, code string) (application.LoginResult, error)
	Refresh(ctx context.Context, caller application.Caller) (data, iv string, err error)
	Logout(ctx context.Context, caller application.Caller) error
}

type AuthHandler struct {
	service   authService
	useMock   bool
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, useMock bool, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, useMock: useMock, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// URL returns the provider consent URL for the requesting platform.
func (h *AuthHandler) URL(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	platform := strings.TrimSpace(r.URL.Query().Get("platform"))
	url := h.service.AuthURL(h.useMock, platform)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, authURLResponse{URL: url})
}

// Login exchanges the authorization code, warms the directory caches, and
// issues the encrypted session cookies.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Login", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode login request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Login")

	result, err := h.service.Login(r.Context(), h.useMock, strings.TrimSpace(req.Code))
	if err != nil {
		logger.ErrorContext(r.Context(), "login failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	expires := time.Now().Add(sessionCookieLifetime)
	setSessionCookie(w, cookieAccessToken, result.AccessToken, expires, true)
	setSessionCookie(w, cookieAccessTokenIV, result.AccessTokenIV, expires, true)
	if result.RefreshToken != "" {
		setSessionCookie(w, cookieRefreshToken, result.RefreshToken, expires, true)
		setSessionCookie(w, cookieRefreshTokenIV, result.RefreshTokenIV, expires, true)
	}
	setSessionCookie(w, cookieEmail, result.Email, expires, false)

	logger.With("email", result.Email).InfoContext(r.Context(), "session issued")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, loginResponse{
		Email:  result.Email,
		Domain: result.Domain,
	})
}

// Refresh rotates the access token for the current session and reissues
// the access token cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	caller, ok := CallerFromContext(r.Context())
	if !ok || caller.Credential.RefreshToken == "" {
		h.responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingRefreshData)
		return
	}

	logger := h.log(r.Context(), "Refresh", "email", caller.Email)

	data, iv, err := h.service.Refresh(r.Context(), caller)
	if err != nil {
		logger.ErrorContext(r.Context(), "refresh failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	expires := time.Now().Add(sessionCookieLifetime)
	setSessionCookie(w, cookieAccessToken, data, expires, true)
	setSessionCookie(w, cookieAccessTokenIV, iv, expires, true)

	logger.InfoContext(r.Context(), "session refreshed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Logout revokes the credential and clears every session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "Logout")

	if caller, ok := CallerFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), caller); err != nil {
			logger.ErrorContext(r.Context(), "logout failed", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
	}

	for _, name := range []string{cookieAccessToken, cookieAccessTokenIV, cookieRefreshToken, cookieRefreshTokenIV, cookieEmail} {
		clearSessionCookie(w, name)
	}
	logger.InfoContext(r.Context(), "session cleared")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func setSessionCookie(w http.ResponseWriter, name, value string, expires time.Time, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type loginRequest struct {
	Code string `json:"code"`
}

type loginResponse struct {
	Email  string `json:"email"`
	Domain string `json:"domain,omitempty"`
}

type authURLResponse struct {
	URL string `json:"url"`
}
