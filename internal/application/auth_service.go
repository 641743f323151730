package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/quickmeet/internal/gateway"
	"github.com/example/quickmeet/internal/tokencipher"
)

// AuthService handles the OAuth lifecycle and issues the encrypted session
// material (token and IV pairs) the transport layer stores client-side.
type AuthService struct {
	gateways gateway.Selector
	cipher   *tokencipher.Cipher
	// warm pre-fills the directory caches after a login so the first
	// availability query does not pay the provider round trips.
	directory *DirectoryService
	logger    *slog.Logger
}

// NewAuthService wires the auth flows.
func NewAuthService(gateways gateway.Selector, cipher *tokencipher.Cipher, directory *DirectoryService, logger *slog.Logger) *AuthService {
	return &AuthService{
		gateways:  gateways,
		cipher:    cipher,
		directory: directory,
		logger:    defaultLogger(logger),
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// AuthURL produces the provider consent URL for the given client platform.
func (s *AuthService) AuthURL(useMock bool, platform string) string {
	return s.gateways.Pick(useMock).AuthURL(platform)
}

// Login exchanges an authorization code for tokens, warms the room and
// people caches, and returns both tokens encrypted. Plaintext tokens never
// leave this method.
func (s *AuthService) Login(ctx context.Context, useMock bool, code string) (result LoginResult, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Login")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "login failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "login succeeded", "email", result.Email, "domain", result.Domain)
	}()

	gw := s.gateways.Pick(useMock)

	var token gateway.Token
	token, err = gw.ExchangeCode(ctx, code)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	caller := Caller{
		Email:   token.Email,
		UseMock: useMock,
		Credential: gateway.Credential{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
		},
	}
	if warmErr := s.directory.RefreshRooms(ctx, caller); warmErr != nil {
		logger.WarnContext(ctx, "room cache warmup failed", "error", warmErr)
	}
	if warmErr := s.directory.RefreshPeople(ctx, caller); warmErr != nil {
		logger.WarnContext(ctx, "people cache warmup failed", "error", warmErr)
	}

	var access, refresh tokencipher.EncryptedToken
	access, err = s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return
	}
	if token.RefreshToken != "" {
		refresh, err = s.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return
		}
	}

	result = LoginResult{
		AccessToken:    access.Data,
		AccessTokenIV:  access.IV,
		RefreshToken:   refresh.Data,
		RefreshTokenIV: refresh.IV,
		Email:          token.Email,
		Domain:         token.Domain,
	}
	return
}

// Refresh rotates the access token and returns it re-encrypted.
func (s *AuthService) Refresh(ctx context.Context, caller Caller) (data, iv string, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Refresh")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "token refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "token refreshed")
	}()

	var accessToken string
	accessToken, err = s.gateways.Pick(caller.UseMock).RefreshAccessToken(ctx, caller.Credential.RefreshToken)
	if err != nil {
		err = mapGatewayError(err)
		return
	}

	var encrypted tokencipher.EncryptedToken
	encrypted, err = s.cipher.Encrypt(accessToken)
	if err != nil {
		return
	}
	return encrypted.Data, encrypted.IV, nil
}

// Logout revokes the credential with the provider. Revocation failure is
// logged but not fatal: the client discards its session either way.
func (s *AuthService) Logout(ctx context.Context, caller Caller) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	logger := s.loggerWith(ctx, "Logout")
	if err := s.gateways.Pick(caller.UseMock).RevokeCredential(ctx, caller.Credential); err != nil {
		logger.WarnContext(ctx, "credential revocation failed", "error", mapGatewayError(err))
		return nil
	}
	logger.InfoContext(ctx, "logged out")
	return nil
}
