// Package auth gates WebSocket handshakes on a bearer token. Tokens are
// validated against the external auth service when one is configured,
// with local JWT verification as the fallback.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned for any token that fails verification.
var ErrUnauthorized = errors.New("auth: invalid token")

// errServiceUnreachable marks transport-level failures talking to the
// auth service. Only these fall back to local verification; an answer
// from the service, rejection included, is final.
var errServiceUnreachable = errors.New("auth: service unreachable")

// Principal identifies the authenticated user behind a connection.
type Principal struct {
	UserID   string
	Username string
	Avatar   string
}

// Verifier resolves a bearer token to a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// ServiceVerifier validates tokens with the auth service, falling back
// to local JWT verification when the service is unreachable or not
// configured.
type ServiceVerifier struct {
	authServiceURL string
	secretKey      string
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewServiceVerifier(authServiceURL, secretKey string, logger *zap.Logger) *ServiceVerifier {
	return &ServiceVerifier{
		authServiceURL: authServiceURL,
		secretKey:      secretKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (v *ServiceVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	if v.authServiceURL != "" {
		principal, err := v.verifyWithAuthService(ctx, token)
		if err == nil {
			return principal, nil
		}
		// The service answered: its verdict stands. Only when it could
		// not be reached at all does local verification take over.
		if !errors.Is(err, errServiceUnreachable) {
			return nil, ErrUnauthorized
		}
		v.logger.Debug("Auth service unreachable, falling back to local", zap.Error(err))
	}

	return v.verifyLocally(token)
}

func (v *ServiceVerifier) verifyWithAuthService(ctx context.Context, token string) (*Principal, error) {
	url := v.authServiceURL + "/api/auth/validate"

	reqBody, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errServiceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrUnauthorized
	}

	var result struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.UserID == "" {
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID:   result.UserID,
		Username: result.Username,
		Avatar:   result.Avatar,
	}, nil
}

func (v *ServiceVerifier) verifyLocally(tokenString string) (*Principal, error) {
	// Without a configured secret there is nothing to verify against;
	// accepting HS256 signatures over the empty key would let anyone
	// mint principals.
	if v.secretKey == "" {
		return nil, ErrUnauthorized
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return []byte(v.secretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}

	principal := &Principal{}
	for _, key := range []string{"sub", "userId", "user_id"} {
		if val, exists := claims[key]; exists {
			if s, ok := val.(string); ok {
				principal.UserID = s
				break
			}
		}
	}
	if principal.UserID == "" {
		return nil, ErrUnauthorized
	}

	for _, key := range []string{"username", "name"} {
		if val, exists := claims[key]; exists {
			if s, ok := val.(string); ok {
				principal.Username = s
				break
			}
		}
	}
	if avatar, exists := claims["avatar"]; exists {
		if s, ok := avatar.(string); ok {
			principal.Avatar = s
		}
	}

	return principal, nil
}
