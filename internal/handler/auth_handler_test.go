package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type authServiceStub struct {
	lastLogin models.LoginRequest
	loginErr  error
}

func (s *authServiceStub) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.lastLogin = req
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 900}, nil
}

func (s *authServiceStub) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	if userID != "u1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return &models.UserInfo{ID: userID, Email: "ops@example.com", Role: models.RoleAdmin}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	stub := &authServiceStub{}
	handler := NewAuthHandler(stub)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"ops@example.com","password":"secret"}`))
	c.Request.Header.Set("User-Agent", "curl/8")

	handler.Login(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@example.com", stub.lastLogin.Email)
	assert.Equal(t, "curl/8", stub.lastLogin.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	handler := NewAuthHandler(&authServiceStub{})
	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":`))
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	handler = NewAuthHandler(&authServiceStub{loginErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid credentials")})
	c, w = newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"ops@example.com","password":"wrong"}`))
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&authServiceStub{})

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodGet, "/auth/me", nil)
	asUser(c, "u1", models.RoleAdmin)
	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ops@example.com")
}
