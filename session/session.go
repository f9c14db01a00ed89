// Package session owns the authenticated-session lifecycle for the
// Homobie portal: login, registration, logout, token refresh with
// proactive expiry scheduling, and role/permission reads. A Manager is
// constructed explicitly and shared by reference; there is no
// package-level singleton.
package session

import (
	"strings"

	cerrors "github.com/homobie/portal-go/internal/errors"
	"github.com/homobie/portal-go/store"
)

// Session is a read-only snapshot of the current authenticated state.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         store.User
}

// LoginCredentials is the login request payload.
type LoginCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegistrationData is the registration request payload.
type RegistrationData struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// AuthResponse is the shape the auth endpoints return on success. The
// same shape comes back from login, registration and refresh.
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	UserID       string `json:"userId"`
}

// validate checks the response shape and builds the user profile. Any
// missing field is treated as the backend rejecting the credentials,
// surfaced as the generic ErrInvalidCredentials.
func (r *AuthResponse) validate() (*store.User, error) {
	if r.Token == "" || r.RefreshToken == "" || r.Email == "" ||
		r.Role == "" || r.FirstName == "" || r.LastName == "" {
		return nil, cerrors.ErrInvalidCredentials
	}
	return &store.User{
		UserID:    r.UserID,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Role:      strings.ToLower(r.Role),
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
