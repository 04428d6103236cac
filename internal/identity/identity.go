// Package identity exchanges credentials and bearer tokens for user
// identities. Account storage and token issuance belong to the provider;
// callers only ever see an Identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/internal/domain"
)

var (
	// ErrInvalidToken means the token is missing, malformed, expired or unknown to the provider.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidCredentials means sign-in was refused.
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

// RejectedError is a provider refusal of a sign-up, e.g. a duplicate email.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("identity provider rejected request: %s", e.Message)
}

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	User        domain.User `json:"user"`
}

// Verifier maps a bearer token to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Provider is a full identity backend.
type Provider interface {
	Verifier
	SignUp(ctx context.Context, name, email, password string) (domain.User, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
}

// SignUpFields checks the sign-up form before it reaches a provider.
func SignUpFields(name, email, password string) error {
	var missing []string
	if strings.TrimSpace(name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(email) == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return domain.ValidationError{Field: strings.Join(missing, ", "), Reason: "required"}
	}
	return nil
}

// SignInFields checks the sign-in form before it reaches a provider.
func SignInFields(email, password string) error {
	var missing []string
	if strings.TrimSpace(email) == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return domain.ValidationError{Field: strings.Join(missing, ", "), Reason: "required"}
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// displayName falls back to the local part of the email address.
func displayName(name, email string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
