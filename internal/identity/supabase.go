package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"taskboard/internal/domain"
)

// SupabaseConfig points at a Supabase project's GoTrue endpoint.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	// AnonKey is sent on end-user calls; ServiceRoleKey is used when empty.
	AnonKey    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Supabase delegates accounts and tokens to Supabase Auth.
type Supabase struct {
	baseURL    string
	serviceKey string
	publicKey  string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewSupabase(cfg SupabaseConfig, logger logrus.FieldLogger) *Supabase {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	publicKey := cfg.AnonKey
	if publicKey == "" {
		publicKey = cfg.ServiceRoleKey
	}
	return &Supabase{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceRoleKey,
		publicKey:  publicKey,
		client:     client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "supabase-auth",
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
					Warn("circuit breaker state changed")
			},
			IsSuccessful: breakerSuccess,
		}),
	}
}

// breakerSuccess reports whether err leaves the provider's health unchanged.
// Refusals are answers, not outages, and a caller hanging up says nothing
// about the provider.
func breakerSuccess(err error) bool {
	var rejected *RejectedError
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.As(err, &rejected)
}

type gotrueUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		Name string `json:"name"`
	} `json:"user_metadata"`
}

func (u gotrueUser) domain() domain.User {
	return domain.User{ID: u.ID, Email: u.Email, Name: displayName(u.UserMetadata.Name, u.Email)}
}

type gotrueError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// statusError is a non-2xx answer from GoTrue.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase auth: status %d: %s", e.status, e.message)
}

func (s *Supabase) SignUp(ctx context.Context, name, email, password string) (domain.User, error) {
	if err := SignUpFields(name, email, password); err != nil {
		return domain.User{}, err
	}
	body := map[string]any{
		"email":         strings.TrimSpace(email),
		"password":      password,
		"email_confirm": true,
		"user_metadata": map[string]string{"name": strings.TrimSpace(name)},
	}
	var user gotrueUser
	err := s.call(ctx, http.MethodPost, "/auth/v1/admin/users", s.serviceKey, s.serviceKey, body, &user, func(se *statusError) error {
		if se.status >= 400 && se.status < 500 {
			return &RejectedError{Message: se.message}
		}
		return se
	})
	if err != nil {
		return domain.User{}, err
	}
	return user.domain(), nil
}

func (s *Supabase) SignIn(ctx context.Context, email, password string) (Session, error) {
	if err := SignInFields(email, password); err != nil {
		return Session{}, err
	}
	body := map[string]string{"email": strings.TrimSpace(email), "password": password}
	var resp struct {
		AccessToken string     `json:"access_token"`
		ExpiresIn   int64      `json:"expires_in"`
		ExpiresAt   int64      `json:"expires_at"`
		User        gotrueUser `json:"user"`
	}
	err := s.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", s.publicKey, "", body, &resp, func(se *statusError) error {
		if se.status == http.StatusBadRequest || se.status == http.StatusUnauthorized {
			return ErrInvalidCredentials
		}
		return se
	})
	if err != nil {
		return Session{}, err
	}
	expires := time.Unix(resp.ExpiresAt, 0).UTC()
	if resp.ExpiresAt == 0 {
		expires = time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return Session{AccessToken: resp.AccessToken, ExpiresAt: expires, User: resp.User.domain()}, nil
}

func (s *Supabase) Verify(ctx context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrInvalidToken
	}
	var user gotrueUser
	err := s.call(ctx, http.MethodGet, "/auth/v1/user", s.publicKey, token, nil, &user, func(se *statusError) error {
		if se.status == http.StatusUnauthorized || se.status == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrInvalidToken, se.message)
		}
		return se
	})
	if err != nil {
		return Identity{}, err
	}
	if user.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	u := user.domain()
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name}, nil
}

// call runs one request through the breaker. classify maps a non-2xx answer to the error returned.
func (s *Supabase) call(ctx context.Context, method, path, apiKey, bearer string, body, out any, classify func(*statusError) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.do(ctx, method, path, apiKey, bearer, body, out, classify)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("identity provider unavailable: %w", err)
	}
	return err
}

func (s *Supabase) do(ctx context.Context, method, path, apiKey, bearer string, body, out any, classify func(*statusError) error) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("supabase auth %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("supabase auth %s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		var ge gotrueError
		_ = json.Unmarshal(data, &ge)
		msg := ge.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return classify(&statusError{status: resp.StatusCode, message: msg})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("supabase auth %s %s: decode: %w", method, path, err)
	}
	return nil
}
