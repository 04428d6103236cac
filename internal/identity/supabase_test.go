package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logging"
)

// fakeGoTrue serves the three GoTrue endpoints the provider uses.
func fakeGoTrue(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body struct {
			Email        string            `json:"email"`
			EmailConfirm bool              `json:"email_confirm"`
			UserMetadata map[string]string `json:"user_metadata"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"msg":"A user with this email address has already been registered"}`))
			return
		}
		assert.True(t, body.EmailConfirm)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "u-1", "email": body.Email, "user_metadata": body.UserMetadata,
		})
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter22" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
			"expires_at":   1704067200,
			"user":         map[string]any{"id": "u-1", "email": body["email"]},
		})
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer tok-1":
			_, _ = w.Write([]byte(`{"id":"u-1","email":"ana@example.com","user_metadata":{"name":"Ana"}}`))
		case "Bearer boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSupabase(url string) *Supabase {
	return NewSupabase(SupabaseConfig{URL: url + "/", ServiceRoleKey: "service-key", AnonKey: "anon-key"}, logging.Discard())
}

func TestSupabaseSignUp(t *testing.T) {
	s := newSupabase(fakeGoTrue(t).URL)
	ctx := context.Background()

	user, err := s.SignUp(ctx, "Ana", "ana@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, "Ana", user.Name)

	_, err = s.SignUp(ctx, "Ana", "taken@example.com", "hunter22")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected), "got %v", err)
	assert.Contains(t, rejected.Message, "already been registered")
}

func TestSupabaseSignIn(t *testing.T) {
	s := newSupabase(fakeGoTrue(t).URL)
	ctx := context.Background()

	session, err := s.SignIn(ctx, "ana@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.AccessToken)
	assert.Equal(t, int64(1704067200), session.ExpiresAt.Unix())
	assert.Equal(t, "ana", session.User.Name, "name falls back to the email local part")

	_, err = s.SignIn(ctx, "ana@example.com", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSupabaseVerify(t *testing.T) {
	s := newSupabase(fakeGoTrue(t).URL)
	ctx := context.Background()

	id, err := s.Verify(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-1", Email: "ana@example.com", Name: "Ana"}, id)

	_, err = s.Verify(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify(ctx, "boom")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidToken), "provider outage is not a bad token")
}

func TestSupabaseBreakerOpensOnOutage(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s := newSupabase(srv.URL)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.Verify(ctx, "tok")
		require.Error(t, err)
	}
	_, err := s.Verify(ctx, "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits), "open breaker short-circuits the call")
}

func TestSupabaseRejectionsDoNotTripBreaker(t *testing.T) {
	s := newSupabase(fakeGoTrue(t).URL)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := s.Verify(ctx, "garbage")
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	_, err := s.Verify(ctx, "tok-1")
	assert.NoError(t, err)
}

func TestSupabaseCancelledCallersDoNotTripBreaker(t *testing.T) {
	s := newSupabase(fakeGoTrue(t).URL)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 6; i++ {
		_, err := s.Verify(cancelled, "tok-1")
		require.ErrorIs(t, err, context.Canceled)
	}

	id, err := s.Verify(context.Background(), "tok-1")
	require.NoError(t, err, "breaker must stay closed after client disconnects")
	assert.Equal(t, "u-1", id.UserID)
}

func TestBreakerSuccess(t *testing.T) {
	assert.True(t, breakerSuccess(nil))
	assert.True(t, breakerSuccess(fmt.Errorf("supabase auth GET /user: %w", context.Canceled)))
	assert.True(t, breakerSuccess(ErrInvalidToken))
	assert.True(t, breakerSuccess(ErrInvalidCredentials))
	assert.True(t, breakerSuccess(&RejectedError{Message: "taken"}))
	assert.False(t, breakerSuccess(errors.New("bad gateway")))
	assert.False(t, breakerSuccess(context.DeadlineExceeded))
}
