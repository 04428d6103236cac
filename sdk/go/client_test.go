package taskboardsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/identity"
	"taskboard/internal/kv"
	"taskboard/internal/logging"
	"taskboard/internal/server"
	"taskboard/internal/tasks"
	taskboardsdk "taskboard/sdk/go"
)

func newClient(t *testing.T) *taskboardsdk.Client {
	t.Helper()
	store := kv.NewMemory()
	provider, err := identity.NewLocal(store, "sdk-secret", time.Hour, identity.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Tasks:    tasks.NewService(store, tasks.WithLogger(logging.Discard())),
		Identity: provider,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return taskboardsdk.New(srv.URL + "/")
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	require.NoError(t, c.Health(ctx))

	user, err := c.Signup(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	session, err := c.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	assert.Equal(t, session.AccessToken, c.Token)

	created, err := c.CreateTask(ctx, taskboardsdk.TaskInput{
		Title: "Buy milk", Status: "pending", Priority: "low", DueDate: "2024-01-01",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	status := "completed"
	updated, err := c.UpdateTask(ctx, created.ID, taskboardsdk.TaskPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	listed, err := c.ListTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []taskboardsdk.Task{updated}, listed)

	summary, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 100, summary.CompletionRate)

	require.NoError(t, c.DeleteTask(ctx, created.ID))
	listed, err = c.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.ListTasks(ctx)
	var apiErr *taskboardsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)

	_, err = c.Login(ctx, "nobody@example.com", "whatever")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid login credentials", apiErr.Message)
	assert.Empty(t, c.Token)

	_, err = c.Signup(ctx, "Ada", "ada@example.com", "hunter22")
	require.NoError(t, err)
	_, err = c.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	title := "x"
	_, err = c.UpdateTask(ctx, "missing", taskboardsdk.TaskPatch{Title: &title})
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
