// Package tasks implements per-user task CRUD on top of a kv.Store.
//
// Every key is derived as user:<uid>:task:<id> from the uid handed in by the
// caller, which must come from a verified identity. A task id alone never
// addresses a record.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskboard/internal/domain"
	"taskboard/internal/kv"
)

// CreatedAtLayout matches JavaScript's Date.toISOString in UTC.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrNotFound = errors.New("task not found")

type Service struct {
	store  kv.Store
	logger logrus.FieldLogger
	now    func() time.Time
	newID  func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logrus.StandardLogger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func prefixFor(uid string) string {
	return kv.Key("user", uid, "task") + ":"
}

func keyFor(uid, taskID string) string {
	return kv.Key("user", uid, "task", taskID)
}

// checkSegment rejects values that would let a key escape its namespace.
func checkSegment(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return domain.ValidationError{Field: field, Reason: "is required"}
	}
	if strings.Contains(v, ":") {
		return domain.ValidationError{Field: field, Reason: "must not contain ':'"}
	}
	return nil
}

// decode is the storage boundary: a stored value either becomes a
// well-formed Task or an error naming what is wrong with it.
func decode(key string, raw json.RawMessage) (domain.Task, error) {
	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return domain.Task{}, fmt.Errorf("decode %s: %w", key, err)
	}
	switch {
	case t.Status == "":
		return domain.Task{}, fmt.Errorf("decode %s: missing status", key)
	case !t.Status.Valid():
		return domain.Task{}, fmt.Errorf("decode %s: unknown status %q", key, t.Status)
	case strings.TrimSpace(t.Title) == "":
		return domain.Task{}, fmt.Errorf("decode %s: missing title", key)
	}
	if t.ID == "" {
		t.ID = key[strings.LastIndex(key, ":")+1:]
	}
	return t, nil
}

func (s *Service) put(ctx context.Context, key string, t domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := s.store.Set(ctx, key, data); err != nil {
		return fmt.Errorf("store task: %w", err)
	}
	return nil
}

// List returns the caller's tasks in no particular order. Stored values that
// fail decoding are skipped and logged.
func (s *Service) List(ctx context.Context, uid string) ([]domain.Task, error) {
	if err := checkSegment("user id", uid); err != nil {
		return nil, err
	}
	entries, err := s.store.GetByPrefix(ctx, prefixFor(uid))
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(entries))
	for _, e := range entries {
		t, err := decode(e.Key, e.Value)
		if err != nil {
			s.logger.WithError(err).WithField("key", e.Key).Warn("skipping malformed task record")
			continue
		}
		out = append(out, t)
	}
	s.logger.WithFields(logrus.Fields{"user_id": uid, "count": len(out)}).Debug("listed tasks")
	return out, nil
}

// Get returns one of the caller's tasks.
func (s *Service) Get(ctx context.Context, uid, taskID string) (domain.Task, error) {
	key, err := s.key(uid, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return s.load(ctx, key)
}

func (s *Service) load(ctx context.Context, key string) (domain.Task, error) {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task: %w", err)
	}
	if !found {
		return domain.Task{}, ErrNotFound
	}
	t, err := decode(key, raw)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("treating malformed task record as missing")
		return domain.Task{}, ErrNotFound
	}
	return t, nil
}

// Create assigns id and createdAt and stores the task.
func (s *Service) Create(ctx context.Context, uid string, in domain.TaskInput) (domain.Task, error) {
	if err := checkSegment("user id", uid); err != nil {
		return domain.Task{}, err
	}
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		CreatedAt:   s.now().UTC().Format(CreatedAtLayout),
	}
	if err := s.put(ctx, keyFor(uid, t.ID), t); err != nil {
		return domain.Task{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": uid, "task_id": t.ID}).Debug("created task")
	return t, nil
}

// Update merges patch over the stored task. Concurrent updates are last-write-wins.
// An empty patch over a consistent record writes nothing.
func (s *Service) Update(ctx context.Context, uid, taskID string, patch domain.TaskPatch) (domain.Task, error) {
	key, err := s.key(uid, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	existing, err := s.load(ctx, key)
	if err != nil {
		return domain.Task{}, err
	}
	merged := patch.Apply(existing)
	if patch.Empty() && existing.ID == taskID {
		return merged, nil
	}
	merged.ID = taskID
	if err := s.put(ctx, key, merged); err != nil {
		return domain.Task{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": uid, "task_id": taskID}).Debug("updated task")
	return merged, nil
}

// Delete removes the task. Deleting a missing task succeeds.
func (s *Service) Delete(ctx context.Context, uid, taskID string) error {
	key, err := s.key(uid, taskID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": uid, "task_id": taskID}).Debug("deleted task")
	return nil
}

func (s *Service) key(uid, taskID string) (string, error) {
	if err := checkSegment("user id", uid); err != nil {
		return "", err
	}
	if err := checkSegment("task id", taskID); err != nil {
		return "", err
	}
	return keyFor(uid, taskID), nil
}
