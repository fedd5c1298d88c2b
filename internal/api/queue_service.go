package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"semefo/internal/media"
	"semefo/internal/queue"
	"semefo/internal/services"
)

// QueueStore abstracts the queue persistence operations the API needs.
type QueueStore interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Task, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	GetByID(ctx context.Context, id int64) (*queue.Task, error)
	Enqueue(ctx context.Context, session media.Session, kind media.Kind, maxAttempts int) (*queue.Task, bool, error)
	RetryFailed(ctx context.Context, ids ...int64) (int64, error)
}

// QueueService exposes queue operations returning API DTOs.
type QueueService struct {
	store       QueueStore
	maxAttempts int
}

// NewQueueService constructs a QueueService around the provided store.
// maxAttempts is recorded on tasks created through Enqueue.
func NewQueueService(store QueueStore, maxAttempts int) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store, maxAttempts: maxAttempts}
}

// List returns queue tasks filtered by status names. Unknown names are rejected.
func (s *QueueService) List(ctx context.Context, statusNames ...string) ([]QueueTask, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	statuses, err := ParseStatuses(statusNames)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromQueueTasks(tasks), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single queue task. A missing task yields nil, nil.
func (s *QueueService) Describe(ctx context.Context, id int64) (*QueueTask, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	task, err := s.store.GetByID(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil || task == nil {
		return nil, err
	}
	dto := FromQueueTask(task)
	return &dto, nil
}

// Enqueue validates req and records a task for it.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResponse, error) {
	if s == nil || s.store == nil {
		return EnqueueResponse{}, errors.New("queue store unavailable")
	}
	session := media.Session{Expediente: strings.TrimSpace(req.Expediente), ID: req.SessionID}
	if err := session.Validate(); err != nil {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", "invalid session", err)
	}
	kind, err := media.ParseKind(req.Kind)
	if err != nil {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", "invalid kind", err)
	}
	if !kind.Runnable() {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", fmt.Sprintf("kind %q cannot be queued", kind), nil)
	}
	task, created, err := s.store.Enqueue(ctx, session, kind, s.maxAttempts)
	if err != nil {
		return EnqueueResponse{}, err
	}
	return EnqueueResponse{Task: FromQueueTask(task), Created: created}, nil
}

// Retry moves failed tasks back to pending.
func (s *QueueService) Retry(ctx context.Context, ids []int64) (int64, error) {
	if s == nil || s.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return s.store.RetryFailed(ctx, ids...)
}

// ParseStatuses converts status names into queue statuses.
func ParseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, services.Wrap(services.ErrValidation, "api", "status filter", fmt.Sprintf("unknown status %q", part), nil)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
