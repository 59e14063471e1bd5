package services

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/taskboard/apiserver/types"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
)

// TaskRepository defines owner-scoped persistence operations for tasks.
type TaskRepository interface {
	ListByOwner(ctx context.Context, userID int) ([]types.Task, error)
	GetByIDAndOwner(ctx context.Context, id, userID int) (types.Task, error)
	Create(ctx context.Context, task types.Task) (types.Task, error)
	Update(ctx context.Context, task types.Task) (types.Task, error)
	Delete(ctx context.Context, id, userID int) error
}

// TaskService encapsulates task use-cases. It never authenticates: callerID
// comes from the request boundary and only scopes every query by owner.
// A task owned by someone else is reported as store.ErrNotFound.
type TaskService struct {
	repo    TaskRepository
	events  EventEmitter
	exports ExportStore
	now     func() time.Time
}

type TaskOption func(*TaskService)

func WithEvents(events EventEmitter) TaskOption {
	return func(s *TaskService) {
		s.events = events
	}
}

func WithExports(exports ExportStore) TaskOption {
	return func(s *TaskService) {
		s.exports = exports
	}
}

func NewTaskService(repo TaskRepository, opts ...TaskOption) *TaskService {
	s := &TaskService{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) List(ctx context.Context, callerID int) ([]types.Task, error) {
	return s.repo.ListByOwner(ctx, callerID)
}

func (s *TaskService) Get(ctx context.Context, callerID, id int) (types.Task, error) {
	return s.repo.GetByIDAndOwner(ctx, id, callerID)
}

// Create stores a new task owned by callerID.
func (s *TaskService) Create(ctx context.Context, callerID int, input types.TaskInput) (types.Task, error) {
	if err := validateTaskInput(input); err != nil {
		return types.Task{}, err
	}

	created, err := s.repo.Create(ctx, types.Task{
		Title:       input.Title,
		Description: input.Description,
		IsCompleted: input.IsCompleted,
		UserID:      callerID,
	})
	if err != nil {
		return types.Task{}, err
	}

	s.emit(ctx, types.EventTaskCreated, callerID, created.ID)
	return created, nil
}

// Update overwrites title, description and completion of a task owned by callerID.
func (s *TaskService) Update(ctx context.Context, callerID, id int, input types.TaskInput) (types.Task, error) {
	if err := validateTaskInput(input); err != nil {
		return types.Task{}, err
	}

	updated, err := s.repo.Update(ctx, types.Task{
		ID:          id,
		UserID:      callerID,
		Title:       input.Title,
		Description: input.Description,
		IsCompleted: input.IsCompleted,
	})
	if err != nil {
		return types.Task{}, err
	}

	s.emit(ctx, types.EventTaskUpdated, callerID, id)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, callerID, id int) error {
	if err := s.repo.Delete(ctx, id, callerID); err != nil {
		return err
	}
	s.emit(ctx, types.EventTaskDeleted, callerID, id)
	return nil
}

func (s *TaskService) emit(ctx context.Context, eventType types.EventType, userID, taskID int) {
	if s.events != nil {
		s.events.Emit(ctx, eventType, userID, taskID)
	}
}

func validateTaskInput(input types.TaskInput) error {
	if utf8.RuneCountInString(input.Title) > maxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrValidation, maxTitleLength)
	}
	if utf8.RuneCountInString(input.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", ErrValidation, maxDescriptionLength)
	}
	return nil
}
