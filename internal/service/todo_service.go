package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/repository"
)

// Input/Output Structs (Data Transfer Objects - DTOs)
// The validate tags describe the shape each procedure accepts or returns;
// they are checked at the call boundary before and after the service runs.

// CreateTodoRequest holds the data needed to create a new todo.
// There is deliberately no owner field: the owner is always the caller.
type CreateTodoRequest struct {
	Title string `json:"title" validate:"required,min=1,max=500"`
}

// TodoIDRequest addresses a single todo.
type TodoIDRequest struct {
	ID string `json:"id" validate:"required,max=64"`
}

// UpdateTodoRequest holds the data for updating an existing todo.
// Using pointers allows distinguishing between a field being omitted
// vs. being set to its zero value (e.g., setting Completed to false).
type UpdateTodoRequest struct {
	ID        string  `json:"id" validate:"required,max=64"`
	Title     *string `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Completed *bool   `json:"completed,omitempty"`
}

// TodoResponse is the standard representation of a Todo returned by the service.
type TodoResponse struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title" validate:"required,max=500"`
	Completed bool   `json:"completed"`
	UserID    string `json:"user_id" validate:"required"`
	CreatedAt string `json:"created_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	UpdatedAt string `json:"updated_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// --- Service Interface ---

// TodoService defines the operations for managing todos.
// Every method takes the caller's verified user id first; it comes from the
// authenticated session, never from a request body.
type TodoService interface {
	// ListTodos returns the caller's todos, newest first.
	ListTodos(ctx context.Context, userID string) ([]TodoResponse, error)

	// CreateTodo creates a todo owned by the caller.
	CreateTodo(ctx context.Context, userID string, req CreateTodoRequest) (*TodoResponse, error)

	// ToggleTodo flips the completed flag of one of the caller's todos.
	ToggleTodo(ctx context.Context, userID, id string) (*TodoResponse, error)

	// UpdateTodo changes only the fields present in req.
	UpdateTodo(ctx context.Context, userID string, req UpdateTodoRequest) (*TodoResponse, error)

	// DeleteTodo deletes one of the caller's todos and returns it as it was.
	DeleteTodo(ctx context.Context, userID, id string) (*TodoResponse, error)
}

// --- Service Implementation ---

// todoService holds no state besides its repository, so one instance can
// serve any number of concurrent requests.
type todoService struct {
	repo repository.TodoRepository
}

// NewTodoService creates a new instance of todoService.
func NewTodoService(repo repository.TodoRepository) TodoService {
	return &todoService{
		repo: repo,
	}
}

func (s *todoService) ListTodos(ctx context.Context, userID string) ([]TodoResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized()
	}

	todos, err := s.repo.ListByOwner(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal(err)
	}

	responses := make([]TodoResponse, 0, len(todos))
	for i := range todos {
		responses = append(responses, *toTodoResponse(&todos[i]))
	}
	return responses, nil
}

func (s *todoService) CreateTodo(ctx context.Context, userID string, req CreateTodoRequest) (*TodoResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized()
	}
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}

	newTodo := &domain.Todo{
		Title:     req.Title,
		Completed: false,
		UserID:    userID,
	}
	if err := s.repo.Create(ctx, newTodo); err != nil {
		return nil, domain.ErrInternal(err)
	}

	return toTodoResponse(newTodo), nil
}

// ToggleTodo reads the current state only to compute its negation; the write
// carries the same id + owner predicate as the read.
func (s *todoService) ToggleTodo(ctx context.Context, userID, id string) (*TodoResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized()
	}

	current, err := s.repo.FindOwned(ctx, id, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	completed := !current.Completed
	updated, err := s.repo.UpdateOwned(ctx, id, userID, repository.TodoChanges{Completed: &completed})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return toTodoResponse(updated), nil
}

func (s *todoService) UpdateTodo(ctx context.Context, userID string, req UpdateTodoRequest) (*TodoResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized()
	}
	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateOwned(ctx, req.ID, userID, repository.TodoChanges{
		Title:     req.Title,
		Completed: req.Completed,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}
	return toTodoResponse(updated), nil
}

func (s *todoService) DeleteTodo(ctx context.Context, userID, id string) (*TodoResponse, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized()
	}

	deleted, err := s.repo.DeleteOwned(ctx, id, userID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return toTodoResponse(deleted), nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	switch {
	case n == 0:
		return domain.ErrInvalidField("title", "required")
	case n > domain.TitleMaxLength:
		return domain.ErrInvalidField("title", "max")
	}
	return nil
}

// mapRepoError hides whether a todo is missing or belongs to someone else.
func mapRepoError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTodoNotFound()
	}
	return domain.ErrInternal(err)
}

func toTodoResponse(todo *domain.Todo) *TodoResponse {
	return &TodoResponse{
		ID:        todo.ID,
		Title:     todo.Title,
		Completed: todo.Completed,
		UserID:    todo.UserID,
		CreatedAt: todo.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: todo.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
