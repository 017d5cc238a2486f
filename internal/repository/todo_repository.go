package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Tomlord1122/todo-app/internal/domain"
)

// TodoChanges holds the fields an update may touch. Nil means "leave as is".
type TodoChanges struct {
	Title     *string
	Completed *bool
}

func (c TodoChanges) empty() bool {
	return c.Title == nil && c.Completed == nil
}

// TodoRepository defines the todo data operations. Every method except Create
// is scoped to an owner: the owner id is part of the query predicate, so a
// todo owned by someone else behaves exactly like a missing one
// (gorm.ErrRecordNotFound).
type TodoRepository interface {
	Create(ctx context.Context, todo *domain.Todo) error
	ListByOwner(ctx context.Context, userID string) ([]domain.Todo, error)
	FindOwned(ctx context.Context, id, userID string) (*domain.Todo, error)
	UpdateOwned(ctx context.Context, id, userID string, changes TodoChanges) (*domain.Todo, error)
	DeleteOwned(ctx context.Context, id, userID string) (*domain.Todo, error)
}

type gormTodoRepository struct {
	store
}

// NewGormTodoRepository creates a new GORM todo repository
func NewGormTodoRepository(db *gorm.DB, timeout time.Duration) TodoRepository {
	return &gormTodoRepository{store: newStore(db, timeout)}
}

func (r *gormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	db, cancel := r.with(ctx)
	defer cancel()
	return db.Omit("User").Create(todo).Error
}

// ListByOwner returns the owner's todos, newest first.
func (r *gormTodoRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Todo, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	todos := make([]domain.Todo, 0)
	err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&todos).Error
	if err != nil {
		return nil, err
	}
	return todos, nil
}

func (r *gormTodoRepository) FindOwned(ctx context.Context, id, userID string) (*domain.Todo, error) {
	db, cancel := r.with(ctx)
	defer cancel()
	return findOwned(db, id, userID)
}

// UpdateOwned applies changes with an id + owner predicate and returns the
// stored row afterwards.
func (r *gormTodoRepository) UpdateOwned(ctx context.Context, id, userID string, changes TodoChanges) (*domain.Todo, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	if changes.empty() {
		return findOwned(db, id, userID)
	}

	updates := map[string]any{}
	if changes.Title != nil {
		updates["title"] = *changes.Title
	}
	if changes.Completed != nil {
		updates["completed"] = *changes.Completed
	}

	var todo *domain.Todo
	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&domain.Todo{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var err error
		todo, err = findOwned(tx, id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// DeleteOwned removes the todo and returns it as it was just before deletion.
func (r *gormTodoRepository) DeleteOwned(ctx context.Context, id, userID string) (*domain.Todo, error) {
	db, cancel := r.with(ctx)
	defer cancel()

	var todo *domain.Todo
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		todo, err = findOwned(tx, id, userID)
		if err != nil {
			return err
		}

		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Todo{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

func findOwned(db *gorm.DB, id, userID string) (*domain.Todo, error) {
	var todo domain.Todo
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&todo).Error; err != nil {
		return nil, err
	}
	return &todo, nil
}
