package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/todo-app/internal/database/dbtest"
	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/repository"
	"github.com/Tomlord1122/todo-app/internal/service"
)

type todoFixture struct {
	svc  service.TodoService
	repo repository.TodoRepository
}

func newTodoFixture(t *testing.T) todoFixture {
	t.Helper()
	repo := repository.NewGormTodoRepository(dbtest.Open(t).GetDB(), time.Second)
	return todoFixture{svc: service.NewTodoService(repo), repo: repo}
}

func ptr[T any](v T) *T { return &v }

func TestTodoService_CreateOwnedByCaller(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	todo, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "Buy milk"})
	require.NoError(t, err)

	assert.NotEmpty(t, todo.ID)
	assert.Equal(t, "Buy milk", todo.Title)
	assert.False(t, todo.Completed)
	assert.Equal(t, "alice", todo.UserID)
	_, err = time.Parse(time.RFC3339, todo.CreatedAt)
	assert.NoError(t, err)
}

func TestTodoService_CreateTitleBounds(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"single char", "a", false},
		{"max length", strings.Repeat("x", 500), false},
		{"multibyte at max", strings.Repeat("é", 500), false},
		{"empty", "", true},
		{"too long", strings.Repeat("x", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTodoFixture(t)
			ctx := context.Background()

			_, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: tt.title})
			todos, listErr := f.repo.ListByOwner(ctx, "alice")
			require.NoError(t, listErr)

			if tt.wantErr {
				assert.True(t, domain.IsKind(err, domain.KindBadRequest), "got %v", err)
				assert.Empty(t, todos)
				return
			}
			require.NoError(t, err)
			assert.Len(t, todos, 1)
		})
	}
}

func TestTodoService_ListOnlyCallersTodos(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	for _, owner := range []string{"alice", "bob", "alice", "carol", "bob"} {
		_, err := f.svc.CreateTodo(ctx, owner, service.CreateTodoRequest{Title: "task of " + owner})
		require.NoError(t, err)
	}

	for _, owner := range []string{"alice", "bob", "carol", "dave"} {
		todos, err := f.svc.ListTodos(ctx, owner)
		require.NoError(t, err)
		assert.NotNil(t, todos)
		for _, todo := range todos {
			assert.Equal(t, owner, todo.UserID)
		}
	}

	alice, err := f.svc.ListTodos(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2)
}

func TestTodoService_ToggleIsInvolution(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "Buy milk"})
	require.NoError(t, err)

	once, err := f.svc.ToggleTodo(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.True(t, once.Completed)

	twice, err := f.svc.ToggleTodo(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Completed, twice.Completed)
}

func TestTodoService_UpdateOnlySuppliedFields(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "draft"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateTodo(ctx, "alice", service.UpdateTodoRequest{ID: created.ID, Completed: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, "draft", updated.Title)
	assert.True(t, updated.Completed)

	updated, err = f.svc.UpdateTodo(ctx, "alice", service.UpdateTodoRequest{ID: created.ID, Title: ptr("final")})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.True(t, updated.Completed)

	_, err = f.svc.UpdateTodo(ctx, "alice", service.UpdateTodoRequest{ID: created.ID, Title: ptr("")})
	assert.True(t, domain.IsKind(err, domain.KindBadRequest))
}

func TestTodoService_OtherUserCannotTouchTodo(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "mine"})
	require.NoError(t, err)

	_, err = f.svc.ToggleTodo(ctx, "bob", created.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "toggle: %v", err)

	_, err = f.svc.UpdateTodo(ctx, "bob", service.UpdateTodoRequest{ID: created.ID, Title: ptr("stolen"), Completed: ptr(true)})
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "update: %v", err)

	_, err = f.svc.DeleteTodo(ctx, "bob", created.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound), "delete: %v", err)

	stored, err := f.repo.FindOwned(ctx, created.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Title)
	assert.False(t, stored.Completed)
}

func TestTodoService_NotFoundAndNotOwnedLookTheSame(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "mine"})
	require.NoError(t, err)

	_, notOwned := f.svc.ToggleTodo(ctx, "bob", created.ID)
	_, missing := f.svc.ToggleTodo(ctx, "bob", "does-not-exist")

	require.Error(t, notOwned)
	require.Error(t, missing)
	assert.Equal(t, missing.Error(), notOwned.Error())
}

func TestTodoService_DeleteReturnsPriorStateOnce(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateTodo(ctx, "alice", service.CreateTodoRequest{Title: "temp"})
	require.NoError(t, err)
	_, err = f.svc.ToggleTodo(ctx, "alice", created.ID)
	require.NoError(t, err)

	deleted, err := f.svc.DeleteTodo(ctx, "alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.True(t, deleted.Completed)

	_, err = f.svc.DeleteTodo(ctx, "alice", created.ID)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestTodoService_RequiresCaller(t *testing.T) {
	f := newTodoFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListTodos(ctx, "")
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))

	_, err = f.svc.CreateTodo(ctx, "", service.CreateTodoRequest{Title: "x"})
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}
