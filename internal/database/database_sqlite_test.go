package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tomlord1122/todo-app/internal/database/dbtest"
	"github.com/Tomlord1122/todo-app/internal/domain"
)

func TestOpen_SQLiteMigratesAllModels(t *testing.T) {
	srv := dbtest.Open(t)

	for _, model := range domain.Models() {
		assert.True(t, srv.GetDB().Migrator().HasTable(model), "missing table for %T", model)
	}
	assert.Equal(t, "up", srv.Health()["status"])
}
