package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/degentalk/progression/internal/models"
)

// setupTestDB creates an in-memory SQLite database with every table migrated.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// createTestUser creates a user and its progression row.
func createTestUser(t *testing.T, db *DB, id string) *models.User {
	t.Helper()

	user := &models.User{ID: id, Username: "user-" + id}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}
