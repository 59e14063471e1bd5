package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/db"
	"github.com/taskboard/apiserver/types"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.Config{Database: config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "store.db"),
	}}
	require.NoError(t, db.Migrate(cfg, db.Up))

	conn, err := db.Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func createUser(t *testing.T, repo *UserRepository, username string) types.User {
	t.Helper()
	user, err := repo.Create(context.Background(), types.User{
		Username:     username,
		Role:         types.DefaultRole,
		PasswordHash: "hash-" + username,
	})
	require.NoError(t, err)
	return user
}

func TestUserRepository(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)
	ctx := context.Background()

	alice := createUser(t, repo, "alice")
	assert.Greater(t, alice.ID, 0)

	exists, err := repo.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.False(t, exists, "usernames are case-sensitive")

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)
	assert.Equal(t, "hash-alice", byName.PasswordHash)
	assert.Equal(t, types.DefaultRole, byName.Role)

	byID, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateUsernameConflicts(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)

	createUser(t, repo, "bob")

	_, err := repo.Create(context.Background(), types.User{Username: "bob", Role: types.DefaultRole, PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserRepository_ConcurrentCreateKeepsOneRow(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewUserRepository(conn)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(context.Background(), types.User{Username: "racer", Role: types.DefaultRole, PasswordHash: "x"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, attempts-1, conflicts)

	var rows int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(1) FROM users WHERE username = $1`, "racer").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestTaskRepository_Lifecycle(t *testing.T) {
	conn := setupTestDB(t)
	users := NewUserRepository(conn)
	repo := NewTaskRepository(conn)
	ctx := context.Background()

	owner := createUser(t, users, "owner")

	empty, err := repo.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	created, err := repo.Create(ctx, types.Task{UserID: owner.ID, Title: "write docs"})
	require.NoError(t, err)
	assert.Greater(t, created.ID, 0)
	assert.False(t, created.IsCompleted)

	fetched, err := repo.GetByIDAndOwner(ctx, created.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "write docs", fetched.Title)
	assert.Equal(t, owner.ID, fetched.UserID)

	updated, err := repo.Update(ctx, types.Task{ID: created.ID, UserID: owner.ID, Title: "write docs", Description: "api", IsCompleted: true})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, "api", updated.Description)
	assert.Equal(t, owner.ID, updated.UserID)

	list, err := repo.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsCompleted)

	require.NoError(t, repo.Delete(ctx, created.ID, owner.ID))
	assert.ErrorIs(t, repo.Delete(ctx, created.ID, owner.ID), ErrNotFound)

	list, err = repo.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskRepository_ScopesByOwner(t *testing.T) {
	conn := setupTestDB(t)
	users := NewUserRepository(conn)
	repo := NewTaskRepository(conn)
	ctx := context.Background()

	alice := createUser(t, users, "alice")
	mallory := createUser(t, users, "mallory")

	task, err := repo.Create(ctx, types.Task{UserID: alice.ID, Title: "private"})
	require.NoError(t, err)

	_, err = repo.GetByIDAndOwner(ctx, task.ID, mallory.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(ctx, types.Task{ID: task.ID, UserID: mallory.ID, Title: "pwned"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, task.ID, mallory.ID), ErrNotFound)

	list, err := repo.ListByOwner(ctx, mallory.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	still, err := repo.GetByIDAndOwner(ctx, task.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "private", still.Title)
}
