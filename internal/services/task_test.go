package services

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

func TestTaskService_OwnerLifecycle(t *testing.T) {
	events := &recordingEvents{}
	svc := NewTaskService(newMemTasks(), WithEvents(events))
	ctx := context.Background()
	const alice, bob = 1, 2

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)

	task, err := svc.Create(ctx, alice, types.TaskInput{Title: "T"})
	require.NoError(t, err)
	assert.Equal(t, alice, task.UserID)
	assert.False(t, task.IsCompleted)

	list, err = svc.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, task.ID, list[0].ID)

	// Another user sees nothing and cannot touch the task.
	list, err = svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, bob, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Update(ctx, bob, task.ID, types.TaskInput{Title: "X"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, bob, task.ID), store.ErrNotFound)

	updated, err := svc.Update(ctx, alice, task.ID, types.TaskInput{Title: "T", IsCompleted: true})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted)

	got, err := svc.Get(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.True(t, got.IsCompleted)

	require.NoError(t, svc.Delete(ctx, alice, task.ID))
	assert.ErrorIs(t, svc.Delete(ctx, alice, task.ID), store.ErrNotFound)

	list, err = svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []types.EventType{
		types.EventTaskCreated,
		types.EventTaskUpdated,
		types.EventTaskDeleted,
	}, events.kinds())
}

func TestTaskService_Validation(t *testing.T) {
	repo := newMemTasks()
	svc := NewTaskService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, types.TaskInput{Title: strings.Repeat("t", maxTitleLength+1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, 1, types.TaskInput{Description: strings.Repeat("d", maxDescriptionLength+1)})
	assert.ErrorIs(t, err, ErrValidation)

	// Multi-byte titles are measured in characters.
	_, err = svc.Create(ctx, 1, types.TaskInput{Title: strings.Repeat("é", maxTitleLength)})
	assert.NoError(t, err)

	created, err := svc.Create(ctx, 1, types.TaskInput{})
	require.NoError(t, err)
	_, err = svc.Update(ctx, 1, created.ID, types.TaskInput{Title: strings.Repeat("t", maxTitleLength+1)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskService_ExportDisabled(t *testing.T) {
	svc := NewTaskService(newMemTasks())
	ctx := context.Background()

	_, err := svc.Export(ctx, 1)
	assert.ErrorIs(t, err, ErrExportsDisabled)
	_, err = svc.ListExports(ctx, 1)
	assert.ErrorIs(t, err, ErrExportsDisabled)
	_, err = svc.OpenExport(ctx, 1, "1.json")
	assert.ErrorIs(t, err, ErrExportsDisabled)
}

func TestTaskService_Export(t *testing.T) {
	objects := newMemObjects()
	svc := NewTaskService(newMemTasks(), WithExports(objects))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()
	const alice, bob = 7, 8

	_, err := svc.Create(ctx, alice, types.TaskInput{Title: "ship", IsCompleted: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, bob, types.TaskInput{Title: "not alice's"})
	require.NoError(t, err)

	info, err := svc.Export(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "1772366400000000000.json", info.Name)
	assert.Contains(t, objects.objects, "exports/7/"+info.Name)

	r, err := svc.OpenExport(ctx, alice, info.Name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)

	var doc TaskExport
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, alice, doc.UserID)
	assert.True(t, doc.ExportedAt.Equal(fixed))
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "ship", doc.Tasks[0].Title)

	exports, err := svc.ListExports(ctx, alice)
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, info.Name, exports[0].Name)
	assert.Equal(t, info.Size, exports[0].Size)

	// Names are resolved under the caller's own prefix only.
	_, err = svc.OpenExport(ctx, bob, info.Name)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.OpenExport(ctx, bob, "../7/"+info.Name)
	assert.ErrorIs(t, err, store.ErrNotFound)

	exports, err = svc.ListExports(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, exports)
}
