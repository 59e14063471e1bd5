package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/internal/store"
	"github.com/taskboard/apiserver/types"
)

const exportContentType = "application/json"

var exportNamePattern = regexp.MustCompile(`^[0-9]+\.json$`)

// ExportStore is the subset of object storage used for task exports.
type ExportStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
}

// TaskExport is the document written for each export.
type TaskExport struct {
	UserID     int          `json:"user_id"`
	ExportedAt time.Time    `json:"exported_at"`
	Tasks      []types.Task `json:"tasks"`
}

// ExportInfo names a stored export. Name is relative to the caller's prefix.
type ExportInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Export snapshots the caller's tasks into object storage and returns the export name.
func (s *TaskService) Export(ctx context.Context, callerID int) (ExportInfo, error) {
	if s.exports == nil {
		return ExportInfo{}, ErrExportsDisabled
	}

	tasks, err := s.repo.ListByOwner(ctx, callerID)
	if err != nil {
		return ExportInfo{}, err
	}

	now := s.now().UTC()
	payload, err := json.Marshal(TaskExport{UserID: callerID, ExportedAt: now, Tasks: tasks})
	if err != nil {
		return ExportInfo{}, fmt.Errorf("encode export: %w", err)
	}

	name := strconv.FormatInt(now.UnixNano(), 10) + ".json"
	key := exportKey(callerID, name)
	if err := s.exports.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), exportContentType); err != nil {
		return ExportInfo{}, fmt.Errorf("store export %s: %w", key, err)
	}
	return ExportInfo{Name: name, Size: int64(len(payload)), CreatedAt: now}, nil
}

// ListExports returns the caller's exports, newest first.
func (s *TaskService) ListExports(ctx context.Context, callerID int) ([]ExportInfo, error) {
	if s.exports == nil {
		return nil, ErrExportsDisabled
	}

	objects, err := s.exports.List(ctx, exportPrefix(callerID))
	if err != nil {
		return nil, err
	}

	exports := make([]ExportInfo, 0, len(objects))
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !exportNamePattern.MatchString(name) {
			continue
		}
		exports = append(exports, ExportInfo{Name: name, Size: obj.Size, CreatedAt: obj.LastModified})
	}
	sort.Slice(exports, func(i, j int) bool {
		return exports[i].Name > exports[j].Name
	})
	return exports, nil
}

// OpenExport streams one of the caller's exports. The key is always built
// from callerID, so names belonging to other users resolve to store.ErrNotFound.
func (s *TaskService) OpenExport(ctx context.Context, callerID int, name string) (io.ReadCloser, error) {
	if s.exports == nil {
		return nil, ErrExportsDisabled
	}
	if !exportNamePattern.MatchString(name) {
		return nil, store.ErrNotFound
	}

	r, err := s.exports.Get(ctx, exportKey(callerID, name))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func exportPrefix(userID int) string {
	return "exports/" + strconv.Itoa(userID) + "/"
}

func exportKey(userID int, name string) string {
	return exportPrefix(userID) + name
}
