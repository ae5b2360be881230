package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dalemusser/waffle/pantry/storage"
)

// MemStorageBaseURL prefixes every URL MemStorage returns.
const MemStorageBaseURL = "https://files.test/"

// MemStorage is an in-memory object store for upload tests. It wraps
// waffle's storage.Memory, adds presigned URLs and records deletes.
type MemStorage struct {
	*storage.Memory

	mu      sync.Mutex
	deleted []string

	// FailDelete makes Delete return an error, for cleanup paths.
	FailDelete bool
}

var _ storage.Store = (*MemStorage)(nil)

// NewMemStorage returns an empty store.
func NewMemStorage() *MemStorage {
	return &MemStorage{Memory: storage.NewMemory(storage.MemoryConfig{})}
}

// Backend identifies the store in logs.
func (m *MemStorage) Backend() string { return "testmem" }

// Delete removes path. A missing object is not an error, matching S3.
func (m *MemStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return errors.New("delete failed")
	}
	if err := m.Memory.Delete(ctx, path); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	m.deleted = append(m.deleted, path)
	return nil
}

func (m *MemStorage) URL(path string) string {
	return MemStorageBaseURL + path
}

func (m *MemStorage) PresignedURL(_ context.Context, path string, _ *storage.PresignOptions) (string, error) {
	return MemStorageBaseURL + path + "?signed=1", nil
}

// Has reports whether path is stored.
func (m *MemStorage) Has(path string) bool {
	ok, err := m.Exists(context.Background(), path)
	return err == nil && ok
}

// ContentType returns the type recorded for path.
func (m *MemStorage) ContentType(path string) string {
	info, err := m.Head(context.Background(), path)
	if err != nil {
		return ""
	}
	return info.ContentType
}

// Paths lists stored paths, sorted.
func (m *MemStorage) Paths() []string {
	res, err := m.List(context.Background(), "", nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		out = append(out, o.Path)
	}
	sort.Strings(out)
	return out
}

// Deleted lists paths passed to a successful Delete, in order.
func (m *MemStorage) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
