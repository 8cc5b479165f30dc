package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one JSON document per key under a base directory.
type FileStore struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// NewFile creates a file-backed store rooted at basePath.
func NewFile(basePath string) *FileStore {
	return &FileStore{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *FileStore) pathToFile(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *FileStore) pathToDir(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get reads and decodes the document at path.
func (s *FileStore) Get(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	data, err := os.ReadFile(s.pathToFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return unavailable("read file", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", joinPath(path), err)
	}
	return nil
}

// Put writes v at path. The write goes to a temp file that is renamed into
// place while holding the key's lock, so readers never see partial data.
func (s *FileStore) Put(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", joinPath(path), err)
	}

	filePath := s.pathToFile(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return unavailable("create directory", err)
	}

	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return unavailable("acquire lock", err)
	}
	defer lock.Unlock()

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return unavailable("write temp file", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return unavailable("rename file", err)
	}
	return nil
}

// Delete removes the document at path. Missing documents are not an error.
func (s *FileStore) Delete(ctx context.Context, path []string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	filePath := s.pathToFile(path)
	lock := s.getLock(filePath)
	if err := lock.Lock(); err != nil {
		return unavailable("acquire lock", err)
	}
	defer lock.Unlock()

	// Empty collection directories are left in place; removing them would
	// race with a concurrent Put into the same collection.
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return unavailable("delete file", err)
	}
	return nil
}

// List returns the names of documents and sub-collections under path.
func (s *FileStore) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.pathToDir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, unavailable("read directory", err)
	}

	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			items = append(items, name)
		} else if strings.HasSuffix(name, ".json") {
			items = append(items, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(items)
	return items, nil
}

// Scan calls fn for each document directly under path.
func (s *FileStore) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.pathToDir(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return unavailable("read directory", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			// Deleted between ReadDir and ReadFile.
			continue
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}
	return nil
}

// holdPoll is how often Hold retries a document held by another process.
const holdPoll = 10 * time.Millisecond

// Hold takes an exclusive flock on a ".hold" sidecar of the document. It
// is separate from the lock Put takes, so the holder can still write.
func (s *FileStore) Hold(ctx context.Context, path []string) (func(), error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	filePath := s.pathToFile(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, unavailable("create directory", err)
	}

	lock := NewFileLock(filePath + ".hold")
	if err := lock.LockContext(ctx, holdPoll); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, unavailable("hold", err)
	}
	return func() { lock.Unlock() }, nil
}

// Close releases nothing; file handles are scoped to each call.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) getLock(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
