package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

type testData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// backends returns a fresh instance of every store that can run locally.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	stores := map[string]Store{
		"file":     NewFile(t.TempDir()),
		"memory":   NewMemory(),
		"sqlite":   sqlite,
		"fallback": NewFallback(NewMemory(), NewMemory()),
	}
	if addr := os.Getenv("LESSONPIPE_TEST_REDIS_ADDR"); addr != "" {
		rs, err := DialRedis(context.Background(), addr, "lessonpipe-test-"+filepath.Base(t.TempDir()))
		if err != nil {
			t.Fatalf("DialRedis failed: %v", err)
		}
		stores["redis"] = rs
	}
	for _, s := range stores {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return stores
}

func TestStore_PutAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := testData{ID: "123", Name: "test", Value: 42}

			if err := s.Put(ctx, []string{"items", "item1"}, data); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var retrieved testData
			if err := s.Get(ctx, []string{"items", "item1"}, &retrieved); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if retrieved != data {
				t.Errorf("Data mismatch: got %+v, want %+v", retrieved, data)
			}
		})
	}
}

func TestStore_GetNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var data testData
			err := s.Get(context.Background(), []string{"nonexistent", "item"}, &data)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got: %v", err)
			}
		})
	}
}

func TestStore_Overwrite(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := []string{"items", "item1"}

			s.Put(ctx, path, testData{ID: "1", Value: 1})
			if err := s.Put(ctx, path, testData{ID: "1", Value: 2}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			var got testData
			if err := s.Get(ctx, path, &got); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Value != 2 {
				t.Errorf("Expected Value 2, got %d", got.Value)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Put(ctx, []string{"items", "toDelete"}, testData{ID: "123"}); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := s.Delete(ctx, []string{"items", "toDelete"}); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			var retrieved testData
			if err := s.Get(ctx, []string{"items", "toDelete"}, &retrieved); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound after delete, got: %v", err)
			}

			// Deleting a missing key is not an error.
			if err := s.Delete(ctx, []string{"items", "toDelete"}); err != nil {
				t.Errorf("Second Delete failed: %v", err)
			}

			items, err := s.List(ctx, []string{"items"})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(items) != 0 {
				t.Errorf("Expected no items after delete, got %v", items)
			}
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, id := range []string{"c", "a", "b"} {
				if err := s.Put(ctx, []string{"list", id}, testData{ID: id}); err != nil {
					t.Fatalf("Put failed: %v", err)
				}
			}
			s.Put(ctx, []string{"list", "sub", "x"}, testData{ID: "x"})
			s.Put(ctx, []string{"other", "z"}, testData{ID: "z"})

			items, err := s.List(ctx, []string{"list"})
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			want := []string{"a", "b", "c", "sub"}
			if !reflect.DeepEqual(items, want) {
				t.Errorf("List = %v, want %v", items, want)
			}

			empty, err := s.List(ctx, []string{"nothing"})
			if err != nil {
				t.Fatalf("List of missing collection failed: %v", err)
			}
			if len(empty) != 0 {
				t.Errorf("Expected empty list, got %v", empty)
			}
		})
	}
}

func TestStore_ScanOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i, id := range []string{"03", "01", "02"} {
				s.Put(ctx, []string{"scan", id}, testData{ID: id, Value: i})
			}
			// Nested values are not visited.
			s.Put(ctx, []string{"scan", "nested", "04"}, testData{ID: "04"})

			var keys []string
			err := s.Scan(ctx, []string{"scan"}, func(key string, data json.RawMessage) error {
				var d testData
				if err := json.Unmarshal(data, &d); err != nil {
					return err
				}
				if d.ID != key {
					t.Errorf("key %s carried data for %s", key, d.ID)
				}
				keys = append(keys, key)
				return nil
			})
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			want := []string{"01", "02", "03"}
			if !reflect.DeepEqual(keys, want) {
				t.Errorf("Scan keys = %v, want %v", keys, want)
			}
		})
	}
}

func TestStore_ScanStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, []string{"scan", "a"}, testData{ID: "a"})
			s.Put(ctx, []string{"scan", "b"}, testData{ID: "b"})

			calls := 0
			err := s.Scan(ctx, []string{"scan"}, func(string, json.RawMessage) error {
				calls++
				return stop
			})
			if !errors.Is(err, stop) {
				t.Errorf("Expected stop error, got %v", err)
			}
			if calls != 1 {
				t.Errorf("Expected 1 call, got %d", calls)
			}
		})
	}
}

func TestStore_InvalidPath(t *testing.T) {
	bad := [][]string{
		nil,
		{""},
		{"session", ".."},
		{"session", "a/b"},
		{"session", `a\b`},
		{"session", "c:d"},
	}
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, path := range bad {
				if err := s.Put(context.Background(), path, testData{}); err == nil {
					t.Errorf("Put(%q) should fail", path)
				}
			}
		})
	}
}

func TestStore_Concurrent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					if err := s.Put(ctx, []string{"concurrent", "item"}, testData{Value: n}); err != nil {
						t.Errorf("Concurrent Put failed: %v", err)
					}
				}(i)
			}
			wg.Wait()

			var result testData
			if err := s.Get(ctx, []string{"concurrent", "item"}, &result); err != nil {
				t.Fatalf("Get after concurrent writes failed: %v", err)
			}
		})
	}
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	sqlite, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	for name, s := range map[string]Store{"memory": NewMemory(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			s.Close()
			err := s.Put(context.Background(), []string{"a", "b"}, testData{})
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("Expected ErrUnavailable after close, got %v", err)
			}
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	tmpDir := t.TempDir()
	s := NewFile(tmpDir)

	if err := s.Put(context.Background(), []string{"items", "item1"}, testData{ID: "1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	filePath := filepath.Join(tmpDir, "items", "item1.json")
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		t.Fatal("File was not created")
	}
	if _, err := os.Stat(filePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should not remain after Put")
	}
}

func TestFileStore_UnreadableDirIsUnavailable(t *testing.T) {
	tmpDir := t.TempDir()
	// A regular file where the collection directory should be.
	if err := os.WriteFile(filepath.Join(tmpDir, "items"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewFile(tmpDir)

	err := s.Put(context.Background(), []string{"items", "a"}, testData{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestSQLite_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "store.db")
	s, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := s.Put(context.Background(), []string{"session", "abc"}, testData{ID: "abc"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	var got testData
	if err := s.Get(context.Background(), []string{"session", "abc"}, &got); err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.ID != "abc" {
		t.Errorf("Expected abc, got %s", got.ID)
	}
}

func TestFileLock_TryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	lock := NewFileLock(path)

	if err := lock.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if lock.TryLock() {
		t.Error("TryLock should fail while held")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if !lock.TryLock() {
		t.Error("TryLock should succeed after Unlock")
	}
	lock.Unlock()
}

func TestFileStore_HoldAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	a, b := NewFile(dir), NewFile(dir)
	ctx := context.Background()
	path := []string{"session", "s1"}

	release, err := a.Hold(ctx, path)
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	// The holder can still write the document.
	if err := a.Put(ctx, path, testData{ID: "s1"}); err != nil {
		t.Fatalf("Put while held failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := b.Hold(waitCtx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded while held, got %v", err)
	}

	release()

	releaseB, err := b.Hold(ctx, path)
	if err != nil {
		t.Fatalf("Hold after release failed: %v", err)
	}
	releaseB()

	keys, err := a.List(ctx, []string{"session"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"s1"}) {
		t.Errorf("expected only the document to be listed, got %v", keys)
	}
}

func TestFallback_HoldUsesServingStore(t *testing.T) {
	dir := t.TempDir()
	f := NewFallback(NewFile(dir), NewMemory())
	ctx := context.Background()

	release, err := f.Hold(ctx, []string{"session", "s1"})
	if err != nil {
		t.Fatalf("Hold failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := NewFile(dir).Hold(waitCtx, []string{"session", "s1"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the file store to be held, got %v", err)
	}
	release()

	// A memory-only fallback has nothing to hold.
	release, err = NewFallback(NewMemory(), NewMemory()).Hold(ctx, []string{"session", "s1"})
	if err != nil {
		t.Fatalf("Hold on memory failed: %v", err)
	}
	release()
}
