package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisStore keeps each document as a string value. Every collection has a
// companion set "<prefix>:idx:<dir>" naming its children so List and Scan
// never need KEYS.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
}

// DialRedis connects to addr and verifies the server answers PING.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = "lessonpipe"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("redis ping", err)
	}

	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) valueKey(path []string) string {
	return s.prefix + ":" + joinPath(path)
}

func (s *RedisStore) indexKey(dir []string) string {
	return s.prefix + ":idx:" + joinPath(dir)
}

func (s *RedisStore) Get(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	data, err := s.rdb.Get(ctx, s.valueKey(path)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return s.wrap("get", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", joinPath(path), err)
	}
	return nil
}

func (s *RedisStore) Put(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", joinPath(path), err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.valueKey(path), data, 0)
		for i := len(path) - 1; i >= 0; i-- {
			pipe.SAdd(ctx, s.indexKey(path[:i]), path[i])
		}
		return nil
	})
	if err != nil {
		return s.wrap("put", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path []string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	last := len(path) - 1
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.valueKey(path))
		pipe.SRem(ctx, s.indexKey(path[:last]), path[last])
		return nil
	})
	if err != nil {
		return s.wrap("delete", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, path []string) ([]string, error) {
	items, err := s.rdb.SMembers(ctx, s.indexKey(path)).Result()
	if err != nil {
		return nil, s.wrap("list", err)
	}
	sort.Strings(items)
	return items, nil
}

func (s *RedisStore) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	names, err := s.List(ctx, path)
	if err != nil || len(names) == 0 {
		return err
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = s.valueKey(append(append([]string{}, path...), name))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return s.wrap("scan", err)
	}

	for i, raw := range values {
		// Sub-collections have no value of their own.
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if err := fn(names[i], json.RawMessage(str)); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return unavailable(op, err)
}
