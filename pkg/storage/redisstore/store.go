// Package redisstore implements storage.Storage on Redis.
//
// Layout, for prefix "offline-cache":
//
//	offline-cache:stores          SET of store names
//	offline-cache:store:<name>    HASH of key -> value
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/offline-cache/pkg/storage"
)

// DefaultPrefix namespaces every key written by this backend.
const DefaultPrefix = "offline-cache"

// putScript writes the field only while the store is still registered, so a
// late write through a stale handle cannot resurrect a deleted store.
var putScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 0 then
	return -1
end
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// Storage is a Redis-backed named-store container.
type Storage struct {
	client *redis.Client
	prefix string
}

// New wraps an existing Redis client.
func New(client *redis.Client, prefix string) *Storage {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Storage{client: client, prefix: prefix}
}

// Dial parses a redis:// URL, connects and pings the server.
func Dial(rawURL, prefix string) (*Storage, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(client, prefix), nil
}

// Client returns the underlying redis client.
func (s *Storage) Client() *redis.Client {
	return s.client
}

func (s *Storage) registryKey() string {
	return s.prefix + ":stores"
}

func (s *Storage) storeKey(name string) string {
	return s.prefix + ":store:" + name
}

// Open registers the store name and returns a handle to it.
func (s *Storage) Open(ctx context.Context, name string) (storage.Store, error) {
	if err := storage.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, s.registryKey(), name).Err(); err != nil {
		return nil, &storage.Error{Op: "open", Store: name, Err: err}
	}
	return &store{parent: s, name: name}, nil
}

// Names lists registered stores, sorted.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, &storage.Error{Op: "names", Err: err}
	}
	sort.Strings(names)
	return names, nil
}

// Delete unregisters the store and drops its hash in one transaction.
func (s *Storage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.registryKey(), name)
		pipe.Del(ctx, s.storeKey(name))
		return nil
	})
	if err != nil {
		return false, &storage.Error{Op: "delete", Store: name, Err: err}
	}
	return removed.Val() > 0, nil
}

// Ping checks the Redis connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close terminates the underlying Redis client connections.
func (s *Storage) Close() error {
	return s.client.Close()
}

type store struct {
	parent *Storage
	name   string
}

func (st *store) Name() string {
	return st.name
}

func (st *store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := st.parent.client.HGet(ctx, st.parent.storeKey(st.name), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, &storage.Error{Op: "get", Store: st.name, Err: err}
	}
	return data, nil
}

func (st *store) Put(ctx context.Context, key string, value []byte) error {
	keys := []string{st.parent.registryKey(), st.parent.storeKey(st.name)}
	res, err := putScript.Run(ctx, st.parent.client, keys, st.name, key, value).Int()
	if err != nil {
		return &storage.Error{Op: "put", Store: st.name, Err: err}
	}
	if res < 0 {
		return &storage.Error{Op: "put", Store: st.name, Err: storage.ErrStoreDeleted}
	}
	return nil
}
