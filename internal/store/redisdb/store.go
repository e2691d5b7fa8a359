// Package redisdb implements the document store on Redis so several server
// instances can share one tree.
//
// Every written path is a string key holding its JSON document. A sorted set
// indexes the paths lexically so subtrees can be read and removed by range, and
// each write is published on a channel that every instance relays to its
// local subscriptions.
package redisdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/darkscore/darkscore-server/internal/store"
)

const maxTxRetries = 10

// Options configures the connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key and the change channel.
	Prefix string
}

// Store is a Redis-backed store.Store.
type Store struct {
	client *redis.Client
	pubsub *redis.PubSub
	prefix string
	logger *slog.Logger
	broker *store.Broker

	wg sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// Open connects to Redis and starts relaying change notifications.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = "darkscore"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	s := &Store{client: client, prefix: opts.Prefix, logger: logger}
	s.broker = store.NewBroker(s.Get, logger)

	s.pubsub = client.Subscribe(ctx, s.channel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		s.pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.channel(), err)
	}

	s.wg.Add(1)
	go s.relay()

	logger.Info("Redis store connected", "addr", opts.Addr, "db", opts.DB, "prefix", opts.Prefix)
	return s, nil
}

// Close stops subscriptions and closes the connection.
func (s *Store) Close() error {
	err := s.pubsub.Close()
	s.wg.Wait()
	s.broker.Close()
	return errors.Join(err, s.client.Close())
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	path, err := store.Clean(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Resolve(ctx, s, path)
}

// Lookup implements store.FlatReader.
func (s *Store) Lookup(ctx context.Context, path string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.docKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", path, err)
	}
	return value, true, nil
}

// Scan implements store.FlatReader.
func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	paths, err := s.beneath(ctx, s.client, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	docs := make(map[string][]byte, len(paths))
	if len(paths) == 0 {
		return docs, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = s.docKey(p)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", prefix, err)
	}
	for i, v := range values {
		// A path removed between the index read and MGET comes back nil.
		if str, ok := v.(string); ok {
			docs[paths[i]] = []byte(str)
		}
	}
	return docs, nil
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}
	data, err := store.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = s.update(ctx, func(tx *redis.Tx) error {
		stale, err := s.beneath(ctx, tx, path)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.remove(ctx, pipe, stale)
			pipe.Set(ctx, s.docKey(path), data, 0)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Member: path})
			return nil
		})
		return err
	}, s.indexKey())
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	s.changed(ctx, path)
	return nil
}

// Merge implements store.Store.
func (s *Store) Merge(ctx context.Context, path string, fields map[string]any) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	key := s.docKey(path)
	err = s.update(ctx, func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		merged, err := store.ShallowMerge(existing, fields)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Member: path})
			return nil
		})
		return err
	}, key, s.indexKey())
	if err != nil {
		return fmt.Errorf("merge %s: %w", path, err)
	}

	s.changed(ctx, path)
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, path string) error {
	path, err := store.Clean(path)
	if err != nil {
		return err
	}

	err = s.update(ctx, func(tx *redis.Tx) error {
		stale, err := s.beneath(ctx, tx, path)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.remove(ctx, pipe, append(stale, path))
			return nil
		})
		return err
	}, s.indexKey())
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	s.changed(ctx, path)
	return nil
}

// Subscribe implements store.Store.
func (s *Store) Subscribe(ctx context.Context, path string, fn store.Listener) (store.Unsubscribe, error) {
	return s.broker.Subscribe(ctx, path, fn)
}

// update runs fn under WATCH on keys, retrying when another client wins the race.
func (s *Store) update(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", redis.TxFailedErr)
}

// beneath lists indexed paths strictly under path.
func (s *Store) beneath(ctx context.Context, c redis.Cmdable, path string) ([]string, error) {
	return c.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "(" + path + "/",
		Max: "(" + path + "0",
	}).Result()
}

func (s *Store) remove(ctx context.Context, pipe redis.Pipeliner, paths []string) {
	if len(paths) == 0 {
		return
	}
	keys := make([]string, len(paths))
	members := make([]any, len(paths))
	for i, p := range paths {
		keys[i] = s.docKey(p)
		members[i] = p
	}
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
}

// changed wakes local subscriptions and tells the other instances.
func (s *Store) changed(ctx context.Context, path string) {
	s.broker.Notify(path)
	if err := s.client.Publish(ctx, s.channel(), path).Err(); err != nil {
		s.logger.Warn("failed to publish change", "path", path, "error", err)
	}
}

func (s *Store) relay() {
	defer s.wg.Done()
	for msg := range s.pubsub.Channel() {
		s.broker.Notify(msg.Payload)
	}
}

func (s *Store) docKey(path string) string {
	return s.prefix + ":doc:" + path
}

func (s *Store) indexKey() string {
	return s.prefix + ":paths"
}

func (s *Store) channel() string {
	return s.prefix + ":changes"
}
