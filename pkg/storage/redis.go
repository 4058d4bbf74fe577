package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/renacsync/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
)

// RedisProvider implements the Database interface on Redis. Every object is a
// hash with "meta" and "state" fields, and a sorted set of IDs allows prefix
// listing.
type RedisProvider struct {
	client    *redis.Client
	addr      string
	password  string
	keyPrefix string
}

func configuredRedis() *RedisProvider {
	addr := lflag.String("redis-addr", "127.0.0.1:6379", "Redis address")
	password := lflag.String("redis-password", "", "Redis password")
	keyPrefix := lflag.String("redis-key-prefix", "renacsync", "Prefix for every Redis key")

	r := &RedisProvider{}

	lflag.Do(func() {
		r.addr = strings.TrimSpace(*addr)
		r.password = *password
		r.keyPrefix = *keyPrefix
	})

	return r
}

// NewRedisProvider wraps an existing client.
func NewRedisProvider(client *redis.Client, keyPrefix string) *RedisProvider {
	return &RedisProvider{client: client, keyPrefix: keyPrefix}
}

// Validate checks if the provider is properly configured.
func (r *RedisProvider) Validate() error {
	if r.addr == "" {
		return errors.New("redis: addr is empty")
	}
	return nil
}

// Init connects and validates the connection with PING.
func (r *RedisProvider) Init(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         r.addr,
		Password:     r.password,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis at %s: %w", r.addr, err)
	}
	r.client = client
	return nil
}

// Close closes the client.
func (r *RedisProvider) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisProvider) pointKey(id string) string {
	return fmt.Sprintf("%s:point:%s", r.keyPrefix, id)
}

func (r *RedisProvider) indexKey() string {
	return r.keyPrefix + ":points"
}

func (r *RedisProvider) settingsKey() string {
	return r.keyPrefix + ":settings"
}

// GetSettings reads the settings hash.
func (r *RedisProvider) GetSettings(ctx context.Context) (types.Settings, int, error) {
	vals, err := r.client.HMGet(ctx, r.settingsKey(), "json", "version").Result()
	if err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}
	jsonStr, ok := vals[0].(string)
	if !ok {
		return types.Settings{}, 0, nil
	}
	var version int
	if v, ok := vals[1].(string); ok {
		if version, err = strconv.Atoi(v); err != nil {
			return types.Settings{}, 0, fmt.Errorf("invalid settings version %q: %w", v, err)
		}
	}

	var s types.Settings
	if err := json.Unmarshal([]byte(jsonStr), &s); err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, version, nil
}

// SetSettings replaces the settings hash.
func (r *RedisProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	jsonBytes, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := r.client.HSet(ctx, r.settingsKey(), "json", string(jsonBytes), "version", version).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// ObjectExists reports whether the point hash exists.
func (r *RedisProvider) ObjectExists(ctx context.Context, id string) (bool, error) {
	if err := validID(id); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, r.pointKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	return n > 0, nil
}

// CreateObjectIfAbsent sets the meta field only when it is not already set and
// indexes the ID.
func (r *RedisProvider) CreateObjectIfAbsent(ctx context.Context, id string, meta types.PointMeta) error {
	if err := validID(id); err != nil {
		return err
	}
	metaStr, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, r.pointKey(id), "meta", metaStr)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", id, err)
	}
	return nil
}

// ReadState returns the state field of the point hash.
func (r *RedisProvider) ReadState(ctx context.Context, id string) (*types.PointState, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	state, err := r.client.HGet(ctx, r.pointKey(id), "state").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	}
	return decodeState(id, state)
}

// WriteState sets the state field of an existing point hash.
func (r *RedisProvider) WriteState(ctx context.Context, id string, state types.PointState) error {
	if err := validID(id); err != nil {
		return err
	}
	ok, err := r.ObjectExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to write state %s: object does not exist", id)
	}
	stateStr, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.pointKey(id), "state", stateStr).Err(); err != nil {
		return fmt.Errorf("failed to write state %s: %w", id, err)
	}
	return nil
}

// DeleteObject removes the point hash and its index entry.
func (r *RedisProvider) DeleteObject(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.pointKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}
	return nil
}

// ListPoints walks the lexicographic ID index. All members share score 0.
func (r *RedisProvider) ListPoints(ctx context.Context, prefix string) ([]types.Point, error) {
	min, max := "-", "+"
	if prefix != "" {
		min = "[" + prefix
		if end := prefixEnd(prefix); end != "" {
			max = "(" + end
		}
	}
	ids, err := r.client.ZRangeByLex(ctx, r.indexKey(), &redis.ZRangeBy{Min: min, Max: max}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}

	points := make([]types.Point, 0, len(ids))
	for _, id := range ids {
		vals, err := r.client.HMGet(ctx, r.pointKey(id), "meta", "state").Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get object %s: %w", id, err)
		}
		meta, ok := vals[0].(string)
		if !ok {
			// removed between the index read and now
			continue
		}
		state, _ := vals[1].(string)
		p, err := decodePoint(id, meta, state)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}
