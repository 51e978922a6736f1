// Package searchstats keeps per-collection search counters in Redis.
package searchstats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/earthdata/granule-bridge/internal/granules"
)

const maxKeyPart = 64

type Option func(*Store, *redis.Options)

func WithPrefix(prefix string) Option {
	return func(s *Store, _ *redis.Options) { s.prefix = strings.Trim(prefix, ":") }
}

// WithTTL bounds minute buckets and per-collection hashes; totals never expire.
func WithTTL(d time.Duration) Option {
	return func(s *Store, _ *redis.Options) { s.ttl = d }
}

// WithPoolSize overrides the connection pool size; n <= 0 keeps the default.
func WithPoolSize(n int) Option {
	return func(_ *Store, o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(_ *Store, o *redis.Options) {
		if d > 0 {
			o.DialTimeout = d
		}
	}
}

type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type CollectionCount struct {
	CollectionID string `json:"collectionId"`
	Searches     int64  `json:"searches"`
}

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	s := &Store{prefix: "granule-bridge", ttl: 24 * time.Hour}
	for _, f := range opts {
		f(s, ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	s.rdb = rdb
	return s, nil
}

func (s *Store) totalKey() string { return s.prefix + ":total" }

func (s *Store) rankKey() string { return s.prefix + ":collections" }

func (s *Store) minuteKey(at time.Time) string {
	return s.prefix + ":minute:" + at.UTC().Format("200601021504")
}

func (s *Store) collectionKey(id string) string {
	return s.prefix + ":collection:" + CollectionKeyPart(id)
}

// CollectionKeyPart makes a readable, collision-safe key segment from an arbitrary id.
func CollectionKeyPart(id string) string {
	var b strings.Builder
	for _, r := range id {
		if b.Len() >= maxKeyPart {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ":" + strconv.FormatUint(xxhash.Sum64String(id), 16)
}

// RecordSearch bumps outcome counters for the search in one round trip.
func (s *Store) RecordSearch(ctx context.Context, rec granules.SearchRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := rec.Outcome
	if outcome == "" {
		outcome = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.totalKey(), outcome, 1)

	mk := s.minuteKey(at)
	pipe.HIncrBy(ctx, mk, outcome, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, mk, s.ttl)
	}

	if id := rec.Params.EchoCollectionID; id != "" {
		ck := s.collectionKey(id)
		pipe.HIncrBy(ctx, ck, outcome, 1)
		pipe.HIncrBy(ctx, ck, "elapsed_ms", rec.Elapsed.Milliseconds())
		if s.ttl > 0 {
			pipe.Expire(ctx, ck, s.ttl)
		}
		pipe.ZIncrBy(ctx, s.rankKey(), 1, id)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("searchstats: record: %w", err)
	}
	return nil
}

// Counts returns outcome counters for one collection. Unknown collections yield an empty map.
func (s *Store) Counts(ctx context.Context, collectionID string) (map[string]int64, error) {
	return s.hgetInts(ctx, s.collectionKey(collectionID))
}

func (s *Store) Totals(ctx context.Context) (map[string]int64, error) {
	return s.hgetInts(ctx, s.totalKey())
}

// Top lists the n most searched collections.
func (s *Store) Top(ctx context.Context, n int) ([]CollectionCount, error) {
	if n <= 0 {
		n = 10
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.rankKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("searchstats: top: %w", err)
	}
	out := make([]CollectionCount, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		out = append(out, CollectionCount{CollectionID: id, Searches: int64(z.Score)})
	}
	return out, nil
}

func (s *Store) hgetInts(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("searchstats: hgetall %s: %w", key, err)
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
