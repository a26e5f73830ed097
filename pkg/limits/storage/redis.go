package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mercator-hq/spendcap/pkg/limits/window"
)

// Compile-time interface checks.
var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*SQLiteBackend)(nil)
	_ Backend = (*PostgresBackend)(nil)
	_ Backend = (*RedisBackend)(nil)
)

// RedisBackend is a Backend backed by Redis.
//
// Each cap row is a hash at "<prefix>:cap:<resource>" holding the set window
// fields plus created_at and updated_at. Each ledger is a sorted set at
// "<prefix>:ledger:<resource>" scored by commit time in Unix microseconds;
// members encode "<amount>:<entry id>:<external ref>". Entry IDs must not
// contain ':'.
//
// Timestamps have microsecond resolution in this backend.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisBackendConfig configures the Redis backend.
type RedisBackendConfig struct {
	// KeyPrefix namespaces every key written by the backend.
	// Default: "spendcap"
	KeyPrefix string

	// Clock stamps rows that arrive without a timestamp.
	// Default: time.Now
	Clock func() time.Time
}

// NewRedisBackend creates a Redis-backed store around an existing client.
// The backend owns the client and closes it on Close.
func NewRedisBackend(client redis.UniversalClient, cfg RedisBackendConfig) *RedisBackend {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "spendcap"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &RedisBackend{client: client, prefix: cfg.KeyPrefix, now: cfg.Clock}
}

func (r *RedisBackend) capKey(resourceID string) string {
	return r.prefix + ":cap:" + resourceID
}

func (r *RedisBackend) ledgerKey(resourceID string) string {
	return r.prefix + ":ledger:" + resourceID
}

func (r *RedisBackend) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewStorageError("redis", op, err)
}

// GetCap reads the cap hash for a resource.
func (r *RedisBackend) GetCap(ctx context.Context, resourceID string) (*SpendCap, error) {
	vals, err := r.client.HGetAll(ctx, r.capKey(resourceID)).Result()
	if err != nil {
		return nil, r.wrap("get_cap", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}

	c := &SpendCap{ResourceID: resourceID}
	for _, w := range window.All() {
		raw, ok := vals[w.String()]
		if !ok {
			continue
		}
		sats, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, r.wrap("get_cap", fmt.Errorf("parse %s cap: %w", w, err))
		}
		c.Set(w, LimitOf(sats))
	}
	if c.IsEmpty() {
		return nil, nil
	}
	c.CreatedAt = parseNanos(vals["created_at"])
	c.UpdatedAt = parseNanos(vals["updated_at"])
	return c, nil
}

// SetCapField writes one window field and the row timestamps in a MULTI block.
func (r *RedisBackend) SetCapField(ctx context.Context, resourceID string, w window.Window, sats int64) error {
	if !w.Valid() {
		return r.wrap("set_cap", window.ErrUnknown)
	}

	key := r.capKey(resourceID)
	now := strconv.FormatInt(r.now().UnixNano(), 10)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key, w.String(), sats, "updated_at", now)
		return nil
	})
	return r.wrap("set_cap", err)
}

// clearFieldScript removes one window field and deletes the hash when no
// window field remains.
//
// KEYS[1] = cap key
// ARGV[1] = window field
// ARGV[2] = updated_at
var clearFieldScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
    return 0
end

redis.call("HDEL", key, ARGV[1])
redis.call("HSET", key, "updated_at", ARGV[2])

local fields = {"daily", "weekly", "monthly", "annual"}
for _, f in ipairs(fields) do
    if redis.call("HEXISTS", key, f) == 1 then
        return 1
    end
end

redis.call("DEL", key)
return 2
`)

// ClearCapField unsets one window field, dropping the hash if it becomes empty.
func (r *RedisBackend) ClearCapField(ctx context.Context, resourceID string, w window.Window) error {
	if !w.Valid() {
		return r.wrap("clear_cap", window.ErrUnknown)
	}

	now := strconv.FormatInt(r.now().UnixNano(), 10)
	err := clearFieldScript.Run(ctx, r.client, []string{r.capKey(resourceID)}, w.String(), now).Err()
	return r.wrap("clear_cap", err)
}

// DeleteCap removes the cap hash.
func (r *RedisBackend) DeleteCap(ctx context.Context, resourceID string) error {
	return r.wrap("delete_cap", r.client.Del(ctx, r.capKey(resourceID)).Err())
}

func (r *RedisBackend) stamp(entry *LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
}

func encodeMember(entry *LedgerEntry) string {
	return strconv.FormatInt(entry.AmountSats, 10) + ":" + entry.ID + ":" + entry.ExternalRef
}

func decodeMemberAmount(member string) (int64, error) {
	amount, _, ok := strings.Cut(member, ":")
	if !ok {
		return 0, fmt.Errorf("malformed ledger member %q", member)
	}
	return strconv.ParseInt(amount, 10, 64)
}

// InsertEntry adds the entry to the resource's ledger set.
func (r *RedisBackend) InsertEntry(ctx context.Context, entry *LedgerEntry) error {
	if entry == nil {
		return r.wrap("insert_entry", ErrNilEntry)
	}
	r.stamp(entry)

	err := r.client.ZAdd(ctx, r.ledgerKey(entry.ResourceID), redis.Z{
		Score:  float64(entry.CreatedAt.UnixMicro()),
		Member: encodeMember(entry),
	}).Err()
	return r.wrap("insert_entry", err)
}

// fencedInsertScript sums the ledger over each window and adds the member
// only if every cap leaves room for the amount. Lua numbers are doubles, so
// the running sum is clamped at the int64 maximum like Aggregate.
//
// KEYS[1] = ledger key
// ARGV[1] = member
// ARGV[2] = score (Unix microseconds)
// ARGV[3] = amount
// ARGV[4..] = pairs of (since in Unix microseconds, cap)
var fencedInsertScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[3])
local max = 9223372036854775807

for i = 4, #ARGV, 2 do
    local since = ARGV[i]
    local cap = tonumber(ARGV[i + 1])
    local spent = 0
    for _, m in ipairs(redis.call("ZRANGEBYSCORE", key, since, "+inf")) do
        spent = spent + tonumber(string.match(m, "^(%-?%d+):"))
        if spent > max then
            spent = max
        end
    end
    if cap - spent < amount then
        return 0
    end
end

redis.call("ZADD", key, ARGV[2], ARGV[1])
return 1
`)

// InsertEntryIfWithin runs the cap check and insert atomically in a Lua script.
func (r *RedisBackend) InsertEntryIfWithin(ctx context.Context, entry *LedgerEntry, caps []WindowCap) (bool, error) {
	if entry == nil {
		return false, r.wrap("insert_entry_fenced", ErrNilEntry)
	}
	r.stamp(entry)

	args := []any{
		encodeMember(entry),
		strconv.FormatInt(entry.CreatedAt.UnixMicro(), 10),
		entry.AmountSats,
	}
	for _, c := range caps {
		args = append(args, strconv.FormatInt(c.Since.UnixMicro(), 10), c.CapSats)
	}

	res, err := fencedInsertScript.Run(ctx, r.client, []string{r.ledgerKey(entry.ResourceID)}, args...).Int64()
	if err != nil {
		return false, r.wrap("insert_entry_fenced", err)
	}
	return res == 1, nil
}

// Aggregate fetches the widest range once and buckets it per lower bound.
func (r *RedisBackend) Aggregate(ctx context.Context, resourceID string, since []time.Time) ([]WindowTotal, error) {
	totals := make([]WindowTotal, len(since))
	if len(since) == 0 {
		return totals, nil
	}
	bounds := make([]int64, len(since))
	for i, s := range since {
		totals[i].Since = s
		bounds[i] = s.UnixMicro()
	}

	entries, err := r.client.ZRangeByScoreWithScores(ctx, r.ledgerKey(resourceID), &redis.ZRangeBy{
		Min: strconv.FormatInt(earliest(since).UnixMicro(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, r.wrap("aggregate", err)
	}

	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			return nil, r.wrap("aggregate", fmt.Errorf("unexpected member type %T", z.Member))
		}
		amount, err := decodeMemberAmount(member)
		if err != nil {
			return nil, r.wrap("aggregate", err)
		}
		at := int64(z.Score)
		for i, b := range bounds {
			if at >= b {
				totals[i].SpentSats = addSats(totals[i].SpentSats, amount)
				totals[i].Count++
			}
		}
	}
	return totals, nil
}

// DeleteEntriesBefore scans every ledger set and trims entries below cutoff.
func (r *RedisBackend) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	max := "(" + strconv.FormatInt(cutoff.UnixMicro(), 10)

	var deleted int64
	iter := r.client.Scan(ctx, 0, r.prefix+":ledger:*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := r.client.ZRemRangeByScore(ctx, iter.Val(), "-inf", max).Result()
		if err != nil {
			return deleted, r.wrap("delete_entries", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, r.wrap("delete_entries", err)
	}
	return deleted, nil
}

// Ping checks Redis connectivity.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.wrap("ping", r.client.Ping(ctx).Err())
}

// Close closes the underlying Redis client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func parseNanos(raw string) time.Time {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}
