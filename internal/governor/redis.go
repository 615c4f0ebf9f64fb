package governor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Ledger = (*RedisLedger)(nil)

// RedisLedger shares the sliding-window log between processes. Each key is a
// sorted set of admission times in milliseconds; a TTL equal to the longest
// window is refreshed on every admission.
type RedisLedger struct {
	client *redis.Client
	prefix string
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client, prefix: "governor:"}
}

// admitScript checks every window and records the admission in one step.
// Returns {1, 0} when admitted or {0, retry_ms} when rejected.
//
// KEYS[1] = ledger key
// ARGV[1] = now (ms)
// ARGV[2] = unique member for this admission
// ARGV[3] = longest window (ms)
// ARGV[4..] = capacity, period (ms) pairs
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local member = ARGV[2]
local longest = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - longest)

local retry = 0
for i = 4, #ARGV, 2 do
    local capacity = tonumber(ARGV[i])
    local period = tonumber(ARGV[i + 1])
    local count = redis.call("ZCOUNT", key, "(" .. (now - period), "+inf")
    if count >= capacity then
        local total = redis.call("ZCARD", key)
        local edge = redis.call("ZRANGE", key, total - capacity, total - capacity, "WITHSCORES")
        local wait = tonumber(edge[2]) + period - now
        if retry == 0 or wait < retry then
            retry = wait
        end
    end
end

if retry > 0 then
    return {0, retry}
end

redis.call("ZADD", key, now, member)
redis.call("PEXPIRE", key, longest)
return {1, 0}
`)

func (r *RedisLedger) Admit(ctx context.Context, key string, windows []Window, now time.Time) (Decision, error) {
	args := []any{
		now.UnixMilli(),
		uuid.NewString(),
		longest(windows).Milliseconds(),
	}
	for _, w := range windows {
		if w.Capacity <= 0 {
			continue
		}
		args = append(args, strconv.Itoa(w.Capacity), w.Period.Milliseconds())
	}

	res, err := admitScript.Run(ctx, r.client, []string{r.prefix + key}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("governor: redis admit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("governor: redis admit: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Allowed: false, RetryAfter: time.Duration(res[1]) * time.Millisecond}, nil
}

// Close closes the underlying Redis client.
func (r *RedisLedger) Close() error {
	return r.client.Close()
}
