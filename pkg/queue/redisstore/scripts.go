package redisstore

import goredis "github.com/redis/go-redis/v9"

// enqueueScript stores a job unless its ID is already taken.
//
// KEYS: job, wait, delayed
// ARGV: id, data, state, priority, run_at, wait score
var enqueueScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "data", ARGV[2], "state", ARGV[3], "priority", ARGV[4], "run_at", ARGV[5])
if ARGV[3] == "delayed" then
  redis.call("ZADD", KEYS[3], ARGV[5], ARGV[1])
else
  redis.call("ZADD", KEYS[2], ARGV[6], ARGV[1])
end
return 1
`)

// dequeueScript promotes due delayed jobs, returns jobs with an expired lock
// to waiting and claims the head of the wait set.
//
// KEYS: wait, delayed, active
// ARGV: now ms, lock ms, token, job key prefix, priority weight
var dequeueScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local weight = tonumber(ARGV[5])

local function requeue(id, key)
  local prio = tonumber(redis.call("HGET", key, "priority") or "50")
  local runAt = tonumber(redis.call("HGET", key, "run_at") or ARGV[1])
  redis.call("ZADD", KEYS[1], (100 - prio) * weight + runAt, id)
  redis.call("HSET", key, "state", "waiting", "locked_until", "")
  redis.call("HDEL", key, "token")
end

for _, id in ipairs(redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", now, "LIMIT", 0, 1000)) do
  redis.call("ZREM", KEYS[2], id)
  local key = ARGV[4] .. id
  if redis.call("EXISTS", key) == 1 then
    requeue(id, key)
  end
end

for _, id in ipairs(redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", now, "LIMIT", 0, 1000)) do
  redis.call("ZREM", KEYS[3], id)
  local key = ARGV[4] .. id
  if redis.call("EXISTS", key) == 1 then
    requeue(id, key)
  end
end

while true do
  local popped = redis.call("ZPOPMIN", KEYS[1])
  if #popped == 0 then
    return false
  end
  local id = popped[1]
  local key = ARGV[4] .. id
  if redis.call("EXISTS", key) == 1 then
    local lockedUntil = now + tonumber(ARGV[2])
    redis.call("ZADD", KEYS[3], lockedUntil, id)
    redis.call("HSET", key, "state", "active", "token", ARGV[3],
      "locked_until", lockedUntil, "started_at", now)
    return redis.call("HGETALL", key)
  end
end
`)

// cleanScript deletes finished jobs scored before a cutoff.
//
// KEYS: state set
// ARGV: cutoff ms, limit, job key prefix
var cleanScript = goredis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call("DEL", ARGV[3] .. id)
  redis.call("ZREM", KEYS[1], id)
end
return #ids
`)
