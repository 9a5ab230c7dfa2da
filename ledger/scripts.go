package ledger

import "github.com/redis/go-redis/v9"

// Revocation scripts mark a record inactive without deleting it, so the record
// stays inspectable until its retention TTL elapses.

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -1
end
if redis.call("HGET", KEYS[1], "act") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "act", "0", "rat", ARGV[1], "rr", ARGV[2], "rby", ARGV[3])
redis.call("ZREM", KEYS[2], ARGV[4])
return 1
`

var revokeLua = redis.NewScript(revokeScript)

const revokeAllScript = `
local record_prefix = ARGV[1]
local type_filter = ARGV[5]
local hashes = redis.call("ZRANGE", KEYS[1], 0, -1)
local revoked = 0
for _, h in ipairs(hashes) do
  local key = record_prefix .. h
  local vals = redis.call("HMGET", key, "act", "typ")
  if vals[1] == "1" and (type_filter == "" or vals[2] == type_filter) then
    redis.call("HSET", key, "act", "0", "rat", ARGV[2], "rr", ARGV[3], "rby", ARGV[4])
    redis.call("ZREM", KEYS[2], h)
    revoked = revoked + 1
  end
end
return revoked
`

var revokeAllLua = redis.NewScript(revokeAllScript)

const revokeSessionScript = `
local record_prefix = ARGV[1]
local hashes = redis.call("ZRANGE", KEYS[1], 0, -1)
local revoked = 0
for _, h in ipairs(hashes) do
  local key = record_prefix .. h
  local vals = redis.call("HMGET", key, "act", "sid")
  if vals[2] == ARGV[2] then
    if vals[1] == "1" then
      redis.call("HSET", key, "act", "0", "rat", ARGV[3], "rr", ARGV[4], "rby", ARGV[5])
      revoked = revoked + 1
    end
    redis.call("ZREM", KEYS[1], h)
  end
end
return revoked
`

var revokeSessionLua = redis.NewScript(revokeSessionScript)

// capSessionsScript drops stale index entries, then revokes the least
// recently used sessions beyond ARGV[2].
const capSessionsScript = `
local record_prefix = ARGV[1]
local max = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
local live = {}
for _, h in ipairs(members) do
  local vals = redis.call("HMGET", record_prefix .. h, "act", "exp")
  local exp = tonumber(vals[2] or "0") or 0
  if vals[1] == "1" and exp > now then
    table.insert(live, h)
  else
    redis.call("ZREM", KEYS[1], h)
  end
end
local revoked = {}
local excess = #live - max
for i = 1, excess do
  local h = live[i]
  redis.call("HSET", record_prefix .. h, "act", "0", "rat", ARGV[3], "rr", ARGV[4], "rby", "system")
  redis.call("ZREM", KEYS[1], h)
  table.insert(revoked, h)
end
return revoked
`

var capSessionsLua = redis.NewScript(capSessionsScript)

const recordUseScript = `
if redis.call("HGET", KEYS[1], "act") ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "lua", ARGV[1])
local uc = redis.call("HINCRBY", KEYS[1], "uc", 1)
if redis.call("HGET", KEYS[1], "typ") == "refresh" then
  redis.call("ZADD", KEYS[2], "XX", ARGV[1], ARGV[2])
end
return uc
`

var recordUseLua = redis.NewScript(recordUseScript)
