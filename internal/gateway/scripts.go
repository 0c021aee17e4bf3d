package gateway

// The document store's scripting facility gives us the atomicity the spec
// requires: each operation below is one compiled Lua script, registered
// once at startup and invoked by its SHA1 handle thereafter (EVALSHA).
// This is deliberate, a transaction-with-optimistic-retry design was
// rejected per spec §9 ("retries under the three-writer load are the very
// failure mode the design rejects").
//
// Layout: each session is a hash at portfolio:{sid} holding scalar fields
// (session_id, holdings as a JSON blob, total_value, current_analysis_*,
// last_activity) plus a sibling list at portfolio:{sid}:results holding
// one JSON-encoded result record per RPUSH, giving append_result its
// required O(1) server-side append without a read-modify-write of the
// full document.

const ensureScript = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[5])
  return 0
end
redis.call('HSET', KEYS[1],
  'session_id', ARGV[1],
  'holdings', ARGV[2],
  'total_value', ARGV[3],
  'last_activity', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
return 1
`

const readScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local doc = redis.call('HGETALL', KEYS[1])
local results = redis.call('LRANGE', KEYS[2], 0, -1)
redis.call('EXPIRE', KEYS[1], ARGV[1])
if redis.call('EXISTS', KEYS[2]) == 1 then
  redis.call('EXPIRE', KEYS[2], ARGV[1])
end
return {doc, results}
`

const beginAnalysisScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('HSET', KEYS[1],
  'current_analysis_ticker', ARGV[1],
  'current_analysis_started_at', ARGV[2],
  'last_activity', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[4])
if redis.call('EXISTS', KEYS[2]) == 1 then
  redis.call('EXPIRE', KEYS[2], ARGV[4])
end
local doc = redis.call('HGETALL', KEYS[1])
local results = redis.call('LRANGE', KEYS[2], 0, -1)
return {doc, results}
`

const appendResultScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'last_activity', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`

const applyMarketUpdateScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local holdings_json = redis.call('HGET', KEYS[1], 'holdings')
local holdings = cjson.decode(holdings_json)
local prices = cjson.decode(ARGV[1])
local total = 0
for ticker, qty in pairs(holdings) do
  local price = prices[ticker]
  if price ~= nil then
    total = total + (qty * price)
  end
end
redis.call('HSET', KEYS[1], 'total_value', tostring(total), 'last_activity', ARGV[2])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return tostring(total)
`
