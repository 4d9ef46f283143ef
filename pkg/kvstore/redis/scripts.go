package redis

// Server-side Lua scripts. Each kvstore operation is one EVAL round trip so
// concurrent clients can never interleave between the read and the write.
// Times are passed in as milliseconds computed by the caller; Redis replicas
// must not call TIME themselves or replication would diverge.

// claimNonceScript: KEYS[1]=nonce set, ARGV[1]=nonce, ARGV[2]=now ms,
// ARGV[3]=lifetime ms. Returns 1 if the nonce was claimed, 0 on replay.
const claimNonceScript = `
local cutoff = tonumber(ARGV[2]) - tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`

// incrWindowScript: KEYS[1]=counter, ARGV[1]=ttl ms. Returns the
// post-increment count. TTL is only set when the key is created.
const incrWindowScript = `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`

// slidingClaimScript: KEYS[1]=timestamp set, ARGV[1]=member, ARGV[2]=now ms,
// ARGV[3]=window ms, ARGV[4]=capacity. Returns {count, allowed}.
const slidingClaimScript = `
local cutoff = tonumber(ARGV[2]) - tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[4]) then
  return {count, 0}
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[3]) + 10000)
return {count + 1, 1}
`

// bucketTakeScript: KEYS[1]=bucket hash, ARGV[1]=capacity, ARGV[2]=refill
// rate per 60s, ARGV[3]=now ms, ARGV[4]=ttl ms. Returns {remaining, allowed}.
const bucketTakeScript = `
local cap = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = cap
  last = now
end
local added = math.floor(math.floor((now - last) / 1000) * rate / 60)
if added > 0 then
  tokens = math.min(cap, tokens + added)
  last = now
end
local allowed = 0
if tokens > 0 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'last', last)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {tokens, allowed}
`
