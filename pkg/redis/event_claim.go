package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaClaimOnce 通过 SETNX 保证同一事件只被认领一次，值为认领者 token。
const luaClaimOnce = `
local key = KEYS[1]
local owner = ARGV[1]
local ttlSec = tonumber(ARGV[2])

if redis.call('SETNX', key, owner) == 1 then
  redis.call('EXPIRE', key, ttlSec)
  return 1
end
return 0
`

// luaReleaseIfOwner 仅当值匹配认领者时才删除，避免误删别人的认领。
const luaReleaseIfOwner = `
local key = KEYS[1]
local owner = ARGV[1]
if redis.call('GET', key) == owner then
  return redis.call('DEL', key)
end
return 0
`

// ClaimEvent 幂等认领事件：
// - 首次认领返回 true
// - 已被认领（包括已发送完成）返回 false
func ClaimEvent(ctx context.Context, rdb *rd.Client, eventID, owner string, ttl time.Duration) (bool, error) {
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}
	n, err := rdb.Eval(ctx, luaClaimOnce, []string{EventClaimKey(eventID)}, owner, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseEventClaim 发送失败时释放认领，让重投的消息可以再次处理。
func ReleaseEventClaim(ctx context.Context, rdb *rd.Client, eventID, owner string) error {
	_, err := rdb.Eval(ctx, luaReleaseIfOwner, []string{EventClaimKey(eventID)}, owner).Int()
	return err
}
