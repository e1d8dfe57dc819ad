package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chorepoints/utils"
)

// Catch-up gate: a kid opening the app triggers an on-demand scheduler pass
// for their own tasks. The gate makes sure repeated opens within the TTL do
// not re-run the pass. Redis SetNX when configured, in-memory otherwise.

var (
	catchupMu   sync.Mutex
	catchupSeen = make(map[uint]int64) // userID -> expiry unix nanos
)

// AcquireCatchupSlot returns true when the caller won the slot and should run
// the catch-up pass. When false, the second value is how long until the slot
// frees up.
func AcquireCatchupSlot(userID uint, ttl time.Duration) (bool, time.Duration) {
	if utils.RedisClient != nil {
		ctx := context.Background()
		key := fmt.Sprintf("catchup:u:%d", userID)
		ok, err := utils.RedisClient.SetNX(ctx, key, "1", ttl).Result()
		if err == nil {
			if ok {
				return true, 0
			}
			remain, terr := utils.RedisClient.TTL(ctx, key).Result()
			if terr != nil || remain < 0 {
				remain = ttl
			}
			return false, remain
		}
		// Redis error: fall back to in-memory below.
	}
	catchupMu.Lock()
	defer catchupMu.Unlock()
	now := time.Now().UnixNano()
	if exp, found := catchupSeen[userID]; found && exp > now {
		return false, time.Duration(exp - now)
	}
	catchupSeen[userID] = now + int64(ttl)
	return true, 0
}

// ReleaseCatchupSlot frees the slot early, used when the pass failed and a
// retry should be allowed.
func ReleaseCatchupSlot(userID uint) {
	if utils.RedisClient != nil {
		_, err := utils.RedisClient.Del(context.Background(), fmt.Sprintf("catchup:u:%d", userID)).Result()
		if err == nil {
			return
		}
	}
	catchupMu.Lock()
	defer catchupMu.Unlock()
	delete(catchupSeen, userID)
}
