package subscription

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PlanCacheKey is the Redis key holding a user's plan between gate checks.
func PlanCacheKey(userID string) string {
	return "plan:" + userID
}

// InvalidatePlan drops the cached plan of userID so the next gate check reads the
// database. Run it whenever the user's plan changes.
func InvalidatePlan(ctx context.Context, rdb redis.Cmdable, userID string) error {
	if err := rdb.Del(ctx, PlanCacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate plan cache for %s: %w", userID, err)
	}
	return nil
}
