package processedset

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	id "concilia/pkg/domain"
)

const redisSetKey = "concilia:processed_checks"

// Redis backs the set with a Redis SET, for deployments that run Redis and
// want the fallback shared across restarts without touching local disk.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Contains(ctx context.Context, checkID id.CheckID) (bool, error) {
	ok, err := r.client.SIsMember(ctx, redisSetKey, member(checkID)).Result()
	if err != nil {
		return false, fmt.Errorf("processed set lookup: %w", err)
	}
	return ok, nil
}

func (r *Redis) Add(ctx context.Context, checkID id.CheckID) error {
	if err := r.client.SAdd(ctx, redisSetKey, member(checkID)).Err(); err != nil {
		return fmt.Errorf("processed set add: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) ([]id.CheckID, error) {
	members, err := r.client.SMembers(ctx, redisSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("processed set load: %w", err)
	}
	out := make([]id.CheckID, 0, len(members))
	for _, m := range members {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id.CheckID(n))
	}
	return out, nil
}

func member(checkID id.CheckID) string {
	return strconv.FormatInt(int64(checkID), 10)
}
