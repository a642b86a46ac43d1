// pkg/sink/redis.go
package sink

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v9"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// DefaultStreamMaxLen caps the stream length; trimming is approximate.
const DefaultStreamMaxLen = 100000

// RedisPublisher appends states to a Redis stream with XADD
type RedisPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher connects lazily to the Redis server named in envConfig.
func NewRedisPublisher(envConfig *config.EnvironmentConfig) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     envConfig.RedisAddr,
			Password: envConfig.RedisPassword,
			DB:       envConfig.RedisDB,
		}),
		stream: envConfig.RedisStream,
		maxLen: DefaultStreamMaxLen,
	}
}

// Publish appends one entry holding the canonical text form and every field.
func (p *RedisPublisher) Publish(ctx context.Context, bodyID uint64, state physics.StateVector) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: streamValues(bodyID, state),
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// streamValues lays out a stream entry. Numbers use the canonical scalar
// format so non-finite values survive the trip.
func streamValues(bodyID uint64, state physics.StateVector) map[string]interface{} {
	values := make(map[string]interface{}, len(physics.StateFieldNames)+2)
	values["body_id"] = strconv.FormatUint(bodyID, 10)
	values["state"] = state.String()
	for i, v := range state.Fields() {
		values[physics.StateFieldNames[i]] = physics.FormatScalar(v)
	}
	return values
}
