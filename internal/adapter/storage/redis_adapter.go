package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/timed-flash-sale/internal/port"
)

const (
	gateMiss      = 0
	gateAdmitted  = 1
	gateSoldOut   = 2
	gateDuplicate = 3
)

// KEYS[1] stock counter, KEYS[2] buyer set, ARGV[1] user id
var admitScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
	return 3
end

local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end

if tonumber(current) <= 0 then
	return 2
end

redis.call('DECR', KEYS[1])
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('SREM', KEYS[2], ARGV[1]) == 0 then
	return 0
end

if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('INCR', KEYS[1])
end
return 1
`)

// RedisAdapter implements port.StockGate.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// The hash tag keeps both keys of a sale in one cluster slot.
func stockKey(saleID string) string {
	return fmt.Sprintf("flashsale:{%s}:stock", saleID)
}

func buyersKey(saleID string) string {
	return fmt.Sprintf("flashsale:{%s}:buyers", saleID)
}

func (r *RedisAdapter) Prime(ctx context.Context, saleID string, stock int) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, stockKey(saleID), stock, 0)
	pipe.Del(ctx, buyersKey(saleID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prime gate: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SyncStock(ctx context.Context, saleID string, stock int) error {
	if err := r.client.SetNX(ctx, stockKey(saleID), stock, 0).Err(); err != nil {
		return fmt.Errorf("sync gate stock: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Admit(ctx context.Context, saleID, userID string) (port.GateResult, error) {
	keys := []string{stockKey(saleID), buyersKey(saleID)}

	result, err := admitScript.Run(ctx, r.client, keys, userID).Int()
	if err != nil {
		return port.GateMiss, fmt.Errorf("admit script: %w", err)
	}

	switch result {
	case gateAdmitted:
		return port.GateAdmitted, nil
	case gateSoldOut:
		return port.GateSoldOut, nil
	case gateDuplicate:
		return port.GateDuplicate, nil
	case gateMiss:
		return port.GateMiss, nil
	default:
		return port.GateMiss, fmt.Errorf("unknown admit result: %d", result)
	}
}

func (r *RedisAdapter) Release(ctx context.Context, saleID, userID string) error {
	keys := []string{stockKey(saleID), buyersKey(saleID)}
	if err := releaseScript.Run(ctx, r.client, keys, userID).Err(); err != nil {
		return fmt.Errorf("release script: %w", err)
	}
	return nil
}

// Stock returns the gate's counter, or -1 when it is not primed.
func (r *RedisAdapter) Stock(ctx context.Context, saleID string) (int, error) {
	n, err := r.client.Get(ctx, stockKey(saleID)).Int()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get gate stock: %w", err)
	}
	return n, nil
}
