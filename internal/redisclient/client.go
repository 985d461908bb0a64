package redisclient

import (
	"context"
	"fmt"
	"time"

	"table-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func productKey(id string) string {
	return fmt.Sprintf("product:%s", id)
}

// CacheProduct stores a catalog product hash with TTL
func (c *Client) CacheProduct(ctx context.Context, p *models.Product, ttl time.Duration) error {
	key := productKey(p.ID)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"name", p.Name,
		"price", p.Price.String(),
		"available", p.Available,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedProduct returns the cached product or nil on a miss
func (c *Client) GetCachedProduct(ctx context.Context, id string) (*models.Product, error) {
	result, err := c.rdb.HGetAll(ctx, productKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	price, err := decimal.NewFromString(result["price"])
	if err != nil {
		return nil, fmt.Errorf("invalid cached price for product %s: %w", id, err)
	}

	return &models.Product{
		ID:        id,
		Name:      result["name"],
		Price:     price,
		Available: result["available"] == "1" || result["available"] == "true",
	}, nil
}

// Publish sends a payload on a pub/sub channel
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

