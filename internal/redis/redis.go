package redis

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"memodraft/internal/config"
)

const pingTimeout = 3 * time.Second

var (
	// ErrCacheMiss is returned by Get for absent keys.
	ErrCacheMiss = goredis.Nil

	errNotConnected = errors.New("redis: client not connected")
)

// Client is the optional string cache in front of the token table. A nil
// *Client is valid and reports errNotConnected from every command.
type Client struct {
	rdb *goredis.Client
}

// Enabled reports whether cfg names a redis server at all.
func Enabled(cfg config.RedisConfig) bool { return cfg.Host != "" }

// NewRedisClient connects and verifies the server with PING.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	port := cfg.Port
	if port == 0 {
		port = 6379
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) conn() (*goredis.Client, error) {
	if c == nil || c.rdb == nil {
		return nil, errNotConnected
	}
	return c.rdb, nil
}

// Set stores value under key for ttl.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return rdb.Get(ctx, key).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, keys...).Err()
}

// TTL reports the remaining lifetime of key.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	return rdb.TTL(ctx, key).Result()
}

func (c *Client) Close() error {
	rdb, err := c.conn()
	if err != nil {
		return nil
	}
	return rdb.Close()
}

// Raw exposes the underlying go-redis client for tests and maintenance.
func (c *Client) Raw() *goredis.Client {
	rdb, _ := c.conn()
	return rdb
}
