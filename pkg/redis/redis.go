package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/ticket-broker/pkg/retry"
)

// Nil is returned by reads of missing keys
const Nil = redis.Nil

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		PoolSize:      100,
		MinIdleConns:  10,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps redis.Client with a Lua script cache
type Client struct {
	client  *redis.Client
	scripts sync.Map // name -> *Script
}

// Script is a named Lua script. SHA is filled once loaded.
type Script struct {
	Name   string
	Source string
	SHA    string
}

// NewClient connects to Redis, pinging with retries
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rc := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	err := retry.Do(ctx, retry.Fixed(cfg.MaxRetries, cfg.RetryInterval), func(ctx context.Context) error {
		return rc.Ping(ctx).Err()
	})
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries+1, err)
	}

	return &Client{client: rc}, nil
}

// Wrap adapts an existing go-redis client, e.g. a redismock client in tests
func Wrap(rc *redis.Client) *Client {
	return &Client{client: rc}
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck pings Redis with a short deadline
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("redis health check unexpected response: %s", result)
	}
	return nil
}

// computeSHA1 computes the SHA1 Redis uses to address a script
func computeSHA1(script string) string {
	h := sha1.New()
	h.Write([]byte(script))
	return hex.EncodeToString(h.Sum(nil))
}

// LoadScript loads a Lua script into Redis and caches its SHA
func (c *Client) LoadScript(ctx context.Context, name, source string) (*Script, error) {
	sha, err := c.client.ScriptLoad(ctx, source).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", name, err)
	}

	s := &Script{Name: name, Source: source, SHA: sha}
	c.scripts.Store(name, s)
	return s, nil
}

// ScriptSHA returns the cached SHA for a script name
func (c *Client) ScriptSHA(name string) (string, bool) {
	if v, ok := c.scripts.Load(name); ok {
		return v.(*Script).SHA, true
	}
	return "", false
}

// EvalWithFallback runs a script by SHA, loading it first when it is not
// cached and reloading once when the server answers NOSCRIPT (e.g. after
// SCRIPT FLUSH or a failover)
func (c *Client) EvalWithFallback(ctx context.Context, name, source string, keys []string, args ...interface{}) *redis.Cmd {
	sha, ok := c.ScriptSHA(name)
	if !ok {
		s, err := c.LoadScript(ctx, name, source)
		if err != nil {
			cmd := redis.NewCmd(ctx)
			cmd.SetErr(err)
			return cmd
		}
		sha = s.SHA
	}

	result := c.client.EvalSha(ctx, sha, keys, args...)
	if !isNoScriptError(result.Err()) {
		return result
	}

	s, err := c.LoadScript(ctx, name, source)
	if err != nil {
		return result
	}
	return c.client.EvalSha(ctx, s.SHA, keys, args...)
}

func isNoScriptError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}
