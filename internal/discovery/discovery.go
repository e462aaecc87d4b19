// Package discovery registers worker instances in Redis so the control
// plane can find live workers and their queues.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/contextunity/contextworker/internal/metrics"
)

const (
	keyPrefix  = "contextworker:services:"
	defaultTTL = 30 * time.Second
)

// ServiceInfo is the payload written to the discovery key.
type ServiceInfo struct {
	Name      string    `json:"name"`
	Instance  string    `json:"instance"`
	Version   string    `json:"version"`
	Queues    []string  `json:"queues"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registration is a live discovery entry being refreshed in the
// background. Stop it to withdraw the instance.
type Registration struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop withdraws the registration and waits for the heartbeat loop to
// exit. The discovery key expires on its own TTL.
func (r *Registration) Stop() {
	r.cancel()
	<-r.done
}

// Client wraps a Redis connection for service discovery.
type Client struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewClient creates a discovery client against the given Redis address.
func NewClient(addr string, logger *zap.Logger) *Client {
	return &Client{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    defaultTTL,
		logger: logger,
	}
}

// NewClientWithRedis wraps an existing Redis client. Used by tests.
func NewClientWithRedis(rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, ttl: defaultTTL, logger: logger}
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(info ServiceInfo) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, info.Name, info.Instance)
}

// Register writes the discovery entry and starts a heartbeat goroutine
// refreshing it at a third of the TTL. Registration failure is returned;
// later heartbeat failures are logged and retried on the next tick.
func (c *Client) Register(ctx context.Context, info ServiceInfo) (*Registration, error) {
	info.StartedAt = time.Now().UTC()
	if err := c.write(ctx, info); err != nil {
		return nil, fmt.Errorf("register service %s: %w", info.Name, err)
	}
	c.logger.Info("Service registered in discovery",
		zap.String("service", info.Name),
		zap.String("instance", info.Instance),
		zap.Strings("queues", info.Queues))

	hbCtx, cancel := context.WithCancel(context.Background())
	reg := &Registration{cancel: cancel, done: make(chan struct{})}
	go c.heartbeatLoop(hbCtx, info, reg.done)
	return reg, nil
}

func (c *Client) heartbeatLoop(ctx context.Context, info ServiceInfo, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(ctx, info); err != nil {
				metrics.HeartbeatsSent.WithLabelValues("error").Inc()
				c.logger.Warn("Discovery heartbeat failed",
					zap.String("service", info.Name), zap.Error(err))
				continue
			}
			metrics.HeartbeatsSent.WithLabelValues("ok").Inc()
		}
	}
}

func (c *Client) write(ctx context.Context, info ServiceInfo) error {
	info.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(info), payload, c.ttl).Err()
}

// List returns all currently registered service entries.
func (c *Client) List(ctx context.Context) ([]ServiceInfo, error) {
	keys, err := c.rdb.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	var out []ServiceInfo
	for _, k := range keys {
		raw, err := c.rdb.Get(ctx, k).Result()
		if err != nil {
			continue // expired between KEYS and GET
		}
		var info ServiceInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}
