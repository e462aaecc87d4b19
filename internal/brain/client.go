package brain

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/contextunity/contextworker/internal/grpcutil"
)

// API is the subset of the Brain service the worker uses. An interface
// so the executor and retention job can run against in-memory fakes.
type API interface {
	AddEpisode(ctx context.Context, req AddEpisodeRequest) error
	GetEpisodeStats(ctx context.Context, tenantID string) (EpisodeStats, error)
	GetOldEpisodes(ctx context.Context, tenantID string, olderThanDays, limit int) ([]Episode, error)
	UpsertFact(ctx context.Context, fact FactUpsert) error
	RetentionCleanup(ctx context.Context, req RetentionCleanupRequest) (int, error)
	Close() error
}

// TokenSource supplies the bearer token attached to outgoing calls.
type TokenSource func() (string, error)

// Client talks to Brain over gRPC with the JSON codec.
type Client struct {
	conn   *grpc.ClientConn
	token  TokenSource
	logger *zap.Logger
}

// Dial connects to the Brain endpoint. The token source mints the
// service token attached to every call; nil disables auth headers.
func Dial(endpoint string, token TokenSource, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpcutil.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial brain %s: %w", endpoint, err)
	}
	return &Client{conn: conn, token: token, logger: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	if c.token != nil {
		tok, err := c.token()
		if err != nil {
			return fmt.Errorf("mint brain token: %w", err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fmt.Errorf("brain %s: %w", method, err)
	}
	return nil
}

// AddEpisode records an episode in episodic memory.
func (c *Client) AddEpisode(ctx context.Context, req AddEpisodeRequest) error {
	var resp struct {
		ID string `json:"id"`
	}
	return c.invoke(ctx, "/brain.BrainService/AddEpisode", &req, &resp)
}

// GetEpisodeStats returns episode counts for a tenant.
func (c *Client) GetEpisodeStats(ctx context.Context, tenantID string) (EpisodeStats, error) {
	req := struct {
		TenantID string `json:"tenant_id"`
	}{TenantID: tenantID}
	var stats EpisodeStats
	if err := c.invoke(ctx, "/brain.BrainService/GetEpisodeStats", &req, &stats); err != nil {
		return EpisodeStats{}, err
	}
	return stats, nil
}

// GetOldEpisodes fetches episodes older than the retention window.
func (c *Client) GetOldEpisodes(ctx context.Context, tenantID string, olderThanDays, limit int) ([]Episode, error) {
	req := struct {
		TenantID      string `json:"tenant_id"`
		OlderThanDays int    `json:"older_than_days"`
		Limit         int    `json:"limit"`
	}{TenantID: tenantID, OlderThanDays: olderThanDays, Limit: limit}
	var resp struct {
		Episodes []Episode `json:"episodes"`
	}
	if err := c.invoke(ctx, "/brain.BrainService/GetOldEpisodes", &req, &resp); err != nil {
		return nil, err
	}
	return resp.Episodes, nil
}

// UpsertFact writes a distilled fact into entity memory.
func (c *Client) UpsertFact(ctx context.Context, fact FactUpsert) error {
	var resp struct {
		Updated bool `json:"updated"`
	}
	return c.invoke(ctx, "/brain.BrainService/UpsertFact", &fact, &resp)
}

// RetentionCleanup deletes old episodes and returns the deleted count.
func (c *Client) RetentionCleanup(ctx context.Context, req RetentionCleanupRequest) (int, error) {
	var resp RetentionCleanupResponse
	if err := c.invoke(ctx, "/brain.BrainService/RetentionCleanup", &req, &resp); err != nil {
		return 0, err
	}
	return resp.DeletedCount, nil
}

var _ API = (*Client)(nil)
