package harvester

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StagingWriter persists raw feeds and parsed items in the staging
// schema. Raw feeds live in staging.raw_feeds keyed by reference;
// parsed items are upserted into staging.items by (tenant_id, sku).
type StagingWriter struct {
	db *sqlx.DB
}

// NewStagingWriter wraps an open database handle.
func NewStagingWriter(db *sqlx.DB) *StagingWriter {
	return &StagingWriter{db: db}
}

// PutRaw stores a raw feed blob under the given reference.
func (s *StagingWriter) PutRaw(ctx context.Context, ref string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staging.raw_feeds (ref, payload, fetched_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (ref) DO UPDATE SET payload = EXCLUDED.payload, fetched_at = NOW()`,
		ref, data)
	if err != nil {
		return fmt.Errorf("put raw feed %s: %w", ref, err)
	}
	return nil
}

// GetRaw loads a raw feed blob by reference.
func (s *StagingWriter) GetRaw(ctx context.Context, ref string) ([]byte, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload,
		`SELECT payload FROM staging.raw_feeds WHERE ref = $1`, ref)
	if err != nil {
		return nil, fmt.Errorf("get raw feed %s: %w", ref, err)
	}
	return payload, nil
}

// UpsertItems writes parsed items, returning how many were written.
// Each item is its own statement inside one transaction so a duplicate
// SKU conflict updates rather than aborts.
func (s *StagingWriter) UpsertItems(ctx context.Context, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin staging tx: %w", err)
	}
	defer tx.Rollback()

	count := 0
	for _, item := range items {
		tenant := item.TenantID
		if tenant == "" {
			tenant = "default"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO staging.items (tenant_id, sku, name, price, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (tenant_id, sku)
			DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, updated_at = NOW()`,
			tenant, item.SKU, item.Name, item.Price)
		if err != nil {
			return 0, fmt.Errorf("upsert item %s: %w", item.SKU, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit staging tx: %w", err)
	}
	return count, nil
}

// ListSuppliers returns a tenant's configured suppliers.
func (s *StagingWriter) ListSuppliers(ctx context.Context, tenantID string) ([]Supplier, error) {
	var suppliers []Supplier
	err := s.db.SelectContext(ctx, &suppliers, `
		SELECT code, feed_url, enabled FROM staging.suppliers
		WHERE tenant_id = $1
		ORDER BY code`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return suppliers, nil
}

// PendingImageURLs returns image urls of staged items that have not
// been processed yet.
func (s *StagingWriter) PendingImageURLs(ctx context.Context, tenantID string, limit int) ([]string, error) {
	var urls []string
	err := s.db.SelectContext(ctx, &urls, `
		SELECT image_url FROM staging.item_images
		WHERE tenant_id = $1 AND processed_at IS NULL
		ORDER BY created_at
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending images: %w", err)
	}
	return urls, nil
}
