// Package harvester imports vendor catalog data: fetch raw feeds, parse
// them into items, and stage them for enrichment.
package harvester

// Queue is the task queue this module's workers listen on.
const Queue = "harvest-tasks"

// RawPayload describes a fetched vendor feed.
type RawPayload struct {
	Status      string `json:"status"`
	ContentType string `json:"content_type"`
	RawRef      string `json:"raw_ref"` // object-store path of the raw feed
	SupplierID  string `json:"supplier_id,omitempty"`
}

// Item is one parsed catalog entry.
type Item struct {
	SKU       string   `json:"sku"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	ImageURLs []string `json:"image_urls,omitempty"`
	TenantID  string   `json:"tenant_id,omitempty"`
}

// Supplier is one configured vendor feed.
type Supplier struct {
	Code    string `json:"code" db:"code"`
	FeedURL string `json:"feed_url" db:"feed_url"`
	Enabled bool   `json:"enabled" db:"enabled"`
}

// SEOContent is generated product copy.
type SEOContent struct {
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
}
