// Package discovery implements a cached read-through client to the
// external discovery provider. Results are cached in the catalog so the
// cache survives restarts; stale entries are served when the upstream is
// unreachable. A failure on a cold cache yields an empty result set, never
// an error, so the UI stays live without the provider.
package discovery

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zpkg/registry/context"
	v1 "github.com/zpkg/registry/registry/api/v1"
)

// cacheTTL is how long a cached upstream response is considered fresh.
const cacheTTL = time.Hour

// DefaultLimit applies when the caller does not bound the result set.
const DefaultLimit = 25

// MaxLimit caps the result set regardless of what the caller asks for.
const MaxLimit = 100

// Cache is the slice of the catalog the client needs. Age is reported in
// seconds; a miss is catalog.ErrNotFound, which the client treats the same
// as any other cold-cache condition.
type Cache interface {
	GetDiscoveryCache(ctx context.Context, key string) (payload string, age int64, err error)
	PutDiscoveryCache(ctx context.Context, key, payload string) error
}

// Client proxies search, trending and browse queries to the upstream
// provider. Concurrent identical queries are collapsed into one upstream
// call.
type Client struct {
	baseURL string
	cache   Cache
	client  *http.Client
	group   singleflight.Group
}

// New builds a client for the provider at baseURL. An empty baseURL
// disables the upstream entirely; only cached entries are served.
func New(baseURL string, cache Cache) *Client {
	return &Client{
		baseURL: baseURL,
		cache:   cache,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether an upstream provider is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// Search queries the provider full-text index.
func (c *Client) Search(ctx context.Context, q string, limit int) []v1.DiscoveredPackage {
	params := url.Values{}
	params.Set("q", q)
	return c.query(ctx, "search", params, limit)
}

// Trending returns packages ranked by recent activity, optionally within a
// category.
func (c *Client) Trending(ctx context.Context, category string, limit int) []v1.DiscoveredPackage {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	return c.query(ctx, "trending", params, limit)
}

// Browse lists packages within a category.
func (c *Client) Browse(ctx context.Context, category string, limit int) []v1.DiscoveredPackage {
	params := url.Values{}
	params.Set("category", category)
	return c.query(ctx, "browse", params, limit)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// query serves op from the cache when fresh, refreshing through the
// singleflight group otherwise. On refresh failure a stale cached payload
// is served as-is; with nothing cached the result is empty.
func (c *Client) query(ctx context.Context, op string, params url.Values, limit int) []v1.DiscoveredPackage {
	limit = clampLimit(limit)
	params.Set("limit", strconv.Itoa(limit))
	key := op + "?" + params.Encode()

	cached, age, cacheErr := c.cache.GetDiscoveryCache(ctx, key)
	if cacheErr == nil && time.Duration(age)*time.Second < cacheTTL {
		return decodePackages(ctx, cached)
	}

	if !c.Enabled() {
		if cacheErr == nil {
			return decodePackages(ctx, cached)
		}
		return []v1.DiscoveredPackage{}
	}

	payload, err, _ := c.group.Do(key, func() (interface{}, error) {
		body, err := c.fetch(ctx, op, params)
		if err != nil {
			return nil, err
		}
		if err := c.cache.PutDiscoveryCache(ctx, key, body); err != nil {
			context.GetLogger(ctx).Warnf("discovery: caching %q: %v", key, err)
		}
		return body, nil
	})
	if err != nil {
		context.GetLogger(ctx).Warnf("discovery: upstream %q failed: %v", key, err)
		if cacheErr == nil {
			// Stale beats empty while the upstream is down.
			return decodePackages(ctx, cached)
		}
		return []v1.DiscoveredPackage{}
	}

	return decodePackages(ctx, payload.(string))
}

// fetch performs one upstream GET and returns the raw body after checking
// that it decodes.
func (c *Client) fetch(ctx context.Context, op string, params url.Values) (string, error) {
	u := c.baseURL + "/" + op + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	if _, err := decode(body); err != nil {
		return "", fmt.Errorf("decoding upstream response: %w", err)
	}

	return string(body), nil
}

// decode accepts both a bare JSON array and an {"items": [...]} envelope;
// providers disagree on which they serve.
func decode(body []byte) ([]v1.DiscoveredPackage, error) {
	var items []v1.DiscoveredPackage
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}

	var envelope struct {
		Items []v1.DiscoveredPackage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Items, nil
}

func decodePackages(ctx context.Context, payload string) []v1.DiscoveredPackage {
	items, err := decode([]byte(payload))
	if err != nil {
		context.GetLogger(ctx).Warnf("discovery: corrupt cached payload: %v", err)
		return []v1.DiscoveredPackage{}
	}
	if items == nil {
		items = []v1.DiscoveredPackage{}
	}
	return items
}
