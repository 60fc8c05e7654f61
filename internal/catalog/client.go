package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"facturas/internal"
	"facturas/internal/config"
	"facturas/internal/util"
)

const maxAttempts = 5

// Client reads the product listing of the retail application.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *zap.Logger
}

// pagePayload is the paginated listing envelope.
type pagePayload struct {
	Count    *int             `json:"count"`
	Next     *string          `json:"next"`
	Previous *string          `json:"previous"`
	Results  []map[string]any `json:"results"`
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CatalogRateLimitRPS),
		logger:     logger.Named("catalog"),
	}
}

// ListProducts walks every page of the listing. Rows that cannot be read as
// a product are skipped.
func (c *Client) ListProducts(ctx context.Context) ([]internal.ProductRecord, error) {
	all := make([]internal.ProductRecord, 0)
	seen := map[int]struct{}{}

	for page := 1; ; page++ {
		params := map[string]string{"page": strconv.Itoa(page)}
		if c.cfg.CatalogPageSize > 0 {
			params["page_size"] = strconv.Itoa(c.cfg.CatalogPageSize)
		}
		body, err := c.fetchJSON(ctx, "productos/", params)
		if err != nil {
			return nil, err
		}

		var payload pagePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode page %d: %w", page, err)
		}

		for _, raw := range payload.Results {
			product, err := toProductRecord(raw)
			if err != nil {
				c.logger.Debug("skipping product", zap.Int("page", page), zap.Error(err))
				continue
			}
			if _, dup := seen[product.ID]; dup {
				continue
			}
			seen[product.ID] = struct{}{}
			all = append(all, product)
		}

		if payload.Next == nil || *payload.Next == "" || len(payload.Results) == 0 {
			break
		}
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.CatalogAPIToken) == "" {
		return nil, errors.New("missing CATALOG_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.CatalogAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.CatalogAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				c.logger.Warn("catalog request retry",
					zap.String("url", u.String()),
					zap.Int("status", resp.StatusCode),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", backoff),
				)
				lastErr = fmt.Errorf("catalog status %d", resp.StatusCode)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				continue
			}
			return nil, fmt.Errorf("catalog api error: status=%d body=%s", resp.StatusCode, string(body))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func toProductRecord(raw map[string]any) (internal.ProductRecord, error) {
	name, _ := raw["nombre"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return internal.ProductRecord{}, errors.New("empty nombre")
	}

	id, ok := toInt(raw["id"])
	if !ok {
		return internal.ProductRecord{}, errors.New("missing id")
	}

	rawJSON, _ := json.Marshal(raw)
	product := internal.ProductRecord{
		ID:      id,
		Name:    name,
		RawJSON: string(rawJSON),
	}
	product.SKU = toStringPtr(raw["sku"])
	product.Category = toCategory(raw["categoria"])
	product.Price = toAmountPtr(raw["precio"])
	product.PurchasePrice = toAmountPtr(raw["precio_compra"])
	if stock, ok := toInt(raw["stock"]); ok {
		product.Stock = util.IntPtr(stock)
	}

	return product, nil
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

// toAmountPtr reads prices sent either as JSON numbers or as decimal strings
// ("2490.00").
func toAmountPtr(v any) *int64 {
	switch t := v.(type) {
	case float64:
		return util.Int64Ptr(decimal.NewFromFloat(t).IntPart())
	case int:
		return util.Int64Ptr(int64(t))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return nil
		}
		return util.Int64Ptr(d.IntPart())
	}
	return nil
}

func toStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return util.StringPtr(s)
}

// toCategory accepts a nested {"nombre": ...} object or a plain name.
func toCategory(v any) *string {
	if m, ok := v.(map[string]any); ok {
		return toStringPtr(m["nombre"])
	}
	return toStringPtr(v)
}
