package parsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dmmsync/internal/media"
	"dmmsync/internal/services"
	"dmmsync/internal/textutil"
)

// HTTPClient parses batches through an out-of-process parser service.
type HTTPClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	backoffs []time.Duration
	now      func() time.Time
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBackoffs replaces the retry delays. Its length is the retry count.
func WithBackoffs(backoffs ...time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.backoffs = backoffs
	}
}

// NewHTTPClient creates a parser client for endpoint. requestsPerSecond <= 0
// disables rate limiting.
func NewHTTPClient(endpoint string, requestsPerSecond float64, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	c := &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/") + "/parse",
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, 1),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type parseRequestItem struct {
	InfoHash string `json:"info_hash"`
	Title    string `json:"title"`
}

type parseResponseItem struct {
	InfoHash   string   `json:"info_hash"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	Category   string   `json:"category"`
	Resolution string   `json:"resolution"`
	Codec      string   `json:"codec"`
	Source     string   `json:"source"`
	Group      string   `json:"group"`
	Container  string   `json:"container"`
	Edition    string   `json:"edition"`
	Seasons    []int    `json:"seasons"`
	Episodes   []int    `json:"episodes"`
	Languages  []string `json:"languages"`
	HDR        []string `json:"hdr"`
	Audio      []string `json:"audio"`
	Adult      bool     `json:"adult"`
}

// ParseBatch posts the batch and maps the response records back to the
// entries by info hash. Records for hashes outside the batch, and records
// without a usable title, are ignored.
func (c *HTTPClient) ParseBatch(ctx context.Context, entries []media.Entry) ([]*media.Record, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	request := make([]parseRequestItem, len(entries))
	byHash := make(map[string]media.Entry, len(entries))
	for i, entry := range entries {
		request[i] = parseRequestItem{InfoHash: entry.InfoHash, Title: entry.Name}
		byHash[entry.InfoHash] = entry
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, services.Wrap(services.ErrParsing, "parse", "parse batch", c.endpoint, err)
	}

	var response []parseResponseItem
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, services.Wrap(services.ErrParsing, "parse", "decode response", "", err)
	}

	ingestedAt := c.now().UTC()
	records := make([]*media.Record, 0, len(response))
	for _, item := range response {
		hash := strings.ToLower(strings.TrimSpace(item.InfoHash))
		entry, ok := byHash[hash]
		if !ok {
			continue
		}
		delete(byHash, hash)
		normalized := textutil.NormalizeTitle(item.Title)
		if normalized == "" {
			continue
		}
		records = append(records, &media.Record{
			InfoHash:        entry.InfoHash,
			RawTitle:        entry.Name,
			Title:           strings.TrimSpace(item.Title),
			NormalizedTitle: normalized,
			Year:            item.Year,
			Category:        media.ParseCategory(item.Category),
			Resolution:      item.Resolution,
			Codec:           item.Codec,
			Source:          item.Source,
			Group:           item.Group,
			Container:       item.Container,
			Edition:         item.Edition,
			Seasons:         item.Seasons,
			Episodes:        item.Episodes,
			Languages:       item.Languages,
			HDR:             item.HDR,
			Audio:           item.Audio,
			Size:            entry.Size,
			Adult:           item.Adult,
			IngestedAt:      ingestedAt,
		})
	}
	return records, nil
}

// doWithRetry retries on transport errors, 429 and 5xx with the configured
// backoffs. A Retry-After header on 429 overrides the delay, capped at 30s.
func (c *HTTPClient) doWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	maxRetries := len(c.backoffs)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		var delay time.Duration
		if attempt < maxRetries {
			delay = c.backoffs[attempt]
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := sleep(ctx, attempt < maxRetries, delay); err != nil {
				return nil, err
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := sleep(ctx, attempt < maxRetries, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("parser error (status %d): %s", resp.StatusCode, truncate(respBody))
			if resp.StatusCode == http.StatusTooManyRequests {
				if ra := resp.Header.Get("Retry-After"); ra != "" {
					if seconds, parseErr := strconv.Atoi(ra); parseErr == nil && seconds > 0 {
						delay = min(time.Duration(seconds)*time.Second, 30*time.Second)
					}
				}
			}
			if err := sleep(ctx, attempt < maxRetries, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, fmt.Errorf("parser error (status %d): %s", resp.StatusCode, truncate(respBody))
	}

	return nil, fmt.Errorf("parser request failed after %d retries: %w", maxRetries, lastErr)
}

func sleep(ctx context.Context, retry bool, delay time.Duration) error {
	if !retry {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
