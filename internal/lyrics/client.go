package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"audiolyrics/internal/apperr"
	"audiolyrics/internal/models"
)

const (
	DefaultBaseURL = "https://lrclib.net/api"
	userAgent      = "audiolyrics/1.0"
)

// ErrUnavailable marks a search that got no usable answer from the index
// (transport error or non-success status). Callers treat it as "no result".
var ErrUnavailable = errors.New("lyrics index unavailable")

// Index searches a lyrics index.
type Index interface {
	Search(ctx context.Context, params url.Values) ([]models.LyricsResult, error)
}

// LRCLibClient implements Index against the LRCLIB search API.
type LRCLibClient struct {
	baseURL string
	client  *http.Client
}

func NewLRCLibClient(baseURL string, timeout time.Duration) *LRCLibClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LRCLibClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Search calls GET {base}/search with params.
func (c *LRCLibClient) Search(ctx context.Context, params url.Values) ([]models.LyricsResult, error) {
	endpoint, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLyricsQueryFailed, "Failed to build lyrics request", err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLyricsQueryFailed, "Failed to build lyrics request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status code: %d", ErrUnavailable, resp.StatusCode)
	}

	var results []models.LyricsResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apperr.Wrap(apperr.KindLyricsQueryFailed, "Failed to decode lyrics response", err)
	}
	return results, nil
}
