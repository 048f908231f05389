// Package giphy searches Giphy for a random GIF small enough for chat
// clients to unfurl inline.
package giphy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultEndpoint = "https://api.giphy.com/v1/gifs/search"
	DefaultLimit    = 40
	// 超过 2MB 的图片聊天客户端不会自动展开
	DefaultMaxSizeBytes = 2000000
)

var (
	ErrNoAPIKey  = errors.New("giphy: no api key configured")
	ErrNoResults = errors.New("giphy: no usable results")
)

type searchResponse struct {
	Data []struct {
		Images struct {
			FixedHeight struct {
				URL  string `json:"url"`
				Size string `json:"size"`
			} `json:"fixed_height"`
		} `json:"images"`
	} `json:"data"`
}

type Client struct {
	APIKey       string
	Endpoint     string
	Limit        int
	MaxSizeBytes int
	HTTPClient   *http.Client
	rand         func() float64
}

func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		APIKey:       apiKey,
		Endpoint:     DefaultEndpoint,
		Limit:        DefaultLimit,
		MaxSizeBytes: DefaultMaxSizeBytes,
		HTTPClient:   &http.Client{Timeout: timeout},
		rand:         rand.Float64,
	}
}

// Search returns the URL of a random fixed-height rendition matching term.
// A cache-busting query parameter is appended so repeated images still
// unfurl.
func (c *Client) Search(ctx context.Context, term string) (string, error) {
	if c.APIKey == "" {
		return "", ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("api_key", c.APIKey)
	q.Set("q", term)
	q.Set("limit", strconv.Itoa(c.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("giphy search %q: %w", term, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("giphy search %q: unexpected status %d", term, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("giphy search %q: decode: %w", term, err)
	}

	var candidates []string
	for _, d := range body.Data {
		img := d.Images.FixedHeight
		if img.URL == "" {
			continue
		}
		size, err := strconv.Atoi(img.Size)
		if err != nil || size >= c.MaxSizeBytes {
			continue
		}
		candidates = append(candidates, img.URL)
	}
	if len(candidates) == 0 {
		return "", ErrNoResults
	}

	pick := candidates[int(c.rand()*float64(len(candidates)))%len(candidates)]
	return withCacheBuster(pick, c.rand()), nil
}

func withCacheBuster(raw string, r float64) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw + "?rand=" + strconv.FormatFloat(r, 'f', -1, 64)
	}
	q := u.Query()
	q.Set("rand", strconv.FormatFloat(r, 'f', -1, 64))
	u.RawQuery = q.Encode()
	return u.String()
}
