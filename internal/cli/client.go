package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiClient talks to a payment-health server.
type apiClient struct {
	base string
	h    *http.Client
}

func newAPIClient(base string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &apiClient{base: strings.TrimRight(base, "/"), h: &http.Client{Timeout: timeout}}
}

func (c *apiClient) get(ctx context.Context, path string, q url.Values) ([]byte, string, error) {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.h.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, "", fmt.Errorf("%s: %s (%d)", path, apiErr.Error, resp.StatusCode)
		}
		return nil, "", fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	body, _, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
