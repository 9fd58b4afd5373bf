// Package ingest fetches raw entity signals from the upstream signal
// service over HTTP.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNoSignals is returned when the upstream has no record of an entity.
var ErrNoSignals = errors.New("no signals for entity")

// SignalsResponse is the upstream payload. Values stay untyped until the
// signal registry validates them.
type SignalsResponse struct {
	EntityID string         `json:"entity_id"`
	Signals  map[string]any `json:"signals"`
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type statusError struct {
	method, path string
	code         int
	body         string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ingest %s %s: %d %s", e.method, e.path, e.code, e.body)
}

func (c *HTTPClient) doReq(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &statusError{method: method, path: path, code: resp.StatusCode, body: string(body)}
	}
	return body, nil
}

// GetSignals returns the raw signals for one entity. A 404 maps to
// ErrNoSignals so callers can treat it as "every signal missing".
func (c *HTTPClient) GetSignals(ctx context.Context, entityID string) (map[string]any, error) {
	path := "/v1/entities/" + url.PathEscape(entityID) + "/signals"
	data, err := c.doReq(ctx, http.MethodGet, path)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", entityID, ErrNoSignals)
		}
		return nil, err
	}
	var resp SignalsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode signals for %s: %w", entityID, err)
	}
	if resp.Signals == nil {
		resp.Signals = map[string]any{}
	}
	return resp.Signals, nil
}
