// Package source provides CardSource implementations that live outside the
// local card store.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/simp-lee/waterfall/internal/domain"
)

const maxBodyBytes = 8 << 20

// Remote fetches card pages from another service speaking the same JSON
// envelope as this one: GET <url>?page=N&page_size=M answering
// {"code":200,"message":"success","data":{"items":[...]}}. A bare array in
// data is accepted as well.
type Remote struct {
	client  *http.Client
	baseURL *url.URL
}

// NewRemote validates rawURL and creates a source with the given request timeout.
func NewRemote(rawURL string, timeout time.Duration) (*Remote, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse remote source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote source url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote source url %q: host is required", rawURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		client:  &http.Client{Timeout: timeout},
		baseURL: u,
	}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Fetch implements domain.CardSource.
func (r *Remote) Fetch(ctx context.Context, page, pageSize int) ([]domain.CardItem, error) {
	u := *r.baseURL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Message != "" {
			return nil, fmt.Errorf("fetch page %d: status %d: %s", page, resp.StatusCode, env.Message)
		}
		return nil, fmt.Errorf("fetch page %d: status %d", page, resp.StatusCode)
	}

	return decodeItems(body)
}

func decodeItems(body []byte) ([]domain.CardItem, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errors.New("decode envelope: data is missing")
	}

	if data[0] == '[' {
		var items []domain.CardItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		return items, nil
	}

	var paged struct {
		Items []domain.CardItem `json:"items"`
	}
	if err := json.Unmarshal(data, &paged); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return paged.Items, nil
}
