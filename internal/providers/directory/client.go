package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studiofinder/suggestservice/internal/suggest"
)

const (
	defaultUserAgent = "studiofinder-suggest/1.0"
	usersPath        = "/api/search/users"
	studiosPath      = "/api/search/studios"
	maxResponseBytes = 512 * 1024
)

type Config struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

type client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func newClient(cfg Config) client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		userAgent: userAgent,
		http:      httpClient,
	}
}

func (c client) enabled() bool {
	return c.baseURL != ""
}

func (c client) search(ctx context.Context, path, query string, target any) error {
	uri, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid directory endpoint: %w", err)
	}
	params := uri.Query()
	params.Set("q", strings.TrimSpace(query))
	uri.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &suggest.HTTPStatusError{Upstream: "directory", Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("directory decode: %w", err)
	}
	return nil
}
