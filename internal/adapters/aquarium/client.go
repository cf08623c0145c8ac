// Package aquarium is a small client for the Aquarium REST API and its live
// event stream.
package aquarium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/template"
	"github.com/okian/aqsync/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client talks to one Aquarium instance.
type Client struct {
	baseURL string
	domain  string
	http    *http.Client

	mu    sync.RWMutex
	token string

	logger logger.Logger
}

// New creates a Client for baseURL, e.g. https://aquarium.example.com/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.Get().Named("aquarium"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Connected reports whether the client holds a token.
func (c *Client) Connected() bool { return c.Token() != "" }

// SignIn authenticates a bot and keeps the token for later calls.
func (c *Client) SignIn(ctx context.Context, botKey, secret string) (string, error) {
	if botKey == "" || secret == "" {
		return "", fmt.Errorf("%w: missing bot key or secret", ErrAuthentication)
	}
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/bots/"+url.PathEscape(botKey)+"/signin", map[string]string{"secret": secret}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuthentication)
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return out.Token, nil
}

type meshRequest struct {
	Meshql  string         `json:"meshql"`
	Aliases map[string]any `json:"aliases,omitempty"`
}

// Query runs a meshql query from the root and decodes the rows into out.
func (c *Client) Query(ctx context.Context, meshql string, aliases map[string]any, out any) error {
	return c.do(ctx, http.MethodPost, "/query", meshRequest{Meshql: meshql, Aliases: aliases}, out)
}

// Traverse runs a meshql query starting at startKey.
func (c *Client) Traverse(ctx context.Context, startKey, meshql string, aliases map[string]any, out any) error {
	return c.do(ctx, http.MethodPost, "/items/"+url.PathEscape(startKey)+"/traverse", meshRequest{Meshql: meshql, Aliases: aliases}, out)
}

// Import creates items and edges in one request. Edge indices point into
// items. An empty parentKey imports at the root. The created items come
// back in input order.
func (c *Client) Import(ctx context.Context, parentKey string, items []model.Item, edges []template.Edge) ([]model.Item, error) {
	path := "/items/import"
	if parentKey != "" {
		path = "/items/" + url.PathEscape(parentKey) + "/import"
	}
	body := struct {
		Items []model.Item    `json:"items"`
		Edges []template.Edge `json:"edges"`
	}{Items: items, Edges: edges}
	var out struct {
		Items []model.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if len(out.Items) != len(items) {
		return nil, fmt.Errorf("aquarium import created %d of %d items", len(out.Items), len(items))
	}
	return out.Items, nil
}

// Projects lists the projects the bot can see.
func (c *Client) Projects(ctx context.Context) ([]model.Item, error) {
	var out []model.Item
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Item reads one item.
func (c *Client) Item(ctx context.Context, key string) (*model.Item, error) {
	var out model.Item
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.domain != "" {
		req.Header.Set("X-Aquarium-Domain", c.domain)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("aquarium %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrAuthentication, method, path, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode >= http.StatusBadRequest:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
