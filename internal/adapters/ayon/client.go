// Package ayon calls the aqsync addon endpoints of an AYON server. The
// processor uses it when it runs outside the API process.
package ayon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/pkg/logger"
)

const (
	defaultTimeout      = 60 * time.Second
	defaultAddonName    = "aquarium"
	defaultAddonVersion = "1.0.0"
)

// Client talks to one AYON server.
type Client struct {
	baseURL      string
	apiKey       string
	addonName    string
	addonVersion string
	http         *http.Client
	logger       logger.Logger
}

// New creates a Client for the AYON server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		addonName:    defaultAddonName,
		addonVersion: defaultAddonVersion,
		http:         &http.Client{Timeout: defaultTimeout},
		logger:       logger.Get().Named("ayon"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Entrypoint is the path prefix of the addon endpoints.
func (c *Client) Entrypoint() string {
	return Entrypoint(c.addonName, c.addonVersion)
}

// Entrypoint is the path prefix AYON serves the endpoints of an addon
// version under. Empty parts fall back to the defaults.
func Entrypoint(name, version string) string {
	if name == "" {
		name = defaultAddonName
	}
	if version == "" {
		version = defaultAddonVersion
	}
	return "/api/addons/" + url.PathEscape(name) + "/" + url.PathEscape(version)
}

func projectPath(project, suffix string) string {
	return "/projects/" + url.PathEscape(project) + suffix
}

// Pairings lists Aquarium projects and the AYON project each is paired with.
func (c *Client) Pairings(ctx context.Context) ([]model.Pairing, error) {
	var out []model.Pairing
	if err := c.do(ctx, http.MethodGet, "/projects/pair", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Users lists AYON users with their email.
func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SyncAllRequest is the body of a full project sync.
type SyncAllRequest struct {
	EventID string      `json:"eventId"`
	Items   model.Batch `json:"items"`
}

// SyncAll upserts a whole batch into project. Progress is written to the
// summary of eventID by the server.
func (c *Client) SyncAll(ctx context.Context, project, eventID string, batch model.Batch) (string, error) {
	var reply string
	if err := c.do(ctx, http.MethodPost, projectPath(project, "/sync/all"), SyncAllRequest{EventID: eventID, Items: batch}, &reply); err != nil {
		return "", err
	}
	return reconcile.ParseReply(reply)
}

// SyncFolderRequest is the body of a folder sync.
type SyncFolderRequest struct {
	Folder model.Folder `json:"folder"`
	Path   model.Path   `json:"path"`
}

// SyncFolder upserts one folder and returns its AYON id. A rejected record
// comes back as the matching reconcile sentinel.
func (c *Client) SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error) {
	var reply string
	if err := c.do(ctx, http.MethodPost, projectPath(project, "/sync/folder"), SyncFolderRequest{Folder: folder, Path: path}, &reply); err != nil {
		return "", err
	}
	return reconcile.ParseReply(reply)
}

// SyncTaskRequest is the body of a task sync.
type SyncTaskRequest struct {
	Task model.Task `json:"task"`
	Path model.Path `json:"path"`
}

// SyncTask upserts one task and returns its AYON id.
func (c *Client) SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error) {
	var reply string
	if err := c.do(ctx, http.MethodPost, projectPath(project, "/sync/task"), SyncTaskRequest{Task: task, Path: path}, &reply); err != nil {
		return "", err
	}
	return reconcile.ParseReply(reply)
}

// Attributes reads the attributes AYON would derive from the paired
// Aquarium project.
func (c *Client) Attributes(ctx context.Context, project string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, projectPath(project, "/anatomy/attributes"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProjectAttrib merges attrib into the project attributes.
func (c *Client) UpdateProjectAttrib(ctx context.Context, project string, attrib map[string]any) error {
	return c.do(ctx, http.MethodPatch, projectPath(project, ""), map[string]any{"attrib": attrib}, nil)
}

// Bootstrap creates an Aquarium project named aquariumProjectName from the
// AYON project hierarchy and returns the new Aquarium project key.
func (c *Client) Bootstrap(ctx context.Context, project, aquariumProjectName string) (string, error) {
	var out struct {
		AquariumProjectKey string `json:"aquariumProjectKey"`
	}
	body := map[string]string{"aquariumProjectName": aquariumProjectName}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "/bootstrap"), body, &out); err != nil {
		return "", err
	}
	return out.AquariumProjectKey, nil
}

// TriggerSync requests a full sync of project and returns the event id.
func (c *Client) TriggerSync(ctx context.Context, project string) (string, error) {
	var out struct {
		EventID string `json:"eventId"`
	}
	if err := c.do(ctx, http.MethodPost, projectPath(project, "/sync"), struct{}{}, &out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

// Event reads a sync event joined with the status of its processing job.
func (c *Client) Event(ctx context.Context, id string) (*model.EventView, error) {
	var out model.EventView
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, &out); err != nil {
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
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.Entrypoint()+path, body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ayon %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug(ctx, "ayon request",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Int("duration_ms", int(time.Since(start).Milliseconds())))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, ErrConflict)
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
