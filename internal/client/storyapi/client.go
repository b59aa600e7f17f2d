package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"plotline/internal/capabilities"
	"plotline/internal/domain/models/story"
	"plotline/internal/domain/services/generation"
	storySvc "plotline/internal/domain/services/story"
)

const (
	// DefaultRequestTimeout bounds ordinary CRUD requests
	DefaultRequestTimeout = 15 * time.Second
	// DefaultGenerationTimeout bounds continue and regenerate
	DefaultGenerationTimeout = 2 * time.Minute
	// DefaultMaxBeacons caps fire-and-forget deliveries in flight
	DefaultMaxBeacons = 16
)

// Options configures a Client. Zero values use the defaults above.
type Options struct {
	HTTPClient        *http.Client
	RequestTimeout    time.Duration
	GenerationTimeout time.Duration
	MaxBeacons        int
	Logger            *slog.Logger
	// OnBeaconFailure is called from the beacon goroutine when a beacon
	// could not be delivered
	OnBeaconFailure func(id string, req *storySvc.UpdateRequest, err error)
}

// Client talks to the story service over HTTP
type Client struct {
	baseURL           string
	httpClient        *http.Client
	requestTimeout    time.Duration
	generationTimeout time.Duration
	logger            *slog.Logger
	onBeaconFailure   func(id string, req *storySvc.UpdateRequest, err error)

	beaconSlots chan struct{}
	beacons     sync.WaitGroup
	beaconMu    sync.Mutex
	beaconSeq   uint64
	inflight    map[uint64]Beacon
}

// New creates a client for the service at baseURL
func New(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        opts.HTTPClient,
		requestTimeout:    opts.RequestTimeout,
		generationTimeout: opts.GenerationTimeout,
		logger:            opts.Logger,
		onBeaconFailure:   opts.OnBeaconFailure,
		inflight:          make(map[uint64]Beacon),
	}
	if c.httpClient == nil {
		// Deadlines come from per-call contexts
		c.httpClient = &http.Client{}
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.generationTimeout <= 0 {
		c.generationTimeout = DefaultGenerationTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	maxBeacons := opts.MaxBeacons
	if maxBeacons <= 0 {
		maxBeacons = DefaultMaxBeacons
	}
	c.beaconSlots = make(chan struct{}, maxBeacons)
	return c
}

// GetPath fetches the root-to-head path. A non-empty headID wins over branch.
func (c *Client) GetPath(ctx context.Context, storyName, branch, headID string) (*story.PathResult, error) {
	query := url.Values{}
	if branch != "" {
		query.Set("branch", branch)
	}
	if headID != "" {
		query.Set("head_id", headID)
	}
	path := storyPath(storyName, "path")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var result story.PathResult
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTree lists every parent with its children
func (c *Client) GetTree(ctx context.Context, storyName string) ([]story.TreeEntry, error) {
	var tree []story.TreeEntry
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, storyPath(storyName, "tree"), nil, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Append creates a snippet under req.ParentID or the branch head
func (c *Client) Append(ctx context.Context, req *storySvc.AppendRequest) (*story.Snippet, error) {
	var snippet story.Snippet
	if err := c.do(ctx, c.requestTimeout, http.MethodPost, storyPath(req.Story, "snippets"), req, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// InsertAbove creates a snippet between req.TargetID and its parent
func (c *Client) InsertAbove(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error) {
	return c.insert(ctx, "insert-above", req)
}

// InsertBelow creates a snippet between req.TargetID and its active child
func (c *Client) InsertBelow(ctx context.Context, req *storySvc.InsertRequest) (*story.Snippet, error) {
	return c.insert(ctx, "insert-below", req)
}

func (c *Client) insert(ctx context.Context, op string, req *storySvc.InsertRequest) (*story.Snippet, error) {
	var snippet story.Snippet
	path := storyPath(req.Story, "snippets", req.TargetID, op)
	if err := c.do(ctx, c.requestTimeout, http.MethodPost, path, req, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// Update changes content and/or kind of a snippet
func (c *Client) Update(ctx context.Context, id string, req *storySvc.UpdateRequest) (*story.Snippet, error) {
	var snippet story.Snippet
	if err := c.do(ctx, c.requestTimeout, http.MethodPatch, "/api/snippets/"+url.PathEscape(id), req, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// Delete removes a snippet
func (c *Client) Delete(ctx context.Context, storyName, id string) error {
	return c.do(ctx, c.requestTimeout, http.MethodDelete, storyPath(storyName, "snippets", id), nil, nil)
}

// Regenerate asks for an ai alternative to req.TargetID
func (c *Client) Regenerate(ctx context.Context, req *storySvc.RegenerateRequest) (*story.Snippet, error) {
	var snippet story.Snippet
	path := storyPath(req.Story, "snippets", req.TargetID, "regenerate")
	if err := c.do(ctx, c.generationTimeout, http.MethodPost, path, req, &snippet); err != nil {
		return nil, err
	}
	return &snippet, nil
}

// ChooseActiveChild switches which child of req.ParentID is active
func (c *Client) ChooseActiveChild(ctx context.Context, req *storySvc.ChooseActiveChildRequest) error {
	path := storyPath(req.Story, "snippets", req.ParentID, "active-child")
	return c.do(ctx, c.requestTimeout, http.MethodPut, path, req, nil)
}

// ListBranches lists a story's branches
func (c *Client) ListBranches(ctx context.Context, storyName string) ([]story.Branch, error) {
	var branches []story.Branch
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, storyPath(storyName, "branches"), nil, &branches); err != nil {
		return nil, err
	}
	return branches, nil
}

// CreateBranch registers a named pointer. When the name is taken the
// existing branch is returned together with a conflict error.
func (c *Client) CreateBranch(ctx context.Context, req *storySvc.CreateBranchRequest) (*story.Branch, error) {
	var branch story.Branch
	err := c.do(ctx, c.requestTimeout, http.MethodPost, storyPath(req.Story, "branches"), req, &branch)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			var existing story.Branch
			if json.Unmarshal(apiErr.Body, &existing) == nil && existing.Name != "" {
				return &existing, err
			}
		}
		return nil, err
	}
	return &branch, nil
}

// MoveBranch repoints an existing branch
func (c *Client) MoveBranch(ctx context.Context, req *storySvc.MoveBranchRequest) (*story.Branch, error) {
	var branch story.Branch
	path := storyPath(req.Story, "branches") + "/" + escapeSegments(req.Name)
	if err := c.do(ctx, c.requestTimeout, http.MethodPut, path, req, &branch); err != nil {
		return nil, err
	}
	return &branch, nil
}

// DeleteBranch removes a named pointer
func (c *Client) DeleteBranch(ctx context.Context, storyName, name string) error {
	path := storyPath(storyName, "branches") + "/" + escapeSegments(name)
	return c.do(ctx, c.requestTimeout, http.MethodDelete, path, nil, nil)
}

// Continue generates a continuation of req.DraftText
func (c *Client) Continue(ctx context.Context, req *generation.ContinueRequest) (*generation.ContinueResponse, error) {
	var resp generation.ContinueResponse
	if err := c.do(ctx, c.generationTimeout, http.MethodPost, "/api/generate/continue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelList is the server's generation catalogue
type ModelList struct {
	DefaultModel string                           `json:"default_model"`
	Models       []capabilities.ModelCapabilities `json:"models"`
}

// ListModels returns the models the server can generate with
func (c *Client) ListModels(ctx context.Context) (*ModelList, error) {
	var list ModelList
	if err := c.do(ctx, c.requestTimeout, http.MethodGet, "/api/models", nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Health checks that the service is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, c.requestTimeout, http.MethodGet, "/health", nil, nil)
}

// do sends one JSON request bounded by timeout and decodes a 2xx body into out
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp.StatusCode, data)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: failed to parse response: %w", method, path, err)
	}
	return nil
}

func storyPath(storyName string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/api/stories/")
	b.WriteString(url.PathEscape(storyName))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// escapeSegments escapes a branch name but keeps its slashes
func escapeSegments(name string) string {
	segments := strings.Split(name, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return strings.Join(segments, "/")
}
