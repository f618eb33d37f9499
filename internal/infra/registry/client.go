package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"toolpak/internal/domain"
)

// Client talks to the remote tool registry. Calls are synchronous and carry
// only a basic request timeout; retry policy is the caller's concern.
type Client struct {
	logger  *zap.Logger
	baseURL string
	http    *http.Client
}

type Options struct {
	Logger  *zap.Logger
	BaseURL string
	Timeout time.Duration
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, domain.E(domain.CodeInvalidArgument, "registry.new", "base URL is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultRegistryTimeoutSeconds * time.Second
	}
	return &Client{
		logger:  logger.Named("registry"),
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Upload publishes a transportable package payload.
func (c *Client) Upload(ctx context.Context, payload domain.PackagePayload) error {
	const op = "registry.upload"
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/upload", bytes.NewReader(body))
	if err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.E(domain.CodeUnavailable, op, "", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return err
	}
	c.logger.Info("tool uploaded",
		zap.String("author", payload.Author),
		zap.String("name", payload.Name),
		zap.String("version", payload.Version),
	)
	return nil
}

// Download fetches a package payload. An empty version asks the registry for
// its newest; the response carries the resolved version either way.
func (c *Client) Download(ctx context.Context, author, name, version string) (domain.PackagePayload, error) {
	const op = "registry.download"
	params := url.Values{"author": {author}, "name": {name}}
	if version != "" {
		params.Set("version", version)
	}
	var payload domain.PackagePayload
	if err := c.getJSON(ctx, op, "/tools/download", params, &payload); err != nil {
		return domain.PackagePayload{}, err
	}
	if payload.Version == "" {
		payload.Version = version
	}
	return payload, nil
}

// List returns every tool the registry advertises.
func (c *Client) List(ctx context.Context) ([]domain.ToolListing, error) {
	const op = "registry.list"
	var listings []domain.ToolListing
	if err := c.getJSON(ctx, op, "/tools/list", nil, &listings); err != nil {
		return nil, err
	}
	return listings, nil
}

type updateResponse struct {
	UpdateAvailable bool `json:"update_available"`
}

// CheckUpdates asks the registry whether a newer version than current exists.
func (c *Client) CheckUpdates(ctx context.Context, author, name, current string) (bool, error) {
	const op = "registry.check_updates"
	canonical, ok := canonicalVersion(current)
	if !ok {
		return false, domain.E(domain.CodeBadVersion, op,
			fmt.Sprintf("current version %q is not comparable", current), nil)
	}
	params := url.Values{
		"author":          {author},
		"name":            {name},
		"current_version": {canonical},
	}
	var resp updateResponse
	if err := c.getJSON(ctx, op, "/tools/check_updates", params, &resp); err != nil {
		return false, err
	}
	return resp.UpdateAvailable, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.E(domain.CodeInternal, op, "", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.E(domain.CodeUnavailable, op, "", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.E(domain.CodeUnavailable, op, "response does not parse", err)
	}
	return nil
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.E(domain.CodeNotFound, op, "", domain.ErrToolNotFound)
	}
	return domain.E(domain.CodeUnavailable, op, fmt.Sprintf("unexpected status: %s", resp.Status), nil)
}

// canonicalVersion normalizes a bare version string into something the
// registry can compare, dropping the leading "v" again on the way out.
func canonicalVersion(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	if !strings.HasPrefix(value, "v") {
		value = "v" + value
	}
	canonical := semver.Canonical(value)
	if canonical == "" {
		return "", false
	}
	return strings.TrimPrefix(canonical, "v"), true
}
