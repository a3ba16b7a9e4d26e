// Package remote talks to the orchestration service's flow API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/log"
)

// Auth modes.
const (
	AuthBasic  = "basic"
	AuthBearer = "bearer"
)

// Body formats.
const (
	BodyJSON = "json"
	BodyYAML = "yaml"
)

const (
	routeFlows = "/api/v1/flows"

	// DefaultTimeout bounds every outbound request.
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "flowsync/1.0"

	// maxBodyBytes caps how much of a response body is kept for logs.
	maxBodyBytes = 1 << 20
)

var (
	ErrNoBaseURL   = errors.New("remote base url is required")
	ErrBadAuthMode = errors.New("unknown auth mode")
	ErrBadFormat   = errors.New("unknown body format")
)

type (
	// Options configures a Client.
	Options struct {
		BaseURL    string
		Auth       string // AuthBasic or AuthBearer
		Username   string
		Password   string
		Token      string
		Timeout    time.Duration
		BodyFormat string // BodyJSON or BodyYAML
		UserAgent  string

		// HTTPClient overrides the transport, mostly for tests.
		HTTPClient *http.Client
	}

	// Client issues create and update calls for flow definitions.
	Client struct {
		httpClient *http.Client
		baseURL    string
		opts       Options
	}

	// Response is the raw outcome of one request. Any HTTP status is a
	// Response; only transport failures are returned as errors.
	Response struct {
		Status    int
		Body      []byte
		RequestID string
		Duration  time.Duration
	}
)

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrNoBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing remote url: %w", err)
	}
	switch opts.Auth {
	case "", AuthBasic, AuthBearer:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadAuthMode, opts.Auth)
	}
	switch opts.BodyFormat {
	case "":
		opts.BodyFormat = BodyJSON
	case BodyJSON, BodyYAML:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadFormat, opts.BodyFormat)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{httpClient: hc, baseURL: base, opts: opts}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create posts def as a new flow.
func (c *Client) Create(ctx context.Context, def *definition.Definition) (Response, error) {
	return c.send(ctx, http.MethodPost, c.url(routeFlows), def)
}

// Update replaces the flow at ref with def.
func (c *Client) Update(ctx context.Context, ref definition.Ref, def *definition.Definition) (Response, error) {
	return c.send(ctx, http.MethodPut, c.url(FlowPath(ref)), def)
}

// FlowPath returns the update route for ref, with escaped segments.
func FlowPath(ref definition.Ref) string {
	return routeFlows + "/" + url.PathEscape(ref.Namespace) + "/" + url.PathEscape(ref.ID)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) send(ctx context.Context, method, target string, def *definition.Definition) (Response, error) {
	body, contentType, err := c.encode(def)
	if err != nil {
		return Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("building request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("X-Request-ID", reqID)
	switch c.opts.Auth {
	case AuthBasic:
		req.SetBasicAuth(c.opts.Username, c.opts.Password)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	dur := time.Since(start)
	if err != nil {
		log.Debug(log.CatRemote, "request failed",
			"method", method, "url", target, "request_id", reqID, "duration", dur, "error", err.Error())
		return Response{RequestID: reqID, Duration: dur}, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{Status: resp.StatusCode, RequestID: reqID, Duration: dur},
			fmt.Errorf("reading response body: %w", err)
	}

	log.Debug(log.CatRemote, "request completed",
		"method", method, "url", target, "status", resp.StatusCode, "request_id", reqID, "duration", dur)

	return Response{
		Status:    resp.StatusCode,
		Body:      respBody,
		RequestID: reqID,
		Duration:  dur,
	}, nil
}

func (c *Client) encode(def *definition.Definition) ([]byte, string, error) {
	if c.opts.BodyFormat == BodyYAML {
		return def.Raw, "application/x-yaml", nil
	}
	data, err := json.Marshal(def.Document)
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s as json: %w", def.Path, err)
	}
	return data, "application/json", nil
}
