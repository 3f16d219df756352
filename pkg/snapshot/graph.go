package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Microsoft Graph beta endpoint.
	DefaultBaseURL = "https://graph.microsoft.com/beta"

	createSnapshotPath = "/admin/configurationManagement/configurationSnapshots/createSnapshot"
	snapshotJobsPath   = "/admin/configurationManagement/configurationSnapshotJobs"

	DefaultPageSize         = 50
	DefaultRequestTimeout   = 60 * time.Second
	DefaultRetryCount       = 3
	DefaultRetryWaitTime    = 500 * time.Millisecond
	DefaultRetryMaxWaitTime = 10 * time.Second
)

// GraphClient implements JobAPI and SnapshotFetcher over Microsoft Graph.
type GraphClient struct {
	http     *resty.Client
	tokens   TokenProvider
	logger   *zap.Logger
	baseURL  string
	scopes   []string
	pageSize int

	timeout      time.Duration
	retryCount   int
	retryWait    time.Duration
	retryMaxWait time.Duration
}

// GraphOption configures the GraphClient.
type GraphOption func(*GraphClient)

// WithBaseURL overrides the Graph base URL.
func WithBaseURL(u string) GraphOption {
	return func(c *GraphClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithGraphLogger sets the logger.
func WithGraphLogger(l *zap.Logger) GraphOption {
	return func(c *GraphClient) {
		c.logger = l
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) GraphOption {
	return func(c *GraphClient) {
		c.timeout = d
	}
}

// WithRetry configures transport retries for throttling and server errors.
func WithRetry(count int, wait, maxWait time.Duration) GraphOption {
	return func(c *GraphClient) {
		c.retryCount = count
		c.retryWait = wait
		c.retryMaxWait = maxWait
	}
}

// WithPageSize sets the $top value used when listing jobs.
func WithPageSize(n int) GraphOption {
	return func(c *GraphClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithScopes overrides the token scopes.
func WithScopes(scopes ...string) GraphOption {
	return func(c *GraphClient) {
		c.scopes = scopes
	}
}

// NewGraphClient creates a new Graph client.
func NewGraphClient(tokens TokenProvider, opts ...GraphOption) *GraphClient {
	c := &GraphClient{
		tokens:       tokens,
		logger:       zap.NewNop(),
		baseURL:      DefaultBaseURL,
		scopes:       []string{GraphScope},
		pageSize:     DefaultPageSize,
		timeout:      DefaultRequestTimeout,
		retryCount:   DefaultRetryCount,
		retryWait:    DefaultRetryWaitTime,
		retryMaxWait: DefaultRetryMaxWaitTime,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = c.newHTTPClient()
	return c
}

func (c *GraphClient) newHTTPClient() *resty.Client {
	h := resty.New()
	h.SetLogger(c.logger.Sugar())
	h.SetBaseURL(c.baseURL)
	h.SetTimeout(c.timeout)
	h.SetRetryCount(c.retryCount)
	h.SetRetryWaitTime(c.retryWait)
	h.SetRetryMaxWaitTime(c.retryMaxWait)
	h.AddRetryCondition(func(response *resty.Response, err error) bool {
		if response == nil {
			return false
		}
		// 409 drives the conflict protocol and is never retried here.
		switch response.StatusCode() {
		case
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	})
	h.AddRetryHook(func(response *resty.Response, err error) {
		if response != nil && response.Request != nil {
			c.logger.Warn("retrying graph request",
				zap.String("method", response.Request.Method),
				zap.String("url", response.Request.URL),
				zap.Int("status", response.StatusCode()))
		}
	})
	h.OnAfterResponse(func(_ *resty.Client, response *resty.Response) error {
		c.logger.Debug("graph response",
			zap.String("method", response.Request.Method),
			zap.String("url", response.Request.URL),
			zap.Int("status", response.StatusCode()),
			zap.Duration("elapsed", response.Time()))
		return nil
	})
	return h
}

// request builds an authenticated request.
func (c *GraphClient) request(ctx context.Context, op string) (*resty.Request, error) {
	tok, err := c.tokens.Token(ctx, TokenRequest{Scopes: c.scopes})
	if err != nil {
		return nil, ErrAuth("failed to acquire Microsoft Graph token").WithOperation(op).WithCause(err)
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.Token).
		SetHeader("Accept", "application/json").
		SetHeader("client-request-id", uuid.NewString()), nil
}

// CreateSnapshot implements JobAPI.
func (c *GraphClient) CreateSnapshot(ctx context.Context, req CreateRequest) (*ExportJob, error) {
	const op = "create_snapshot"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := r.
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(createSnapshotPath)
	if err != nil {
		return nil, ErrTransport(0, "createSnapshot request failed").WithOperation(op).WithCause(err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		return nil, ErrConflict("createSnapshot returned 409: " + FormatGraphError(resp.Body())).
			WithOperation(op).
			WithDetail("displayName", req.DisplayName)
	case code < 200 || code > 299:
		return nil, ErrTransport(code, fmt.Sprintf("createSnapshot failed (%d): %s", code, FormatGraphError(resp.Body()))).
			WithOperation(op)
	}

	return decodeJob(resp.Body(), op)
}

// GetJob implements JobAPI.
func (c *GraphClient) GetJob(ctx context.Context, id string) (*ExportJob, error) {
	const op = "get_job"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := r.Get(snapshotJobsPath + "/" + url.PathEscape(id))
	if err != nil {
		return nil, ErrTransport(0, "get job request failed").WithOperation(op).WithJob(id).WithCause(err)
	}
	if !resp.IsSuccess() {
		return nil, ErrTransport(resp.StatusCode(),
			fmt.Sprintf("get job failed (%d): %s", resp.StatusCode(), FormatGraphError(resp.Body()))).
			WithOperation(op).
			WithJob(id)
	}

	return decodeJob(resp.Body(), op)
}

// ListJobs implements JobAPI.
// Entries without an id are returned as-is; callers decide how to treat them.
func (c *GraphClient) ListJobs(ctx context.Context, nextLink string) (*JobPage, error) {
	const op = "list_jobs"

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}

	var resp *resty.Response
	if nextLink != "" {
		resp, err = r.Get(nextLink)
	} else {
		resp, err = r.SetQueryParam("$top", strconv.Itoa(c.pageSize)).Get(snapshotJobsPath)
	}
	if err != nil {
		return nil, ErrTransport(0, "list jobs request failed").WithOperation(op).WithCause(err)
	}
	if !resp.IsSuccess() {
		return nil, ErrTransport(resp.StatusCode(),
			fmt.Sprintf("list jobs failed (%d): %s", resp.StatusCode(), FormatGraphError(resp.Body()))).
			WithOperation(op)
	}

	var body struct {
		Value    json.RawMessage `json:"value"`
		NextLink string          `json:"@odata.nextLink"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, ErrMalformed("job listing is not a JSON object").WithOperation(op).WithCause(err)
	}

	page := &JobPage{NextLink: body.NextLink}
	if len(body.Value) == 0 || string(body.Value) == "null" {
		return page, nil
	}

	var items []interface{}
	if err := json.Unmarshal(body.Value, &items); err != nil {
		return nil, ErrMalformed("job listing 'value' is not a list").WithOperation(op).WithCause(err)
	}
	for _, item := range items {
		raw, ok := item.(map[string]interface{})
		if !ok {
			c.logger.Warn("skipping non-object job entry", zap.String("operation", op))
			continue
		}
		page.Jobs = append(page.Jobs, jobFromRaw(raw))
	}
	return page, nil
}

// DeleteJob implements JobAPI.
func (c *GraphClient) DeleteJob(ctx context.Context, id string) error {
	const op = "delete_job"

	r, err := c.request(ctx, op)
	if err != nil {
		return err
	}
	resp, err := r.Delete(snapshotJobsPath + "/" + url.PathEscape(id))
	if err != nil {
		return ErrTransport(0, "delete job request failed").WithOperation(op).WithJob(id).WithCause(err)
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	default:
		return ErrTransport(resp.StatusCode(),
			fmt.Sprintf("delete job %s failed (%d): %s", id, resp.StatusCode(), FormatGraphError(resp.Body()))).
			WithOperation(op).
			WithJob(id)
	}
}

// FetchSnapshot implements SnapshotFetcher.
func (c *GraphClient) FetchSnapshot(ctx context.Context, location string) ([]byte, error) {
	const op = "fetch_snapshot"

	if strings.TrimSpace(location) == "" {
		return nil, ErrValidation("resource location is required").WithOperation(op)
	}

	r, err := c.request(ctx, op)
	if err != nil {
		return nil, err
	}
	resp, err := r.Get(location)
	if err != nil {
		return nil, ErrTransport(0, "snapshot download failed").WithOperation(op).WithCause(err)
	}
	if !resp.IsSuccess() {
		return nil, ErrTransport(resp.StatusCode(),
			fmt.Sprintf("snapshot download failed (%d): %s", resp.StatusCode(), FormatGraphError(resp.Body()))).
			WithOperation(op).
			WithDetail("location", location)
	}
	return resp.Body(), nil
}

// FormatGraphError renders a Graph error body as
// "code: message | details: dcode (target): dmsg; ...".
// Bodies that are not Graph errors are returned trimmed.
func FormatGraphError(body []byte) string {
	text := strings.TrimSpace(string(body))

	var payload struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details []struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				Target  string `json:"target"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		if text == "" {
			return "<no response body>"
		}
		return text
	}

	e := payload.Error
	msg := orDefault(e.Code, "unknown") + ": " + orDefault(e.Message, "No message returned")
	if len(e.Details) == 0 {
		return msg
	}

	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		code := orDefault(d.Code, "unknown")
		if d.Target != "" {
			parts = append(parts, fmt.Sprintf("%s (%s): %s", code, d.Target, d.Message))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", code, d.Message))
		}
	}
	return msg + " | details: " + strings.Join(parts, "; ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
