// Package transport is the single HTTP adapter between the portal
// client and the Homobie backend. It attaches bearer credentials from
// a TokenSource, classifies failures, and applies one 401 policy
// everywhere: refresh once, replay the request once, then invalidate
// the session.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	cerrors "github.com/homobie/portal-go/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultTimeout = 120 * time.Second

// TokenSource supplies and maintains the bearer credential. Token
// returns the current access token (empty when anonymous), Refresh
// attempts to mint a new one (single-flight is the implementation's
// concern), and Invalidate tears the session down after an
// unrecoverable 401.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) error
	Invalidate()
}

// Client is the unified request adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        zerolog.Logger
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout on the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithTokenSource wires the session manager (or any TokenSource) into
// the adapter.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the adapter's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the given base URL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
		userAgent:  "homobie-portal-go",
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type requestOptions struct {
	skipAuth    bool
	bearer      string
	contentType string
	headers     http.Header
	rawOut      *[]byte
}

// RequestOption configures a single request.
type RequestOption func(*requestOptions)

// SkipAuth suppresses the Authorization header for this request.
func SkipAuth() RequestOption {
	return func(ro *requestOptions) { ro.skipAuth = true }
}

// WithBearer overrides the TokenSource credential for this request.
// Used by the session manager to authenticate the refresh exchange
// with the refresh token itself.
func WithBearer(token string) RequestOption {
	return func(ro *requestOptions) { ro.bearer = token }
}

// WithContentType sets an explicit Content-Type for raw bodies.
func WithContentType(ct string) RequestOption {
	return func(ro *requestOptions) { ro.contentType = ct }
}

// WithHeader adds a header to this request.
func WithHeader(key, value string) RequestOption {
	return func(ro *requestOptions) {
		if ro.headers == nil {
			ro.headers = http.Header{}
		}
		ro.headers.Add(key, value)
	}
}

// RawResponse captures the undecoded response body, for non-JSON
// payloads such as property images.
func RawResponse(out *[]byte) RequestOption {
	return func(ro *requestOptions) { ro.rawOut = out }
}

// Get issues a GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, endpoint, body, out, opts...)
}

// Put issues a PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, endpoint, body, out, opts...)
}

// Patch issues a PATCH with a JSON body and decodes the response into out.
func (c *Client) Patch(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPatch, endpoint, body, out, opts...)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, endpoint string, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, nil, opts...)
}

// Do performs a request against the backend. body may be nil, a
// []byte used verbatim (set WithContentType), or any JSON-marshalable
// value. A non-nil out receives the decoded JSON response; 204/205
// responses resolve without decoding.
//
// On 401 the request is replayed exactly once after a successful token
// refresh; when no refresh is possible, or the replay fails again with
// 401, the TokenSource is invalidated and an APIError tagged 401 is
// returned.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	ro := &requestOptions{}
	for _, opt := range opts {
		opt(ro)
	}

	target, err := c.resolveURL(endpoint)
	if err != nil {
		return errors.Wrap(err, "[Client.Do] resolve URL")
	}

	payload, contentType, err := encodeBody(method, body, ro.contentType)
	if err != nil {
		return errors.Wrap(err, "[Client.Do] encode body")
	}

	requestID := uuid.New().String()

	token := ro.bearer
	if token == "" && !ro.skipAuth && c.tokens != nil {
		token = c.tokens.Token()
	}

	resp, err := c.send(ctx, method, target, payload, contentType, token, requestID, ro)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.canRecover(ro) {
		drain(resp)
		if replayToken, ok := c.refreshedToken(ctx, token); ok {
			c.log.Debug().Str("request_id", requestID).Str("url", target).Msg("replaying request after token refresh")
			resp, err = c.send(ctx, method, target, payload, contentType, replayToken, requestID, ro)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusUnauthorized {
				return c.decodeResponse(resp, out, ro, requestID)
			}
			drain(resp)
		}
		c.tokens.Invalidate()
		return &APIError{StatusCode: http.StatusUnauthorized, Message: "unauthorized", RequestID: requestID}
	}

	return c.decodeResponse(resp, out, ro, requestID)
}

// canRecover reports whether the 401 policy applies to this request.
// Requests that skipped auth or carried an explicit bearer (the
// refresh exchange itself) fail straight through.
func (c *Client) canRecover(ro *requestOptions) bool {
	return c.tokens != nil && !ro.skipAuth && ro.bearer == ""
}

// refreshedToken runs the single-flight refresh and reports whether a
// usable new token came out of it. An unchanged or empty token after
// the refresh means the source had nothing to refresh with, or the
// refresh failed and cleared the session.
func (c *Client) refreshedToken(ctx context.Context, previous string) (string, bool) {
	if err := c.tokens.Refresh(ctx); err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed")
		return "", false
	}
	current := c.tokens.Token()
	if current == "" || current == previous {
		return "", false
	}
	return current, true
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, contentType, token, requestID string, ro *requestOptions) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.send] http.NewRequestWithContext")
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, values := range ro.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(target, err)
	}
	return resp, nil
}

func (c *Client) decodeResponse(resp *http.Response, out any, ro *requestOptions, requestID string) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp, requestID)
	}

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent {
		return nil
	}

	if ro.rawOut != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "[Client.decodeResponse] read body")
		}
		*ro.rawOut = raw
		return nil
	}

	if out == nil {
		drainBody(resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[Client.decodeResponse] read body")
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(cerrors.ErrInvalidResponse, "[Client.decodeResponse] json.Unmarshal")
	}
	return nil
}

// resolveURL joins endpoint onto the base URL unless it is already
// absolute.
func (c *Client) resolveURL(endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, nil
	}
	if c.baseURL == "" {
		return "", errors.New("no base URL configured")
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/"), nil
}

// encodeBody serialises the request body. Content-Type is only set
// when a body is present on a non-GET/HEAD method.
func encodeBody(method string, body any, explicitType string) ([]byte, string, error) {
	if body == nil || method == http.MethodGet || method == http.MethodHead {
		return nil, "", nil
	}
	if raw, ok := body.([]byte); ok {
		ct := explicitType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return raw, ct, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", err
	}
	ct := explicitType
	if ct == "" {
		ct = "application/json"
	}
	return raw, ct, nil
}

// readAPIError extracts the server's message/error/detail field from a
// JSON error body, falling back to the raw text and finally the status
// text.
func readAPIError(resp *http.Response, requestID string) error {
	raw, _ := io.ReadAll(resp.Body)
	message := strings.TrimSpace(string(raw))

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		var parsed struct {
			Message string `json:"message"`
			Err     string `json:"error"`
			Detail  string `json:"detail"`
		}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			switch {
			case parsed.Message != "":
				message = parsed.Message
			case parsed.Err != "":
				message = parsed.Err
			case parsed.Detail != "":
				message = parsed.Detail
			}
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message, RequestID: requestID}
}

// classifyTransportError rewrites low-level failures into a
// NetworkError, preserving context cancellation as-is.
func classifyTransportError(target string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if errors.Is(urlErr.Err, context.Canceled) || errors.Is(urlErr.Err, context.DeadlineExceeded) {
			return urlErr.Err
		}
		return &NetworkError{URL: target, Err: urlErr.Err}
	}
	return &NetworkError{URL: target, Err: err}
}

func drain(resp *http.Response) {
	drainBody(resp.Body)
	resp.Body.Close()
}

func drainBody(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
}
