package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

const (
	loginPath    = "/auth/login"
	identityPath = "/users/me"

	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	authScheme          = "Bearer"
)

// tokenResponse is the token endpoint success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// remoteErrorBody is the structured error envelope the identity service
// returns: detail is either a plain string or a list of validation entries.
type remoteErrorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type remoteFieldError struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

// ClientOption customizes Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientLogger overrides the logger.
func WithClientLogger(logger Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables payload dumps on request failures.
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// Client is the outbound HTTP adapter. It applies the installed bearer token
// as a default header to every request and converts non-2xx responses into
// rich errors. It never retries and never refreshes tokens: a 401 is handed
// to the caller unchanged, interpretation is the Manager's job.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger Logger
	debug  bool

	mu    sync.RWMutex
	token string
}

var _ IdentityClient = (*Client)(nil)

// NewClient returns a Client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New("invalid identity service base URL", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"base_url": baseURL})
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Origin returns the scheme://host the client is scoped to, used to key
// credential storage.
func (c *Client) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// SetAuthHeader installs token as the default Authorization header for all
// subsequent requests.
func (c *Client) SetAuthHeader(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearAuthHeader removes the default Authorization header.
func (c *Client) ClearAuthHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// AuthHeader returns the installed bearer token, if any.
func (c *Client) AuthHeader() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// Login exchanges credentials for a bearer token at the form-encoded token
// endpoint.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	out := new(tokenResponse)
	if err := c.PostForm(ctx, loginPath, form, out); err != nil {
		return "", err
	}

	if out.AccessToken == "" {
		return "", goerrors.New("login response missing access token", goerrors.CategoryAuth).
			WithTextCode(textCodeMalformedResponse).
			WithCode(goerrors.CodeUnauthorized)
	}

	return out.AccessToken, nil
}

// FetchIdentity resolves the profile behind the installed token.
func (c *Client) FetchIdentity(ctx context.Context) (*Identity, error) {
	identity := new(Identity)
	if err := c.Do(ctx, http.MethodGet, identityPath, nil, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Do issues a JSON request against path and decodes a 2xx body into out.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to encode request body")
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	return c.roundTrip(ctx, method, path, contentType, reader, out)
}

// PostForm issues a form-urlencoded POST against path and decodes a 2xx body
// into out.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any) error {
	return c.roundTrip(
		ctx,
		http.MethodPost,
		path,
		"application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()),
		out,
	)
}

func (c *Client) roundTrip(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	target := c.base.JoinPath(path).String()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to build request").
			WithMetadata(map[string]any{"method": method, "path": path})
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())

	if token, ok := c.AuthHeader(); ok {
		req.Header.Set(headerAuthorization, authScheme+" "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request transport failure %s %s: %v", method, path, err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, ErrTransport.Message).
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{"method": method, "path": path})
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, ErrTransport.Message).
			WithTextCode(textCodeTransportFailure).
			WithCode(goerrors.CodeInternal)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		richErr := c.decodeRemoteError(res.StatusCode, payload)
		if c.debug {
			c.logger.Debug("remote error %s %s: %s", method, path, print.MaybePrettyJSON(richErr.Metadata))
		}
		return richErr
	}

	if out == nil || len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, ErrMalformedResponse.Message).
			WithTextCode(textCodeMalformedResponse).
			WithCode(goerrors.CodeInternal)
	}

	return nil
}

// decodeRemoteError maps a non-2xx response to a rich error. Validation-style
// bodies (array-shaped detail) yield per-field messages; otherwise the server
// detail string becomes the message, with a generic fallback.
func (c *Client) decodeRemoteError(status int, payload []byte) *goerrors.Error {
	detail, fields := parseErrorDetail(payload)

	meta := map[string]any{"status": status}

	if len(fields) > 0 {
		meta["fields"] = fields
		return goerrors.New(detail, goerrors.CategoryValidation).
			WithTextCode(textCodeRemoteValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(meta)
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		message := detail
		if message == "" {
			message = ErrInvalidCredentials.Message
		}
		return goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(textCodeInvalidCredentials).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(meta)
	}

	message := detail
	if message == "" {
		message = fmt.Sprintf("identity service error (status %d)", status)
	}
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithMetadata(meta)
}

// parseErrorDetail extracts the detail message and, for validation errors,
// the per-field messages from a structured error body.
func parseErrorDetail(payload []byte) (string, map[string]string) {
	envelope := new(remoteErrorBody)
	if err := json.Unmarshal(payload, envelope); err != nil || len(envelope.Detail) == 0 {
		return "", nil
	}

	var message string
	if err := json.Unmarshal(envelope.Detail, &message); err == nil {
		return message, nil
	}

	var entries []remoteFieldError
	if err := json.Unmarshal(envelope.Detail, &entries); err != nil || len(entries) == 0 {
		return "", nil
	}

	fields := make(map[string]string, len(entries))
	for _, entry := range entries {
		fields[fieldName(entry.Loc)] = entry.Msg
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fields[name])
	}

	return strings.Join(parts, "; "), fields
}

// fieldName flattens a detail location like ["body", "username"] to the field
// segment. Location entries may be strings or array indices.
func fieldName(loc []any) string {
	parts := make([]string, 0, len(loc))
	for _, segment := range loc {
		switch v := segment.(type) {
		case string:
			if v == "body" || v == "query" || v == "path" {
				continue
			}
			parts = append(parts, v)
		case float64:
			parts = append(parts, fmt.Sprintf("%d", int(v)))
		}
	}
	if len(parts) == 0 {
		return "request"
	}
	return strings.Join(parts, ".")
}
