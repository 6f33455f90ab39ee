// Package gateway performs single remote exchanges against the store API and
// normalizes every outcome into one of three results: a real response, a
// synthetic offline placeholder (Envelope.Offline == true), or an error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
)

// errOfflinePlaceholder marks an operation that needed a live response but
// got a synthetic placeholder.
var errOfflinePlaceholder = errors.New("got offline placeholder instead of live response")

// TokenSource yields the stored bearer token, or "" when not logged in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is the network gateway. It holds the process-wide connectivity
// flag: reads issued while the flag is down return a synthetic offline
// placeholder, writes fail immediately with ErrNetworkUnavailable so data
// loss stays visible to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
	online  atomic.Bool
}

func NewClient(baseURL string, tokens TokenSource, log logging.Logger) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		tokens:  tokens,
		log:     log.With("component", "gateway"),
	}
	c.online.Store(true)
	return c
}

// SetHTTPClient replaces the underlying transport. Test seam.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

func (c *Client) Online() bool     { return c.online.Load() }
func (c *Client) SetOnline(v bool) { c.online.Store(v) }
func (c *Client) BaseURL() string  { return c.baseURL }

// Options describes a single exchange.
type Options struct {
	Method    string // defaults to GET
	Body      any    // JSON-encoded unless Multipart is set
	Multipart *Multipart
	Auth      bool // attach Bearer token
}

// Multipart is a binary create payload: text fields plus one file part.
// The content-type header is left to the multipart writer.
type Multipart struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      []byte
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// Request performs one exchange against baseURL+endpoint.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) (*models.Envelope, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	if !c.Online() {
		if isRead(method) {
			// Treated by callers exactly like a successful empty response.
			c.log.Debug(ctx, "offline, returning synthetic placeholder", "endpoint", endpoint)
			return models.NewOfflineEnvelope(time.Now()), nil
		}
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, common.ErrNetworkUnavailable)
	}

	var body io.Reader
	contentType := ""

	switch {
	case opts.Multipart != nil:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for k, v := range opts.Multipart.Fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, fmt.Errorf("failed to build multipart body: %w", err)
			}
		}
		part, err := w.CreateFormFile(opts.Multipart.FileField, opts.Multipart.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := part.Write(opts.Multipart.File); err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to build multipart body: %w", err)
		}
		body = buf
		contentType = w.FormDataContentType()
	case opts.Body != nil:
		raw, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if opts.Auth {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, common.ErrUnauthorized
		}
		if expired, err := tokenExpired(token, time.Now()); err == nil && expired {
			return nil, common.ErrTokenExpired
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	// A gateway-timeout status means the interception layer manufactured a
	// stand-in response; treat it like being offline.
	if resp.StatusCode == http.StatusGatewayTimeout {
		c.log.Debug(ctx, "gateway timeout, returning synthetic placeholder", "endpoint", endpoint)
		return models.NewOfflineEnvelope(time.Now()), nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, endpoint, err)
	}

	var env models.Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Message != "" {
			msg = env.Message
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%s %s: %s: %w", method, endpoint, msg, common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%s %s: server returned %s: %s", method, endpoint, strconv.Itoa(resp.StatusCode), msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s %s: malformed response body: %w", method, endpoint, decodeErr)
	}
	if env.Error {
		return nil, fmt.Errorf("%s %s: server error: %s", method, endpoint, env.Message)
	}
	return &env, nil
}
