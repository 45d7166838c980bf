package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
	"github.com/google/uuid"
)

const (
	cartPath                    = "cart/"
	defaultAuthScheme           = "Token"
	defaultTimeout              = 10 * time.Second
	requestIDHeader             = "X-Request-Id"
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("remote cart base url is required")

var _ cart.Pusher = (*Client)(nil)

// Client talks to the remote cart endpoint. Every write is a full replace.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authScheme string
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAuthScheme sets the Authorization scheme, "Token" or "Bearer".
func WithAuthScheme(scheme string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(scheme)
		if trimmed != "" {
			c.authScheme = trimmed
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewClient builds a client rooted at baseURL (e.g. http://host/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		authScheme: defaultAuthScheme,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Push replaces the remote cart with lines.
func (c *Client) Push(ctx context.Context, token string, lines []cart.Line) error {
	if strings.TrimSpace(token) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "credential required for cart push")
	}
	payload, err := cart.EncodeItems(lines, cart.SnakeNaming)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart push")
	}

	if _, err := c.do(ctx, http.MethodPut, token, payload); err != nil {
		return err
	}
	return nil
}

// Fetch returns the raw remote cart records for the credential's user.
func (c *Client) Fetch(ctx context.Context, token string) ([]cart.RemoteLine, error) {
	if strings.TrimSpace(token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "credential required for cart fetch")
	}
	body, err := c.do(ctx, http.MethodGet, token, nil)
	if err != nil {
		return nil, err
	}
	records, err := cart.ParseRecords(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode remote cart")
	}
	return records, nil
}

func (c *Client) do(ctx context.Context, method, token string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+cartPath, reqBody)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build cart request")
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.authScheme+" "+token)
	httpReq.Header.Set(requestIDHeader, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	ctx = c.logg.WithFields(ctx, map[string]any{"method": method, "request_id": requestID})
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute cart request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		code := pkgerrors.CodeDependency
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			code = pkgerrors.CodeUnauthorized
		}
		return nil, pkgerrors.Wrap(code, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "cart request failed")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read cart response")
	}
	c.logg.Debug(c.logg.WithField(ctx, "status", resp.StatusCode), "cart request completed")
	return body, nil
}
