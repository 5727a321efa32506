package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/telekom/nekomail/pkg/request"
	"github.com/telekom/nekomail/pkg/version"
)

// Client talks to a running nekomail server.
type Client struct {
	http *resty.Client
}

type ClientOption func(*Client) error

func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		http: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", version.UserAgent("cli")).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.http.BaseURL == "" {
		return nil, errors.New("server is required")
	}
	return c, nil
}

func WithServer(server string) ClientOption {
	return func(c *Client) error {
		if server == "" {
			return errors.New("server is required")
		}
		parsed, err := url.Parse(server)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid server %q", server)
		}
		c.http.SetBaseURL(strings.TrimRight(server, "/"))
		return nil
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
		return nil
	}
}

// SendResult is the server's answer to a send request.
type SendResult struct {
	StatusCode int
	Message    string
	Errors     []request.FieldError
	RetryAfter string
}

// OK reports whether the email was accepted.
func (r SendResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type sendResponse struct {
	Message string               `json:"message"`
	Errors  []request.FieldError `json:"errors"`
}

// Send posts req to /send-email. Non-2xx answers are returned in the result,
// not as an error; err is only set when no answer was received.
func (c *Client) Send(ctx context.Context, req request.Raw) (SendResult, error) {
	var ok, failed sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&ok).
		SetError(&failed).
		Post("/send-email")
	if err != nil {
		return SendResult{}, fmt.Errorf("send request failed: %w", err)
	}

	out := ok
	if resp.IsError() {
		out = failed
	}
	return SendResult{
		StatusCode: resp.StatusCode(),
		Message:    out.Message,
		Errors:     out.Errors,
		RetryAfter: resp.Header().Get("Retry-After"),
	}, nil
}
