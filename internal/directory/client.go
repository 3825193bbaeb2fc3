// Package directory is the REST client for the external directory service
// that owns the canonical user records. The broker only calls it on account
// creation and management, never on the login hot path.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrAlreadyExists: the directory answered 409. Reported distinctly
	// from transport failures so account creation can map it to a conflict
	// instead of a retriable error.
	ErrAlreadyExists = errors.New("directory: record already exists")
	ErrNotFound      = errors.New("directory: record not found")
)

// UserRecord is the directory-side projection of an account.
type UserRecord struct {
	Subject     string `json:"subject"`
	DisplayName string `json:"display_name"`
	EmailLike   bool   `json:"email_like"`
}

// Client talks to one directory endpoint. The zero value is not usable;
// build it with New.
type Client struct {
	base   *url.URL
	bearer string
	http   *http.Client
}

type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory: base_url required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("directory: parse base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: u, bearer: cfg.BearerToken, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) Create(ctx context.Context, rec UserRecord) error {
	return c.do(ctx, http.MethodPost, "/v1/users", rec, nil)
}

func (c *Client) Get(ctx context.Context, subject string) (*UserRecord, error) {
	var rec UserRecord
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(subject), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Update(ctx context.Context, rec UserRecord) error {
	return c.do(ctx, http.MethodPut, "/v1/users/"+url.PathEscape(rec.Subject), rec, nil)
}

func (c *Client) Delete(ctx context.Context, subject string) error {
	return c.do(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(subject), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyExists
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("directory: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("directory: decode response: %w", err)
		}
	}
	return nil
}
