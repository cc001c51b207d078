/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package http implements transport.Transport over net/http.
package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/eudi-wallet/oidc-client-go/pkg/common/log"
	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

var logger = log.New("oidc-client/transport/http")

const (
	contentTypeForm = "application/x-www-form-urlencoded"
	contentTypeJSON = "application/json"

	// maxBodySize caps response bodies read into memory.
	maxBodySize = 4 << 20
)

// Client is an HTTP(s) transport that surfaces redirects instead of following them.
type Client struct {
	client *http.Client
}

// Option configures the HTTP transport.
type Option func(opts *Client)

// WithTimeout option is for definition of HTTP(s) timeout value.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Client) {
		opts.client.Timeout = timeout
	}
}

// WithHTTPClient option is for custom http client. The transport works on a copy of it with its own
// redirect policy, httpClient itself is left unchanged.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(opts *Client) {
		if httpClient == nil {
			return
		}

		hc := *httpClient
		opts.client = &hc
	}
}

// New creates an HTTP transport.
func New(opts ...Option) *Client {
	c := &Client{client: &http.Client{}}

	for _, opt := range opts {
		opt(c)
	}

	c.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return c
}

// Dereference GETs uri and returns the body of a 2xx response.
func (c *Client) Dereference(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &transport.Error{URL: uri, Err: errors.Wrap(err, "create get request")}
	}

	req.Header.Set("Accept", contentTypeJSON)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, &transport.Error{
			URL:        uri,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected response body [%s]", resp.Body),
		}
	}

	return resp.Body, nil
}

// PostForm posts the urlencoded form keeping field order.
func (c *Client) PostForm(ctx context.Context, endpoint string, form transport.Form) (*transport.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &transport.Error{URL: endpoint, Err: errors.Wrap(err, "create post request")}
	}

	req.Header.Set("Content-Type", contentTypeForm)

	return c.do(req)
}

// PostJSON posts body as JSON with the given extra headers.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body []byte,
	headers map[string]string) (*transport.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &transport.Error{URL: endpoint, Err: errors.Wrap(err, "create post request")}
	}

	req.Header.Set("Content-Type", contentTypeJSON)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*transport.Response, error) {
	url := req.URL.Redacted()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transport.Error{URL: url, Err: errors.Wrapf(err, "HTTP %s request failed", req.Method)}
	}

	defer closeResponseBody(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &transport.Error{URL: url, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "read response body")}
	}

	logger.Debugf("%s %s: %d", req.Method, url, resp.StatusCode)

	return &transport.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func closeResponseBody(respBody io.Closer) {
	e := respBody.Close()
	if e != nil {
		logger.Errorf("Failed to close response body: %v", e)
	}
}
