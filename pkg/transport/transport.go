/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport defines the network collaborator used by the issuance client.
package transport

//go:generate mockgen -destination ../internal/gomocks/transport/mocks.gen.go -package mocktransport . Transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Transport performs the HTTP exchanges of an issuance. Implementations must not follow redirects:
// a redirect is returned as a Response with its 3xx status and Location header.
type Transport interface {
	// Dereference fetches uri and returns the body of a successful response.
	Dereference(ctx context.Context, uri string) ([]byte, error)
	// PostForm posts an application/x-www-form-urlencoded body with the fields in the given order.
	PostForm(ctx context.Context, endpoint string, form Form) (*Response, error)
	// PostJSON posts body as application/json with the extra headers.
	PostJSON(ctx context.Context, endpoint string, body []byte, headers map[string]string) (*Response, error)
}

// Response is a received HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// IsRedirect reports a 3xx status.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// Location parses the Location header. It returns nil when the header is absent or not a valid URL.
func (r *Response) Location() *url.URL {
	loc := r.Header.Get("Location")
	if loc == "" {
		return nil
	}

	u, err := url.Parse(loc)
	if err != nil {
		return nil
	}

	return u
}

// FormField is one field of a Form.
type FormField struct {
	Key   string
	Value string
}

// Form is an ordered list of form fields.
type Form []FormField

// Add appends a field.
func (f Form) Add(key, value string) Form {
	return append(f, FormField{Key: key, Value: value})
}

// Get returns the value of the first field named key.
func (f Form) Get(key string) (string, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}

	return "", false
}

// Encode returns the urlencoded body, keeping field order.
func (f Form) Encode() string {
	var sb strings.Builder

	for i, field := range f {
		if i > 0 {
			sb.WriteByte('&')
		}

		sb.WriteString(url.QueryEscape(field.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(field.Value))
	}

	return sb.String()
}

// Error is a failure of the network exchange itself, or a non-success status where a body was required.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("transport %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
