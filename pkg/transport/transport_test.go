/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForm(t *testing.T) {
	form := Form{}.
		Add("response_type", "code").
		Add("scope", "openid").
		Add("redirect_uri", "http://localhost:8080").
		Add("authorization_details", `[{"type":"openid_credential"}]`)

	require.Equal(t, "response_type=code&scope=openid&redirect_uri=http%3A%2F%2Flocalhost%3A8080"+
		"&authorization_details=%5B%7B%22type%22%3A%22openid_credential%22%7D%5D", form.Encode())

	v, ok := form.Get("scope")
	require.True(t, ok)
	require.Equal(t, "openid", v)

	_, ok = form.Get("nonce")
	require.False(t, ok)

	require.Empty(t, Form{}.Encode())
}

func TestResponse(t *testing.T) {
	t.Run("redirect with location", func(t *testing.T) {
		resp := &Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": []string{"http://localhost:8080?code=abc&state=s"}},
		}

		require.True(t, resp.IsRedirect())
		require.False(t, resp.IsSuccess())
		require.Equal(t, "abc", resp.Location().Query().Get("code"))
	})

	t.Run("no location", func(t *testing.T) {
		resp := &Response{StatusCode: http.StatusOK, Header: http.Header{}}

		require.True(t, resp.IsSuccess())
		require.Nil(t, resp.Location())
	})

	t.Run("invalid location", func(t *testing.T) {
		resp := &Response{StatusCode: http.StatusFound, Header: http.Header{"Location": []string{"http://[::1"}}}

		require.Nil(t, resp.Location())
	})
}

func TestError(t *testing.T) {
	cause := errors.New("connection refused")

	err := &Error{URL: "https://issuer.example.com", Err: cause}
	require.Equal(t, "transport https://issuer.example.com: connection refused", err.Error())
	require.True(t, errors.Is(err, cause))

	err = &Error{URL: "https://issuer.example.com", StatusCode: 404, Err: errors.New("not found")}
	require.Contains(t, err.Error(), "status 404")
}
