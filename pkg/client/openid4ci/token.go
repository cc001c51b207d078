/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

// ExchangeToken redeems an authorization code, or a pre-authorized code, at the token endpoint.
// Structured error bodies are returned as *TokenError, anything else as ErrUnexpectedResponse.
func (c *Client) ExchangeToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req == nil || req.Code == "" {
		return nil, errors.New("token request has no code")
	}

	resp, err := c.transport.PostForm(ctx, req.Endpoint, tokenForm(req))
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, tokenError(resp)
	}

	token := &TokenResponse{}

	if err := json.Unmarshal(resp.Body, token); err != nil {
		return nil, unexpectedResponse(resp.StatusCode, "token response: %v", err)
	}

	if token.AccessToken == "" {
		return nil, unexpectedResponse(resp.StatusCode, "token response has no access_token")
	}

	return token, nil
}

func tokenForm(req *TokenRequest) transport.Form {
	if req.PreAuthorized {
		form := transport.Form{}.
			Add("grant_type", GrantTypePreAuthorizedCode).
			Add("pre-authorized_code", req.Code)

		if req.UserPIN != "" {
			form = form.Add("user_pin", req.UserPIN)
		}

		return form
	}

	return transport.Form{}.
		Add("grant_type", GrantTypeAuthorizationCode).
		Add("code", req.Code).
		Add("client_id", req.DID).
		Add("code_verifier", req.CodeVerifier)
}

func tokenError(resp *transport.Response) error {
	if resp.StatusCode >= http.StatusBadRequest {
		if body, ok := parseErrorBody(resp.Body); ok {
			return &TokenError{StatusCode: resp.StatusCode, Code: body.Code, Description: body.Description}
		}
	}

	return unexpectedResponse(resp.StatusCode, "token endpoint")
}
