/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	issuerMetadataPath      = "/.well-known/openid-credential-issuer"
	openIDConfigurationPath = "/.well-known/openid-configuration"
	oauthServerMetadataPath = "/.well-known/oauth-authorization-server"
)

// ResolveIssuerMetadata fetches the credential issuer metadata of issuerURL.
func (c *Client) ResolveIssuerMetadata(ctx context.Context, issuerURL string) (*IssuerMetadata, error) {
	body, err := c.transport.Dereference(ctx, wellKnown(issuerURL, issuerMetadataPath))
	if err != nil {
		return nil, err
	}

	metadata := &IssuerMetadata{}

	if err := json.Unmarshal(body, metadata); err != nil {
		return nil, fmt.Errorf("%w: issuer metadata: %v", ErrUnexpectedResponse, err)
	}

	if metadata.CredentialEndpoint == "" {
		return nil, fmt.Errorf("%w: issuer metadata of %s has no credential_endpoint", ErrUnexpectedResponse, issuerURL)
	}

	return metadata, nil
}

// ResolveAuthorizationServerMetadata fetches the OpenID configuration of serverURL, falling back to the
// OAuth authorization server metadata.
func (c *Client) ResolveAuthorizationServerMetadata(ctx context.Context,
	serverURL string) (*AuthorizationServerMetadata, error) {
	body, err := c.transport.Dereference(ctx, wellKnown(serverURL, openIDConfigurationPath))
	if err != nil {
		logger.Debugf("openid configuration of %s not available, trying oauth metadata: %v", serverURL, err)

		body, err = c.transport.Dereference(ctx, wellKnown(serverURL, oauthServerMetadataPath))
		if err != nil {
			return nil, err
		}
	}

	metadata := &AuthorizationServerMetadata{}

	if err := json.Unmarshal(body, metadata); err != nil {
		return nil, fmt.Errorf("%w: authorization server metadata: %v", ErrUnexpectedResponse, err)
	}

	if metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("%w: authorization server metadata of %s has no token_endpoint",
			ErrUnexpectedResponse, serverURL)
	}

	return metadata, nil
}

func wellKnown(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
