/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"github.com/eudi-wallet/oidc-client-go/pkg/common/log"
	"github.com/eudi-wallet/oidc-client-go/pkg/doc/jwt"
	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

var logger = log.New("oidc-client/openid4ci")

// DefaultRedirectURI is the loopback redirect_uri sent in authorization requests.
const DefaultRedirectURI = "http://localhost:8080"

// Client runs the wallet side of an OpenID4VCI issuance. It holds no per issuance state, every operation
// depends only on its arguments, so a Client can serve concurrent issuances.
type Client struct {
	transport   transport.Transport
	proofs      *jwt.ProofBuilder
	redirectURI string
}

// Opt configures a Client.
type Opt func(c *Client)

// WithRedirectURI overrides DefaultRedirectURI.
func WithRedirectURI(uri string) Opt {
	return func(c *Client) {
		c.redirectURI = uri
	}
}

// WithProofBuilder sets the builder of ID token and credential proofs.
func WithProofBuilder(b *jwt.ProofBuilder) Opt {
	return func(c *Client) {
		c.proofs = b
	}
}

// New returns a Client performing its exchanges over t.
func New(t transport.Transport, opts ...Opt) (*Client, error) {
	if t == nil {
		return nil, errNilTransport
	}

	c := &Client{
		transport:   t,
		proofs:      jwt.NewProofBuilder(),
		redirectURI: DefaultRedirectURI,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
