/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

const (
	paramCredentialOfferURI = "credential_offer_uri"
	paramCredentialOffer    = "credential_offer"
)

// ResolveCredentialOffer reads a credential offer from raw, which is what a wallet scanned or was linked to:
// an URL carrying credential_offer_uri (dereferenced) or credential_offer (inline), an http(s) URL of the offer
// itself, or the offer JSON. It returns (nil, nil) when raw is empty or carries no offer.
func (c *Client) ResolveCredentialOffer(ctx context.Context, raw string) (*CredentialOffer, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "{") {
		return parseCredentialOffer([]byte(raw))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, &InvalidOfferError{Err: err}
	}

	query := u.Query()

	if offerURI := query.Get(paramCredentialOfferURI); offerURI != "" {
		return c.dereferenceOffer(ctx, offerURI)
	}

	if offer := query.Get(paramCredentialOffer); offer != "" {
		return parseCredentialOffer([]byte(offer))
	}

	if u.Scheme == "https" || u.Scheme == "http" {
		return c.dereferenceOffer(ctx, raw)
	}

	logger.Debugf("no credential offer in input with scheme [%s]", u.Scheme)

	return nil, nil
}

func (c *Client) dereferenceOffer(ctx context.Context, uri string) (*CredentialOffer, error) {
	body, err := c.transport.Dereference(ctx, uri)
	if err != nil {
		return nil, err
	}

	return parseCredentialOffer(body)
}

func parseCredentialOffer(data []byte) (*CredentialOffer, error) {
	offer := &CredentialOffer{}

	if err := json.Unmarshal(data, offer); err != nil {
		return nil, &InvalidOfferError{Err: err}
	}

	if offer.CredentialIssuer == "" {
		return nil, &InvalidOfferError{Err: errors.New("credential_issuer is missing")}
	}

	if len(offer.Credentials) == 0 {
		return nil, &InvalidOfferError{Err: errors.New("no credentials offered")}
	}

	return offer, nil
}
