/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"errors"
	"fmt"

	"github.com/eudi-wallet/oidc-client-go/pkg/doc/jwt"
	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
)

// Flow drives one issuance attempt of one wallet identity through the Client operations, keeping what each
// step produces for the next one and enforcing the order of steps. A Flow is not safe for concurrent use.
//
// A failed step leaves the Flow in the state it was in, so the step can be retried, with two exceptions:
// a *CredentialError or a signing failure of the credential request moves it to StateFailed.
type Flow struct {
	client *Client
	did    string
	kp     keypair.KeyPair
	state  State

	offer        *CredentialOffer
	codeVerifier string
	code         string
	token        *TokenResponse
	nonce        string
	result       *CredentialResult
}

// NewFlow starts an issuance attempt for the identity (did, kp).
func (c *Client) NewFlow(did string, kp keypair.KeyPair) *Flow {
	return &Flow{client: c, did: did, kp: kp, state: StateNew}
}

// State returns the current state.
func (f *Flow) State() State {
	return f.state
}

// Offer returns the resolved offer.
func (f *Flow) Offer() *CredentialOffer {
	return f.offer
}

// Token returns the token response.
func (f *Flow) Token() *TokenResponse {
	return f.token
}

// Result returns the last credential result.
func (f *Flow) Result() *CredentialResult {
	return f.result
}

func (f *Flow) checkTransition(next State) error {
	if !f.state.CanTransitionTo(next) {
		return fmt.Errorf("invalid state transition: %s -> %s", f.state, next)
	}

	return nil
}

func (f *Flow) transition(next State) error {
	if err := f.checkTransition(next); err != nil {
		return err
	}

	logger.Debugf("issuance flow of %s: %s -> %s", f.did, f.state, next)

	f.state = next

	return nil
}

// ResolveOffer resolves raw with Client.ResolveCredentialOffer. Input without offer fails with ErrNoOffer.
func (f *Flow) ResolveOffer(ctx context.Context, raw string) error {
	if err := f.checkTransition(StateOfferReceived); err != nil {
		return err
	}

	offer, err := f.client.ResolveCredentialOffer(ctx, raw)
	if err != nil {
		return err
	}

	if offer == nil {
		return ErrNoOffer
	}

	f.offer = offer

	return f.transition(StateOfferReceived)
}

// Authorize obtains an authorization code from the authorization endpoint with a fresh PKCE verifier.
func (f *Flow) Authorize(ctx context.Context, endpoint string) error {
	if err := f.transition(StateAuthorizationPending); err != nil {
		return err
	}

	verifier := NewCodeVerifier()

	code, err := f.client.StartAuthorization(ctx, f.did, f.kp, f.offer, verifier, endpoint)
	if err != nil {
		f.state = StateOfferReceived

		return err
	}

	f.codeVerifier = verifier
	f.code = code

	return f.transition(StateAuthorized)
}

// ExchangeToken redeems the authorization code, or the pre-authorized code of the offer when the flow was
// not authorized, at the token endpoint. userPIN is used with the pre-authorized grant only.
func (f *Flow) ExchangeToken(ctx context.Context, endpoint, userPIN string) error {
	if err := f.checkTransition(StateTokenObtained); err != nil {
		return err
	}

	req := &TokenRequest{Endpoint: endpoint, DID: f.did}

	if f.state == StateAuthorized {
		req.Code = f.code
		req.CodeVerifier = f.codeVerifier
	} else {
		grant := f.offer.PreAuthorizedGrant()
		if grant == nil {
			return errors.New("offer has no pre-authorized code, authorize first")
		}

		if grant.PINRequired() && userPIN == "" {
			return errors.New("offer requires a user PIN")
		}

		req.Code = grant.PreAuthorizedCode
		req.PreAuthorized = true
		req.UserPIN = userPIN
	}

	token, err := f.client.ExchangeToken(ctx, req)
	if err != nil {
		return err
	}

	f.token = token
	f.nonce = token.CNonce

	return f.transition(StateTokenObtained)
}

// RequestCredential requests the offered credential. A proof rejected for its iss claim leaves the flow in
// StateTokenObtained, taking over the fresh c_nonce when the issuer sent one.
func (f *Flow) RequestCredential(ctx context.Context, endpoint string) (*CredentialResult, error) {
	if err := f.transition(StateCredentialRequested); err != nil {
		return nil, err
	}

	result, err := f.client.RequestCredential(ctx, f.did, f.kp, &CredentialRequestParams{
		Endpoint:    endpoint,
		AccessToken: f.token.AccessToken,
		IssuerURL:   f.offer.CredentialIssuer,
		Nonce:       f.nonce,
		Offer:       f.offer,
	})
	if err != nil {
		var (
			credErr     *CredentialError
			signErr     *jwt.SigningError
			mismatchErr *ProofMismatchError
		)

		switch {
		case errors.As(err, &credErr), errors.As(err, &signErr):
			f.state = StateFailed
		case errors.As(err, &mismatchErr):
			if mismatchErr.CNonce != "" {
				f.nonce = mismatchErr.CNonce
			}

			f.state = StateTokenObtained
		default:
			f.state = StateTokenObtained
		}

		return nil, err
	}

	if result.CNonce != "" {
		f.nonce = result.CNonce
	}

	f.result = result

	if result.Deferred() {
		return result, f.transition(StateDeferredPending)
	}

	return result, f.transition(StateCredentialIssued)
}

// PollDeferredCredential polls once for a deferred credential. Failures leave the flow in StateDeferredPending.
func (f *Flow) PollDeferredCredential(ctx context.Context, endpoint string) (*CredentialResult, error) {
	if f.state != StateDeferredPending {
		return nil, fmt.Errorf("no deferred credential to poll in state %s", f.state)
	}

	result, err := f.client.PollDeferredCredential(ctx, f.result.AcceptanceToken, endpoint)
	if err != nil {
		return nil, err
	}

	f.result = result

	return result, f.transition(StateCredentialIssued)
}

// Fail abandons the flow.
func (f *Flow) Fail() error {
	return f.transition(StateFailed)
}
