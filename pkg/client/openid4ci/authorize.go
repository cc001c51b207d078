/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

const (
	stepDirect  = "direct"
	stepIDToken = "id_token"

	codeChallengeMethodS256 = "S256"
)

// NewCodeVerifier returns a random PKCE code verifier. The caller keeps it for the token exchange.
func NewCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// CodeChallenge returns base64url_nopad(SHA256(codeVerifier)).
func CodeChallenge(codeVerifier string) string {
	return oauth2.S256ChallengeFromVerifier(codeVerifier)
}

// NewAuthorizationSession creates the state, nonce and code challenge of one authorization attempt.
func NewAuthorizationSession(codeVerifier string) *AuthorizationSession {
	return &AuthorizationSession{
		State:         uuid.New().String(),
		Nonce:         uuid.New().String(),
		CodeVerifier:  codeVerifier,
		CodeChallenge: CodeChallenge(codeVerifier),
	}
}

type authAttempt struct {
	did      string
	kp       keypair.KeyPair
	offer    *CredentialOffer
	endpoint string
	session  *AuthorizationSession
}

// authStep is one way of obtaining an authorization code. A step returns either a code, the step to run
// next, or neither when the attempt is exhausted.
type authStep interface {
	name() string
	execute(ctx context.Context, c *Client, a *authAttempt) (string, authStep, error)
}

// StartAuthorization sends the authorization request for offer to endpoint and returns the authorization code.
// A redirect carrying a code ends the request directly. Any other redirect is taken as a request for
// same device authentication, answered with a self-issued ID token posted to the redirect_uri it names.
// When neither yields a code an *AuthorizationError is returned.
func (c *Client) StartAuthorization(ctx context.Context, did string, kp keypair.KeyPair, offer *CredentialOffer,
	codeVerifier, endpoint string) (string, error) {
	if offer == nil {
		return "", &AuthorizationError{Err: errors.New("credential offer is nil")}
	}

	if codeVerifier == "" {
		return "", &AuthorizationError{Err: errors.New("code verifier is empty")}
	}

	attempt := &authAttempt{
		did:      did,
		kp:       kp,
		offer:    offer,
		endpoint: endpoint,
		session:  NewAuthorizationSession(codeVerifier),
	}

	var (
		step authStep = &directStep{}
		last string
	)

	for step != nil {
		last = step.name()
		logger.Debugf("authorization step [%s] at %s", last, endpoint)

		code, next, err := step.execute(ctx, c, attempt)
		if err != nil {
			return "", err
		}

		if code != "" {
			return code, nil
		}

		step = next
	}

	return "", &AuthorizationError{Step: last, Err: errors.New("no authorization code in redirect")}
}

// directStep posts the authorization request and reads a code from its redirect.
type directStep struct{}

func (s *directStep) name() string {
	return stepDirect
}

func (s *directStep) execute(ctx context.Context, c *Client, a *authAttempt) (string, authStep, error) {
	form, err := c.authorizationForm(a)
	if err != nil {
		return "", nil, &AuthorizationError{Step: s.name(), Err: err}
	}

	resp, err := c.transport.PostForm(ctx, a.endpoint, form)
	if err != nil {
		return "", nil, err
	}

	location, err := redirectLocation(resp, s.name())
	if err != nil {
		return "", nil, err
	}

	query := location.Query()

	if code := query.Get("code"); code != "" {
		if state := query.Get("state"); state != "" && state != a.session.State {
			return "", nil, &AuthorizationError{Step: s.name(), Err: errors.New("state does not match the request")}
		}

		return code, nil, nil
	}

	return "", &idTokenStep{request: location}, nil
}

// idTokenStep answers an ID token request received as redirect.
type idTokenStep struct {
	request *url.URL
}

func (s *idTokenStep) name() string {
	return stepIDToken
}

func (s *idTokenStep) execute(ctx context.Context, c *Client, a *authAttempt) (string, authStep, error) {
	query := s.request.Query()

	responseURI := query.Get("redirect_uri")
	if responseURI == "" {
		return "", nil, &AuthorizationError{Step: s.name(), Err: errors.New("redirect names no redirect_uri")}
	}

	idToken, err := c.proofs.SelfIssuedIDToken(a.did, a.kp, a.endpoint, query.Get("nonce"))
	if err != nil {
		return "", nil, err
	}

	form := transport.Form{}.
		Add("id_token", idToken).
		Add("state", query.Get("state"))

	resp, err := c.transport.PostForm(ctx, responseURI, form)
	if err != nil {
		return "", nil, err
	}

	location, err := redirectLocation(resp, s.name())
	if err != nil {
		return "", nil, err
	}

	return location.Query().Get("code"), nil, nil
}

func (c *Client) authorizationForm(a *authAttempt) (transport.Form, error) {
	requested := a.offer.requested()

	format := requested.Format
	if format == "" && requested.ConfigurationID == "" {
		format = defaultCredentialFormat
	}

	details, err := json.Marshal([]AuthorizationDetail{{
		Type:                      authorizationDetailsType,
		Format:                    format,
		Types:                     requested.CredentialTypes(),
		CredentialConfigurationID: requested.ConfigurationID,
		Locations:                 []string{a.offer.CredentialIssuer},
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal authorization_details: %w", err)
	}

	algs := AlgList{Alg: []string{signingAlg(a.kp)}}

	metadata, err := json.Marshal(ClientMetadata{
		VPFormatsSupported:     VPFormats{JWTVP: algs, JWTVC: algs},
		ResponseTypesSupported: []string{"vp_token", "id_token"},
		AuthorizationEndpoint:  c.redirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal client_metadata: %w", err)
	}

	form := transport.Form{}.
		Add("response_type", "code").
		Add("scope", "openid").
		Add("state", a.session.State).
		Add("client_id", a.did).
		Add("authorization_details", string(details)).
		Add("redirect_uri", c.redirectURI).
		Add("nonce", a.session.Nonce).
		Add("code_challenge", a.session.CodeChallenge).
		Add("code_challenge_method", codeChallengeMethodS256).
		Add("client_metadata", string(metadata))

	if issuerState := a.offer.IssuerState(); issuerState != "" {
		form = form.Add("issuer_state", issuerState)
	}

	return form, nil
}

// redirectLocation returns the Location of a redirect response. Error redirects and non redirect
// responses become an *AuthorizationError.
func redirectLocation(resp *transport.Response, step string) (*url.URL, error) {
	if !resp.IsRedirect() {
		if body, ok := parseErrorBody(resp.Body); ok {
			return nil, &AuthorizationError{Step: step, Code: body.Code, Description: body.Description}
		}

		return nil, &AuthorizationError{Step: step, Err: fmt.Errorf("expected redirect, got status %d", resp.StatusCode)}
	}

	location := resp.Location()
	if location == nil {
		return nil, &AuthorizationError{Step: step, Err: errors.New("redirect without location")}
	}

	query := location.Query()

	if code := query.Get("error"); code != "" {
		return nil, &AuthorizationError{Step: step, Code: code, Description: query.Get("error_description")}
	}

	return location, nil
}

func signingAlg(kp keypair.KeyPair) string {
	if kp != nil && kp.KeyType() == keypair.KeyTypeOKP {
		return "EdDSA"
	}

	return "ES256"
}
