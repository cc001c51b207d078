/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

// CredentialResult is either an issued credential or a handle to fetch it later.
type CredentialResult struct {
	Format string
	// Credential is the raw JSON value of the issued credential, empty when deferred.
	Credential json.RawMessage
	// AcceptanceToken is set when issuance is deferred.
	AcceptanceToken string
	// CNonce is the fresh nonce sent along with the response, if any.
	CNonce string
}

// Deferred reports whether the credential has to be polled for with AcceptanceToken.
func (r *CredentialResult) Deferred() bool {
	return len(r.Credential) == 0 && r.AcceptanceToken != ""
}

// CredentialString returns the credential as string, unquoting JSON strings such as JWT credentials.
func (r *CredentialResult) CredentialString() string {
	var s string

	if err := json.Unmarshal(r.Credential, &s); err == nil {
		return s
	}

	return string(r.Credential)
}

// RequestCredential requests the offered credential with a proof of possession of kp bound to did,
// authenticated with the access token. The proof audience is params.IssuerURL and it echoes params.Nonce.
func (c *Client) RequestCredential(ctx context.Context, did string, kp keypair.KeyPair,
	params *CredentialRequestParams) (*CredentialResult, error) {
	if params == nil || params.Offer == nil {
		return nil, errors.New("credential request has no offer")
	}

	proof, err := c.proofs.CredentialProof(did, kp, params.IssuerURL, params.Nonce)
	if err != nil {
		return nil, err
	}

	requested := params.Offer.requested()

	body, err := json.Marshal(&CredentialRequest{
		Types:                     requested.CredentialTypes(),
		Format:                    requested.Format,
		CredentialConfigurationID: requested.ConfigurationID,
		Proof:                     Proof{ProofType: proofTypeJWT, JWT: proof},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.PostJSON(ctx, params.Endpoint, body, bearer(params.AccessToken))
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, credentialError(resp)
	}

	result, err := credentialResult(resp)
	if err != nil {
		return nil, err
	}

	if !result.Deferred() && len(result.Credential) == 0 {
		return nil, unexpectedResponse(resp.StatusCode, "credential response has neither credential nor acceptance_token")
	}

	return result, nil
}

// PollDeferredCredential asks the deferred credential endpoint for the credential behind acceptanceToken.
// A successful response without a credential is reported as ErrUnexpectedResponse: it does not
// distinguish a credential that is not ready yet from one that will never be issued, and retrying is
// the caller's decision.
func (c *Client) PollDeferredCredential(ctx context.Context, acceptanceToken,
	endpoint string) (*CredentialResult, error) {
	resp, err := c.transport.PostJSON(ctx, endpoint, []byte("{}"), bearer(acceptanceToken))
	if err != nil {
		return nil, err
	}

	if !resp.IsSuccess() {
		return nil, credentialError(resp)
	}

	result, err := credentialResult(resp)
	if err != nil {
		return nil, err
	}

	if len(result.Credential) == 0 {
		return nil, unexpectedResponse(resp.StatusCode, "deferred credential response has no credential")
	}

	return result, nil
}

func credentialResult(resp *transport.Response) (*CredentialResult, error) {
	cr := &CredentialResponse{}

	if err := json.Unmarshal(resp.Body, cr); err != nil {
		return nil, unexpectedResponse(resp.StatusCode, "credential response: %v", err)
	}

	credential := cr.Credential
	if bytes.Equal(bytes.TrimSpace(credential), []byte("null")) {
		credential = nil
	}

	acceptanceToken := cr.AcceptanceToken
	if acceptanceToken == "" {
		acceptanceToken = cr.TransactionID
	}

	return &CredentialResult{
		Format:          cr.Format,
		Credential:      credential,
		AcceptanceToken: acceptanceToken,
		CNonce:          cr.CNonce,
	}, nil
}

func credentialError(resp *transport.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return unexpectedResponse(resp.StatusCode, "credential endpoint")
	}

	if isProofClientIDMismatch(resp.Body) {
		return &ProofMismatchError{StatusCode: resp.StatusCode, CNonce: cNonceOf(resp.Body)}
	}

	if body, ok := parseErrorBody(resp.Body); ok {
		return &CredentialError{StatusCode: resp.StatusCode, Code: body.Code, Description: body.Description}
	}

	return unexpectedResponse(resp.StatusCode, "credential endpoint")
}
