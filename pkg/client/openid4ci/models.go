/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

const (
	// GrantTypePreAuthorizedCode is the grant type of the pre-authorized code flow.
	GrantTypePreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
	// GrantTypeAuthorizationCode is the grant type of the authorization code flow.
	GrantTypeAuthorizationCode = "authorization_code"

	authorizationDetailsType = "openid_credential"
	defaultCredentialFormat  = "jwt_vc"
	proofTypeJWT             = "jwt"
)

// CredentialOffer is an issuer provided offer of one or more credentials.
type CredentialOffer struct {
	CredentialIssuer string                 `json:"credential_issuer"`
	Credentials      []CredentialDescriptor `json:"credentials,omitempty"`
	Grants           *Grants                `json:"grants,omitempty"`
}

// CredentialDescriptor names an offered credential, either by format and types or by a configuration ID
// referring to the issuer metadata.
type CredentialDescriptor struct {
	Format          string   `json:"format,omitempty" mapstructure:"format"`
	Types           []string `json:"types,omitempty" mapstructure:"types"`
	ConfigurationID string   `json:"-" mapstructure:"-"`

	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty" mapstructure:"credential_definition"`
}

// CredentialDefinition carries the credential types in offers that nest them.
type CredentialDefinition struct {
	Type []string `json:"type,omitempty" mapstructure:"type"`
}

// Grants are the grant types the issuer accepts for an offer.
type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

// AuthorizationCodeGrant holds the authorization code grant parameters.
type AuthorizationCodeGrant struct {
	IssuerState         string `json:"issuer_state,omitempty"`
	AuthorizationServer string `json:"authorization_server,omitempty"`
}

// PreAuthorizedCodeGrant holds the pre-authorized code grant parameters.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	UserPINRequired   bool    `json:"user_pin_required,omitempty"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// TxCode describes the transaction code a user has to enter for a pre-authorized grant.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// PINRequired reports whether the token request must carry a user PIN.
func (g *PreAuthorizedCodeGrant) PINRequired() bool {
	return g.UserPINRequired || g.TxCode != nil
}

type rawCredentialOffer struct {
	CredentialIssuer           string        `json:"credential_issuer"`
	Credentials                []interface{} `json:"credentials"`
	CredentialConfigurationIDs []string      `json:"credential_configuration_ids"`
	Grants                     *Grants       `json:"grants"`
}

// UnmarshalJSON accepts credentials given as objects or as configuration ID strings,
// and credential_configuration_ids.
func (o *CredentialOffer) UnmarshalJSON(data []byte) error {
	raw := rawCredentialOffer{}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.CredentialIssuer = raw.CredentialIssuer
	o.Grants = raw.Grants
	o.Credentials = make([]CredentialDescriptor, 0, len(raw.Credentials)+len(raw.CredentialConfigurationIDs))

	for i, entry := range raw.Credentials {
		switch v := entry.(type) {
		case string:
			o.Credentials = append(o.Credentials, CredentialDescriptor{ConfigurationID: v})
		case map[string]interface{}:
			var descriptor CredentialDescriptor

			if err := mapstructure.Decode(v, &descriptor); err != nil {
				return fmt.Errorf("credentials[%d]: %w", i, err)
			}

			o.Credentials = append(o.Credentials, descriptor)
		default:
			return fmt.Errorf("credentials[%d]: unsupported entry %T", i, entry)
		}
	}

	for _, id := range raw.CredentialConfigurationIDs {
		o.Credentials = append(o.Credentials, CredentialDescriptor{ConfigurationID: id})
	}

	return nil
}

// MarshalJSON writes a configuration ID only descriptor back as a string.
func (d CredentialDescriptor) MarshalJSON() ([]byte, error) {
	if d.ConfigurationID != "" && d.Format == "" && len(d.Types) == 0 {
		return json.Marshal(d.ConfigurationID)
	}

	type descriptor CredentialDescriptor

	return json.Marshal(descriptor(d))
}

// CredentialTypes returns the types of the credential, wherever the offer put them.
func (d *CredentialDescriptor) CredentialTypes() []string {
	if len(d.Types) == 0 && d.CredentialDefinition != nil {
		return d.CredentialDefinition.Type
	}

	return d.Types
}

// IssuerState returns the issuer_state of the authorization code grant, if any.
func (o *CredentialOffer) IssuerState() string {
	if o.Grants == nil || o.Grants.AuthorizationCode == nil {
		return ""
	}

	return o.Grants.AuthorizationCode.IssuerState
}

// PreAuthorizedGrant returns the pre-authorized code grant, nil when the offer has none.
func (o *CredentialOffer) PreAuthorizedGrant() *PreAuthorizedCodeGrant {
	if o.Grants == nil || o.Grants.PreAuthorizedCode == nil || o.Grants.PreAuthorizedCode.PreAuthorizedCode == "" {
		return nil
	}

	return o.Grants.PreAuthorizedCode
}

// requested returns the descriptor authorization and credential requests are made for.
func (o *CredentialOffer) requested() CredentialDescriptor {
	if len(o.Credentials) == 0 {
		return CredentialDescriptor{}
	}

	return o.Credentials[0]
}

// AuthorizationSession holds the per attempt secrets of an authorization request.
type AuthorizationSession struct {
	State         string
	Nonce         string
	CodeVerifier  string
	CodeChallenge string
}

// AuthorizationDetail is an entry of the authorization_details parameter.
type AuthorizationDetail struct {
	Type                      string   `json:"type"`
	Format                    string   `json:"format,omitempty"`
	Types                     []string `json:"types,omitempty"`
	CredentialConfigurationID string   `json:"credential_configuration_id,omitempty"`
	Locations                 []string `json:"locations,omitempty"`
}

// ClientMetadata declares the wallet capabilities in an authorization request.
type ClientMetadata struct {
	VPFormatsSupported     VPFormats `json:"vp_formats_supported"`
	ResponseTypesSupported []string  `json:"response_types_supported"`
	AuthorizationEndpoint  string    `json:"authorization_endpoint"`
}

// VPFormats lists the supported JWT proof formats.
type VPFormats struct {
	JWTVP AlgList `json:"jwt_vp"`
	JWTVC AlgList `json:"jwt_vc"`
}

// AlgList is a list of JWS algorithms.
type AlgList struct {
	Alg []string `json:"alg"`
}

// TokenRequest is the input of a token exchange. PreAuthorized selects the grant, the two are exclusive.
type TokenRequest struct {
	Endpoint string
	DID      string
	Code     string
	// CodeVerifier is the PKCE verifier of the authorization request, authorization code grant only.
	CodeVerifier  string
	PreAuthorized bool
	// UserPIN is sent as user_pin with the pre-authorized grant when not empty.
	UserPIN string
}

// TokenResponse is a successful token endpoint response.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	IDToken         string `json:"id_token,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

// CredentialRequest is the body posted to the credential endpoint.
type CredentialRequest struct {
	Types                     []string `json:"types,omitempty"`
	Format                    string   `json:"format,omitempty"`
	CredentialConfigurationID string   `json:"credential_configuration_id,omitempty"`
	Proof                     Proof    `json:"proof"`
}

// Proof carries the proof of possession of a credential request.
type Proof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialResponse is a successful credential or deferred credential endpoint response.
type CredentialResponse struct {
	Format          string          `json:"format,omitempty"`
	Credential      json.RawMessage `json:"credential,omitempty"`
	AcceptanceToken string          `json:"acceptance_token,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	CNonce          string          `json:"c_nonce,omitempty"`
	CNonceExpiresIn int             `json:"c_nonce_expires_in,omitempty"`
}

// CredentialRequestParams is the input of RequestCredential.
type CredentialRequestParams struct {
	Endpoint    string
	AccessToken string
	// IssuerURL is the audience of the proof.
	IssuerURL string
	// Nonce is the c_nonce the proof must echo.
	Nonce string
	Offer *CredentialOffer
}

// IssuerMetadata is the credential issuer metadata document.
type IssuerMetadata struct {
	CredentialIssuer                  string          `json:"credential_issuer"`
	AuthorizationServer               string          `json:"authorization_server,omitempty"`
	AuthorizationServers              []string        `json:"authorization_servers,omitempty"`
	CredentialEndpoint                string          `json:"credential_endpoint"`
	DeferredCredentialEndpoint        string          `json:"deferred_credential_endpoint,omitempty"`
	CredentialsSupported              json.RawMessage `json:"credentials_supported,omitempty"`
	CredentialConfigurationsSupported json.RawMessage `json:"credential_configurations_supported,omitempty"`
}

// AuthorizationServerURL returns the authorization server of the issuer, the issuer itself when none is named.
func (m *IssuerMetadata) AuthorizationServerURL() string {
	switch {
	case m.AuthorizationServer != "":
		return m.AuthorizationServer
	case len(m.AuthorizationServers) > 0:
		return m.AuthorizationServers[0]
	default:
		return m.CredentialIssuer
	}
}

// AuthorizationServerMetadata is the OAuth authorization server metadata document.
type AuthorizationServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}
