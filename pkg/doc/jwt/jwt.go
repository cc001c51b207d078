/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwt builds and verifies the JWTs a wallet signs with its did:key during issuance:
// the self-issued ID token answering an authorization request and the credential proof of possession.
package jwt

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3/jwt"
)

const (
	// TypeJWT defines JWT type, used for the self-issued ID token.
	TypeJWT = "JWT"

	// TypeOpenID4VCIProof is the typ header of a credential request proof.
	TypeOpenID4VCIProof = "openid4vci-proof+jwt"

	// DefaultIDTokenTTL is the lifetime of a self-issued ID token.
	DefaultIDTokenTTL = 60 * time.Second

	// DefaultCredentialProofTTL is the lifetime of a credential proof.
	DefaultCredentialProofTTL = 24 * time.Hour
)

// Claims defines the claims of a wallet proof: registered JSON Web Token claims
// (https://tools.ietf.org/html/rfc7519#section-4) plus the server supplied nonce.
type Claims struct {
	jwt.Claims

	Nonce string `json:"nonce,omitempty"`
}

// SigningError is returned when a proof can not be built or signed. It is fatal for the current step.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign jwt: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

func signingErr(format string, args ...interface{}) error {
	return &SigningError{Err: fmt.Errorf(format, args...)}
}
