/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"errors"
	"fmt"
)

// ErrorCodeGeneric is the code of an issuer error reported as an "errors" list, which carries no code.
const ErrorCodeGeneric = "Error"

var (
	// ErrUnexpectedResponse is returned when the issuer answered with a body that can not be interpreted,
	// including error bodies matching none of the known error shapes. It is wrapped with the status code.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrProofClientIDMismatch is matched by errors.Is when the issuer rejected the credential proof because
	// its iss claim is not the expected client_id. The request may be retried with a fresh nonce.
	ErrProofClientIDMismatch = errors.New("proof iss does not match the expected client_id")

	// ErrNoOffer is returned by a Flow when the offer input held no credential offer.
	ErrNoOffer = errors.New("no credential offer")

	errNilTransport = errors.New("transport is nil")
)

// InvalidOfferError is returned when a credential offer can not be parsed.
type InvalidOfferError struct {
	Err error
}

func (e *InvalidOfferError) Error() string {
	return fmt.Sprintf("invalid credential offer: %v", e.Err)
}

func (e *InvalidOfferError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned when neither the direct nor the ID token path produced an authorization code.
// Code and Description are set when the authorization server reported an error.
type AuthorizationError struct {
	Step        string
	Code        string
	Description string
	Err         error
}

func (e *AuthorizationError) Error() string {
	msg := "authorization failed"
	if e.Step != "" {
		msg += " at " + e.Step + " step"
	}

	if e.Code != "" {
		msg += fmt.Sprintf(": %s (%s)", e.Code, e.Description)
	}

	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}

	return msg
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// TokenError is a structured error returned by the token endpoint.
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// CredentialError is a structured error returned by the credential or deferred credential endpoint.
type CredentialError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// ProofMismatchError reports a credential proof rejected for its iss claim. It matches ErrProofClientIDMismatch.
// CNonce is set when the issuer sent a fresh nonce along with the error.
type ProofMismatchError struct {
	StatusCode int
	CNonce     string
}

func (e *ProofMismatchError) Error() string {
	return fmt.Sprintf("credential request failed with status %d: %v", e.StatusCode, ErrProofClientIDMismatch)
}

// Is matches ErrProofClientIDMismatch.
func (e *ProofMismatchError) Is(target error) bool {
	return target == ErrProofClientIDMismatch
}

func unexpectedResponse(status int, format string, args ...interface{}) error {
	return fmt.Errorf("%w (status %d): %s", ErrUnexpectedResponse, status, fmt.Sprintf(format, args...))
}
