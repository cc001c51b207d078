/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

// State is the state of an issuance Flow.
type State string

const (
	// StateNew is the state of a Flow before an offer was resolved.
	StateNew State = "new"
	// StateOfferReceived holds a parsed credential offer.
	StateOfferReceived State = "offer-received"
	// StateAuthorizationPending is entered while the authorization request is in flight.
	StateAuthorizationPending State = "authorization-pending"
	// StateAuthorized holds an authorization code.
	StateAuthorized State = "authorized"
	// StateTokenObtained holds an access token.
	StateTokenObtained State = "token-obtained"
	// StateCredentialRequested is entered while the credential request is in flight.
	StateCredentialRequested State = "credential-requested"
	// StateCredentialIssued is final, the credential was issued.
	StateCredentialIssued State = "credential-issued"
	// StateDeferredPending holds an acceptance token to poll with.
	StateDeferredPending State = "deferred-pending"
	// StateFailed is final.
	StateFailed State = "failed"
)

// CanTransitionTo reports whether next may follow s.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateNew:
		return next == StateOfferReceived
	case StateOfferReceived:
		// pre-authorized offers go to the token endpoint directly
		return next == StateAuthorizationPending || next == StateTokenObtained || next == StateFailed
	case StateAuthorizationPending:
		return next == StateAuthorized || next == StateFailed
	case StateAuthorized:
		return next == StateTokenObtained || next == StateFailed
	case StateTokenObtained:
		return next == StateCredentialRequested || next == StateFailed
	case StateCredentialRequested:
		return next == StateCredentialIssued || next == StateDeferredPending || next == StateFailed
	case StateDeferredPending:
		return next == StateCredentialIssued || next == StateFailed
	}

	return false
}

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateCredentialIssued || s == StateFailed
}
