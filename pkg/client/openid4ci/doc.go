/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package openid4ci implements the wallet side of OpenID for Verifiable Credential Issuance:
// https://openid.net/specs/openid-4-verifiable-credential-issuance-1_0.html.
//
// The Client operations map one to one to the protocol steps and keep no state between calls.
// A Flow chains them for one issuance attempt.
//
// 1. Create your client over a transport:
//
//	client, err := openid4ci.New(http.New(http.WithTimeout(10 * time.Second)))
//	if err != nil {
//		panic(err)
//	}
//
// 2. Create the wallet identity:
//
//	kp, err := keypair.GenerateECKeyPair(nil)
//	did, err := key.CreateDIDFromECKey(kp)
//
// 3. Run the steps:
//
//	flow := client.NewFlow(did, kp)
//
//	err = flow.ResolveOffer(ctx, scannedQRCode)
//	err = flow.Authorize(ctx, authServer.AuthorizationEndpoint) // skipped for pre-authorized offers
//	err = flow.ExchangeToken(ctx, authServer.TokenEndpoint, userPIN)
//
//	result, err := flow.RequestCredential(ctx, issuer.CredentialEndpoint)
//	if result.Deferred() {
//		result, err = flow.PollDeferredCredential(ctx, issuer.DeferredCredentialEndpoint)
//	}
//
// Nothing is retried by the package: polling a deferred credential and retrying a proof rejected
// with ErrProofClientIDMismatch are left to the caller.
package openid4ci
