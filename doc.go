/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package oidcclient enables Go wallets to receive verifiable credentials from issuers speaking
// OpenID for Verifiable Credential Issuance (OpenID4VCI).
//
// Packages for end developer usage
//
// pkg/kms/keypair: Generates P-256 (optionally from a seed) and Ed25519 wallet key pairs and converts them
// from and to JSON Web Keys.
//
// pkg/vdr/key: Derives did:key identifiers from wallet key pairs and resolves them back to public keys.
//
// pkg/doc/jwt: Builds and verifies the self-issued ID tokens and credential proofs signed by the wallet key.
//
// pkg/client/openid4ci: Resolves credential offers, authorizes (with self-issued ID token fallback),
// exchanges tokens, requests credentials and polls deferred ones.
//
// Basic workflow
//
//	1) Generate or load a key pair and derive its did:key.
//	2) Create an openid4ci client with an HTTP transport from pkg/transport/http.
//	3) Start a flow for the DID and resolve the credential offer.
//	4) Authorize or use the pre-authorized code, then exchange the token.
//	5) Request the credential and poll the deferred endpoint while the issuer is not ready.
package oidcclient
