/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package key derives did:key identifiers from wallet key pairs and decodes them back.
//
// Two encodings are supported: the P-256 "jwk_jcs-pub" form, where the method specific identifier
// carries the canonical JSON of the public JWK, and the raw Ed25519 public key form.
package key

import (
	"regexp"
	"strings"
)

const (
	// DIDMethod did method.
	DIDMethod = "key"

	// didKeyPrefix is the scheme and method part of every did:key.
	didKeyPrefix = "did:" + DIDMethod + ":"

	// source: https://github.com/multiformats/multicodec/blob/master/table.csv.
	// JWKJCSPubMultiCodec for a JCS canonicalized public JWK, encodes as 0xd1 0xd6 0x03.
	JWKJCSPubMultiCodec = 0xeb51
	// ED25519PubKeyMultiCodec for Ed25519 public key in multicodec table, encodes as 0xed 0x01.
	ED25519PubKeyMultiCodec = 0xed
)

var didKeyRegexp = regexp.MustCompile(`^did:key:z[1-9A-HJ-NP-Za-km-z]+$`)

// IsDIDKey reports whether didKey matches the did:key grammar with a base58-btc multibase value.
func IsDIDKey(didKey string) bool {
	return didKeyRegexp.MatchString(didKey)
}

// MethodID returns the method specific identifier of a did:key, i.e. the DID without "did:key:".
func MethodID(didKey string) string {
	return strings.TrimPrefix(didKey, didKeyPrefix)
}

// KeyID returns the verification method ID used as JWS kid: "<did>#<did without did:key:>".
func KeyID(didKey string) string {
	return didKey + "#" + MethodID(didKey)
}
