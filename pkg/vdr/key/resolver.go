/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package key

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
)

// maxMulticodecBytes bounds the uvarint prefix length.
const maxMulticodecBytes = 9

// PublicKeyFromDID decodes a did:key back into a public only key pair.
func PublicKeyFromDID(didKey string) (keypair.KeyPair, error) {
	if !strings.HasPrefix(didKey, didKeyPrefix) {
		return nil, fmt.Errorf("not a did:key: %s", didKey)
	}

	value, code, err := pubKeyFromFingerprint(MethodID(didKey))
	if err != nil {
		return nil, fmt.Errorf("did:key %s: %w", didKey, err)
	}

	switch code {
	case JWKJCSPubMultiCodec:
		return ecKeyFromCanonicalJWK(value)
	case ED25519PubKeyMultiCodec:
		kp := &keypair.OKPKeyPair{Crv: keypair.CurveEd25519, X: value}

		if _, err := kp.PublicKey(); err != nil {
			return nil, err
		}

		return kp, nil
	default:
		return nil, fmt.Errorf("unsupported key multicodec code [0x%x]", code)
	}
}

func pubKeyFromFingerprint(fingerprint string) ([]byte, uint64, error) {
	if len(fingerprint) < 2 || fingerprint[0] != 'z' {
		return nil, 0, errors.New("unknown key encoding")
	}

	// skip leading "z"
	mc := base58.Decode(fingerprint[1:])

	code, br := binary.Uvarint(mc)
	if br <= 0 {
		return nil, 0, errors.New("unknown key encoding")
	}

	if br > maxMulticodecBytes {
		return nil, 0, errors.New("code exceeds maximum size")
	}

	return mc[br:], code, nil
}

func ecKeyFromCanonicalJWK(value []byte) (keypair.KeyPair, error) {
	var jwk canonicalECJWK

	if err := json.Unmarshal(value, &jwk); err != nil {
		return nil, &keypair.KeyConversionError{Err: fmt.Errorf("parse jcs jwk: %w", err)}
	}

	if jwk.Kty != string(keypair.KeyTypeEC) {
		return nil, &keypair.KeyConversionError{Err: fmt.Errorf("unexpected kty %q", jwk.Kty)}
	}

	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, &keypair.KeyConversionError{Err: fmt.Errorf("decode x: %w", err)}
	}

	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, &keypair.KeyConversionError{Err: fmt.Errorf("decode y: %w", err)}
	}

	kp := &keypair.ECKeyPair{Crv: jwk.Crv, X: x, Y: y}

	if _, err := kp.PublicKey(); err != nil {
		return nil, err
	}

	return kp, nil
}
