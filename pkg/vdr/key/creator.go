/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package key

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/multiformats/go-multibase"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
)

// canonicalECJWK is the JCS form of a P-256 public JWK: members in lexicographic order, no whitespace.
// The field order is part of the DID derivation and must not change.
type canonicalECJWK struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// CreateDID derives the did:key of the public part of kp.
func CreateDID(kp keypair.KeyPair) (string, error) {
	switch k := kp.(type) {
	case *keypair.ECKeyPair:
		return CreateDIDFromECKey(k)
	case *keypair.OKPKeyPair:
		pub, err := k.PublicKey()
		if err != nil {
			return "", err
		}

		return CreateDIDFromEd25519(pub)
	default:
		return "", &keypair.KeyConversionError{Err: fmt.Errorf("unsupported key pair %T", kp)}
	}
}

// CreateDIDFromECKey derives a jwk_jcs-pub did:key from a P-256 public key.
func CreateDIDFromECKey(kp *keypair.ECKeyPair) (string, error) {
	// validates curve, coordinate sizes and the point itself
	if _, err := kp.PublicKey(); err != nil {
		return "", err
	}

	canonical, err := json.Marshal(canonicalECJWK{
		Crv: kp.Crv,
		Kty: string(keypair.KeyTypeEC),
		X:   base64.RawURLEncoding.EncodeToString(kp.X),
		Y:   base64.RawURLEncoding.EncodeToString(kp.Y),
	})
	if err != nil {
		return "", &keypair.KeyConversionError{Err: fmt.Errorf("canonicalize jwk: %w", err)}
	}

	return createDIDKeyByCode(JWKJCSPubMultiCodec, canonical)
}

// CreateDIDFromEd25519 derives a did:key from raw Ed25519 public key bytes.
func CreateDIDFromEd25519(pubKey []byte) (string, error) {
	if _, err := (&keypair.OKPKeyPair{Crv: keypair.CurveEd25519, X: pubKey}).PublicKey(); err != nil {
		return "", err
	}

	return createDIDKeyByCode(ED25519PubKeyMultiCodec, pubKey)
}

func createDIDKeyByCode(code uint64, value []byte) (string, error) {
	methodID, err := multibase.Encode(multibase.Base58BTC, append(multicodec(code), value...))
	if err != nil {
		return "", &keypair.KeyConversionError{Err: fmt.Errorf("multibase encode: %w", err)}
	}

	return didKeyPrefix + methodID, nil
}

func multicodec(code uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	bw := binary.PutUvarint(buf, code)

	return buf[:bw]
}
