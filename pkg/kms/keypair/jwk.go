/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keypair

import (
	"crypto/ecdsa"
	"crypto/ed25519"

	"github.com/go-jose/go-jose/v3"
)

// FromJWK converts a JSON Web Key holding an EC P-256 or Ed25519 key, private or public, into a KeyPair.
func FromJWK(jsonWebKey *jose.JSONWebKey) (KeyPair, error) {
	if jsonWebKey == nil || jsonWebKey.Key == nil {
		return nil, conversionErr("jwk is empty")
	}

	switch key := jsonWebKey.Key.(type) {
	case *ecdsa.PrivateKey:
		kp, err := ecKeyPairFromPublic(&key.PublicKey, jsonWebKey.KeyID)
		if err != nil {
			return nil, err
		}

		kp.D = key.D.FillBytes(make([]byte, p256CoordinateSize))

		return kp, nil
	case *ecdsa.PublicKey:
		return ecKeyPairFromPublic(key, jsonWebKey.KeyID)
	case ed25519.PrivateKey:
		return &OKPKeyPair{
			Crv: CurveEd25519,
			X:   []byte(key.Public().(ed25519.PublicKey)),
			D:   key.Seed(),
			KID: jsonWebKey.KeyID,
		}, nil
	case ed25519.PublicKey:
		return &OKPKeyPair{Crv: CurveEd25519, X: []byte(key), KID: jsonWebKey.KeyID}, nil
	default:
		return nil, conversionErr("unsupported jwk key type %T", key)
	}
}

func ecKeyPairFromPublic(pub *ecdsa.PublicKey, kid string) (*ECKeyPair, error) {
	if pub.Curve == nil || pub.Curve.Params().Name != CurveP256 {
		return nil, conversionErr("unsupported EC curve")
	}

	kp := &ECKeyPair{
		Crv: CurveP256,
		X:   pub.X.FillBytes(make([]byte, p256CoordinateSize)),
		Y:   pub.Y.FillBytes(make([]byte, p256CoordinateSize)),
		KID: kid,
	}

	// validates the point
	if _, err := kp.PublicKey(); err != nil {
		return nil, err
	}

	return kp, nil
}

// ParseJWK parses a serialized JSON Web Key into a KeyPair.
func ParseJWK(data []byte) (KeyPair, error) {
	jsonWebKey := &jose.JSONWebKey{}

	if err := jsonWebKey.UnmarshalJSON(data); err != nil {
		return nil, conversionErr("parse jwk: %w", err)
	}

	return FromJWK(jsonWebKey)
}

// MarshalJWK serializes the key pair, including its private component when present, as JSON Web Key.
func MarshalJWK(kp KeyPair) ([]byte, error) {
	jsonWebKey, err := privateJWK(kp)
	if err != nil {
		return nil, err
	}

	data, err := jsonWebKey.MarshalJSON()
	if err != nil {
		return nil, conversionErr("marshal jwk: %w", err)
	}

	return data, nil
}

func privateJWK(kp KeyPair) (*jose.JSONWebKey, error) {
	switch k := kp.(type) {
	case *ECKeyPair:
		if k == nil || len(k.D) == 0 {
			return k.PublicJWK()
		}

		priv, err := k.PrivateKey()
		if err != nil {
			return nil, err
		}

		return &jose.JSONWebKey{Key: priv, KeyID: k.KID, Algorithm: string(jose.ES256), Use: "sig"}, nil
	case *OKPKeyPair:
		if k == nil || len(k.D) == 0 {
			return k.PublicJWK()
		}

		priv, err := k.PrivateKey()
		if err != nil {
			return nil, err
		}

		return &jose.JSONWebKey{Key: priv, KeyID: k.KID, Algorithm: string(jose.EdDSA), Use: "sig"}, nil
	case nil:
		return nil, conversionErr("key pair is nil")
	default:
		return nil, conversionErr("unsupported key pair %T", kp)
	}
}
