/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package keypair generates and represents the asymmetric key pairs that back a wallet identity.
//
// A KeyPair is either an *ECKeyPair (NIST P-256) or an *OKPKeyPair (Ed25519). Both expose their
// components in JWK form (curve tag, base coordinates and private scalar) so they can be consumed
// by the did:key derivation and the JWT proof builder without runtime casting.
package keypair

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// KeyType is the JWK key type (kty) of a key pair.
type KeyType string

const (
	// KeyTypeEC is an elliptic curve key pair.
	KeyTypeEC KeyType = "EC"
	// KeyTypeOKP is an octet key pair (RFC 8037).
	KeyTypeOKP KeyType = "OKP"
)

const (
	// CurveP256 is the JWK curve name of NIST P-256.
	CurveP256 = "P-256"
	// CurveEd25519 is the JWK curve name of Ed25519.
	CurveEd25519 = "Ed25519"

	p256CoordinateSize = 32

	seedInfo          = "oidc-client P-256 key derivation"
	maxSeedCandidates = 64
)

// KeyPair is a key pair owned by a single wallet identity. It is implemented by *ECKeyPair and *OKPKeyPair only.
type KeyPair interface {
	// KeyType returns the JWK kty of the key pair.
	KeyType() KeyType
	// KeyID returns the key identifier, empty when none was assigned.
	KeyID() string
	// PublicJWK returns the public part as a JSON Web Key.
	PublicJWK() (*jose.JSONWebKey, error)

	sealed()
}

// ECKeyPair is a NIST P-256 key pair in JWK structural form.
type ECKeyPair struct {
	Crv string
	X   []byte
	Y   []byte
	// D is empty for public only keys.
	D   []byte
	KID string
}

// OKPKeyPair is an Ed25519 key pair in JWK structural form. D holds the 32 byte private seed.
type OKPKeyPair struct {
	Crv string
	X   []byte
	D   []byte
	KID string
}

// KeyConversionError is returned when key material can not be normalized into the expected representation.
// It is not recoverable for the given key, a new key has to be generated or the input fixed.
type KeyConversionError struct {
	Err error
}

func (e *KeyConversionError) Error() string {
	return fmt.Sprintf("key conversion: %v", e.Err)
}

func (e *KeyConversionError) Unwrap() error {
	return e.Err
}

func conversionErr(format string, args ...interface{}) error {
	return &KeyConversionError{Err: fmt.Errorf(format, args...)}
}

// GenerateECKeyPair creates a P-256 key pair. When seed is not empty the key pair is a deterministic
// function of the seed, otherwise it is drawn from crypto/rand.
func GenerateECKeyPair(seed []byte) (*ECKeyPair, error) {
	var (
		priv *ecdh.PrivateKey
		err  error
	)

	if len(seed) > 0 {
		priv, err = deriveP256(seed)
	} else {
		priv, err = ecdh.P256().GenerateKey(rand.Reader)
	}

	if err != nil {
		return nil, fmt.Errorf("generate P-256 key: %w", err)
	}

	// uncompressed point: 0x04 || X || Y
	point := priv.PublicKey().Bytes()

	return &ECKeyPair{
		Crv: CurveP256,
		X:   point[1 : 1+p256CoordinateSize],
		Y:   point[1+p256CoordinateSize:],
		D:   priv.Bytes(),
	}, nil
}

func deriveP256(seed []byte) (*ecdh.PrivateKey, error) {
	kdf := hkdf.New(sha256.New, seed, nil, []byte(seedInfo))
	candidate := make([]byte, p256CoordinateSize)

	for i := 0; i < maxSeedCandidates; i++ {
		if _, err := io.ReadFull(kdf, candidate); err != nil {
			return nil, err
		}

		// rejects zero and values not below the group order
		priv, err := ecdh.P256().NewPrivateKey(candidate)
		if err == nil {
			return priv, nil
		}
	}

	return nil, errors.New("seed did not produce a valid scalar")
}

// GenerateEd25519KeyPair creates an Ed25519 key pair with a random key ID.
func GenerateEd25519KeyPair() (*OKPKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate Ed25519 key: %w", err)
	}

	return &OKPKeyPair{
		Crv: CurveEd25519,
		X:   pub,
		D:   priv.Seed(),
		KID: uuid.New().String(),
	}, nil
}

// KeyType returns EC.
func (k *ECKeyPair) KeyType() KeyType { return KeyTypeEC }

// KeyID returns the key identifier.
func (k *ECKeyPair) KeyID() string { return k.KID }

func (k *ECKeyPair) sealed() {}

// PublicKey converts the public coordinates into an *ecdsa.PublicKey, validating the point.
func (k *ECKeyPair) PublicKey() (*ecdsa.PublicKey, error) {
	if k == nil {
		return nil, conversionErr("EC key pair is nil")
	}

	if k.Crv != CurveP256 {
		return nil, conversionErr("unsupported EC curve %q", k.Crv)
	}

	if len(k.X) != p256CoordinateSize || len(k.Y) != p256CoordinateSize {
		return nil, conversionErr("P-256 coordinates must be %d bytes, got x=%d y=%d",
			p256CoordinateSize, len(k.X), len(k.Y))
	}

	point := make([]byte, 0, 1+2*p256CoordinateSize)
	point = append(point, 0x04)
	point = append(point, k.X...)
	point = append(point, k.Y...)

	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, conversionErr("invalid P-256 point: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}, nil
}

// PrivateKey converts the key pair into an *ecdsa.PrivateKey.
func (k *ECKeyPair) PrivateKey() (*ecdsa.PrivateKey, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}

	if len(k.D) == 0 {
		return nil, conversionErr("EC key pair has no private component")
	}

	priv, err := ecdh.P256().NewPrivateKey(leftPad(k.D, p256CoordinateSize))
	if err != nil {
		return nil, conversionErr("invalid P-256 scalar: %w", err)
	}

	ecdhPub, err := pub.ECDH()
	if err != nil {
		return nil, conversionErr("invalid P-256 point: %w", err)
	}

	if !priv.PublicKey().Equal(ecdhPub) {
		return nil, conversionErr("P-256 private scalar does not match the public point")
	}

	return &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(k.D)}, nil
}

// PublicJWK returns the public key as JWK with ES256 as intended algorithm.
func (k *ECKeyPair) PublicJWK() (*jose.JSONWebKey, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}

	return &jose.JSONWebKey{Key: pub, KeyID: k.KID, Algorithm: string(jose.ES256), Use: "sig"}, nil
}

// KeyType returns OKP.
func (k *OKPKeyPair) KeyType() KeyType { return KeyTypeOKP }

// KeyID returns the key identifier.
func (k *OKPKeyPair) KeyID() string { return k.KID }

func (k *OKPKeyPair) sealed() {}

// PublicKey returns the Ed25519 public key.
func (k *OKPKeyPair) PublicKey() (ed25519.PublicKey, error) {
	if k == nil {
		return nil, conversionErr("OKP key pair is nil")
	}

	if k.Crv != CurveEd25519 {
		return nil, conversionErr("unsupported OKP curve %q", k.Crv)
	}

	if len(k.X) != ed25519.PublicKeySize {
		return nil, conversionErr("Ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(k.X))
	}

	return ed25519.PublicKey(k.X), nil
}

// PrivateKey returns the Ed25519 private key expanded from the seed.
func (k *OKPKeyPair) PrivateKey() (ed25519.PrivateKey, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}

	if len(k.D) != ed25519.SeedSize {
		return nil, conversionErr("Ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(k.D))
	}

	priv := ed25519.NewKeyFromSeed(k.D)
	if !pub.Equal(priv.Public()) {
		return nil, conversionErr("Ed25519 seed does not match the public key")
	}

	return priv, nil
}

// PublicJWK returns the public key as JWK with EdDSA as intended algorithm.
func (k *OKPKeyPair) PublicJWK() (*jose.JSONWebKey, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return nil, err
	}

	return &jose.JSONWebKey{Key: pub, KeyID: k.KID, Algorithm: string(jose.EdDSA), Use: "sig"}, nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}

	padded := make([]byte, size)
	copy(padded[size-len(b):], b)

	return padded
}
