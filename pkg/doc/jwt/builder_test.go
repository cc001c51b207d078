/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwt

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	"github.com/eudi-wallet/oidc-client-go/pkg/vdr/key"
)

const (
	authEndpoint = "https://auth.example.com/authorize"
	issuerURL    = "https://issuer.example.com"
)

var issuedAt = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func newWallet(t *testing.T) (string, *keypair.ECKeyPair) {
	t.Helper()

	kp, err := keypair.GenerateECKeyPair(nil)
	require.NoError(t, err)

	did, err := key.CreateDIDFromECKey(kp)
	require.NoError(t, err)

	return did, kp
}

func decodeSegment(t *testing.T, token string, i int) map[string]interface{} {
	t.Helper()

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	raw, err := base64.RawURLEncoding.DecodeString(parts[i])
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))

	return m
}

func TestSelfIssuedIDToken(t *testing.T) {
	did, kp := newWallet(t)
	builder := NewProofBuilder(WithClock(func() time.Time { return issuedAt }))

	token, err := builder.SelfIssuedIDToken(did, kp, authEndpoint, "n-0S6_WzA2Mj")
	require.NoError(t, err)

	headers := decodeSegment(t, token, 0)
	require.Equal(t, "ES256", headers["alg"])
	require.Equal(t, TypeJWT, headers["typ"])
	require.Equal(t, key.KeyID(did), headers["kid"])
	require.Contains(t, headers, "jwk")

	claims := decodeSegment(t, token, 1)
	require.Equal(t, did, claims["iss"])
	require.Equal(t, did, claims["sub"])
	require.Equal(t, authEndpoint, claims["aud"])
	require.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	require.EqualValues(t, issuedAt.Unix(), claims["iat"])
	require.EqualValues(t, issuedAt.Add(60*time.Second).Unix(), claims["exp"])

	verifier := NewProofBuilder(WithClock(func() time.Time { return issuedAt.Add(30 * time.Second) }))

	proof, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, TypeJWT, proof.Type)
	require.Equal(t, did, proof.DID())
	require.Equal(t, "n-0S6_WzA2Mj", proof.Claims.Nonce)
}

func TestCredentialProof(t *testing.T) {
	did, kp := newWallet(t)

	t.Run("default lifetime", func(t *testing.T) {
		builder := NewProofBuilder(WithClock(func() time.Time { return issuedAt }))

		token, err := builder.CredentialProof(did, kp, issuerURL, "c-nonce")
		require.NoError(t, err)

		headers := decodeSegment(t, token, 0)
		require.Equal(t, TypeOpenID4VCIProof, headers["typ"])

		claims := decodeSegment(t, token, 1)
		require.Equal(t, did, claims["iss"])
		require.NotContains(t, claims, "sub")
		require.Equal(t, issuerURL, claims["aud"])
		require.EqualValues(t, issuedAt.Add(24*time.Hour).Unix(), claims["exp"])

		proof, err := builder.Verify(token)
		require.NoError(t, err)
		require.Equal(t, TypeOpenID4VCIProof, proof.Type)
		require.Equal(t, "c-nonce", proof.Claims.Nonce)
	})

	t.Run("custom lifetime expires", func(t *testing.T) {
		builder := NewProofBuilder(
			WithClock(func() time.Time { return issuedAt }),
			WithCredentialProofTTL(5*time.Minute),
			WithIDTokenTTL(time.Second),
		)

		token, err := builder.CredentialProof(did, kp, issuerURL, "c-nonce")
		require.NoError(t, err)
		require.EqualValues(t, issuedAt.Add(5*time.Minute).Unix(), decodeSegment(t, token, 1)["exp"])

		later := NewProofBuilder(WithClock(func() time.Time { return issuedAt.Add(time.Hour) }))

		_, err = later.Verify(token)
		require.Error(t, err)
		require.Contains(t, err.Error(), "validate claims")
	})

	t.Run("Ed25519 key signs with EdDSA", func(t *testing.T) {
		okp, err := keypair.GenerateEd25519KeyPair()
		require.NoError(t, err)

		edDID, err := key.CreateDID(okp)
		require.NoError(t, err)

		builder := NewProofBuilder()

		token, err := builder.CredentialProof(edDID, okp, issuerURL, "c-nonce")
		require.NoError(t, err)
		require.Equal(t, "EdDSA", decodeSegment(t, token, 0)["alg"])

		_, err = builder.Verify(token)
		require.NoError(t, err)
	})
}

func TestSigningErrors(t *testing.T) {
	did, kp := newWallet(t)
	builder := NewProofBuilder()

	tests := []struct {
		name string
		did  string
		kp   keypair.KeyPair
	}{
		{name: "empty did", did: "", kp: kp},
		{name: "nil key pair", did: did, kp: nil},
		{name: "public only key", did: did, kp: &keypair.ECKeyPair{Crv: kp.Crv, X: kp.X, Y: kp.Y}},
		{name: "broken OKP key", did: did, kp: &keypair.OKPKeyPair{Crv: keypair.CurveEd25519, X: []byte("x")}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.CredentialProof(tc.did, tc.kp, issuerURL, "nonce")
			require.Error(t, err)

			var signErr *SigningError
			require.True(t, errors.As(err, &signErr))
		})
	}
}

func TestVerify(t *testing.T) {
	did, kp := newWallet(t)
	builder := NewProofBuilder()

	token, err := builder.CredentialProof(did, kp, issuerURL, "nonce")
	require.NoError(t, err)

	t.Run("not a JWS", func(t *testing.T) {
		_, err := builder.Verify("not-a-jwt")
		require.Error(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"did:key:zEvil"}`))

		_, err := builder.Verify(strings.Join(parts, "."))
		require.Error(t, err)
		require.Contains(t, err.Error(), "verify signature")
	})

	t.Run("kid names another did:key", func(t *testing.T) {
		otherDID, _ := newWallet(t)

		forged, err := builder.CredentialProof(otherDID, kp, issuerURL, "nonce")
		require.NoError(t, err)

		_, err = builder.Verify(forged)
		require.Error(t, err)
		require.Contains(t, err.Error(), "jwk does not match key")
	})
}
