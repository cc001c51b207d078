/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package key

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
)

const (
	pubKeyBase58Ed25519 = "B12NYF8RrR3h41TDCTJojY59usg3mbtbjnFs7Eud1Y6u"
	didKeyEd25519       = "did:key:z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH"
)

func TestCreateDIDFromEd25519(t *testing.T) {
	t.Run("known vector", func(t *testing.T) {
		did, err := CreateDIDFromEd25519(base58.Decode(pubKeyBase58Ed25519))
		require.NoError(t, err)
		require.Equal(t, didKeyEd25519, did)
		require.Equal(t, didKeyEd25519+"#z6MkpTHR8VNsBxYAAWHut2Geadd9jSwuBV8xRoAnwWsdvktH", KeyID(did))
	})

	t.Run("generated key through the union", func(t *testing.T) {
		kp, err := keypair.GenerateEd25519KeyPair()
		require.NoError(t, err)

		did, err := CreateDID(kp)
		require.NoError(t, err)
		require.True(t, IsDIDKey(did))
		require.Contains(t, did, "did:key:z6Mk")
	})

	t.Run("invalid public key size", func(t *testing.T) {
		_, err := CreateDIDFromEd25519([]byte("short"))
		require.Error(t, err)

		var convErr *keypair.KeyConversionError
		require.True(t, errors.As(err, &convErr))
	})
}

func TestCreateDIDFromECKey(t *testing.T) {
	kp, err := keypair.GenerateECKeyPair([]byte("did seed"))
	require.NoError(t, err)

	t.Run("deterministic", func(t *testing.T) {
		did1, err := CreateDIDFromECKey(kp)
		require.NoError(t, err)

		did2, err := CreateDIDFromECKey(kp)
		require.NoError(t, err)

		require.Equal(t, did1, did2)
		require.True(t, IsDIDKey(did1))

		// same public key without private part
		did3, err := CreateDIDFromECKey(&keypair.ECKeyPair{Crv: kp.Crv, X: kp.X, Y: kp.Y})
		require.NoError(t, err)
		require.Equal(t, did1, did3)
	})

	t.Run("different keys give different DIDs", func(t *testing.T) {
		other, err := keypair.GenerateECKeyPair(nil)
		require.NoError(t, err)

		did1, err := CreateDID(kp)
		require.NoError(t, err)

		did2, err := CreateDID(other)
		require.NoError(t, err)

		require.NotEqual(t, did1, did2)
	})

	t.Run("encoded bytes are multicodec prefix and canonical jwk", func(t *testing.T) {
		did, err := CreateDIDFromECKey(kp)
		require.NoError(t, err)

		decoded := base58.Decode(did[len("did:key:z"):])
		require.True(t, bytes.HasPrefix(decoded, []byte{0xd1, 0xd6, 0x03}))

		jwk := decoded[3:]
		require.True(t, bytes.HasPrefix(jwk, []byte(`{"crv":"P-256","kty":"EC","x":"`)))
		require.NotContains(t, string(jwk), " ")

		var fields map[string]string
		require.NoError(t, json.Unmarshal(jwk, &fields))
		require.Len(t, fields, 4)
	})

	t.Run("invalid keys", func(t *testing.T) {
		tests := []struct {
			name string
			kp   *keypair.ECKeyPair
		}{
			{name: "nil", kp: nil},
			{name: "wrong curve", kp: &keypair.ECKeyPair{Crv: "P-384", X: kp.X, Y: kp.Y}},
			{name: "truncated x", kp: &keypair.ECKeyPair{Crv: keypair.CurveP256, X: kp.X[:31], Y: kp.Y}},
			{name: "not on curve", kp: &keypair.ECKeyPair{Crv: keypair.CurveP256, X: kp.Y, Y: kp.X}},
		}

		for _, tc := range tests {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				_, err := CreateDIDFromECKey(tc.kp)

				var convErr *keypair.KeyConversionError
				require.True(t, errors.As(err, &convErr))
			})
		}
	})

	t.Run("unsupported key pair", func(t *testing.T) {
		_, err := CreateDID(nil)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported key pair")
	})
}

func TestKeyID(t *testing.T) {
	require.Equal(t, "did:key:zABC#zABC", KeyID("did:key:zABC"))
	require.Equal(t, "zABC", MethodID("did:key:zABC"))
	require.False(t, IsDIDKey("did:key:abc"))
	require.False(t, IsDIDKey("did:web:example.com"))
	require.False(t, IsDIDKey("did:key:z0OIl"))
}
