/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	"github.com/eudi-wallet/oidc-client-go/pkg/vdr/key"
)

// VerifiedProof is a proof whose signature was checked against its embedded public JWK.
type VerifiedProof struct {
	Type   string
	KeyID  string
	JWK    *jose.JSONWebKey
	Claims Claims
}

// DID returns the DID the kid header refers to.
func (p *VerifiedProof) DID() string {
	did, _, _ := strings.Cut(p.KeyID, "#")

	return did
}

// Verify parses a compact JWS proof and verifies it against the public JWK from its header. When the kid
// names a did:key, the embedded JWK must be the key encoded in that DID. Expired proofs are rejected.
func (b *ProofBuilder) Verify(token string) (*VerifiedProof, error) {
	parsed, err := jwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("parse JWT from compact JWS: %w", err)
	}

	if len(parsed.Headers) != 1 {
		return nil, errors.New("expected exactly one signature")
	}

	header := parsed.Headers[0]

	if header.JSONWebKey == nil || !header.JSONWebKey.IsPublic() {
		return nil, errors.New("jwk header is missing")
	}

	typ, _ := header.ExtraHeaders[jose.HeaderType].(string)

	proof := &VerifiedProof{Type: typ, KeyID: header.KeyID, JWK: header.JSONWebKey}

	if err := parsed.Claims(header.JSONWebKey.Key, &proof.Claims); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}

	if err := proof.Claims.ValidateWithLeeway(jwt.Expected{Time: b.now()}, 0); err != nil {
		return nil, fmt.Errorf("validate claims: %w", err)
	}

	if strings.HasPrefix(header.KeyID, "did:key:") {
		if err := checkKeyBinding(proof.DID(), header.JSONWebKey); err != nil {
			return nil, err
		}
	}

	return proof, nil
}

func checkKeyBinding(did string, jwk *jose.JSONWebKey) error {
	fromDID, err := key.PublicKeyFromDID(did)
	if err != nil {
		return fmt.Errorf("resolve kid: %w", err)
	}

	fromJWK, err := keypair.FromJWK(jwk)
	if err != nil {
		return err
	}

	if !samePublicKey(fromDID, fromJWK) {
		return fmt.Errorf("jwk does not match key of %s", did)
	}

	return nil
}

func samePublicKey(a, b keypair.KeyPair) bool {
	switch ka := a.(type) {
	case *keypair.ECKeyPair:
		kb, ok := b.(*keypair.ECKeyPair)

		return ok && string(ka.X) == string(kb.X) && string(ka.Y) == string(kb.Y)
	case *keypair.OKPKeyPair:
		kb, ok := b.(*keypair.OKPKeyPair)

		return ok && string(ka.X) == string(kb.X)
	default:
		return false
	}
}
