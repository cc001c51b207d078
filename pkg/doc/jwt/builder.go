/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwt

import (
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"

	"github.com/eudi-wallet/oidc-client-go/pkg/kms/keypair"
	"github.com/eudi-wallet/oidc-client-go/pkg/vdr/key"
)

// ProofBuilder signs proofs with a wallet key pair. It holds no mutable state and is safe for concurrent use.
type ProofBuilder struct {
	now                func() time.Time
	idTokenTTL         time.Duration
	credentialProofTTL time.Duration
}

// ProofOpt configures a ProofBuilder.
type ProofOpt func(b *ProofBuilder)

// WithClock sets the time source for iat and exp claims.
func WithClock(now func() time.Time) ProofOpt {
	return func(b *ProofBuilder) {
		b.now = now
	}
}

// WithIDTokenTTL overrides DefaultIDTokenTTL.
func WithIDTokenTTL(ttl time.Duration) ProofOpt {
	return func(b *ProofBuilder) {
		b.idTokenTTL = ttl
	}
}

// WithCredentialProofTTL overrides DefaultCredentialProofTTL.
func WithCredentialProofTTL(ttl time.Duration) ProofOpt {
	return func(b *ProofBuilder) {
		b.credentialProofTTL = ttl
	}
}

// NewProofBuilder returns a ProofBuilder.
func NewProofBuilder(opts ...ProofOpt) *ProofBuilder {
	b := &ProofBuilder{
		now:                time.Now,
		idTokenTTL:         DefaultIDTokenTTL,
		credentialProofTTL: DefaultCredentialProofTTL,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// SelfIssuedIDToken builds the ID token a wallet returns to an authorization server asking for
// same device authentication. iss and sub are the DID, aud the authorization endpoint.
func (b *ProofBuilder) SelfIssuedIDToken(did string, kp keypair.KeyPair, audience, nonce string) (string, error) {
	claims := b.claims(did, audience, nonce, b.idTokenTTL)
	claims.Subject = did

	return b.sign(claims, TypeJWT, did, kp)
}

// CredentialProof builds the proof of possession sent with a credential request. aud is the credential
// issuer URL and nonce the c_nonce from the token response.
func (b *ProofBuilder) CredentialProof(did string, kp keypair.KeyPair, audience, nonce string) (string, error) {
	return b.sign(b.claims(did, audience, nonce, b.credentialProofTTL), TypeOpenID4VCIProof, did, kp)
}

func (b *ProofBuilder) claims(did, audience, nonce string, ttl time.Duration) *Claims {
	now := b.now()

	return &Claims{
		Claims: jwt.Claims{
			Issuer:   did,
			Audience: jwt.Audience{audience},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		},
		Nonce: nonce,
	}
}

func (b *ProofBuilder) sign(claims *Claims, typ, did string, kp keypair.KeyPair) (string, error) {
	if did == "" {
		return "", signingErr("did is empty")
	}

	signingKey, err := signingKey(kp)
	if err != nil {
		return "", err
	}

	opts := (&jose.SignerOptions{EmbedJWK: true}).
		WithType(jose.ContentType(typ)).
		WithHeader(jose.HeaderKey("kid"), key.KeyID(did))

	signer, err := jose.NewSigner(signingKey, opts)
	if err != nil {
		return "", signingErr("create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).CompactSerialize()
	if err != nil {
		return "", signingErr("serialize %s: %w", typ, err)
	}

	return token, nil
}

func signingKey(kp keypair.KeyPair) (jose.SigningKey, error) {
	switch k := kp.(type) {
	case *keypair.ECKeyPair:
		priv, err := k.PrivateKey()
		if err != nil {
			return jose.SigningKey{}, &SigningError{Err: err}
		}

		return jose.SigningKey{Algorithm: jose.ES256, Key: priv}, nil
	case *keypair.OKPKeyPair:
		priv, err := k.PrivateKey()
		if err != nil {
			return jose.SigningKey{}, &SigningError{Err: err}
		}

		return jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}, nil
	default:
		return jose.SigningKey{}, signingErr("unsupported key pair %T", kp)
	}
}
