/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/eudi-wallet/oidc-client-go/pkg/doc/jwt"
	"github.com/eudi-wallet/oidc-client-go/pkg/transport"
)

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	for i := 0; i < 10; i++ {
		verifier := NewCodeVerifier()
		sum := sha256.Sum256([]byte(verifier))

		require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), CodeChallenge(verifier))
		require.Equal(t, CodeChallenge(verifier), CodeChallenge(verifier))
	}

	session := NewAuthorizationSession("verifier")
	require.Equal(t, CodeChallenge("verifier"), session.CodeChallenge)
	require.NotEqual(t, session.State, session.Nonce)
}

func TestStartAuthorization_Direct(t *testing.T) {
	ctx := context.Background()
	did, kp := newWallet(t)
	verifier := NewCodeVerifier()

	t.Run("code in first redirect", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, form transport.Form) (*transport.Response, error) {
				keys := make([]string, 0, len(form))
				for _, f := range form {
					keys = append(keys, f.Key)
				}

				require.Equal(t, []string{
					"response_type", "scope", "state", "client_id", "authorization_details", "redirect_uri", "nonce",
					"code_challenge", "code_challenge_method", "client_metadata", "issuer_state",
				}, keys)

				values := map[string]string{}
				for _, f := range form {
					values[f.Key] = f.Value
				}

				require.Equal(t, "code", values["response_type"])
				require.Equal(t, "openid", values["scope"])
				require.Equal(t, did, values["client_id"])
				require.Equal(t, DefaultRedirectURI, values["redirect_uri"])
				require.Equal(t, CodeChallenge(verifier), values["code_challenge"])
				require.Equal(t, "S256", values["code_challenge_method"])
				require.Equal(t, "state-from-issuer", values["issuer_state"])
				require.JSONEq(t, `[{"type":"openid_credential","format":"jwt_vc",
					"types":["VerifiableCredential","VerifiableAttestation","CTWalletSameInTime"],
					"locations":["https://issuer.example.com"]}]`, values["authorization_details"])
				require.JSONEq(t, `{"vp_formats_supported":{"jwt_vp":{"alg":["ES256"]},"jwt_vc":{"alg":["ES256"]}},
					"response_types_supported":["vp_token","id_token"],
					"authorization_endpoint":"http://localhost:8080"}`, values["client_metadata"])

				return redirectResponse("http://localhost:8080?code=auth-code&state=" + values["state"]), nil
			})

		code, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)
		require.NoError(t, err)
		require.Equal(t, "auth-code", code)
	})

	t.Run("issuer_state omitted when the offer has none", func(t *testing.T) {
		c, tr := newMockClient(t)

		offer := testOffer()
		offer.Grants = nil

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ string, form transport.Form) (*transport.Response, error) {
				_, ok := form.Get("issuer_state")
				require.False(t, ok)

				return redirectResponse("http://localhost:8080?code=auth-code"), nil
			})

		code, err := c.StartAuthorization(ctx, did, kp, offer, verifier, testAuthz)
		require.NoError(t, err)
		require.Equal(t, "auth-code", code)
	})

	t.Run("state mismatch", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).
			Return(redirectResponse("http://localhost:8080?code=auth-code&state=forged"), nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Contains(t, err.Error(), "state does not match")
	})

	t.Run("error redirect", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).
			Return(redirectResponse("http://localhost:8080?error=access_denied&error_description=nope"), nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Equal(t, stepDirect, authErr.Step)
		require.Equal(t, "access_denied", authErr.Code)
		require.Equal(t, "nope", authErr.Description)
	})

	t.Run("error body instead of redirect", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).
			Return(jsonResponse(http.StatusBadRequest, `{"error":"invalid_request","error_description":"bad"}`), nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Equal(t, "invalid_request", authErr.Code)
	})

	t.Run("unexpected response", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(jsonResponse(http.StatusOK, `<html/>`), nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Contains(t, err.Error(), "expected redirect, got status 200")
	})

	t.Run("redirect without location", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).
			Return(&transport.Response{StatusCode: http.StatusFound, Header: http.Header{}}, nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)
		require.Contains(t, err.Error(), "redirect without location")
	})

	t.Run("transport error", func(t *testing.T) {
		c, tr := newMockClient(t)

		transportErr := &transport.Error{URL: testAuthz, Err: errors.New("connection reset")}
		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(nil, transportErr)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)
		require.Equal(t, transportErr, err)
	})

	t.Run("invalid input", func(t *testing.T) {
		c, _ := newMockClient(t)

		var authErr *AuthorizationError

		_, err := c.StartAuthorization(ctx, did, kp, nil, verifier, testAuthz)
		require.True(t, errors.As(err, &authErr))

		_, err = c.StartAuthorization(ctx, did, kp, testOffer(), "", testAuthz)
		require.True(t, errors.As(err, &authErr))
	})
}

func TestStartAuthorization_IDToken(t *testing.T) {
	ctx := context.Background()
	did, kp := newWallet(t)
	verifier := NewCodeVerifier()

	idTokenRequest := "openid://?" + url.Values{
		"client_id":     {testIssuer},
		"response_type": {"id_token"},
		"redirect_uri":  {testIssuer + "/direct_post"},
		"nonce":         {"server-nonce"},
		"state":         {"server-state"},
	}.Encode()

	t.Run("ID token answered with code", func(t *testing.T) {
		c, tr := newMockClient(t)

		gomock.InOrder(
			tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(redirectResponse(idTokenRequest), nil),
			tr.EXPECT().PostForm(gomock.Any(), testIssuer+"/direct_post", gomock.Any()).DoAndReturn(
				func(_ context.Context, _ string, form transport.Form) (*transport.Response, error) {
					require.Len(t, form, 2)
					require.Equal(t, "id_token", form[0].Key)
					require.Equal(t, transport.FormField{Key: "state", Value: "server-state"}, form[1])

					proof, err := jwt.NewProofBuilder().Verify(form[0].Value)
					require.NoError(t, err)
					require.Equal(t, jwt.TypeJWT, proof.Type)
					require.Equal(t, did, proof.Claims.Issuer)
					require.Equal(t, did, proof.Claims.Subject)
					require.Equal(t, "server-nonce", proof.Claims.Nonce)
					require.True(t, proof.Claims.Audience.Contains(testAuthz))

					return redirectResponse("http://localhost:8080?code=late-code"), nil
				}),
		)

		code, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)
		require.NoError(t, err)
		require.Equal(t, "late-code", code)
	})

	t.Run("no code after ID token", func(t *testing.T) {
		c, tr := newMockClient(t)

		gomock.InOrder(
			tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(redirectResponse(idTokenRequest), nil),
			tr.EXPECT().PostForm(gomock.Any(), testIssuer+"/direct_post", gomock.Any()).
				Return(redirectResponse("http://localhost:8080?state=s"), nil),
		)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Equal(t, stepIDToken, authErr.Step)
	})

	t.Run("ID token rejected", func(t *testing.T) {
		c, tr := newMockClient(t)

		gomock.InOrder(
			tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(redirectResponse(idTokenRequest), nil),
			tr.EXPECT().PostForm(gomock.Any(), testIssuer+"/direct_post", gomock.Any()).
				Return(jsonResponse(http.StatusBadRequest, `{"error":"invalid_request"}`), nil),
		)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Equal(t, "invalid_request", authErr.Code)
	})

	t.Run("redirect names no redirect_uri", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).
			Return(redirectResponse("openid://?response_type=id_token&nonce=n"), nil)

		_, err := c.StartAuthorization(ctx, did, kp, testOffer(), verifier, testAuthz)

		var authErr *AuthorizationError
		require.True(t, errors.As(err, &authErr))
		require.Contains(t, err.Error(), "no redirect_uri")
	})

	t.Run("signing failure is reported", func(t *testing.T) {
		c, tr := newMockClient(t)

		tr.EXPECT().PostForm(gomock.Any(), testAuthz, gomock.Any()).Return(redirectResponse(idTokenRequest), nil)

		_, err := c.StartAuthorization(ctx, did, nil, testOffer(), verifier, testAuthz)

		var signErr *jwt.SigningError
		require.True(t, errors.As(err, &signErr))
	})
}

func TestAuthorizationForm_ConfigurationID(t *testing.T) {
	did, kp := newWallet(t)
	c, _ := newMockClient(t, WithRedirectURI("https://wallet.example.com/cb"))

	offer := &CredentialOffer{
		CredentialIssuer: testIssuer,
		Credentials:      []CredentialDescriptor{{ConfigurationID: "UniversityDegree"}},
	}

	form, err := c.authorizationForm(&authAttempt{
		did: did, kp: kp, offer: offer, endpoint: testAuthz, session: NewAuthorizationSession("v"),
	})
	require.NoError(t, err)

	details, _ := form.Get("authorization_details")
	require.JSONEq(t, `[{"type":"openid_credential","credential_configuration_id":"UniversityDegree",
		"locations":["https://issuer.example.com"]}]`, details)

	metadata, _ := form.Get("client_metadata")

	var parsed ClientMetadata
	require.NoError(t, json.Unmarshal([]byte(metadata), &parsed))
	require.Equal(t, "https://wallet.example.com/cb", parsed.AuthorizationEndpoint)

	redirectURI, _ := form.Get("redirect_uri")
	require.Equal(t, "https://wallet.example.com/cb", redirectURI)
}
