/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package issuer runs an in-process OpenID4VCI credential issuer and authorization server for tests.
package issuer

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/eudi-wallet/oidc-client-go/pkg/common/log"
	"github.com/eudi-wallet/oidc-client-go/pkg/doc/jwt"
)

var logger = log.New("oidc-client/test/issuer")

// AuthMode selects how the authorization endpoint answers.
type AuthMode string

const (
	// AuthDirect redirects with a code.
	AuthDirect AuthMode = "direct"
	// AuthIDToken asks for a self-issued ID token before redirecting with a code.
	AuthIDToken AuthMode = "id_token"
	// AuthIDTokenNoCode asks for an ID token and then redirects without a code.
	AuthIDTokenNoCode AuthMode = "id_token_no_code"
	// AuthDenied redirects with an access_denied error.
	AuthDenied AuthMode = "denied"
)

const (
	// IssuerState is the issuer_state of the offered authorization code grant.
	IssuerState = "issuer-state-1"

	mismatchDescription = "Invalid Proof JWT: iss doesn't match the expected client_id"
)

// Config configures the issuer.
type Config struct {
	AuthMode AuthMode
	// PreAuthorizedCode adds a pre-authorized code grant to the offer.
	PreAuthorizedCode string
	// UserPIN is required with the pre-authorized code when set.
	UserPIN string
	Format  string
	Types   []string
	// Deferred answers credential requests with an acceptance token.
	Deferred bool
	// DeferredReady makes the deferred endpoint return the credential, otherwise it answers without one.
	DeferredReady bool
	// RejectFirstProof rejects the first credential proof for its iss claim, sending a fresh c_nonce.
	RejectFirstProof bool
}

type authRequest struct {
	clientID      string
	clientState   string
	redirectURI   string
	codeChallenge string
	nonce         string
}

type session struct {
	clientID string
	cNonce   string
	types    []string
}

// Server is the test issuer.
type Server struct {
	*httptest.Server

	cfg    Config
	proofs *jwt.ProofBuilder

	mu               sync.Mutex
	idTokenRequests  map[string]*authRequest
	codes            map[string]*authRequest
	accessTokens     map[string]*session
	acceptanceTokens map[string]*session
	proofRejected    bool
	credentials      int
}

// New starts the issuer. It is closed when the test ends.
func New(t *testing.T, cfg Config) *Server {
	t.Helper()

	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthDirect
	}

	if cfg.Format == "" {
		cfg.Format = "jwt_vc"
	}

	if len(cfg.Types) == 0 {
		cfg.Types = []string{"VerifiableCredential", "VerifiableAttestation", "VerifiablePortableDocumentA1"}
	}

	s := &Server{
		cfg:              cfg,
		proofs:           jwt.NewProofBuilder(),
		idTokenRequests:  map[string]*authRequest{},
		codes:            map[string]*authRequest{},
		accessTokens:     map[string]*session{},
		acceptanceTokens: map[string]*session{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/.well-known/openid-credential-issuer", s.issuerMetadata).Methods(http.MethodGet)
	router.HandleFunc("/.well-known/openid-configuration", s.serverMetadata).Methods(http.MethodGet)
	router.HandleFunc("/offer", s.offer).Methods(http.MethodGet)
	router.HandleFunc("/authorize", s.authorize).Methods(http.MethodPost)
	router.HandleFunc("/direct_post", s.directPost).Methods(http.MethodPost)
	router.HandleFunc("/token", s.token).Methods(http.MethodPost)
	router.HandleFunc("/credential", s.credential).Methods(http.MethodPost)
	router.HandleFunc("/credential_deferred", s.deferredCredential).Methods(http.MethodPost)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)

	return s
}

// Offer returns the credential offer document.
func (s *Server) Offer() map[string]interface{} {
	grants := map[string]interface{}{
		"authorization_code": map[string]interface{}{"issuer_state": IssuerState},
	}

	if s.cfg.PreAuthorizedCode != "" {
		grants["urn:ietf:params:oauth:grant-type:pre-authorized_code"] = map[string]interface{}{
			"pre-authorized_code": s.cfg.PreAuthorizedCode,
			"user_pin_required":   s.cfg.UserPIN != "",
		}
	}

	return map[string]interface{}{
		"credential_issuer": s.URL,
		"credentials": []interface{}{
			map[string]interface{}{"format": s.cfg.Format, "types": s.cfg.Types, "trust_framework": map[string]string{
				"name": "ebsi", "type": "Accreditation",
			}},
		},
		"grants": grants,
	}
}

// OfferURI returns an offer link referring to the offer by credential_offer_uri.
func (s *Server) OfferURI() string {
	return "openid-credential-offer://?credential_offer_uri=" + url.QueryEscape(s.URL+"/offer")
}

// InlineOfferURI returns an offer link carrying the offer in credential_offer.
func (s *Server) InlineOfferURI() string {
	offer, _ := json.Marshal(s.Offer()) //nolint:errchkjson

	return "openid-credential-offer://?credential_offer=" + url.QueryEscape(string(offer))
}

// AuthorizationEndpoint returns the authorization endpoint URL.
func (s *Server) AuthorizationEndpoint() string {
	return s.URL + "/authorize"
}

// IssuedCredentials returns the number of credentials issued.
func (s *Server) IssuedCredentials() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.credentials
}

func (s *Server) issuerMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"credential_issuer":            s.URL,
		"authorization_server":         s.URL,
		"credential_endpoint":          s.URL + "/credential",
		"deferred_credential_endpoint": s.URL + "/credential_deferred",
		"credentials_supported": []interface{}{
			map[string]interface{}{"format": s.cfg.Format, "types": s.cfg.Types},
		},
	})
}

func (s *Server) serverMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                           s.URL,
		"authorization_endpoint":           s.AuthorizationEndpoint(),
		"token_endpoint":                   s.URL + "/token",
		"response_types_supported":         []string{"code", "vp_token", "id_token"},
		"code_challenge_methods_supported": []string{"S256"},
	})
}

func (s *Server) offer(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Offer())
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	if msg := validateAuthorizationRequest(r.PostForm); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)

		return
	}

	if issuerState := r.PostForm.Get("issuer_state"); issuerState != IssuerState {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown issuer_state")

		return
	}

	req := &authRequest{
		clientID:      r.PostForm.Get("client_id"),
		clientState:   r.PostForm.Get("state"),
		redirectURI:   r.PostForm.Get("redirect_uri"),
		codeChallenge: r.PostForm.Get("code_challenge"),
	}

	switch s.cfg.AuthMode {
	case AuthDenied:
		redirect(w, r, req.redirectURI, url.Values{
			"error":             {"access_denied"},
			"error_description": {"user denied the request"},
			"state":             {req.clientState},
		})
	case AuthIDToken, AuthIDTokenNoCode:
		state := uuid.New().String()
		req.nonce = uuid.New().String()

		s.mu.Lock()
		s.idTokenRequests[state] = req
		s.mu.Unlock()

		redirect(w, r, "openid://", url.Values{
			"client_id":     {s.URL},
			"response_type": {"id_token"},
			"response_mode": {"direct_post"},
			"scope":         {"openid"},
			"redirect_uri":  {s.URL + "/direct_post"},
			"nonce":         {req.nonce},
			"state":         {state},
		})
	default:
		redirect(w, r, req.redirectURI, url.Values{"code": {s.newCode(req)}, "state": {req.clientState}})
	}
}

func validateAuthorizationRequest(form url.Values) string {
	for _, field := range []string{
		"response_type", "scope", "state", "client_id", "authorization_details", "redirect_uri", "nonce",
		"code_challenge", "code_challenge_method", "client_metadata",
	} {
		if form.Get(field) == "" {
			return field + " is missing"
		}
	}

	switch {
	case form.Get("response_type") != "code":
		return "unsupported response_type"
	case form.Get("code_challenge_method") != "S256":
		return "unsupported code_challenge_method"
	case !strings.HasPrefix(form.Get("client_id"), "did:key:z"):
		return "client_id is not a did:key"
	}

	var details []map[string]interface{}
	if err := json.Unmarshal([]byte(form.Get("authorization_details")), &details); err != nil || len(details) == 0 ||
		details[0]["type"] != "openid_credential" {
		return "invalid authorization_details"
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(form.Get("client_metadata")), &metadata); err != nil {
		return "invalid client_metadata"
	}

	return ""
}

func (s *Server) directPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	s.mu.Lock()
	req, ok := s.idTokenRequests[r.PostForm.Get("state")]
	delete(s.idTokenRequests, r.PostForm.Get("state"))
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unknown state")

		return
	}

	proof, err := s.proofs.Verify(r.PostForm.Get("id_token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	switch {
	case proof.Type != jwt.TypeJWT:
		writeError(w, http.StatusBadRequest, "invalid_request", "id_token typ is not JWT")
	case proof.Claims.Nonce != req.nonce:
		writeError(w, http.StatusBadRequest, "invalid_request", "id_token nonce mismatch")
	case proof.Claims.Issuer != req.clientID || proof.Claims.Subject != req.clientID || proof.DID() != req.clientID:
		writeError(w, http.StatusBadRequest, "invalid_request", "id_token is not issued by the client")
	case !proof.Claims.Audience.Contains(s.AuthorizationEndpoint()):
		writeError(w, http.StatusBadRequest, "invalid_request", "id_token audience mismatch")
	case s.cfg.AuthMode == AuthIDTokenNoCode:
		redirect(w, r, req.redirectURI, url.Values{"state": {req.clientState}})
	default:
		redirect(w, r, req.redirectURI, url.Values{"code": {s.newCode(req)}, "state": {req.clientState}})
	}
}

func (s *Server) newCode(req *authRequest) string {
	code := uuid.New().String()

	s.mu.Lock()
	s.codes[code] = req
	s.mu.Unlock()

	return code
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	var clientID string

	switch r.PostForm.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:pre-authorized_code":
		if s.cfg.PreAuthorizedCode == "" || r.PostForm.Get("pre-authorized_code") != s.cfg.PreAuthorizedCode {
			writeError(w, http.StatusBadRequest, "invalid_grant", "unknown pre-authorized code")

			return
		}

		if s.cfg.UserPIN != "" && r.PostForm.Get("user_pin") != s.cfg.UserPIN {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"errors": []interface{}{map[string]string{"message": "invalid user PIN"}},
			})

			return
		}
	case "authorization_code":
		s.mu.Lock()
		req, ok := s.codes[r.PostForm.Get("code")]
		delete(s.codes, r.PostForm.Get("code"))
		s.mu.Unlock()

		switch {
		case !ok:
			writeError(w, http.StatusBadRequest, "invalid_grant", "unknown code")

			return
		case oauth2.S256ChallengeFromVerifier(r.PostForm.Get("code_verifier")) != req.codeChallenge:
			writeError(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match")

			return
		case r.PostForm.Get("client_id") != req.clientID:
			writeError(w, http.StatusBadRequest, "invalid_client", "client_id does not match")

			return
		}

		clientID = req.clientID
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})

		return
	}

	accessToken := uuid.New().String()
	sess := &session{clientID: clientID, cNonce: uuid.New().String()}

	s.mu.Lock()
	s.accessTokens[accessToken] = sess
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":       accessToken,
		"token_type":         "bearer",
		"expires_in":         86400,
		"c_nonce":            sess.cNonce,
		"c_nonce_expires_in": 86400,
	})
}

type credentialRequest struct {
	Types  []string `json:"types"`
	Format string   `json:"format"`
	Proof  struct {
		ProofType string `json:"proof_type"`
		JWT       string `json:"jwt"`
	} `json:"proof"`
}

func (s *Server) credential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sess, ok := s.accessTokens[bearerToken(r)]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "unknown access token")

		return
	}

	var req credentialRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

		return
	}

	if req.Format != s.cfg.Format {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"errors": []interface{}{map[string]string{"message": "unsupported format " + req.Format}},
		})

		return
	}

	if msg := s.checkProof(req.Proof.ProofType, req.Proof.JWT, sess); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_proof", msg)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.RejectFirstProof && !s.proofRejected {
		s.proofRejected = true
		sess.cNonce = uuid.New().String()

		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":             "invalid_proof",
			"error_description": mismatchDescription,
			"c_nonce":           sess.cNonce,
		})

		return
	}

	sess.types = req.Types
	sess.cNonce = uuid.New().String()

	if s.cfg.Deferred {
		acceptanceToken := uuid.New().String()
		s.acceptanceTokens[acceptanceToken] = sess

		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"acceptance_token": acceptanceToken,
			"c_nonce":          sess.cNonce,
		})

		return
	}

	s.credentials++

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"format":     s.cfg.Format,
		"credential": s.newCredential(sess),
		"c_nonce":    sess.cNonce,
	})
}

func (s *Server) checkProof(proofType, token string, sess *session) string {
	if proofType != "jwt" {
		return "unsupported proof_type"
	}

	proof, err := s.proofs.Verify(token)
	if err != nil {
		return err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case proof.Type != jwt.TypeOpenID4VCIProof:
		return "proof typ is not " + jwt.TypeOpenID4VCIProof
	case proof.Claims.Nonce != sess.cNonce:
		return "proof nonce does not match c_nonce"
	case !proof.Claims.Audience.Contains(s.URL):
		return "proof audience is not the credential issuer"
	case proof.Claims.Issuer != proof.DID():
		return "proof iss is not the kid DID"
	case sess.clientID != "" && proof.Claims.Issuer != sess.clientID:
		return mismatchDescription
	}

	sess.clientID = proof.Claims.Issuer

	return ""
}

func (s *Server) deferredCredential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.acceptanceTokens[bearerToken(r)]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_token", "unknown acceptance token")

		return
	}

	if !s.cfg.DeferredReady {
		writeJSON(w, http.StatusOK, map[string]interface{}{"format": s.cfg.Format, "credential": nil})

		return
	}

	s.credentials++

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"format":     s.cfg.Format,
		"credential": s.newCredential(sess),
	})
}

// newCredential returns an unsecured JWT credential for the session holder.
func (s *Server) newCredential(sess *session) string {
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"}) //nolint:errchkjson

	payload, _ := json.Marshal(map[string]interface{}{ //nolint:errchkjson
		"iss": s.URL,
		"sub": sess.clientID,
		"vc":  map[string]interface{}{"type": sess.types},
	})

	return base64.RawURLEncoding.EncodeToString(header) + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func redirect(w http.ResponseWriter, r *http.Request, target string, query url.Values) {
	http.Redirect(w, r, target+"?"+query.Encode(), http.StatusFound)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("failed to write response: %v", err)
	}
}
