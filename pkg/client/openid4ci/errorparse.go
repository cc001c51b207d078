/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package openid4ci

import (
	"strings"

	"github.com/tidwall/gjson"
)

const proofClientIDMismatch = "invalid proof jwt: iss doesn't match the expected client_id"

// errorBody is an issuer error parsed from a response body.
type errorBody struct {
	Code        string
	Description string
}

// parseErrorBody reads an issuer error body, trying in order
// {"error","error_description"}, {"errors":[{"message"}]} and {"error"}.
// It returns false when the body matches none of them.
func parseErrorBody(body []byte) (*errorBody, bool) {
	if !gjson.ValidBytes(body) {
		return nil, false
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, false
	}

	code := doc.Get("error")

	if desc := doc.Get("error_description"); desc.Exists() {
		if code.Type != gjson.String {
			return nil, false
		}

		return &errorBody{Code: code.String(), Description: desc.String()}, true
	}

	if errs := doc.Get("errors"); errs.Exists() {
		msg := errs.Get("0.message")
		if !errs.IsArray() || msg.Type != gjson.String {
			return nil, false
		}

		return &errorBody{Code: ErrorCodeGeneric, Description: msg.String()}, true
	}

	if code.Type == gjson.String {
		return &errorBody{Code: code.String(), Description: code.String()}, true
	}

	return nil, false
}

// isProofClientIDMismatch looks for the mismatch message anywhere in the raw body, ignoring case.
func isProofClientIDMismatch(body []byte) bool {
	return strings.Contains(strings.ToLower(string(body)), proofClientIDMismatch)
}

// cNonceOf returns the top level c_nonce of a JSON body.
func cNonceOf(body []byte) string {
	return gjson.GetBytes(body, "c_nonce").String()
}
