// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func protectedServer(t *testing.T, verifier TokenVerifier, opts *RequireBearerTokenOptions) *httptest.Server {
	t.Helper()
	var inner http.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		info := TokenInfoFromContext(req.Context())
		if info == nil {
			t.Error("no token info in the request context")
		}
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(RequireBearerToken(verifier, opts)(inner))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url, authorization string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRequireBearerToken(t *testing.T) {
	verifier := HS256Verifier(testSecret, "deepr")
	token, err := NewHS256Token(testSecret, "deepr", "user-1", []string{"read", "search"}, time.Hour)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	wrongKey, err := NewHS256Token([]byte("another-secret-another-secret!!!"), "deepr", "user-1", nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, err := NewHS256Token(testSecret, "deepr", "user-1", []string{"read"}, -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	wrongIssuer, err := NewHS256Token(testSecret, "somebody-else", "user-1", []string{"read"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	srv := protectedServer(t, verifier, &RequireBearerTokenOptions{Scopes: []string{"read"}})

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"bad signature", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + wrongIssuer, http.StatusUnauthorized},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resp := get(t, srv.URL, test.authorization)
			if resp.StatusCode != test.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, test.wantStatus)
			}
			if test.wantStatus == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("401 without a WWW-Authenticate challenge")
			}
		})
	}
}

func TestRequireBearerTokenScopes(t *testing.T) {
	verifier := HS256Verifier(testSecret, "")
	token, err := NewHS256Token(testSecret, "", "user-1", []string{"read"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	srv := protectedServer(t, verifier, &RequireBearerTokenOptions{Scopes: []string{"read", "admin"}})
	resp := get(t, srv.URL, "Bearer "+token)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d (missing admin scope)", resp.StatusCode, http.StatusForbidden)
	}
}

func TestRequireBearerTokenChallengeMetadata(t *testing.T) {
	srv := protectedServer(t, HS256Verifier(testSecret, ""), &RequireBearerTokenOptions{
		ResourceMetadataURL: "https://deepr.example/.well-known/oauth-protected-resource",
	})
	resp := get(t, srv.URL, "")
	challenge := resp.Header.Get("WWW-Authenticate")
	if !strings.Contains(challenge, "resource_metadata=") {
		t.Errorf("challenge %q does not advertise the metadata URL", challenge)
	}
}

func TestRequireBearerTokenVerifierFailure(t *testing.T) {
	failing := func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error) {
		return nil, errors.New("upstream introspection down")
	}
	srv := httptest.NewServer(RequireBearerToken(failing, nil)(http.NotFoundHandler()))
	defer srv.Close()

	resp := get(t, srv.URL, "Bearer anything")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d (verifier failure is not the client's fault)", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestHS256VerifierClaims(t *testing.T) {
	token, err := NewHS256Token(testSecret, "deepr", "analyst-7", []string{"read", "search"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	info, err := HS256Verifier(testSecret, "deepr")(context.Background(), token, nil)
	if err != nil {
		t.Fatalf("verifier rejected a freshly minted token: %v", err)
	}
	if info.UserID != "analyst-7" {
		t.Errorf("UserID = %q, want %q", info.UserID, "analyst-7")
	}
	if diff := cmp.Diff([]string{"read", "search"}, info.Scopes); diff != "" {
		t.Errorf("scopes mismatch (-want +got):\n%s", diff)
	}
	if time.Until(info.Expiration) <= 0 {
		t.Errorf("Expiration = %v, want in the future", info.Expiration)
	}
}

func TestProtectedResourceMetadataHandler(t *testing.T) {
	srv := httptest.NewServer(ProtectedResourceMetadataHandler(&ProtectedResourceMetadata{
		Resource:             "https://deepr.example/mcp",
		AuthorizationServers: []string{"https://auth.deepr.example"},
		ScopesSupported:      []string{"read", "search"},
	}))
	defer srv.Close()

	resp := get(t, srv.URL, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var doc ProtectedResourceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decoding metadata: %v", err)
	}
	if doc.Resource != "https://deepr.example/mcp" {
		t.Errorf("resource = %q, want the configured resource", doc.Resource)
	}

	postResp, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want %d", postResp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestHS256VerifierRejectsAlgConfusion(t *testing.T) {
	// A token signed with "none" must not pass an HS256 verifier.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "attacker",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	_, err = HS256Verifier(testSecret, "")(context.Background(), token, nil)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
