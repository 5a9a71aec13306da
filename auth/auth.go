// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package auth guards the network transport's HTTP endpoints with
// bearer-token authentication. The middleware is verifier-agnostic;
// [HS256Verifier] covers the common shared-secret JWT deployment.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// ErrInvalidToken is returned by verifiers for tokens that fail
// signature, expiry, or issuer checks.
var ErrInvalidToken = errors.New("invalid token")

// TokenInfo describes a verified token.
type TokenInfo struct {
	Scopes     []string
	Expiration time.Time
	// UserID identifies the token's subject.
	UserID string
	// Extra holds verifier-specific claims.
	Extra map[string]any
}

// A TokenVerifier checks a bearer token and reports what it grants.
// Return [ErrInvalidToken] (possibly wrapped) for bad tokens; any
// other error is treated as a verifier failure.
type TokenVerifier func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error)

// RequireBearerTokenOptions configures [RequireBearerToken].
type RequireBearerTokenOptions struct {
	// Scopes, when non-empty, must all be granted by the token.
	Scopes []string

	// ResourceMetadataURL, when set, is advertised in the
	// WWW-Authenticate challenge on 401 responses.
	ResourceMetadataURL string
}

type tokenInfoKey struct{}

// TokenInfoFromContext returns the verified token info stored by the
// middleware, or nil outside an authenticated request.
func TokenInfoFromContext(ctx context.Context) *TokenInfo {
	info, _ := ctx.Value(tokenInfoKey{}).(*TokenInfo)
	return info
}

// RequireBearerToken wraps an http.Handler so only requests carrying
// a token accepted by verifier get through. The verified [TokenInfo]
// is placed in the request context for downstream handlers.
func RequireBearerToken(verifier TokenVerifier, opts *RequireBearerTokenOptions) func(http.Handler) http.Handler {
	if opts == nil {
		opts = &RequireBearerTokenOptions{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, err := extractBearer(req)
			if err != nil {
				challenge(w, opts, err.Error())
				return
			}

			info, err := verifier(req.Context(), token, req)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					challenge(w, opts, "invalid token")
					return
				}
				http.Error(w, "token verification failed", http.StatusInternalServerError)
				return
			}
			if !info.Expiration.IsZero() && time.Now().After(info.Expiration) {
				challenge(w, opts, "token expired")
				return
			}
			for _, scope := range opts.Scopes {
				if !slices.Contains(info.Scopes, scope) {
					http.Error(w, fmt.Sprintf("missing required scope %q", scope), http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(req.Context(), tokenInfoKey{}, info)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func extractBearer(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errors.New("malformed Authorization header")
	}
	return token, nil
}

func challenge(w http.ResponseWriter, opts *RequireBearerTokenOptions, reason string) {
	value := fmt.Sprintf("Bearer error=%q", reason)
	if opts.ResourceMetadataURL != "" {
		value += fmt.Sprintf(", resource_metadata=%q", opts.ResourceMetadataURL)
	}
	w.Header().Set("WWW-Authenticate", value)
	http.Error(w, reason, http.StatusUnauthorized)
}
