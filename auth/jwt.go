// Copyright 2025 The deepr Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HS256Verifier returns a [TokenVerifier] for HMAC-SHA256 JWTs signed
// with secret. An empty issuer skips the issuer check.
func HS256Verifier(secret []byte, issuer string) TokenVerifier {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(ctx context.Context, token string, _ *http.Request) (*TokenInfo, error) {
		parsed, err := parser.Parse(token, func(t *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
		}

		info := &TokenInfo{Extra: map[string]any(claims)}
		if sub, err := claims.GetSubject(); err == nil {
			info.UserID = sub
		}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			info.Expiration = exp.Time
		}
		if scope, ok := claims["scope"].(string); ok {
			info.Scopes = strings.Fields(scope)
		}
		return info, nil
	}
}

// NewHS256Token mints a token the matching [HS256Verifier] accepts.
// Used by operator tooling and tests; production deployments usually
// mint tokens elsewhere.
func NewHS256Token(secret []byte, issuer, subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
