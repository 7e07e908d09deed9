// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the rules worker.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it through the configured AuthProvider, and stores
// the resulting AuthInfo in the Gin context for downstream handlers.
//
// # Open Source Behavior
//
// With NopAuthProvider (the default), every request is authenticated as
// "local-user". Enterprise deployments plug in a provider that validates
// tokens against a real identity source.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authInfoKey is the context key for storing AuthInfo.
const authInfoKey = "worldsmith_auth_info"

// AuthInfo identifies an authenticated caller.
type AuthInfo struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the caller carries the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
type AuthProvider interface {
	// Validate checks a token and returns the caller's identity, or an
	// error when the token is rejected.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as a local admin user.
type NopAuthProvider struct{}

// Validate implements AuthProvider.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Roles: []string{"admin"}}, nil
}

// GetAuthInfo retrieves the caller identity stored by AuthMiddleware.
func GetAuthInfo(c *gin.Context) (*AuthInfo, bool) {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil, false
	}
	info, ok := v.(*AuthInfo)
	return info, ok
}

// AuthMiddleware validates the Authorization header on every request.
//
// A missing header is passed to the provider as an empty token so nop
// providers keep working without any auth infrastructure.
func AuthMiddleware(provider AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			token = strings.TrimPrefix(header, "Bearer ")
		}

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authInfoKey, info)
		c.Next()
	}
}
