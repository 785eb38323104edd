/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"

	"github.com/friendsincode/inspectd/internal/policy"
)

type contextKey string

const claimsContextKey contextKey = "inspectdClaims"

// WithClaims attaches JWT claims to the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext retrieves JWT claims from context if present.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// ActorFromContext builds the policy actor for the authenticated caller.
func ActorFromContext(ctx context.Context) (policy.Actor, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return policy.Actor{}, false
	}
	return policy.NewActor(claims.UserID, claims.Roles...), true
}
