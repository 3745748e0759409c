// Package idtoken extracts display-only claims from Google identity tokens.
// Signatures are deliberately not verified: the subject is used to label the
// connected account, never as a security boundary.
package idtoken

import (
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var acceptedAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.ES256, jose.PS256,
}

// Subject returns the "sub" claim of the given identity token, or an empty
// string on any decode failure. It never fails.
func Subject(raw string) string {
	if raw == "" {
		return ""
	}
	token, err := jwt.ParseSigned(raw, acceptedAlgorithms)
	if err != nil {
		return ""
	}
	var claims jwt.Claims
	if err := token.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return ""
	}
	return claims.Subject
}
