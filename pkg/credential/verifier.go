// Package credential verifies externally issued signed bearer credentials.
//
// A credential is a compact three-segment token (header.payload.signature)
// issued by a single configured identity provider. Verification checks the
// signature against a key fetched from the signing-key service by the kid
// in the header, then the issuer, audience, algorithm, and expiry. Any
// failure collapses to ErrCredentialInvalid; only an unreachable key
// service surfaces separately, as an UpstreamError.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shipview/shipview/pkg/observability"
)

// TeamTokenClaim is the namespaced claim carrying the team shared secret
// embedded at credential-issuance time.
const TeamTokenClaim = "https://shipview.io/team_token"

// Claims is the validated claims structure produced by Verify. Downstream
// code consumes this, never the raw credential.
type Claims struct {
	Email     string `json:"email,omitempty"`
	TeamToken string `json:"https://shipview.io/team_token,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates credentials against one configured issuer, audience,
// and signing algorithm.
type Verifier struct {
	issuer   string
	audience string
	method   string
	keys     KeyResolver
	metrics  *observability.Metrics
	now      func() time.Time
}

// NewVerifier creates a credential verifier. metrics may be nil.
func NewVerifier(issuer, audience, algorithm string, keys KeyResolver, metrics *observability.Metrics) *Verifier {
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		method:   algorithm,
		keys:     keys,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Verify parses and validates a raw bearer credential. It returns the
// validated claims, ErrCredentialInvalid on any verification failure, or an
// UpstreamError when the signing-key service is unreachable.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		v.count("rejected")
		return nil, ErrCredentialInvalid
	}

	// The keyfunc runs inside the parser, which flattens all errors into
	// one. Capture an upstream fault out-of-band so it is not misreported
	// as a bad credential.
	var upstreamErr *UpstreamError

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(token *jwt.Token) (interface{}, error) {
			kid, ok := token.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("missing kid header")
			}
			key, keyErr := v.keys.Key(ctx, kid)
			if keyErr != nil {
				var ue *UpstreamError
				if errors.As(keyErr, &ue) {
					upstreamErr = ue
				}
				return nil, keyErr
			}
			return key, nil
		},
		jwt.WithValidMethods([]string{v.method}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if upstreamErr != nil {
			v.count("upstream_error")
			return nil, upstreamErr
		}
		v.count("rejected")
		return nil, ErrCredentialInvalid
	}

	if claims.Subject == "" {
		v.count("rejected")
		return nil, ErrCredentialInvalid
	}

	v.count("ok")
	return claims, nil
}

func (v *Verifier) count(result string) {
	if v.metrics != nil {
		v.metrics.CredentialVerificationsTotal.WithLabelValues(result).Inc()
	}
}
