package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	orgContextKey     contextKey = "operator_org"
	subjectContextKey contextKey = "operator_subject"
)

// OperatorClaims are the JWT claims for operator API tokens. OrgID
// scopes every request to a single organization.
type OperatorClaims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// GenerateOperatorToken mints an HS256 token scoped to orgID, valid
// for the given duration.
func GenerateOperatorToken(secret []byte, orgID, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "calltrail",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// ParseOperatorToken validates a token string and returns its claims.
func ParseOperatorToken(secret []byte, tokenString string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing operator token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid operator token")
	}
	if claims.OrgID == "" {
		return nil, fmt.Errorf("operator token missing org scope")
	}
	return claims, nil
}

// RequireOperator returns middleware that enforces a valid operator
// bearer token and stores the token's org scope in the request context.
func RequireOperator(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok {
				writeMiddlewareError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}
			claims, err := ParseOperatorToken(secret, tokenString)
			if err != nil {
				writeMiddlewareError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), orgContextKey, claims.OrgID)
			ctx = context.WithValue(ctx, subjectContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrgFromContext returns the org scope set by RequireOperator, or ""
// if the request was not authenticated.
func OrgFromContext(ctx context.Context) string {
	orgID, _ := ctx.Value(orgContextKey).(string)
	return orgID
}

// SubjectFromContext returns the authenticated operator subject, or ""
// if the request was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectContextKey).(string)
	return subject
}
