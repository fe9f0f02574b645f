package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/common/httpx"
	"github.com/tansive/reportformatsrv/pkg/types"
)

const (
	authHeaderPrefix = "Bearer "
	genericAuthError = "authentication failed"
	tokenIssuer      = "reportformats"
)

// Claims carries the caller principal. The subject is the user id.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for user that expires after ttl.
func IssueToken(secret, user string, roles []string, ttl time.Duration) (string, apperrors.Error) {
	if secret == "" {
		return "", ErrTokenSecretMissing
	}
	if user == "" {
		return "", ErrInvalidToken.Msg("a token needs a user")
	}
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", ErrInvalidToken.MsgErr("unable to sign token", err)
	}
	return token, nil
}

// ParseToken validates token and returns the principal it names. Tokens
// without a subject are rejected since an empty user id is the system
// principal.
func ParseToken(secret, token string) (types.Principal, apperrors.Error) {
	if secret == "" {
		return types.Principal{}, ErrTokenSecretMissing
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return types.Principal{}, ErrInvalidToken.Err(err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return types.Principal{}, ErrInvalidToken.Msg("token has no subject")
	}
	return types.Principal{UserID: claims.Subject, Roles: claims.Roles}, nil
}

type principalKeyType string

const principalKey principalKeyType = "principal"

func WithPrincipal(ctx context.Context, p types.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated caller. ok is false when
// the request did not pass through the principal middleware.
func PrincipalFromContext(ctx context.Context) (types.Principal, bool) {
	p, ok := ctx.Value(principalKey).(types.Principal)
	return p, ok
}

// PrincipalMiddleware authenticates the bearer token and stores the caller
// principal in the request context.
func PrincipalMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.Ctx(r.Context())

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, authHeaderPrefix) {
				logger.Debug().Msg("missing or malformed authorization header")
				httpx.ErrUnAuthorized(genericAuthError).Send(w)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, authHeaderPrefix))
			p, err := ParseToken(secret, token)
			if err != nil {
				logger.Error().Err(err).Msg("token validation failed")
				httpx.ErrUnAuthorized(genericAuthError).Send(w)
				return
			}
			ctx := log.Ctx(r.Context()).With().Str("user", p.UserID).Logger().WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}
