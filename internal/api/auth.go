package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-convo/internal/chat"
)

const (
	tokenCookieKey = "token"
	bearerPrefix   = "Bearer "
)

// Claims are the identity provider's token claims. The subject is the
// principal; the remaining fields seed the user's profile.
type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.StandardClaims
}

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Principal string
	Profile   chat.Profile
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// tokenFromRequest reads the bearer token, falling back to the token cookie
// for browser websocket upgrades that cannot set headers.
func tokenFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, bearerPrefix) {
			return "", errors.New("malformed authorization header")
		}
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)), nil
	}

	cookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		return "", fmt.Errorf("get cookie: %w", err)
	}
	return cookie.Value, nil
}

func (s *ChatApp) verifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject claim")
	}

	return claims, nil
}

func (s *ChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			s.writeError(w, r, NewUnauthorizedError())
			return
		}

		claims, err := s.verifyToken(tokenString)
		if err != nil {
			s.logger(r).Debug().Err(err).Msg("failed to verify token")
			s.writeError(w, r, NewUnauthorizedError())
			return
		}

		ctx := WithIdentity(r.Context(), Identity{
			Principal: claims.Subject,
			Profile: chat.Profile{
				Name:      claims.Name,
				Email:     claims.Email,
				AvatarUrl: claims.Picture,
			},
		})
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
