package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityFrom(t *testing.T) {
	alice := Identity{Principal: "alice", Profile: chat.Profile{Name: "Alice"}}

	tcases := []struct {
		name     string
		ctx      context.Context
		identity Identity
		expected bool
	}{
		{
			name:     "no identity",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "identity set",
			ctx:      WithIdentity(context.Background(), alice),
			identity: alice,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := IdentityFrom(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected IdentityFrom to return %v", tc.expected)
			assert.Equal(t, tc.identity, id)
		})
	}
}

func Test_tokenFromRequest(t *testing.T) {
	tcases := []struct {
		name     string
		header   string
		cookie   string
		expected string
		err      bool
	}{
		{name: "bearer header", header: "Bearer abc", expected: "abc"},
		{name: "cookie", cookie: "def", expected: "def"},
		{name: "header wins over cookie", header: "Bearer abc", cookie: "def", expected: "abc"},
		{name: "malformed header", header: "Basic abc", err: true},
		{name: "no credentials", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: tc.cookie})
			}

			token, err := tokenFromRequest(req)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, token)
		})
	}
}

func Test_verifyToken(t *testing.T) {
	app := &ChatApp{signingKey: testSigningKey}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   "alice",
			ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		},
	})
	expiredToken, err := expired.SignedString(testSigningKey)
	require.NoError(t, err)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Name: "nobody"})
	noSubjectToken, err := noSubject.SignedString(testSigningKey)
	require.NoError(t, err)

	tcases := []struct {
		name  string
		token string
		err   bool
	}{
		{name: "valid token", token: signToken(t, testSigningKey, "alice", "Alice")},
		{name: "wrong key", token: signToken(t, []byte("other-key"), "alice", "Alice"), err: true},
		{name: "expired", token: expiredToken, err: true},
		{name: "missing subject", token: noSubjectToken, err: true},
		{name: "garbage", token: "invalid-token", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := app.verifyToken(tc.token)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, "Alice", claims.Name)
			assert.Equal(t, "alice@example.com", claims.Email)
		})
	}
}

func Test_authMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &ChatApp{
		log:        zerolog.New(buf).Level(zerolog.DebugLevel),
		signingKey: testSigningKey,
	}

	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(id.Principal + ":" + id.Profile.Name))
	})

	t.Run("valid bearer token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSigningKey, "alice", "Alice"))
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "alice:Alice", rr.Body.String())
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})

	t.Run("valid cookie token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: signToken(t, testSigningKey, "bob", "Bob")})
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "bob:Bob", rr.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: "invalid-token",
		})
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, buf.String(), "failed to verify token")
	})
}
