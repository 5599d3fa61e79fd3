// Package middleware содержит HTTP middleware сервисов магазина, склада и кошельков.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

type contextKey string

const principalKey contextKey = "principal"

const bearerPrefix = "Bearer "

var errInvalidToken = errors.New("invalid token")

// Claims описывает содержимое JWT вызывающего. Идентификатор пользователя берётся из user_id,
// а если его нет, из sub.
type Claims struct {
	UserID int64  `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет bearer-токен (HS256) и кладёт в контекст запроса model.Principal.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware с указанным секретом.
// Пустой секрет заменяется случайным ключом, и ни один внешний токен не пройдёт проверку.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}
	return &AuthMiddleware{secretKey: key}
}

// Middleware отклоняет запрос с кодом 401, если токен отсутствует или неверен.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		p, err := a.parse(token)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Issue выпускает токен для пользователя. Используется в тестах и для локальной отладки.
func (a *AuthMiddleware) Issue(userID int64, role model.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

func (a *AuthMiddleware) parse(tokenStr string) (model.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) {
			return a.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return model.Principal{}, errInvalidToken
	}

	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		userID, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return model.Principal{}, fmt.Errorf("%w: subject %q", errInvalidToken, claims.Subject)
		}
	}
	if userID <= 0 {
		return model.Principal{}, fmt.Errorf("%w: no user id", errInvalidToken)
	}

	role := model.RoleUser
	if strings.EqualFold(claims.Role, string(model.RoleAdmin)) {
		role = model.RoleAdmin
	}

	return model.Principal{UserID: userID, Role: role, Token: tokenStr}, nil
}

// WithPrincipal сохраняет вызывающего в контексте.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext извлекает вызывающего из контекста запроса.
func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}
