// Package middleware содержит HTTP middleware dev-сервера PalmAstro.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/palmastro/internal/model"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour

	kindAccess  = "access"
	kindRefresh = "refresh"
)

// AuthMiddleware выпускает и проверяет подписанные bearer-токены.
// Токен имеет вид kind.userID.expiry.signature.
type AuthMiddleware struct {
	secretKey []byte
	now       func() time.Time
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// Пустой ключ заменяется случайным, и токены перестают быть действительными после перезапуска.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
		now:       time.Now,
	}
}

// IssueTokens выпускает пару токенов для пользователя.
func (a *AuthMiddleware) IssueTokens(userID string) model.Tokens {
	now := a.now()
	return model.Tokens{
		Access:  a.sign(kindAccess, userID, now.Add(accessTokenTTL)),
		Refresh: a.sign(kindRefresh, userID, now.Add(refreshTokenTTL)),
	}
}

// ParseAccess проверяет токен доступа и возвращает идентификатор пользователя.
func (a *AuthMiddleware) ParseAccess(token string) (string, bool) {
	return a.parse(kindAccess, token)
}

// ParseRefresh проверяет refresh-токен и возвращает идентификатор пользователя.
func (a *AuthMiddleware) ParseRefresh(token string) (string, bool) {
	return a.parse(kindRefresh, token)
}

func (a *AuthMiddleware) sign(kind, userID string, expires time.Time) string {
	payload := kind + "." + userID + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + a.signature(payload)
}

func (a *AuthMiddleware) signature(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parse(kind, token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || parts[0] != kind || parts[1] == "" {
		return "", false
	}

	payload := strings.Join(parts[:3], ".")
	if !hmac.Equal([]byte(parts[3]), []byte(a.signature(payload))) {
		return "", false
	}

	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || a.now().Unix() >= expires {
		return "", false
	}

	return parts[1], true
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// Middleware требует действительный токен доступа и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		userID, ok := a.ParseAccess(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// Optional пропускает анонимные запросы. Предъявленный недействительный токен отклоняется с 401,
// чтобы клиент мог обновить его.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		userID, ok := a.ParseAccess(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID кладёт идентификатор пользователя в контекст.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
