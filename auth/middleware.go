// CLAUDE:SUMMARY Request authentication: HTTP Basic against a bcrypt hash, or a bearer token issued by the token endpoint.
// Package auth guards the API and MCP routes. A single operator account is
// configured with a bcrypt password hash; clients either send it with HTTP
// Basic or exchange it once for a short-lived HS256 bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/mdconv/kit"
)

const realm = `Basic realm="mdconv"`

// Config holds the operator credentials.
type Config struct {
	Username     string
	PasswordHash string
	// TokenSecret enables bearer tokens when non-empty.
	TokenSecret []byte
}

// CheckPassword reports whether username and password match cfg.
func (cfg Config) CheckPassword(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
	// always run bcrypt so a wrong user costs the same as a wrong password
	passOK := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)) == nil
	return userOK && passOK
}

// authenticate returns the user behind r, or "" when r carries no valid
// credentials.
func (cfg Config) authenticate(r *http.Request) string {
	if user, pass, ok := r.BasicAuth(); ok {
		if cfg.CheckPassword(user, pass) {
			return user
		}
		return ""
	}
	if len(cfg.TokenSecret) == 0 {
		return ""
	}
	h := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || tokenStr == "" {
		return ""
	}
	claims, err := ValidateToken(cfg.TokenSecret, tokenStr)
	if err != nil || claims.Username != cfg.Username {
		return ""
	}
	return claims.Username
}

// Require returns middleware that rejects unauthenticated requests with a
// 401 JSON body. The authenticated user is stored under kit.UserIDKey.
func Require(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := cfg.authenticate(r)
			if user == "" {
				w.Header().Set("WWW-Authenticate", realm)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated"})
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithUserID(r.Context(), user)))
		})
	}
}
