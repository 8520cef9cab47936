package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/mdconv/kit"
)

var testSecret = bytes.Repeat([]byte("s"), 32)

func testConfig(t *testing.T) Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return Config{Username: "admin", PasswordHash: string(hash), TokenSecret: testSecret}
}

func TestToken_RoundTrip(t *testing.T) {
	tok, exp, err := GenerateToken(testSecret, "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry = %v", exp)
	}
	claims, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "admin" || claims.Subject != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestToken_Rejects(t *testing.T) {
	if _, _, err := GenerateToken([]byte("short"), "admin", time.Hour); err == nil {
		t.Error("short secret accepted")
	}

	expired, _, _ := GenerateToken(testSecret, "admin", -time.Minute)
	if _, err := ValidateToken(testSecret, expired); err == nil {
		t.Error("expired token accepted")
	}

	tok, _, _ := GenerateToken(testSecret, "admin", time.Hour)
	if _, err := ValidateToken(bytes.Repeat([]byte("x"), 32), tok); err == nil {
		t.Error("token accepted with the wrong secret")
	}

	// WHY: alg=none and other methods must never be accepted.
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "admin"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ValidateToken(testSecret, unsigned); err == nil {
		t.Error("unsigned token accepted")
	}
}

func TestRequire(t *testing.T) {
	cfg := testConfig(t)
	var user string
	handler := Require(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = kit.GetUserID(r.Context())
	}))
	tok, _, _ := GenerateToken(testSecret, "admin", time.Hour)
	otherUser, _, _ := GenerateToken(testSecret, "mallory", time.Hour)

	tests := []struct {
		name string
		set  func(r *http.Request)
		want int
	}{
		{"none", func(r *http.Request) {}, 401},
		{"basic ok", func(r *http.Request) { r.SetBasicAuth("admin", "correct horse") }, 200},
		{"basic wrong password", func(r *http.Request) { r.SetBasicAuth("admin", "nope") }, 401},
		{"basic wrong user", func(r *http.Request) { r.SetBasicAuth("root", "correct horse") }, 401},
		{"bearer ok", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, 200},
		{"bearer garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc.def.ghi") }, 401},
		{"bearer other user", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+otherUser) }, 401},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user = ""
			req := httptest.NewRequest("GET", "/api/documents", nil)
			tt.set(req)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == 401 && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate")
			}
			if tt.want == 200 && user != "admin" {
				t.Errorf("user = %q", user)
			}
		})
	}
}

func TestRequire_BearerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenSecret = nil
	handler := Require(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tok, _, _ := GenerateToken(testSecret, "admin", time.Hour)
	req := httptest.NewRequest("GET", "/api/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
