package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func authRouter(cfg JWTConfig, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWTAuthWith(cfg)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString("user_id"),
			"device_id": c.GetString("device_id"),
			"role":      c.GetString("role"),
		})
	})
	r.GET("/x", handlers...)
	return r
}

func TestJWTAuth(t *testing.T) {
	valid := deviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "auth.basketvoice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		DeviceID: "dev-1",
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""

	cfg := JWTConfig{Secret: testSecret, Issuer: "auth.basketvoice"}

	cases := []struct {
		name   string
		cfg    JWTConfig
		target string
		header string
		want   int
	}{
		{"header token", cfg, "/x", "Bearer " + sign(t, valid), http.StatusOK},
		{"query token", cfg, "/x?access_token=" + sign(t, valid), "", http.StatusOK},
		{"missing token", cfg, "/x", "", http.StatusUnauthorized},
		{"expired", cfg, "/x", "Bearer " + sign(t, expired), http.StatusUnauthorized},
		{"no subject", cfg, "/x", "Bearer " + sign(t, noSubject), http.StatusUnauthorized},
		{"wrong issuer", JWTConfig{Secret: testSecret, Issuer: "other"}, "/x", "Bearer " + sign(t, valid), http.StatusUnauthorized},
		{"no secret", JWTConfig{}, "/x", "Bearer " + sign(t, valid), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authRouter(tc.cfg).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	user := deviceClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}}
	admin := deviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-2"},
		AppMetadata:      map[string]any{"role": "Admin"},
	}
	r := authRouter(JWTConfig{Secret: testSecret}, RequireAdmin())

	for _, tc := range []struct {
		claims deviceClaims
		want   int
	}{{user, http.StatusForbidden}, {admin, http.StatusOK}} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, tc.claims))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("subject %s: status = %d, want %d", tc.claims.Subject, w.Code, tc.want)
		}
	}
}
