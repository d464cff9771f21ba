package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func protectedApp(seen *struct {
	id   uint
	role string
}) *fiber.App {
	app := fiber.New()
	app.Use(JWTProtected(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		seen.id, _ = c.Locals(LocalUserID).(uint)
		seen.role, _ = c.Locals(LocalUserRole).(string)
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestJWTProtectedAcceptsValidToken(t *testing.T) {
	var seen struct {
		id   uint
		role string
	}
	app := protectedApp(&seen)

	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"sub":  "42",
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	require.Equal(t, uint(42), seen.id)
	require.Equal(t, "teacher", seen.role)
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	var seen struct {
		id   uint
		role string
	}
	app := protectedApp(&seen)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"expired": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "1", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no expiry": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"sub": "1",
		}),
		"wrong secret": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
		}),
		"wrong algorithm": "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{
			"sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
		}),
		"no subject": "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
			"role": "admin", "exp": time.Now().Add(time.Hour).Unix(),
		}),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
