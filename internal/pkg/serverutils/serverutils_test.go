package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"deep-research-agent/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fiber error", fiber.NewError(fiber.StatusConflict, "busy"), fiber.StatusConflict},
		{"validation error", validation.Invalid("query", "too short"), fiber.StatusBadRequest},
		{"other", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		Query string `validate:"required,min=5"`
	}
	assert.NoError(t, ValidateRequest(request{Query: "long enough"}))

	err := ValidateRequest(request{Query: "hi"})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, StatusFor(err))
	assert.Contains(t, err.Error(), "Query must satisfy min=5")
}

func TestErrorHandlerMiddleware_HidesInternalErrors(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password leaked") })

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var out Response[any]
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Success)
	assert.Equal(t, "internal server error", out.Message)
}

func TestJwtMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestJwtMiddleware_DisabledWithoutSecret(t *testing.T) {
	app := fiber.New()
	app.Use(NewJwtMiddleware(""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
