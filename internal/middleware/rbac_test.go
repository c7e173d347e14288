package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func sweepApp(userID interface{}, role interface{}) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals("user_id", userID)
		}
		if role != nil {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Post("/api/v1/assignments/auto-publish", RequireRole("admin", "System"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name   string
		userID interface{}
		role   interface{}
		status int
	}{
		{name: "admin", userID: uint(1), role: "admin", status: fiber.StatusOK},
		{name: "system role is case insensitive", userID: "scheduler", role: " SYSTEM ", status: fiber.StatusOK},
		{name: "instructor", userID: uint(2), role: "instructor", status: fiber.StatusForbidden},
		{name: "user without role", userID: uint(3), status: fiber.StatusForbidden},
		{name: "anonymous", status: fiber.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/assignments/auto-publish", nil)
			resp, err := sweepApp(tc.userID, tc.role).Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestNormalizeRoleValue(t *testing.T) {
	require.Equal(t, "", normalizeRoleValue(nil))
	require.Equal(t, "instructor", normalizeRoleValue("  Instructor "))
	require.Equal(t, "7", normalizeRoleValue(7))
}
