package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildledger/procure_backend/utils"
	"github.com/gin-gonic/gin"
)

func TestAuthMiddlewarePutsCallerIdentityInContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	token, err := utils.JwtGenerate(7, "jdoe", "biz-1", "A")
	if err != nil {
		t.Fatal(err)
	}

	var businessId, username string
	var userId int
	var isAdmin bool
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		ctx := c.Request.Context()
		businessId, _ = utils.GetBusinessIdFromContext(ctx)
		username, _ = utils.GetUsernameFromContext(ctx)
		userId, _ = utils.GetUserIdFromContext(ctx)
		isAdmin, _ = utils.GetIsAdminFromContext(ctx)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if businessId != "biz-1" {
		t.Fatalf("expected business id in context, got %q", businessId)
	}
	if username != "jdoe" {
		t.Fatalf("audited writes need the username in context, got %q", username)
	}
	if userId != 7 {
		t.Fatalf("expected user id 7, got %d", userId)
	}
	if !isAdmin {
		t.Fatal("role A must mark the caller as admin")
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", w.Code)
	}
}
