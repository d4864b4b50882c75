package middleware

import (
	"edu_backend/internal/config"
	"edu_backend/internal/model"
	"edu_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("/api", AuthMiddleware(cfg))
	auth.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, string(util.GetUserFromContext(c).Role))
	})
	auth.GET("/grading", RoleMiddleware(model.Teacher), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func token(t *testing.T, cfg *config.Config, role model.UserRole) string {
	t.Helper()
	u := &model.User{Role: role}
	u.ID = 1
	tok, err := util.GenerateJWT(u, cfg.JWT.Secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := newRouter(cfg)

	get := func(path, header string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get("/api/me", "Bearer garbage").Code)

	w := get("/api/me", "Bearer "+token(t, cfg, model.Student))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "student", w.Body.String())

	// WebSocket 握手走查询参数
	w = get("/api/me?token="+token(t, cfg, model.Teacher), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher", w.Body.String())
}

func TestRoleMiddleware(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := newRouter(cfg)

	for role, want := range map[model.UserRole]int{
		model.Student: http.StatusForbidden,
		model.Teacher: http.StatusOK,
		model.Admin:   http.StatusOK,
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/grading", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, cfg, role))
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, string(role))
	}
}
