package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"payment_broker/internal/domain"
	"payment_broker/internal/testutil"
	"payment_broker/internal/utils"
)

const secret = "middleware-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func guarded(db *gorm.DB) *gin.Engine {
	r := gin.New()
	r.GET("/me", JWTAuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"phone": c.GetString(ContextPhone), "role": c.GetString(ContextRole)})
	})
	r.GET("/admin", JWTAuthMiddleware(secret), AdminOnlyMiddleware(db), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRole))
	})
	return r
}

func get(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, u domain.User) string {
	t.Helper()
	tok, err := utils.GenerateJWT(u.ID, u.Phone, u.Role, secret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestJWTAuthMiddleware(t *testing.T) {
	r := guarded(testutil.NewDB(t))
	user := domain.User{ID: 3, Phone: "+21611111111", Role: domain.RoleUser}

	w := get(r, "/me", token(t, user))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"phone":"+21611111111","role":"user"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/me", "bearer "+token(t, user)[len("Bearer "):]).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer not-a-token").Code)

	anonymous := domain.User{ID: 4, Role: domain.RoleUser}
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", token(t, anonymous)).Code)
}

func TestAdminOnlyMiddlewareUsesStoredRole(t *testing.T) {
	db := testutil.NewDB(t)
	r := guarded(db)
	user := domain.User{Phone: "+21622222222", Role: domain.RoleUser}
	require.NoError(t, db.Create(&user).Error)
	auth := token(t, user)

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", auth).Code)

	require.NoError(t, db.Model(&user).Update("role", domain.RoleAdmin).Error)
	w := get(r, "/admin", auth)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RoleAdmin, w.Body.String())

	require.NoError(t, db.Model(&user).Update("role", domain.RoleUser).Error)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", token(t, domain.User{ID: user.ID, Phone: user.Phone, Role: domain.RoleAdmin})).Code)
}

func TestAdminOnlyMiddlewareRejectsPhoneMismatch(t *testing.T) {
	db := testutil.NewDB(t)
	r := guarded(db)
	admin := domain.User{Phone: "+21633333333", Role: domain.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)

	forged := domain.User{ID: admin.ID, Phone: "+21699999999", Role: domain.RoleAdmin}
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", token(t, forged)).Code)

	missing := domain.User{ID: admin.ID + 100, Phone: "+21644444444", Role: domain.RoleAdmin}
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", token(t, missing)).Code)
}
