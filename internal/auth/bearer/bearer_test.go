package bearer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quickcart/internal/config"
	"github.com/stretchr/testify/assert"
)

func newContext(req *http.Request) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c
}

func TestReadTokenFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")

	token, ok := NewManager(config.Config{}).ReadToken(newContext(req))
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestReadTokenFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "from-cookie"})

	token, ok := NewManager(config.Config{}).ReadToken(newContext(req))
	assert.True(t, ok)
	assert.Equal(t, "from-cookie", token)
}

func TestReadTokenMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	_, ok := NewManager(config.Config{}).ReadToken(newContext(req))
	assert.False(t, ok)
}
