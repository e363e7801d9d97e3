package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFixedWindowAllowsUpToLimit(t *testing.T) {
	l := NewFixedWindow(3, time.Minute, "")
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, l.allow("1.2.3.4"))
	// Other clients have their own window.
	assert.True(t, l.allow("5.6.7.8"))
}

func TestFixedWindowResets(t *testing.T) {
	l := NewFixedWindow(1, time.Minute, "")
	at := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }

	assert.True(t, l.allow("1.2.3.4"))
	assert.False(t, l.allow("1.2.3.4"))

	at = at.Add(61 * time.Second)
	assert.True(t, l.allow("1.2.3.4"))
}

func TestGinMiddlewareRejectsWithMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewFixedWindow(1, time.Minute, "Terlalu banyak percobaan login.").GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1000"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Terlalu banyak percobaan login.")
}
