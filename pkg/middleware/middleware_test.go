package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ctfex.com/pkg/common"
	"ctfex.com/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) {
		common.Success(c, common.RequestIDFromGin(c))
	})
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestReqId_GeneratesAndEchoes(t *testing.T) {
	r := newRouter(ReqId())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(common.HeaderRequestID, "rid-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "rid-1", w.Header().Get(common.HeaderRequestID))
	assert.Contains(t, w.Body.String(), "rid-1")
}

func TestRecover_Returns500(t *testing.T) {
	r := newRouter(Recover())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit_Blocks(t *testing.T) {
	store := ratelimit.NewStore(rate.Every(time.Hour), 1, time.Minute)
	r := newRouter(RateLimit("test", store))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
