package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/cache"
	"github.com/kasuganosora/tilewalk/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ---- Helpers ----

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testSecurity() config.SecurityConfig {
	return config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}
}

func newProtectedRouter(sec config.SecurityConfig, c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(sec, c))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, GetSubject(ctx))
	})
	return r
}

func mintSession(t *testing.T, c cache.Cache, subject string) string {
	t.Helper()
	token, err := GenerateToken(subject, "secret", time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), SessionKey(token), subject, time.Hour))
	return token
}

// ---- Auth ----

func TestAuth_Rejections(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(testSecurity(), c)

	// signed correctly but never stored as a session
	orphan, err := GenerateToken("ops", "secret", time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":   "",
		"no bearer": "Token abc123",
		"garbage":   "Bearer notavalidtoken",
		"orphan":    "Bearer " + orphan,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuth_ValidHeaderSetsSubject(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(testSecurity(), c)
	token := mintSession(t, c, "ops")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())
}

func TestAuth_QueryToken(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(testSecurity(), c)
	token := mintSession(t, c, "viewer")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer", w.Body.String())
}

func TestAuth_RevokedSession(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(testSecurity(), c)
	token := mintSession(t, c, "ops")
	require.NoError(t, c.Del(context.Background(), SessionKey(token)))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetSubject_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetSubject(c))
	assert.Equal(t, "", GetToken(c))
}

// ---- Recovery / Logger ----

func TestRecovery_CatchesPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(TraceIDHeader, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "trace-1")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}

func TestRecovery_NoPanic_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/ping", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, tc := range []struct {
		method, path string
		level        string
	}{
		{http.MethodGet, "/ping", "debug"},
		{http.MethodPost, "/ping", "info"},
		{http.MethodGet, "/missing", "warn"},
		{http.MethodGet, "/fail", "error"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		entries := logs.TakeAll()
		require.Len(t, entries, 1, tc.path)
		assert.Equal(t, tc.level, entries[0].Level.String(), tc.method+" "+tc.path)
		assert.NotEmpty(t, entries[0].ContextMap()["trace_id"])
	}
}
