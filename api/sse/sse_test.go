package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/tilewalk/game/world"
	"github.com/kasuganosora/tilewalk/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// readEvent reads lines until a blank line and returns the event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestServeSSE_ForwardsFilteredEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, ps := testutil.SetupTestCache(t)
	h := NewHandler(ps, zap.NewNop())

	r := gin.New()
	r.GET("/sse", h.ServeSSE)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?actor=a1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, body)
	require.Equal(t, "connected", name)

	pub := func(payload string) {
		require.NoError(t, ps.Publish(ctx, world.StepsChannel, payload))
	}
	pub(`{"type":"stepped","actor":"other"}`)
	pub(`not json`)
	pub(`{"type":"stepped","actor":"a1","cell":{"row":0,"col":1}}`)
	pub(`{"type":"arrived","actor":"a1","cell":{"row":0,"col":1}}`)

	name, data := readEvent(t, body)
	assert.Equal(t, "stepped", name)
	assert.Contains(t, data, `"actor":"a1"`)
	name, _ = readEvent(t, body)
	assert.Equal(t, "arrived", name)
}
