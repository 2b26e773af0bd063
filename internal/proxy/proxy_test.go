package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeTo(upstream string) *Resolver {
	src := SourceFunc(func(ctx context.Context, host string) (*Route, error) {
		return &Route{ProjectID: "p1", Upstream: upstream, PreviewToken: "pv-1"}, nil
	})
	return NewResolver(src, nil, time.Minute)
}

func TestProxyForwardsAndScrubs(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pv-1", r.Header.Get(previewTokenHeader))
		assert.Empty(t, r.Header.Get("Cookie"))

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Write([]byte("preview body"))
	}))
	defer upstream.Close()

	edge := httptest.NewServer(NewServer(routeTo(upstream.URL), "https://apex.build").Handler())
	defer edge.Close()

	req, _ := http.NewRequest(http.MethodGet, edge.URL+"/index.html", nil)
	req.Header.Set("Cookie", "session=builder")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-Frame-Options"))
	assert.Empty(t, resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, "https://apex.build", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestProxyUnknownHost(t *testing.T) {
	t.Parallel()

	src := SourceFunc(func(ctx context.Context, host string) (*Route, error) {
		return nil, ErrNoRoute
	})
	edge := httptest.NewServer(NewServer(NewResolver(src, nil, time.Minute), "").Handler())
	defer edge.Close()

	resp, err := http.Get(edge.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProxyAnswersPreflightAtEdge(t *testing.T) {
	t.Parallel()

	var upstreamHits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
	}))
	defer upstream.Close()

	edge := httptest.NewServer(NewServer(routeTo(upstream.URL), "https://apex.build").Handler())
	defer edge.Close()

	req, _ := http.NewRequest(http.MethodOptions, edge.URL+"/api/data", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://apex.build", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, int32(0), upstreamHits.Load())
}

func TestProxyHealthEndpoint(t *testing.T) {
	t.Parallel()

	edge := httptest.NewServer(NewServer(routeTo("http://unused.internal"), "").Handler())
	defer edge.Close()

	resp, err := http.Get(edge.URL + "/__edge/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProxyWebSocketPassthrough(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pv-1", r.Header.Get(previewTokenHeader))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Echo until the peer goes away, like an HMR socket under test.
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, payload); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	edge := httptest.NewServer(NewServer(routeTo(upstream.URL), "").Handler())
	defer edge.Close()

	wsURL := "ws" + strings.TrimPrefix(edge.URL, "http") + "/hmr"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("reload please")))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "reload please", string(payload))
}

func TestProxyWebSocketSurvivesIdle(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(kind, payload); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	srv := NewServer(routeTo(upstream.URL), "")
	srv.pongWait = 100 * time.Millisecond
	srv.pingPeriod = 40 * time.Millisecond
	edge := httptest.NewServer(srv.Handler())
	defer edge.Close()

	wsURL := "ws" + strings.TrimPrefix(edge.URL, "http") + "/hmr"
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	// A live-reload socket answers pings but carries no data between edits;
	// the reader goroutine plays that part here.
	msgs := make(chan string, 1)
	go func() {
		for {
			_, payload, err := client.ReadMessage()
			if err != nil {
				close(msgs)
				return
			}
			msgs <- string(payload)
		}
	}()

	// Stay silent across several pong windows.
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("still alive")))
	select {
	case m, ok := <-msgs:
		require.True(t, ok, "bridge dropped an idle but healthy socket")
		assert.Equal(t, "still alive", m)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo after idle period")
	}
}
