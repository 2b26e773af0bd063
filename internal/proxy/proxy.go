package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"apex-client/internal/logging"
	"apex-client/internal/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	dialTimeout  = 10 * time.Second
	resolveLimit = 5 * time.Second
)

// Server is the preview edge: one listener fronting every sandbox upstream.
type Server struct {
	resolver    *Resolver
	allowOrigin string
	log         *zap.Logger
	engine      *gin.Engine
	upgrader    websocket.Upgrader

	// Keep-alive tuning for bridged websockets; shortened in tests.
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewServer wires the gin engine with health, metrics and the catch-all
// preview handler.
func NewServer(resolver *Resolver, allowOrigin string) *Server {
	s := &Server{
		resolver:    resolver,
		allowOrigin: allowOrigin,
		log:         logging.Named("proxy"),
		pongWait:    pongWait,
		pingPeriod:  pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The preview host is user content; origin enforcement happens
			// at the builder, not here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/__edge/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/__edge/metrics", gin.WrapH(promhttp.Handler()))
	engine.NoRoute(s.handle)

	s.engine = engine
	return s
}

// Run blocks serving on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info("preview edge listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

// Handler exposes the engine for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handle(c *gin.Context) {
	host := hostname(c.Request.Host)

	ctx, cancel := context.WithTimeout(c.Request.Context(), resolveLimit)
	route, err := s.resolver.Resolve(ctx, host)
	cancel()
	if err != nil {
		metrics.Get().ProxyRequestsTotal.WithLabelValues("404").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown preview host"})
		return
	}

	if c.Request.Method == http.MethodOptions {
		// Preflight is answered at the edge; the sandbox app never sees it.
		scrubResponse(c.Writer.Header(), s.allowOrigin)
		c.Status(http.StatusNoContent)
		metrics.Get().ProxyRequestsTotal.WithLabelValues("204").Inc()
		return
	}

	if websocket.IsWebSocketUpgrade(c.Request) {
		s.proxyWebSocket(c, route)
		return
	}
	s.proxyHTTP(c, route)
}

func (s *Server) proxyHTTP(c *gin.Context, route *Route) {
	target, err := url.Parse(route.Upstream)
	if err != nil {
		metrics.Get().ProxyRequestsTotal.WithLabelValues("502").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad upstream"})
		return
	}

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			for _, h := range hopByHop {
				req.Header.Del(h)
			}
			prepareUpstream(req.Header, route)
		},
		ModifyResponse: func(resp *http.Response) error {
			scrubResponse(resp.Header, s.allowOrigin)
			metrics.Get().ProxyRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			// A dead upstream usually means the sandbox moved; drop the
			// cached route so the next request re-resolves.
			s.resolver.Invalidate(r.Context(), hostname(r.Host))
			metrics.Get().ProxyRequestsTotal.WithLabelValues("502").Inc()
			s.log.Warn("upstream error", zap.String("upstream", route.Upstream), zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	rp.ServeHTTP(c.Writer, c.Request)
}

// proxyWebSocket bridges the HMR/live-reload socket between the builder
// iframe and the sandbox dev server.
func (s *Server) proxyWebSocket(c *gin.Context, route *Route) {
	target, err := url.Parse(route.Upstream)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad upstream"})
		return
	}

	upstreamURL := *c.Request.URL
	upstreamURL.Host = target.Host
	switch target.Scheme {
	case "https":
		upstreamURL.Scheme = "wss"
	default:
		upstreamURL.Scheme = "ws"
	}

	header := http.Header{}
	if route.PreviewToken != "" {
		header.Set(previewTokenHeader, route.PreviewToken)
	}
	if proto := c.GetHeader("Sec-WebSocket-Protocol"); proto != "" {
		header.Set("Sec-WebSocket-Protocol", proto)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	upstream, _, err := dialer.Dial(upstreamURL.String(), header)
	if err != nil {
		s.log.Warn("upstream websocket dial failed",
			zap.String("url", upstreamURL.String()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}

	client, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		upstream.Close()
		return
	}
	metrics.Get().ProxyUpgradesTotal.Inc()

	done := make(chan struct{}, 2)
	stop := make(chan struct{})
	go s.pump(client, upstream, done)
	go s.pump(upstream, client, done)
	go s.pinger(client, stop)
	go s.pinger(upstream, stop)
	<-done

	close(stop)
	client.Close()
	upstream.Close()
}

// pump copies data frames from src to dst until either side fails. Pings and
// pongs refresh the read deadline, so an idle bridge stays up as long as both
// peers answer the pinger.
func (s *Server) pump(src, dst *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	src.SetReadDeadline(time.Now().Add(s.pongWait))
	src.SetPongHandler(func(string) error {
		return src.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	src.SetPingHandler(func(appData string) error {
		src.SetReadDeadline(time.Now().Add(s.pongWait))
		return src.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		kind, payload, err := src.ReadMessage()
		if err != nil {
			return
		}
		src.SetReadDeadline(time.Now().Add(s.pongWait))
		dst.SetWriteDeadline(time.Now().Add(writeWait))
		if err := dst.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

// pinger keeps one side of the bridge talking while no data flows.
// WriteControl is safe to call concurrently with the opposite pump's writes.
func (s *Server) pinger(conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(s.pingPeriod)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// hostname strips the port from a Host header value.
func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}
