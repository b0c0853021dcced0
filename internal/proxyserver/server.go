// Package proxyserver implements the gin-based HTTP server: query gating
// through Protector, transparent proxying of everything else, and backend
// timeout/error translation.
package proxyserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adobe/opentsdb-protector/internal/pkg/httpclient"
	"github.com/adobe/opentsdb-protector/internal/pkg/logger"
	"github.com/adobe/opentsdb-protector/internal/protector"
	"github.com/adobe/opentsdb-protector/internal/proxyserver/middleware"
	"github.com/adobe/opentsdb-protector/internal/query"
	"github.com/adobe/opentsdb-protector/internal/telemetry"
)

// Server is the protector's HTTP front end: constructed once at startup
// with its immutable collaborators, then shared across every request
// goroutine gin spawns.
type Server struct {
	engine    *gin.Engine
	protector *protector.Protector
	telemetry *telemetry.Telemetry
	pool      *httpclient.Pool

	backendOrigin string
	backendHost   string
	timeout       time.Duration
	safeMode      bool
}

// Options configures a Server.
type Options struct {
	BackendHost string
	BackendPort int
	Timeout     time.Duration
	SafeMode    bool
}

// New builds the gin engine, registers middleware and routes, and returns a
// ready-to-serve Server.
func New(opts Options, p *protector.Protector, tel *telemetry.Telemetry) *Server {
	origin := fmt.Sprintf("http://%s:%d", opts.BackendHost, opts.BackendPort)

	s := &Server{
		protector:     p,
		telemetry:     tel,
		pool:          httpclient.NewPool(httpclient.Options{Timeout: opts.Timeout}),
		backendOrigin: origin,
		backendHost:   fmt.Sprintf("%s:%d", opts.BackendHost, opts.BackendPort),
		timeout:       opts.Timeout,
		safeMode:      opts.SafeMode,
	}

	if tel != nil && opts.SafeMode {
		tel.SafeMode.Set(1)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.AccessLog())
	r.Use(s.metricsMiddleware())

	r.GET("/metrics", s.handleMetrics)
	r.GET("/top/duration", s.handleTop("duration"))
	r.GET("/top/dps", s.handleTop("dps"))
	r.POST("/api/put", s.handlePut)
	r.POST("/api/query", s.handleQuery)
	r.NoRoute(s.handleProxy)

	s.engine = r
	return s
}

// Engine exposes the underlying gin engine, e.g. for http.Server wiring in
// cmd/server.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.telemetry == nil {
			return
		}
		s.telemetry.RequestsTotal.WithLabelValues(
			c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.telemetry == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	s.telemetry.Handler().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleTop(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		top, err := s.protector.GetTop(c.Request.Context(), kind)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load leaderboard", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, top)
	}
}

func (s *Server) handlePut(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"message": "/api/put not allowed", "error": "write endpoint blocked"})
}

func (s *Server) handleQuery(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "failed to read request body", "error": err.Error()})
		return
	}

	q, err := query.Parse(body)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"message": "invalid query", "error": err.Error()})
		return
	}

	s.observeStartAge(c, q)

	decision := s.protector.Admit(ctx, q)
	if !decision.Allowed {
		if s.telemetry != nil {
			s.telemetry.RequestsBlocked.WithLabelValues(strconv.FormatBool(s.safeMode), decision.Rule).Inc()
		}
		if !s.safeMode {
			c.JSON(http.StatusForbidden, gin.H{"message": decision.Message, "error": decision.Rule})
			return
		}
		logger.FromContext(ctx).Info("safe mode: forwarding denied query",
			zap.String("rule", decision.Rule), zap.String("fingerprint", q.ID()))
	}

	outbound, err := q.ToOutboundJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to serialize query", "error": err.Error()})
		return
	}

	s.forwardQuery(c, q, outbound)
}

func (s *Server) observeStartAge(c *gin.Context, q *query.Query) {
	if s.telemetry == nil {
		return
	}
	start, err := q.StartTimestamp()
	if err != nil {
		return
	}
	ageDays := time.Since(time.Unix(start, 0)).Hours() / 24
	s.telemetry.TSDBRequestInterval.WithLabelValues(ageBucketLabel(ageDays)).Observe(ageDays)
}

func ageBucketLabel(days float64) string {
	switch {
	case days <= 1:
		return "within_day"
	case days <= 30:
		return "within_month"
	case days <= 90:
		return "within_quarter"
	default:
		return "beyond_quarter"
	}
}

// forwardQuery issues the outbound request for /api/query, translating the
// backend outcome per spec §4.6 and recording stats on completion.
func (s *Server) forwardQuery(c *gin.Context, q *query.Query, body []byte) {
	ctx := c.Request.Context()
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.backendOrigin+"/api/query", newReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to build backend request", "error": err.Error()})
		return
	}
	copyHeaders(req.Header, c.Request.Header)
	stripHopByHop(req.Header)
	req.Host = s.backendHost
	req.Header.Set("X-Protector", q.ID())
	req.ContentLength = int64(len(body))

	client := s.pool.Get(s.backendOrigin)
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		s.pool.Drop(s.backendOrigin)
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			s.protector.SaveStats(ctx, q, 0, duration, true)
			if s.telemetry != nil {
				s.telemetry.TSDBRequestLatencySeconds.WithLabelValues("504", "/api/query", "POST").Observe(duration.Seconds())
			}
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"message": fmt.Sprintf("Query timed out. Configured timeout: %ds", int(s.timeout.Seconds())),
				"error":   "backend_timeout",
			})
			return
		}
		if s.telemetry != nil {
			s.telemetry.TSDBRequestLatencySeconds.WithLabelValues("502", "/api/query", "POST").Observe(duration.Seconds())
		}
		c.JSON(http.StatusBadGateway, gin.H{"message": "Invalid response from backend: " + err.Error(), "error": "backend_error"})
		return
	}
	defer resp.Body.Close()

	if s.telemetry != nil {
		s.telemetry.TSDBRequestLatencySeconds.WithLabelValues(strconv.Itoa(resp.StatusCode), "/api/query", "POST").Observe(duration.Seconds())
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to read backend response body", zap.Error(err))
		c.Status(http.StatusBadGateway)
		return
	}

	if resp.StatusCode == http.StatusBadRequest {
		c.JSON(http.StatusBadRequest, gin.H{"message": "backend rejected query", "error": string(respBody)})
		return
	}

	if resp.StatusCode != http.StatusOK {
		writeUpstreamPassthrough(c, resp, respBody)
		return
	}

	parsed, err := query.ParseResponse(respBody)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to parse backend response, forwarding raw", zap.Error(err))
		writeUpstreamPassthrough(c, resp, respBody)
		return
	}

	if s.telemetry != nil {
		if emitted, ok := parsed.Summary["emittedDPs"]; ok {
			s.telemetry.DatapointsServedCount.Add(emitted)
		}
	}

	var emittedDPs int64
	if v, ok := parsed.Summary["emittedDPs"]; ok {
		emittedDPs = int64(v)
	}
	s.protector.SaveStats(ctx, q, emittedDPs, duration, false)

	out, err := parsed.ToClientJSON()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	header := c.Writer.Header()
	copyHeaders(header, resp.Header)
	stripHopByHop(header)
	header.Set("Content-Length", strconv.Itoa(len(out)))
	c.Data(http.StatusOK, "application/json", out)
}

// handleProxy transparently forwards every other method/path to the
// backend, stripping hop-by-hop headers on both legs.
func (s *Server) handleProxy(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	target := s.backendOrigin + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, c.Request.Method, target, newReader(body))
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	copyHeaders(req.Header, c.Request.Header)
	stripHopByHop(req.Header)
	req.Host = s.backendHost

	client := s.pool.Get(s.backendOrigin)
	resp, err := client.Do(req)
	if err != nil {
		s.pool.Drop(s.backendOrigin)
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"message": fmt.Sprintf("Query timed out. Configured timeout: %ds", int(s.timeout.Seconds())), "error": "backend_timeout"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"message": "Invalid response from backend: " + err.Error(), "error": "backend_error"})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Status(http.StatusBadGateway)
		return
	}
	writeUpstreamPassthrough(c, resp, respBody)
}

func writeUpstreamPassthrough(c *gin.Context, resp *http.Response, body []byte) {
	header := c.Writer.Header()
	copyHeaders(header, resp.Header)
	stripHopByHop(header)
	header.Set("Content-Length", strconv.Itoa(len(body)))
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.StatusCode, contentType, body)
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

func newReader(body []byte) *bytes.Reader {
	return bytes.NewReader(body)
}
