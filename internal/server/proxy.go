package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/remask/remask/internal/logger"
	"github.com/remask/remask/internal/masking"
	"github.com/remask/remask/internal/metrics"
)

const restoreMapKey contextKey = "restore_map"

// newProxy builds the forwarding handler for proxy mode. Request bodies
// are masked before they leave, and when restore_responses is on the
// upstream's answer is passed back through the restore map so the client
// sees its own values again.
func (s *Server) newProxy() (http.Handler, error) {
	target, err := url.Parse(s.config.Proxy.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy upstream %q: %w", s.config.Proxy.Upstream, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid proxy upstream %q: scheme and host are required", s.config.Proxy.Upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host

		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "remask/"+Version)
		}
		if s.config.Proxy.RestoreResponses {
			// A compressed body cannot be restored in place.
			req.Header.Set("Accept-Encoding", "identity")
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeUpstream).Inc()
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Upstream request failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, `{"error":"upstream request failed"}`)
	}

	proxy.Transport = &http.Transport{
		ResponseHeaderTimeout: s.config.Proxy.Timeout,
	}

	if s.config.Proxy.RestoreResponses {
		proxy.ModifyResponse = s.restoreResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.maskProxyRequest(w, r, proxy)
	}), nil
}

// maskProxyRequest scrubs configured headers, masks the request body, and
// forwards. The restore map rides the request context to the response
// side.
func (s *Server) maskProxyRequest(w http.ResponseWriter, r *http.Request, proxy *httputil.ReverseProxy) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	log.Debug("Forwarding request",
		zap.String("path", r.URL.Path),
		zap.Any("headers", logger.RedactHeaders(r.Header)))

	for _, h := range s.config.Proxy.ScrubHeaders {
		r.Header.Del(h)
	}

	if r.Body != nil && r.ContentLength != 0 {
		limit := s.config.Server.MaxBodyBytes
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			log.Error("Failed to read request body", zap.Error(err))
			http.Error(w, "Failed to read request", http.StatusInternalServerError)
			return
		}

		if int64(len(body)) > limit {
			// Too large to buffer. Forward unmasked rather than break
			// the request; the unread remainder is stitched back on.
			log.Warn("Request body exceeds masking limit, forwarding unmasked",
				zap.Int64("limit", limit))
			r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		} else {
			start := time.Now()
			result := masking.MaskWithRestore(string(body), s.baseConfig())
			elapsed := time.Since(start)
			metrics.ProcessingDuration.WithLabelValues(metrics.OperationMaskRestorable).Observe(elapsed.Seconds())

			if result.Count > 0 {
				log.Info("Masked secrets in proxied request",
					zap.String("path", r.URL.Path),
					zap.Int("matches", result.Count))
				s.recordUsage(result.CustomCounts)
				s.countMasked(result.CategoryCounts)
				s.broadcastMasked(r, result.Count, result.CategoryCounts, result.CustomCounts, true, elapsed)
				r = r.WithContext(context.WithValue(r.Context(), restoreMapKey, result.Map))
			}

			r.Body = io.NopCloser(strings.NewReader(result.Masked))
			r.ContentLength = int64(len(result.Masked))
		}
	}

	proxy.ServeHTTP(w, r)
}

// restoreResponse rewrites placeholders in the upstream response back to
// the values captured from the request. Streaming and encoded bodies pass
// through untouched.
func (s *Server) restoreResponse(resp *http.Response) error {
	restoreMap, ok := resp.Request.Context().Value(restoreMapKey).(masking.RestoreMap)
	if !ok || len(restoreMap) == 0 {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		s.logger.Debug("Skipping restore of encoded response", zap.String("encoding", enc))
		return nil
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	resp.Body.Close()

	restored := masking.Restore(string(body), restoreMap)
	resp.Body = io.NopCloser(strings.NewReader(restored))
	resp.ContentLength = int64(len(restored))
	resp.Header.Set("Content-Length", strconv.Itoa(len(restored)))
	return nil
}
