package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/remask/remask/internal/events"
	"github.com/remask/remask/internal/masking"
	"github.com/remask/remask/internal/metrics"
	"github.com/remask/remask/internal/sessions"
)

// handleDetect reports matches without rewriting the text.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cfg, err := s.requestConfig(req.Categories, req.Include, req.Exclude)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	matches := masking.Detect(req.Text, cfg)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.WithLabelValues(metrics.OperationDetect).Observe(elapsed.Seconds())

	if matches == nil {
		matches = []masking.Match{}
	}
	s.writeJSON(w, http.StatusOK, DetectResponse{
		Matches:      matches,
		Count:        len(matches),
		ProcessingMS: toMillis(elapsed),
	})
}

// handleMask replaces detected secrets with their base placeholders.
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	var req MaskRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cfg, err := s.requestConfig(req.Categories, req.Include, req.Exclude)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result := masking.Mask(req.Text, cfg)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.WithLabelValues(metrics.OperationMask).Observe(elapsed.Seconds())

	s.recordUsage(result.CustomCounts)
	s.countMasked(result.CategoryCounts)
	s.broadcastMasked(r, result.Count, result.CategoryCounts, result.CustomCounts, false, elapsed)

	s.writeJSON(w, http.StatusOK, MaskResponse{
		MaskResult:   result,
		ProcessingMS: toMillis(elapsed),
	})
}

// handleMaskRestorable masks with numbered placeholders and hands the
// caller the means to reverse it, either inline or as a stored session.
func (s *Server) handleMaskRestorable(w http.ResponseWriter, r *http.Request) {
	var req RestorableRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Store && s.sessions == nil {
		s.writeError(w, http.StatusBadRequest, "session storage is not enabled")
		return
	}

	cfg, err := s.requestConfig(req.Categories, req.Include, req.Exclude)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result := masking.MaskWithRestore(req.Text, cfg)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.WithLabelValues(metrics.OperationMaskRestorable).Observe(elapsed.Seconds())

	s.recordUsage(result.CustomCounts)
	s.countMasked(result.CategoryCounts)

	resp := RestorableResponse{
		Masked:         result.Masked,
		Count:          result.Count,
		CategoryCounts: result.CategoryCounts,
		CustomCounts:   result.CustomCounts,
		Matches:        result.Matches,
		ProcessingMS:   toMillis(elapsed),
	}

	if req.Store {
		sess, err := s.sessions.Create(r.Context(), result.Map)
		if err != nil {
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeSessions).Inc()
			s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to store session", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to store session")
			return
		}
		metrics.SessionsCreatedTotal.Inc()
		resp.SessionID = sess.ID
		resp.ExpiresAt = &sess.ExpiresAt
	} else {
		resp.RestoreMap = result.Map
	}

	s.broadcastMasked(r, result.Count, result.CategoryCounts, result.CustomCounts, true, elapsed)
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRestore replays a restore map over a masked fragment. The map
// arrives inline or is fetched by session id.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID != "" && len(req.RestoreMap) > 0 {
		s.writeError(w, http.StatusBadRequest, "provide either restore_map or session_id, not both")
		return
	}
	if req.SessionID == "" && len(req.RestoreMap) == 0 {
		s.writeError(w, http.StatusBadRequest, "restore_map or session_id is required")
		return
	}

	restoreMap := req.RestoreMap
	if req.SessionID != "" {
		if s.sessions == nil {
			s.writeError(w, http.StatusBadRequest, "session storage is not enabled")
			return
		}
		sess, err := s.sessions.Get(r.Context(), req.SessionID)
		if err != nil {
			if errors.Is(err, sessions.ErrNotFound) {
				s.writeError(w, http.StatusNotFound, "session not found")
				return
			}
			metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeSessions).Inc()
			s.logger.WithRequestID(getRequestID(r.Context())).Error("Session lookup failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
		restoreMap = sess.Map
		metrics.SessionsRestoredTotal.Inc()
	}

	start := time.Now()
	restored := masking.Restore(req.Text, restoreMap)
	elapsed := time.Since(start)
	metrics.ProcessingDuration.WithLabelValues(metrics.OperationRestore).Observe(elapsed.Seconds())

	if req.Close && req.SessionID != "" {
		if err := s.sessions.Delete(r.Context(), req.SessionID); err != nil && !errors.Is(err, sessions.ErrNotFound) {
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Failed to delete session",
				zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}

	s.broadcastRestored(r, req.SessionID, len(restoreMap), elapsed)
	s.writeJSON(w, http.StatusOK, RestoreResponse{
		Restored:     restored,
		Entries:      len(restoreMap),
		ProcessingMS: toMillis(elapsed),
	})
}

// handleListPatterns lists the custom patterns.
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	s.patternsMu.RLock()
	patterns := s.registry.List()
	s.patternsMu.RUnlock()

	s.writeJSON(w, http.StatusOK, PatternListResponse{
		Patterns: patterns,
		Count:    len(patterns),
	})
}

// handleCreatePattern registers a custom pattern. Registry and store move
// together: if persisting fails the registration is undone.
func (s *Server) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	var spec masking.CustomPatternSpec
	if !s.decodeJSON(w, r, &spec) {
		return
	}

	s.patternsMu.Lock()
	cp, err := s.registry.Register(spec)
	if err == nil && s.store != nil {
		if serr := s.store.Save(r.Context(), &cp); serr != nil {
			_ = s.registry.Delete(cp.ID)
			s.patternsMu.Unlock()
			s.storeError(w, r, "persist", serr)
			return
		}
	}
	s.patternsMu.Unlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.updatePatternGauges()
	s.broadcastPatternEvent(events.EventTypePatternCreated, cp, getRequestID(r.Context()))
	s.writeJSON(w, http.StatusCreated, cp)
}

// handleGetPattern returns one custom pattern by id.
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.patternsMu.RLock()
	cp, err := s.registry.Get(id)
	s.patternsMu.RUnlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

// handleUpdatePattern replaces a custom pattern's definition.
func (s *Server) handleUpdatePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var spec masking.CustomPatternSpec
	if !s.decodeJSON(w, r, &spec) {
		return
	}

	s.patternsMu.Lock()
	prev, err := s.registry.Get(id)
	var cp masking.CustomPattern
	if err == nil {
		cp, err = s.registry.Update(id, spec)
	}
	if err == nil && s.store != nil {
		if serr := s.store.Save(r.Context(), &cp); serr != nil {
			_, _ = s.registry.Update(id, specFrom(prev))
			s.patternsMu.Unlock()
			s.storeError(w, r, "persist", serr)
			return
		}
	}
	s.patternsMu.Unlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.updatePatternGauges()
	s.broadcastPatternEvent(events.EventTypePatternUpdated, cp, getRequestID(r.Context()))
	s.writeJSON(w, http.StatusOK, cp)
}

// handleDeletePattern removes a custom pattern.
func (s *Server) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.patternsMu.Lock()
	prev, err := s.registry.Get(id)
	if err == nil {
		err = s.registry.Delete(id)
	}
	if err == nil && s.store != nil {
		if serr := s.store.Delete(r.Context(), id); serr != nil {
			_ = s.registry.Add(prev)
			s.patternsMu.Unlock()
			s.storeError(w, r, "delete", serr)
			return
		}
	}
	s.patternsMu.Unlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.updatePatternGauges()
	s.broadcastPatternEvent(events.EventTypePatternDeleted, prev, getRequestID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleTogglePattern flips a custom pattern's enabled state.
func (s *Server) handleTogglePattern(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.patternsMu.Lock()
	prev, err := s.registry.Get(id)
	if err == nil {
		err = s.registry.SetEnabled(id, !prev.Enabled)
	}
	if err == nil && s.store != nil {
		if serr := s.store.SetEnabled(r.Context(), id, !prev.Enabled); serr != nil {
			_ = s.registry.SetEnabled(id, prev.Enabled)
			s.patternsMu.Unlock()
			s.storeError(w, r, "persist", serr)
			return
		}
	}
	var cp masking.CustomPattern
	if err == nil {
		cp, _ = s.registry.Get(id)
	}
	s.patternsMu.Unlock()

	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.updatePatternGauges()
	s.broadcastPatternEvent(events.EventTypePatternUpdated, cp, getRequestID(r.Context()))
	s.writeJSON(w, http.StatusOK, cp)
}

// handleBuiltinPatterns returns the built-in catalog summary.
func (s *Server) handleBuiltinPatterns(w http.ResponseWriter, r *http.Request) {
	builtins := masking.BuiltinPatterns()
	out := make([]BuiltinPattern, 0, len(builtins))
	for _, p := range builtins {
		out = append(out, BuiltinPattern{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Severity: p.Severity,
			Priority: p.Priority,
			Active:   !p.Inactive,
		})
	}
	s.writeJSON(w, http.StatusOK, BuiltinListResponse{Patterns: out, Count: len(out)})
}

// handleHealth reports overall health plus a check per attached backend.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: time.Now()}
	components := make(map[string]string)
	if s.store != nil {
		components["store"] = "healthy"
		if err := s.store.Ping(ctx); err != nil {
			components["store"] = "unhealthy"
			resp.Status = "degraded"
		}
	}
	if s.sessions != nil {
		components["sessions"] = "healthy"
		if err := s.sessions.Ping(ctx); err != nil {
			components["sessions"] = "unhealthy"
			resp.Status = "degraded"
		}
	}
	if len(components) > 0 {
		resp.Components = components
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleInfo describes the running server.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.patternsMu.RLock()
	cfg := s.masking.ToEngineConfig()
	cfg.CustomPatterns = s.registry.Enabled()
	customs := len(s.registry.List())
	s.patternsMu.RUnlock()

	var enabled []string
	for _, cat := range masking.Categories() {
		if cfg.CategoryEnabled(cat) {
			enabled = append(enabled, string(cat))
		}
	}

	s.writeJSON(w, http.StatusOK, InfoResponse{
		Name:              "remask",
		Version:           Version,
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		ActivePatterns:    len(masking.ActivePatterns(cfg)),
		CustomPatterns:    customs,
		EnabledCategories: enabled,
		SessionsEnabled:   s.sessions != nil,
		ProxyEnabled:      s.config.Proxy.Enabled,
	})
}

// handleStats aggregates runtime statistics across components.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.patternsMu.RLock()
	customs := s.registry.List()
	s.patternsMu.RUnlock()

	enabled := 0
	var usage int64
	for _, cp := range customs {
		if cp.Enabled {
			enabled++
		}
		usage += cp.UsageCount
	}

	hubStats := s.hub.GetStats()
	resp := StatsResponse{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		TotalRequests: atomic.LoadInt64(&s.totalRequests),
		TotalMasked:   atomic.LoadInt64(&s.totalMasked),
		Patterns: PatternStats{
			Builtin:    len(masking.BuiltinPatterns()),
			Custom:     len(customs),
			Enabled:    enabled,
			TotalUsage: usage,
		},
		Events: EventStats{
			ActiveConnections: hubStats.ActiveConnections,
			TotalConnections:  hubStats.TotalConnections,
			TotalBroadcasts:   hubStats.TotalBroadcasts,
		},
	}

	if s.store != nil {
		if st, err := s.store.GetStats(r.Context()); err == nil {
			resp.Store = st
		} else {
			s.logger.Warn("Failed to collect store stats", zap.Error(err))
		}
	}
	if s.sessions != nil {
		if st, err := s.sessions.GetStats(r.Context()); err == nil {
			resp.Sessions = st
		} else {
			s.logger.Warn("Failed to collect session stats", zap.Error(err))
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleWebSocket upgrades dashboard connections onto the event hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

// baseConfig snapshots the server's masking configuration with the
// enabled custom patterns attached.
func (s *Server) baseConfig() masking.Config {
	s.patternsMu.RLock()
	cfg := s.masking.ToEngineConfig()
	cfg.CustomPatterns = s.registry.Enabled()
	s.patternsMu.RUnlock()
	return cfg
}

// requestConfig merges per-request overrides onto the base configuration.
// Base slices are copied before appending so the shared config is never
// mutated.
func (s *Server) requestConfig(categories map[string]bool, include, exclude []string) (masking.Config, error) {
	for name := range categories {
		if !masking.Category(name).Valid() {
			return masking.Config{}, fmt.Errorf("unknown category %q", name)
		}
	}

	cfg := s.baseConfig()

	if len(categories) > 0 {
		merged := make(map[masking.Category]bool, len(cfg.Categories)+len(categories))
		for cat, on := range cfg.Categories {
			merged[cat] = on
		}
		for name, on := range categories {
			merged[masking.Category(name)] = on
		}
		cfg.Categories = merged
	}
	if len(include) > 0 {
		cfg.Include = append(append([]string(nil), cfg.Include...), include...)
	}
	if len(exclude) > 0 {
		cfg.Exclude = append(append([]string(nil), cfg.Exclude...), exclude...)
	}
	return cfg, nil
}

// recordUsage writes custom pattern fire counts back to the registry and
// store off the request path.
func (s *Server) recordUsage(counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	go func() {
		s.patternsMu.Lock()
		s.registry.RecordUsage(counts)
		s.patternsMu.Unlock()

		if s.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.IncrementUsage(ctx, counts); err != nil {
				metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeStore).Inc()
				s.logger.Warn("Failed to persist pattern usage", zap.Error(err))
			}
		}
	}()
}

// countMasked feeds the per-category counters.
func (s *Server) countMasked(categories map[masking.Category]int) {
	total := 0
	for cat, n := range categories {
		metrics.SecretsMaskedTotal.WithLabelValues(string(cat)).Add(float64(n))
		total += n
	}
	if total > 0 {
		atomic.AddInt64(&s.totalMasked, int64(total))
	}
}

// updatePatternGauges refreshes the active pattern gauges after a rule
// set change.
func (s *Server) updatePatternGauges() {
	s.patternsMu.RLock()
	base := s.masking.ToEngineConfig()
	customs := len(s.registry.Enabled())
	s.patternsMu.RUnlock()

	metrics.ActivePatterns.WithLabelValues(metrics.KindBuiltin).Set(float64(len(masking.ActivePatterns(base))))
	metrics.ActivePatterns.WithLabelValues(metrics.KindCustom).Set(float64(customs))
}

func (s *Server) broadcastMasked(r *http.Request, count int, categories map[masking.Category]int, customs map[string]int, reversible bool, elapsed time.Duration) {
	if count == 0 {
		return
	}
	requestID := getRequestID(r.Context())
	s.hub.Broadcast(events.Event{
		Type:      events.EventTypeMasked,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: events.MaskedEvent{
			RequestID:      requestID,
			ClientIP:       getClientIP(r),
			TotalMatches:   count,
			CategoryCounts: toStringCounts(categories),
			CustomCounts:   customs,
			Reversible:     reversible,
			ProcessingMS:   toMillis(elapsed),
		},
	})
}

func (s *Server) broadcastRestored(r *http.Request, sessionID string, entries int, elapsed time.Duration) {
	requestID := getRequestID(r.Context())
	s.hub.Broadcast(events.Event{
		Type:      events.EventTypeRestored,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: events.RestoredEvent{
			RequestID:    requestID,
			SessionID:    sessionID,
			Entries:      entries,
			ProcessingMS: toMillis(elapsed),
		},
	})
}

func (s *Server) broadcastPatternEvent(eventType events.EventType, cp masking.CustomPattern, requestID string) {
	s.hub.Broadcast(events.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: events.PatternEvent{
			PatternID: cp.ID,
			Name:      cp.Name,
			Severity:  string(cp.Severity),
			Enabled:   cp.Enabled,
		},
	})
}

// storeError logs a store failure and answers 500. The engine state has
// already been rolled back by the caller.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, action string, err error) {
	metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeStore).Inc()
	s.logger.WithRequestID(getRequestID(r.Context())).Error("Pattern store operation failed",
		zap.String("action", action), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "failed to "+action+" pattern")
}

// writeEngineError maps registry error kinds onto HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, masking.ErrPatternNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, masking.ErrDuplicatePattern):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, masking.ErrInvalidPattern):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// decodeJSON decodes a request body, translating oversized bodies to 413
// and malformed JSON to 400.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func toMillis(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

func toStringCounts(in map[masking.Category]int) map[string]int {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]int, len(in))
	for cat, n := range in {
		out[string(cat)] = n
	}
	return out
}

// specFrom rebuilds a submission from a stored pattern, used to undo an
// update whose persistence failed.
func specFrom(cp masking.CustomPattern) masking.CustomPatternSpec {
	enabled := cp.Enabled
	return masking.CustomPatternSpec{
		Name:        cp.Name,
		Pattern:     cp.Pattern,
		Flags:       cp.Flags,
		Replacement: cp.Replacement,
		Severity:    cp.Severity,
		Priority:    cp.Priority,
		Enabled:     &enabled,
	}
}
