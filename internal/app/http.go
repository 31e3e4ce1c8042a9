package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NithishSaravananRss/valentine-proposal-app/internal/auth"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/export"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/presentation"
	"github.com/NithishSaravananRss/valentine-proposal-app/internal/proposal"
)

type HTTPServer struct {
	service    *Service
	clients    auth.Clients
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, clients auth.Clients, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, clients: clients, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"backend": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["backend"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/proposals" {
		s.handleCreate(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "proposals" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	proposalID := parts[2]
	action := ""
	if len(parts) == 4 {
		action = parts[3]
	} else if len(parts) > 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		current, err := s.service.GetProposal(r.Context(), proposalID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"proposal": current})
	case r.Method == http.MethodPost && action == "open":
		var rec presentation.Recorder
		view, err := s.service.OpenProposal(r.Context(), proposalID, &rec)
		if err != nil {
			s.failWithCues(w, err, rec.Events())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"view": view, "cues": rec.Events()})
	case r.Method == http.MethodPost && action == "accept":
		var rec presentation.Recorder
		result, err := s.service.AcceptProposal(r.Context(), proposalID, &rec)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result, "cues": rec.Events()})
	case r.Method == http.MethodGet && action == "events":
		s.handleEvents(w, r, proposalID)
	case r.Method == http.MethodGet && action == "celebration":
		var rec presentation.Recorder
		view, err := s.service.CelebrateProposal(r.Context(), proposalID, &rec)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"view": view, "cues": rec.Events()})
	case r.Method == http.MethodGet && action == "keepsake":
		s.handleKeepsake(w, r, proposalID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	clientID, err := s.clients.Identify(w, r)
	if err != nil {
		s.logger.Error("issue client token failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
		return
	}
	var body CreateInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	var rec presentation.Recorder
	result, err := s.service.CreateProposal(r.Context(), clientID, body, &rec)
	if err != nil {
		s.failWithCues(w, err, rec.Events())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"result": result, "cues": rec.Events()})
}

func (s *HTTPServer) handleKeepsake(w http.ResponseWriter, r *http.Request, proposalID string) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be png or pdf", nil)
		return
	}
	result, err := s.service.Keepsake(r.Context(), proposalID, format)
	if err != nil {
		s.fail(w, err)
		return
	}
	if result.URL != "" {
		w.Header().Set("X-Keepsake-URL", result.URL)
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handleEvents streams the tracking page as server-sent events: timeline
// snapshots, presentation cues and a final redirect.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, proposalID string) {
	controller := http.NewResponseController(w)
	started := false
	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("encode event failed", zap.String("event", event), zap.Error(err))
			return
		}
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		_ = controller.Flush()
	}

	presenter := presentation.Func(func(_ context.Context, event presentation.Event) {
		send("cue", event)
		if event.Cue == presentation.CueFadeOutRedirect {
			send("redirect", event.Params)
		}
	})
	err := s.service.TrackProposal(r.Context(), proposalID, presenter, func(view proposal.TimelineView) {
		send("timeline", view)
	})
	if err != nil && !started {
		s.fail(w, err)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) failWithCues(w http.ResponseWriter, err error, cues []presentation.Event) {
	status, code, message, _ := mapError(err)
	if len(cues) == 0 {
		s.fail(w, err)
		return
	}
	s.fail(w, domainError(status, code, message, map[string]any{"cues": cues}))
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 16<<10))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, proposal.ErrNotFound) || errors.Is(err, proposal.ErrInvalidID) {
		return http.StatusNotFound, "NOT_FOUND", MsgNotFound, nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
