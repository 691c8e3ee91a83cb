package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rfranks/ai-chat-ehr/internal/engine"
	"github.com/rfranks/ai-chat-ehr/internal/phi"
	"github.com/rfranks/ai-chat-ehr/internal/store"
	"github.com/rfranks/ai-chat-ehr/internal/websocket"
)

const maxRecordBytes = 4 << 20 // 4 MiB

// AnonymizeResponse is the POST /anonymize reply: the sanitized record, the
// count-only audit summary, and the storage row identifier.
type AnonymizeResponse struct {
	PatientID string               `json:"patientId"`
	Record    json.RawMessage      `json:"record"`
	Summary   *engine.AuditSummary `json:"summary"`
	Persisted bool                 `json:"persisted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "ai-chat-ehr-anonymizer",
		"uptime":  time.Since(s.startTime).String(),
	})
}

// handleInfo returns service configuration summary
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	labels := s.detector.EnabledLabels()
	names := make([]string, len(labels))
	for i, label := range labels {
		names[i] = string(label)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":           "ai-chat-ehr-anonymizer",
		"version":           "1.0.0",
		"storage_mode":      s.config.Storage.Mode,
		"enabled_detectors": names,
		"rule_count":        len(s.config.Privacy.Rules),
		"websocket_enabled": s.config.WebSocket.Enabled,
	})
}

// handleStats returns hub and cache statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"websocket": s.wsHub.GetStats(),
	}
	if s.spanCache != nil {
		if stats, err := s.spanCache.GetStats(r.Context()); err == nil {
			response["span_cache"] = stats
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// handleCacheClear flushes the detection span cache.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if s.spanCache == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "span cache not enabled"})
		return
	}
	if err := s.spanCache.Clear(r.Context()); err != nil {
		s.logger.Error("Failed to clear span cache", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "cache clear failed"})
		return
	}
	s.logger.Info("Span cache cleared by request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleAnonymize runs one patient document through the engine, persists the
// resulting row, and returns the sanitized record plus its audit summary.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRecordBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}
	if len(body) > maxRecordBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "record too large"})
		return
	}

	record, err := engine.ParseRecord(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid record JSON"})
		return
	}

	sanitized, summary, err := s.engine.Anonymize(r.Context(), record)
	if err != nil {
		if errors.Is(err, phi.ErrDetectionUnavailable) {
			log.Error("Detection unavailable, record rejected", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "phi detection unavailable"})
			return
		}
		log.Error("Anonymization failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "anonymization failed"})
		return
	}

	row := store.RowFromRecord(sanitized)
	persisted := false
	if row != nil {
		id, err := s.storage.InsertPatient(r.Context(), row)
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				writeJSON(w, http.StatusConflict, errorResponse{Error: "duplicate patient"})
				return
			}
			log.Error("Failed to persist anonymized row", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure"})
			return
		}
		row.ID = id
		persisted = s.config.Storage.Mode == "database" || s.config.Storage.Mode == "sqlfile"
	}

	encoded, err := sanitized.MarshalJSON()
	if err != nil {
		log.Error("Failed to encode sanitized record", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "encoding failure"})
		return
	}

	log.Info("Record anonymized",
		zap.Int("transformations", summary.TotalTransformations),
		zap.Duration("duration", time.Since(start)),
	)

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeAnonymization,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.AnonymizationEvent{
			RequestID:    requestID,
			Source:       "api",
			Summary:      summary,
			Persisted:    persisted,
			ProcessingMS: float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})

	patientID := ""
	if row != nil {
		patientID = row.ID.String()
	}
	writeJSON(w, http.StatusOK, AnonymizeResponse{
		PatientID: patientID,
		Record:    encoded,
		Summary:   summary,
		Persisted: persisted,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
